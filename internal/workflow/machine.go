// File: internal/workflow/machine.go

// Package workflow drives the panel login end to end: form submission,
// out-of-band verification when the panel challenges the new environment,
// and the renewal wizard once authenticated. The Machine owns the single
// workflow state; every transition re-classifies the live page rather than
// assuming the previous action landed where it should.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/browser"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/classify"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/config"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/observability"
)

// State is one position in the login and renewal workflow.
type State string

const (
	StateInit              State = "init"
	StateFormSubmitted     State = "form_submitted"
	StateChallengeDetected State = "challenge_detected"
	StateCodeRequested     State = "code_requested"
	StateCodeRetrieved     State = "code_retrieved"
	StateCodeSubmitted     State = "code_submitted"
	StateAuthenticated     State = "authenticated"
	StateWizard            State = "wizard"
	StateRenewalSuccess    State = "renewal_success"
	StateRenewalUnexpired  State = "renewal_unexpired"
	StateRenewalFailed     State = "renewal_failed"
	StateAborted           State = "aborted"
)

// terminalStates are absorbing: once entered, the machine's state never
// changes again. StateAuthenticated is terminal only when the wizard is
// disabled; the machine handles that case explicitly.
var terminalStates = map[State]bool{
	StateRenewalSuccess:   true,
	StateRenewalUnexpired: true,
	StateRenewalFailed:    true,
	StateAborted:          true,
}

// CodeRetriever fetches the out-of-band verification code.
// *mailbox.Retriever implements it.
type CodeRetriever interface {
	Retrieve(ctx context.Context) (string, error)
}

// WizardRunner walks the renewal wizard. *Navigator implements it.
type WizardRunner interface {
	Run(ctx context.Context, steps []Step) RenewalOutcome
}

// Result is the machine's final disposition, consumed by reporting.
type Result struct {
	FinalState  State
	Renewal     RenewalOutcome
	LastURL     string
	AbortReason string
}

// Machine runs the workflow. It is single-use: one Run per Machine.
type Machine struct {
	drv       browser.Driver
	retriever CodeRetriever
	wizard    WizardRunner
	steps     []Step

	panel  config.PanelConfig
	verify config.VerificationConfig
	wcfg   config.WizardConfig

	state  State
	logger *zap.Logger
}

// NewMachine wires a Machine from its collaborators.
func NewMachine(drv browser.Driver, retriever CodeRetriever, wizard WizardRunner, steps []Step,
	panel config.PanelConfig, verify config.VerificationConfig, wcfg config.WizardConfig) *Machine {
	return &Machine{
		drv:       drv,
		retriever: retriever,
		wizard:    wizard,
		steps:     steps,
		panel:     panel,
		verify:    verify,
		wcfg:      wcfg,
		state:     StateInit,
		logger:    observability.GetLogger().Named("workflow"),
	}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// transition moves the machine to next unless the current state is already
// terminal. Terminal states are immutable.
func (m *Machine) transition(next State) {
	if terminalStates[m.state] {
		m.logger.Warn("Transition ignored; state is terminal.",
			zap.String("from", string(m.state)), zap.String("to", string(next)))
		return
	}
	m.logger.Info("State transition.",
		zap.String("from", string(m.state)), zap.String("to", string(next)))
	m.state = next
}

// abort transitions to StateAborted and records the reason on the result.
func (m *Machine) abort(res *Result, reason string) {
	m.logger.Error("Workflow aborted.", zap.String("reason", reason))
	res.AbortReason = reason
	m.transition(StateAborted)
}

// Run executes the workflow to a terminal state and returns the result.
// The renewal outcome stays StatusUnknown whenever the wizard never ran.
func (m *Machine) Run(ctx context.Context) (res Result) {
	res = Result{Renewal: RenewalOutcome{Status: StatusUnknown}}
	defer func() {
		res.FinalState = m.state
		if url, err := m.drv.CurrentURL(ctx); err == nil {
			res.LastURL = url
		}
	}()

	if err := m.submitLoginForm(ctx); err != nil {
		m.abort(&res, fmt.Sprintf("login form: %v", err))
		return res
	}
	m.transition(StateFormSubmitted)

	sig, err := classify.Detect(ctx, m.drv)
	if err != nil {
		m.abort(&res, fmt.Sprintf("classify after login: %v", err))
		return res
	}
	switch sig.Kind {
	case classify.KindPanelHome:
		m.transition(StateAuthenticated)
	case classify.KindChallenge:
		m.transition(StateChallengeDetected)
		if err := m.requestCode(ctx); err != nil {
			m.abort(&res, fmt.Sprintf("requesting verification code: %v", err))
			return res
		}
		m.transition(StateCodeRequested)
	case classify.KindCodeEntry:
		// A code was already requested for this session; skip the send.
		m.transition(StateCodeRequested)
	case classify.KindLoginForm:
		m.abort(&res, "credentials rejected; still on login form")
		return res
	default:
		m.abort(&res, fmt.Sprintf("unrecognized page after login submit (kind=%s)", sig.Kind))
		return res
	}

	if m.state == StateCodeRequested {
		code, err := m.awaitCode(ctx)
		if err != nil {
			m.abort(&res, fmt.Sprintf("retrieving verification code: %v", err))
			return res
		}
		m.transition(StateCodeRetrieved)

		if err := m.submitCode(ctx, code); err != nil {
			m.abort(&res, fmt.Sprintf("submitting verification code: %v", err))
			return res
		}
		m.transition(StateCodeSubmitted)

		sig, err := classify.Detect(ctx, m.drv)
		if err != nil {
			m.abort(&res, fmt.Sprintf("classify after code submit: %v", err))
			return res
		}
		switch sig.Kind {
		case classify.KindPanelHome:
			m.transition(StateAuthenticated)
		case classify.KindCodeEntry:
			m.abort(&res, "verification code rejected")
			return res
		default:
			m.abort(&res, fmt.Sprintf("unrecognized page after code submit (kind=%s)", sig.Kind))
			return res
		}
	}

	if !m.wcfg.Enabled {
		m.logger.Info("Renewal wizard disabled; stopping at authentication.")
		return res
	}

	m.transition(StateWizard)
	res.Renewal = m.wizard.Run(ctx, m.steps)
	switch res.Renewal.Status {
	case StatusSuccess:
		m.transition(StateRenewalSuccess)
	case StatusUnexpired:
		m.transition(StateRenewalUnexpired)
	default:
		m.transition(StateRenewalFailed)
	}
	return res
}

// submitLoginForm fills and submits the panel credentials.
func (m *Machine) submitLoginForm(ctx context.Context) error {
	if err := m.drv.Navigate(ctx, m.panel.LoginURL); err != nil {
		return err
	}

	emailSel, found, err := m.drv.LocateFirst(ctx, m.panel.EmailSelectors, 10*time.Second)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("email field not found")
	}
	passSel, found, err := m.drv.LocateFirst(ctx, m.panel.PasswordSelectors, 10*time.Second)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("password field not found")
	}

	if err := m.drv.Type(ctx, emailSel, m.panel.Email); err != nil {
		return err
	}
	if err := m.drv.Type(ctx, passSel, m.panel.Password); err != nil {
		return err
	}

	submitSel, found, err := m.drv.LocateFirst(ctx, m.panel.SubmitSelectors, 5*time.Second)
	if err != nil {
		return err
	}
	if found {
		if err := m.drv.Click(ctx, submitSel); err != nil {
			return err
		}
	} else if err := m.drv.PressEnter(ctx, passSel); err != nil {
		return err
	}

	if err := m.drv.Settle(ctx); err != nil {
		return err
	}
	if _, err := m.drv.Screenshot(ctx, "login_submitted"); err != nil {
		m.logger.Warn("Screenshot failed.", zap.Error(err))
	}
	return nil
}

// requestCode clicks the challenge page's send-code action and confirms the
// code-entry page came up.
func (m *Machine) requestCode(ctx context.Context) error {
	if err := m.drv.Click(ctx, m.panel.SendCodeSelector); err != nil {
		return err
	}
	if err := m.drv.Settle(ctx); err != nil {
		return err
	}

	sig, err := classify.Detect(ctx, m.drv)
	if err != nil {
		return err
	}
	if sig.Kind != classify.KindCodeEntry {
		return fmt.Errorf("code-entry page did not appear (kind=%s)", sig.Kind)
	}
	return nil
}

// awaitCode runs the retriever on a background goroutine and polls for its
// result against the time budget. On budget expiry the worker keeps running
// until its context cancels; its late result lands in the buffered channel
// and is discarded.
func (m *Machine) awaitCode(ctx context.Context) (string, error) {
	type retrieval struct {
		code string
		err  error
	}
	results := make(chan retrieval, 1)

	retrCtx, cancel := context.WithTimeout(ctx, m.verify.TimeBudget)
	defer cancel()
	go func() {
		code, err := m.retriever.Retrieve(retrCtx)
		results <- retrieval{code: code, err: err}
	}()

	ticker := time.NewTicker(m.verify.PollInterval)
	defer ticker.Stop()
	budget := time.NewTimer(m.verify.TimeBudget)
	defer budget.Stop()

	started := time.Now()
	for {
		select {
		case r := <-results:
			return r.code, r.err
		case <-ticker.C:
			m.logger.Debug("Waiting for verification code.",
				zap.Duration("elapsed", time.Since(started).Round(time.Second)))
		case <-budget.C:
			return "", fmt.Errorf("time budget of %s exhausted", m.verify.TimeBudget)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// submitCode types the verification code into the panel and submits it.
func (m *Machine) submitCode(ctx context.Context, code string) error {
	if err := m.drv.Type(ctx, m.panel.CodeInputSelector, code); err != nil {
		return err
	}
	if err := m.drv.Click(ctx, m.panel.CodeSubmitSelector); err != nil {
		return err
	}
	if err := m.drv.Settle(ctx); err != nil {
		return err
	}
	if _, err := m.drv.Screenshot(ctx, "code_submitted"); err != nil {
		m.logger.Warn("Screenshot failed.", zap.Error(err))
	}
	return nil
}
