// File: internal/workflow/wizard.go
package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/browser"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/config"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/observability"
)

// Step is one hop of the renewal wizard. Steps execute strictly in order;
// a step that does not land where ExpectURLSubstring says stops the walk.
type Step struct {
	Name            string
	TriggerSelector string
	// ExpectURLSubstring must appear in the URL after the trigger is
	// clicked. Empty skips the assertion.
	ExpectURLSubstring string
	// RestrictionMarker guards the step: when the text is present on the
	// page before the click, the contract cannot be renewed yet and the
	// walk ends as Unexpired.
	RestrictionMarker string
	// Capture records a screenshot and parses expiry figures after landing.
	Capture bool
}

// DefaultSteps builds the wizard for the game panel's free-plan extension
// flow: dashboard, extension entry page, extension confirmation.
func DefaultSteps(cfg config.WizardConfig) []Step {
	return []Step{
		{
			Name:               "game-dashboard",
			TriggerSelector:    `//a[contains(text(), 'ゲーム管理')]`,
			ExpectURLSubstring: "/xmgame/game/index",
			Capture:            true,
		},
		{
			Name:               "extend-entry",
			TriggerSelector:    `//a[contains(text(), 'アップグレード・期限延長')]`,
			ExpectURLSubstring: "/xmgame/game/freeplan/extend/index",
		},
		{
			Name:               "extend-confirm",
			TriggerSelector:    `//input[@type='submit'][contains(@value, '期限を延長する')]`,
			ExpectURLSubstring: cfg.CompletionURL,
			RestrictionMarker:  cfg.RestrictionMarker,
			Capture:            true,
		},
	}
}

// Navigator walks an ordered wizard step list against the active browsing
// context and reduces the walk to a RenewalOutcome.
type Navigator struct {
	drv    browser.Driver
	cfg    config.WizardConfig
	logger *zap.Logger
}

// NewNavigator builds a Navigator over drv.
func NewNavigator(drv browser.Driver, cfg config.WizardConfig) *Navigator {
	return &Navigator{
		drv:    drv,
		cfg:    cfg,
		logger: observability.GetLogger().Named("wizard"),
	}
}

// Run executes steps in order. The walk stops at the first restriction
// marker (Unexpired), the first landing mismatch or driver fault (Failed),
// or runs to completion. Completion counts as Success when the final URL
// contains the configured completion substring or the success text marker
// is on the page; either signal alone is enough.
func (n *Navigator) Run(ctx context.Context, steps []Step) RenewalOutcome {
	out := RenewalOutcome{Status: StatusUnknown}

	for _, step := range steps {
		out.StepsExecuted++
		n.logger.Info("Executing wizard step.", zap.String("step", step.Name))

		if step.RestrictionMarker != "" {
			content, err := n.drv.PageContent(ctx)
			if err != nil {
				return n.fail(out, step, err)
			}
			if strings.Contains(content, step.RestrictionMarker) {
				n.logger.Info("Renewal restricted; contract not close enough to expiry.",
					zap.String("step", step.Name))
				n.screenshot(ctx, "restricted")
				out.Status = StatusUnexpired
				return out
			}
		}

		found, err := n.drv.WaitVisible(ctx, step.TriggerSelector, n.cfg.StepTimeout)
		if err != nil {
			return n.fail(out, step, err)
		}
		if !found {
			return n.fail(out, step, fmt.Errorf("trigger %q not found", step.TriggerSelector))
		}
		if err := n.drv.Click(ctx, step.TriggerSelector); err != nil {
			return n.fail(out, step, err)
		}
		if err := n.drv.Settle(ctx); err != nil {
			return n.fail(out, step, err)
		}

		url, err := n.drv.CurrentURL(ctx)
		if err != nil {
			return n.fail(out, step, err)
		}
		if step.ExpectURLSubstring != "" && !strings.Contains(url, step.ExpectURLSubstring) {
			return n.fail(out, step, fmt.Errorf("landed on %s, expected %q", url, step.ExpectURLSubstring))
		}

		if step.Capture {
			n.screenshot(ctx, step.Name)
			if err := n.captureExpiry(ctx, &out); err != nil {
				n.logger.Warn("Could not read expiry figures.", zap.Error(err))
			}
		}
	}

	url, err := n.drv.CurrentURL(ctx)
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		return out
	}
	content, err := n.drv.PageContent(ctx)
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		return out
	}

	if (n.cfg.CompletionURL != "" && strings.Contains(url, n.cfg.CompletionURL)) ||
		(n.cfg.SuccessMarker != "" && strings.Contains(content, n.cfg.SuccessMarker)) {
		out.Status = StatusSuccess
		n.logger.Info("Renewal completed.",
			zap.String("old_expiry", out.OldExpiry),
			zap.String("new_expiry", out.NewExpiry))
		return out
	}

	out.Status = StatusFailed
	out.Reason = fmt.Sprintf("walk completed but neither completion URL nor success marker present (url=%s)", url)
	return out
}

// captureExpiry parses the remaining-time and expiry-date labels off the
// current page. The first expiry seen is the pre-renewal one; any later,
// different reading becomes the post-renewal expiry.
func (n *Navigator) captureExpiry(ctx context.Context, out *RenewalOutcome) error {
	content, err := n.drv.PageContent(ctx)
	if err != nil {
		return err
	}
	if remaining, ok := parseRemaining(content); ok && out.Remaining == 0 {
		out.Remaining = remaining
	}
	if expiry, ok := parseExpiry(content); ok {
		switch {
		case out.OldExpiry == "":
			out.OldExpiry = expiry
		case expiry != out.OldExpiry:
			out.NewExpiry = expiry
		}
	}
	return nil
}

func (n *Navigator) fail(out RenewalOutcome, step Step, err error) RenewalOutcome {
	n.logger.Error("Wizard step failed.", zap.String("step", step.Name), zap.Error(err))
	n.screenshot(context.Background(), step.Name+"_failed")
	out.Status = StatusFailed
	out.Reason = fmt.Sprintf("step %s: %v", step.Name, err)
	return out
}

func (n *Navigator) screenshot(ctx context.Context, label string) {
	if _, err := n.drv.Screenshot(ctx, label); err != nil {
		n.logger.Warn("Screenshot failed.", zap.String("label", label), zap.Error(err))
	}
}
