// File: internal/mailbox/retriever.go

// Package mailbox retrieves the out-of-band verification code from the
// webmail account the panel sends it to. The lookup runs in its own
// browser slot so the half-completed panel login in the primary slot is
// never disturbed.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/browser"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/classify"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/config"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/observability"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/otp"
)

var (
	// ErrWebmailLogin means the webmail session could not be established.
	ErrWebmailLogin = errors.New("mailbox: webmail login failed")
	// ErrMailboxNotFound means the configured mailbox label is not present
	// in the account list.
	ErrMailboxNotFound = errors.New("mailbox: mailbox not found")
	// ErrMessageNotFound means no unvisited verification mail was found.
	ErrMessageNotFound = errors.New("mailbox: verification message not found")
	// ErrCodeNotExtractable means a verification mail was opened but no
	// code pattern matched its body.
	ErrCodeNotExtractable = errors.New("mailbox: code not extractable from message")
)

// seenAttr marks message-list entries that were already opened, so retries
// move on to the next candidate instead of re-reading the same mail.
const (
	seenAttr   = "data-xmk-seen"
	targetAttr = "data-xmk-target"
)

// Retriever fetches verification codes from webmail through a secondary
// browser slot.
type Retriever struct {
	slots  browser.SlotManager
	drv    browser.Driver
	cfg    config.WebmailConfig
	verify config.VerificationConfig
	rules  []otp.Rule
	logger *zap.Logger
}

// New builds a Retriever. drv must operate on whichever slot slots has
// active, as *browser.Session does.
func New(slots browser.SlotManager, drv browser.Driver, cfg config.WebmailConfig, verify config.VerificationConfig) *Retriever {
	return &Retriever{
		slots:  slots,
		drv:    drv,
		cfg:    cfg,
		verify: verify,
		rules:  otp.DefaultRules,
		logger: observability.GetLogger().Named("mailbox"),
	}
}

// Retrieve opens the secondary slot, logs into webmail, waits out the
// delivery delay, and hunts the message list for a verification mail. The
// caller bounds the whole operation through ctx; the delivery wait is
// charged against that same deadline. Whatever happens, the secondary slot
// is closed and the primary slot reactivated before returning.
func (r *Retriever) Retrieve(ctx context.Context) (code string, err error) {
	if err := r.slots.Open(browser.SlotSecondary); err != nil {
		return "", fmt.Errorf("mailbox: opening secondary slot: %w", err)
	}
	defer func() {
		r.slots.Close(browser.SlotSecondary)
		if actErr := r.slots.Activate(browser.SlotPrimary); actErr != nil {
			r.logger.Error("Could not reactivate primary slot.", zap.Error(actErr))
			if err == nil {
				err = actErr
			}
		}
	}()

	// The mail is usually not out yet when the challenge fires. Waiting up
	// front beats burning search retries on an empty inbox; the wait is
	// charged against the caller's budget like everything else here.
	r.logger.Info("Waiting for mail delivery.", zap.Duration("wait", r.verify.DeliveryWait))
	select {
	case <-time.After(r.verify.DeliveryWait):
	case <-ctx.Done():
		return "", fmt.Errorf("mailbox: %w", ctx.Err())
	}

	if err := r.login(ctx); err != nil {
		return "", err
	}

	if err := r.selectMailbox(ctx); err != nil {
		return "", err
	}

	code, err = retry.DoWithData(
		func() (string, error) { return r.findCode(ctx) },
		retry.Context(ctx),
		retry.Attempts(r.verify.SearchRetries),
		retry.Delay(r.verify.SearchRetryGap),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrMessageNotFound) || errors.Is(err, ErrCodeNotExtractable)
		}),
	)
	if err != nil {
		// Budget exhaustion mid-search means the mail never showed up in
		// time; report it as the message being absent.
		if ctx.Err() != nil && !errors.Is(err, ErrCodeNotExtractable) {
			return "", fmt.Errorf("%w: time budget exhausted", ErrMessageNotFound)
		}
		return "", err
	}

	r.logger.Info("Verification code retrieved.")
	return code, nil
}

// login navigates to the webmail endpoint and authenticates if a login form
// is shown. An already-live session that lands straight in the inbox is
// accepted as-is.
func (r *Retriever) login(ctx context.Context) error {
	if err := r.drv.Navigate(ctx, r.cfg.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrWebmailLogin, err)
	}

	sig, err := classify.Detect(ctx, r.drv)
	if err != nil {
		return err
	}
	if sig.Kind == classify.KindWebmailInbox {
		return nil
	}
	if sig.Kind != classify.KindWebmailLogin {
		return fmt.Errorf("%w: unexpected page %q", ErrWebmailLogin, sig.Kind)
	}

	userSel, found, err := r.drv.LocateFirst(ctx, r.cfg.UserSelectors, 5*time.Second)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: username field not found", ErrWebmailLogin)
	}
	passSel, found, err := r.drv.LocateFirst(ctx, r.cfg.PasswordSelectors, 5*time.Second)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: password field not found", ErrWebmailLogin)
	}

	if err := r.drv.Type(ctx, userSel, r.cfg.Username); err != nil {
		return err
	}
	if err := r.drv.Type(ctx, passSel, r.cfg.Password); err != nil {
		return err
	}

	submitSel, found, err := r.drv.LocateFirst(ctx, r.cfg.SubmitSelectors, 5*time.Second)
	if err != nil {
		return err
	}
	if found {
		if err := r.drv.Click(ctx, submitSel); err != nil {
			return err
		}
	} else {
		if err := r.drv.PressEnter(ctx, passSel); err != nil {
			return err
		}
	}
	if err := r.drv.Settle(ctx); err != nil {
		return err
	}

	sig, err = classify.Detect(ctx, r.drv)
	if err != nil {
		return err
	}
	if sig.Kind != classify.KindWebmailInbox {
		return fmt.Errorf("%w: landed on %q after submit", ErrWebmailLogin, sig.Kind)
	}
	r.logger.Info("Webmail login complete.")
	return nil
}

// selectMailbox clicks the configured mailbox in the account list.
func (r *Retriever) selectMailbox(ctx context.Context) error {
	sel := fmt.Sprintf(`//div[contains(@class, 'account') and contains(text(), '%s')]`, r.cfg.MailboxLabel)

	found, err := r.drv.WaitVisible(ctx, sel, 10*time.Second)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: label %q", ErrMailboxNotFound, r.cfg.MailboxLabel)
	}
	if err := r.drv.Click(ctx, sel); err != nil {
		return err
	}
	return r.drv.Settle(ctx)
}

// findCode makes one pass over the message list: load everything, tag the
// newest unvisited verification mail, open it, and extract the code.
func (r *Retriever) findCode(ctx context.Context) (string, error) {
	if err := r.loadFullList(ctx); err != nil {
		return "", err
	}

	tagged, err := r.tagNextCandidate(ctx)
	if err != nil {
		return "", err
	}
	if !tagged {
		return "", ErrMessageNotFound
	}

	if err := r.drv.Click(ctx, fmt.Sprintf(`[%s="1"]`, targetAttr)); err != nil {
		return "", err
	}
	if err := r.drv.Settle(ctx); err != nil {
		return "", err
	}

	body, err := r.drv.PageContent(ctx)
	if err != nil {
		return "", err
	}
	code, ok := otp.Extract(body, r.rules)
	if !ok {
		return "", ErrCodeNotExtractable
	}
	return code, nil
}

// loadFullList scrolls the message list until its height stops growing, so
// lazily loaded entries are all in the DOM before the candidate search. Two
// consecutive stable reads count as converged; the loop is also bounded by
// MaxScrollLoops for lists that keep growing.
func (r *Retriever) loadFullList(ctx context.Context) error {
	var lastHeight int64 = -1
	stable := 0
	for i := 0; i < r.verify.MaxScrollLoops; i++ {
		if err := r.drv.ScrollToBottom(ctx); err != nil {
			return err
		}
		if err := r.drv.Settle(ctx); err != nil {
			return err
		}
		height, err := r.drv.ScrollHeight(ctx)
		if err != nil {
			return err
		}
		if height == lastHeight {
			stable++
			if stable >= 2 {
				break
			}
		} else {
			stable = 0
		}
		lastHeight = height
	}
	return r.drv.ScrollToTop(ctx)
}

// tagNextCandidate marks the first unvisited list entry matching any of the
// subject signatures with the target attribute and flags it as seen. One
// entry matching several signatures counts once; candidates keep document
// order, so the first unvisited one is the most recent. Reports whether a
// candidate was found.
func (r *Retriever) tagNextCandidate(ctx context.Context) (bool, error) {
	sigs, err := json.Marshal(r.cfg.SubjectSignatures)
	if err != nil {
		return false, fmt.Errorf("mailbox: encoding signatures: %w", err)
	}

	script := fmt.Sprintf(`(() => {
		document.querySelectorAll('[%[1]s="1"]').forEach(el => el.removeAttribute('%[1]s'));
		const sigs = %[2]s;
		const seen = new Set();
		const candidates = [];
		for (const sig of sigs) {
			const nodes = document.evaluate(
				"//*[contains(text(), '" + sig + "')]",
				document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			for (let i = 0; i < nodes.snapshotLength; i++) {
				const el = nodes.snapshotItem(i);
				if (seen.has(el)) continue;
				seen.add(el);
				candidates.push(el);
			}
		}
		for (const el of candidates) {
			if (el.getAttribute('%[3]s') === '1') continue;
			el.setAttribute('%[3]s', '1');
			el.setAttribute('%[1]s', '1');
			return true;
		}
		return false;
	})()`, targetAttr, string(sigs), seenAttr)

	var tagged bool
	if err := r.drv.Evaluate(ctx, script, &tagged); err != nil {
		return false, err
	}
	return tagged, nil
}
