// File: internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/config"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/humanoid"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/observability"
)

// Session drives pages in whichever slot the registry has active. Selector
// strings may be CSS or XPath; chromedp's default query mode resolves both.
type Session struct {
	id       string
	registry *Registry
	typist   *humanoid.Humanoid
	cfg      config.BrowserConfig
	logger   *zap.Logger

	shotSeq atomic.Int64
}

var _ Driver = (*Session)(nil)

// NewSession builds a Driver over reg. One session is shared by the whole
// workflow; slot switches happen in the registry, not here.
func NewSession(reg *Registry, cfg config.BrowserConfig) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		registry: reg,
		typist:   humanoid.New(cfg.Humanoid),
		cfg:      cfg,
		logger:   observability.GetLogger().Named("session").With(zap.String("session_id", id)),
	}
}

// ID returns the session's unique identifier, used to correlate log lines
// and report entries.
func (s *Session) ID() string {
	return s.id
}

// run executes actions against the active slot, bounded by timeout. The
// caller's ctx is consulted up front; hard cancellation mid-action arrives
// through the allocator context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slotCtx, err := s.registry.activeContext()
	if err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		slotCtx, cancel = context.WithTimeout(slotCtx, timeout)
		defer cancel()
	}
	return chromedp.Run(slotCtx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url), zap.String("slot", s.registry.Active()))
	err := s.run(ctx, s.cfg.NavigationTimeout,
		network.Enable(),
		network.SetCacheDisabled(true),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := s.run(ctx, timeout, chromedp.WaitVisible(selector))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return false, fmt.Errorf("waiting for %q: %w", selector, err)
}

func (s *Session) LocateFirst(ctx context.Context, selectors []string, timeout time.Duration) (string, bool, error) {
	for _, sel := range selectors {
		found, err := s.WaitVisible(ctx, sel, timeout)
		if err != nil {
			return "", false, err
		}
		if found {
			return sel, true, nil
		}
	}
	return "", false, nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	err := s.run(ctx, s.cfg.SelectorTimeout,
		chromedp.WaitVisible(selector),
		chromedp.Click(selector),
	)
	if err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

func (s *Session) Type(ctx context.Context, selector, text string) error {
	err := s.run(ctx, s.cfg.SelectorTimeout+s.typist.Budget(text),
		chromedp.WaitVisible(selector),
		s.typist.Type(selector, text),
	)
	if err != nil {
		return fmt.Errorf("typing into %q: %w", selector, err)
	}
	return nil
}

func (s *Session) PressEnter(ctx context.Context, selector string) error {
	err := s.run(ctx, s.cfg.SelectorTimeout, chromedp.SendKeys(selector, kb.Enter))
	if err != nil {
		return fmt.Errorf("pressing enter in %q: %w", selector, err)
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, s.cfg.SelectorTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

func (s *Session) PageContent(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.SelectorTimeout, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("reading page content: %w", err)
	}
	return html, nil
}

func (s *Session) PageTitle(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, s.cfg.SelectorTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("reading title: %w", err)
	}
	return title, nil
}

func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	if err := s.run(ctx, s.cfg.SelectorTimeout, chromedp.Evaluate(script, res)); err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}
	return nil
}

func (s *Session) ScrollHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := s.Evaluate(ctx, "document.body.scrollHeight", &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (s *Session) ScrollToBottom(ctx context.Context) error {
	return s.Evaluate(ctx, "window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight", new(int64))
}

func (s *Session) ScrollToTop(ctx context.Context) error {
	return s.Evaluate(ctx, "window.scrollTo(0, 0); 0", new(int64))
}

func (s *Session) Settle(ctx context.Context) error {
	return s.run(ctx, s.cfg.SettleDelay+time.Second, chromedp.Sleep(s.cfg.SettleDelay))
}

// Screenshot captures the viewport into ScreenshotDir. With no directory
// configured it is a silent no-op so call sites do not need the check.
func (s *Session) Screenshot(ctx context.Context, label string) (string, error) {
	if s.cfg.ScreenshotDir == "" {
		return "", nil
	}

	var buf []byte
	if err := s.run(ctx, s.cfg.SelectorTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("capturing screenshot: %w", err)
	}

	seq := s.shotSeq.Add(1)
	name := fmt.Sprintf("step_%02d_%s_%s.png", seq, time.Now().Format("150405"), scrubLabel(label))
	path := filepath.Join(s.cfg.ScreenshotDir, name)

	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("creating screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	s.logger.Debug("Screenshot written.", zap.String("path", path))
	return path, nil
}

// scrubLabel keeps labels filesystem-safe across platforms.
func scrubLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "step"
	}
	return b.String()
}
