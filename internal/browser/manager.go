// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/config"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/observability"
)

// Manager owns the Chrome process lifecycle. It builds the exec allocator,
// verifies the browser actually launches, and hands out the slot registry
// whose contexts are children of the allocator.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc
	registry    *Registry
}

// NewManager launches the browser allocator under parent. Cancelling parent
// kills the browser and every slot with it.
func NewManager(parent context.Context, cfg config.BrowserConfig) (*Manager, error) {
	logger := observability.GetLogger().Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, buildAllocatorOptions(cfg)...)

	m := &Manager{
		logger:      logger,
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}

	// Spin up a throwaway tab so a missing or broken Chrome binary fails
	// fast instead of on the first workflow step.
	probeCtx, probeCancel := chromedp.NewContext(allocCtx)
	defer probeCancel()
	probeCtx, timeoutCancel := context.WithTimeout(probeCtx, 30*time.Second)
	defer timeoutCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		allocCancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	m.registry = NewRegistry(allocCtx)
	logger.Info("Browser launched.",
		zap.Bool("headless", cfg.Headless),
		zap.String("accept_language", cfg.AcceptLanguage))
	return m, nil
}

// Registry returns the slot registry backed by this browser.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Shutdown closes all slots and then the browser itself. The outcome of the
// run is decided before this is called, so errors here are logged and
// returned but never override the workflow result.
func (m *Manager) Shutdown(ctx context.Context) error {
	var closeErr error
	if m.registry != nil {
		closeErr = m.registry.CloseAll(ctx)
	}
	m.allocCancel()

	done := make(chan struct{})
	go func() {
		if c := chromedp.FromContext(m.allocCtx); c != nil && c.Allocator != nil {
			c.Allocator.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Browser did not exit before shutdown deadline.")
	case <-time.After(15 * time.Second):
		m.logger.Warn("Browser did not exit within 15s.")
	}

	if closeErr != nil {
		m.logger.Warn("Slot teardown reported errors.", zap.Error(closeErr))
	}
	return closeErr
}

// buildAllocatorOptions assembles the Chrome flag set. Defaults are tuned
// for sites that fingerprint automation: the enable-automation switch is
// stripped and the blink automation flag disabled.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+10)
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
	)

	if cfg.AcceptLanguage != "" {
		opts = append(opts,
			chromedp.Flag("lang", primaryLanguage(cfg.AcceptLanguage)),
			chromedp.Flag("accept-lang", cfg.AcceptLanguage),
		)
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}

	for _, arg := range cfg.Args {
		name, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func primaryLanguage(acceptLanguage string) string {
	lang, _, _ := strings.Cut(acceptLanguage, ",")
	return strings.TrimSpace(lang)
}
