// File: internal/humanoid/humanoid.go

// Package humanoid simulates human typing cadence on top of chromedp
// actions. The panel rejects sessions that fill forms instantly, so every
// credential and code input goes through Type rather than SendKeys in bulk.
package humanoid

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/config"
)

// Humanoid produces chromedp actions with randomized inter-key delays.
type Humanoid struct {
	cfg config.HumanoidConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Humanoid from configuration.
func New(cfg config.HumanoidConfig) *Humanoid {
	return &Humanoid{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Type focuses the element matched by selector, clears it, and sends the
// text key by key with a normally distributed inter-key delay. When the
// simulation is disabled it degrades to a plain clear-and-fill.
func (h *Humanoid) Type(selector, text string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := chromedp.Click(selector).Do(ctx); err != nil {
			return fmt.Errorf("humanoid: failed to focus %q: %w", selector, err)
		}
		if err := chromedp.SetValue(selector, "").Do(ctx); err != nil {
			return fmt.Errorf("humanoid: failed to clear %q: %w", selector, err)
		}

		if !h.cfg.Enabled {
			return chromedp.SendKeys(selector, text).Do(ctx)
		}

		for _, r := range text {
			if err := chromedp.SendKeys(selector, string(r)).Do(ctx); err != nil {
				return fmt.Errorf("humanoid: failed to send key %q: %w", r, err)
			}
			if err := chromedp.Sleep(h.keyDelay()).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Pause yields a context-aware sleep of base±variance milliseconds, used
// between form fills to mimic a person moving between fields.
func (h *Humanoid) Pause(baseMs, varianceMs int) chromedp.Action {
	h.mu.Lock()
	jitter := 0
	if varianceMs > 0 {
		jitter = h.rng.Intn(varianceMs)
	}
	h.mu.Unlock()
	return chromedp.Sleep(time.Duration(baseMs+jitter) * time.Millisecond)
}

// Budget estimates the worst-case time Type will spend on text, so callers
// can size their operation timeouts. Three standard deviations over the mean
// covers effectively every sampled delay.
func (h *Humanoid) Budget(text string) time.Duration {
	if !h.cfg.Enabled {
		return time.Second
	}
	perKey := h.cfg.KeyDelayMean + 3*h.cfg.KeyDelayStdev
	return time.Duration(float64(len([]rune(text)))*perKey)*time.Millisecond + time.Second
}

// keyDelay samples the inter-key delay, clamped to the configured minimum.
func (h *Humanoid) keyDelay() time.Duration {
	h.mu.Lock()
	sample := h.rng.NormFloat64()*h.cfg.KeyDelayStdev + h.cfg.KeyDelayMean
	h.mu.Unlock()

	if sample < h.cfg.KeyDelayMin {
		sample = h.cfg.KeyDelayMin
	}
	return time.Duration(sample) * time.Millisecond
}
