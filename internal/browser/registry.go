// File: internal/browser/registry.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/observability"
)

// slot is one live chromedp target (a tab) plus its cancel handle.
type slot struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Registry owns the named browsing-context slots and the notion of the
// single active slot that page operations apply to. All methods are safe
// for concurrent use.
type Registry struct {
	parent context.Context
	logger *zap.Logger

	// newContext creates a slot context under parent. Swappable in tests.
	newContext func(parent context.Context) (context.Context, context.CancelFunc, error)

	mu     sync.Mutex
	slots  map[string]*slot
	active string
}

// NewRegistry builds a registry whose slots are children of allocCtx, the
// allocator context owned by the Manager.
func NewRegistry(allocCtx context.Context) *Registry {
	return &Registry{
		parent:     allocCtx,
		logger:     observability.GetLogger().Named("registry"),
		newContext: newChromedpContext,
		slots:      make(map[string]*slot),
	}
}

func newChromedpContext(parent context.Context) (context.Context, context.CancelFunc, error) {
	ctx, cancel := chromedp.NewContext(parent)
	// Force target creation now so a dead browser surfaces here, not on
	// the first page operation.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return ctx, cancel, nil
}

// Open creates the named slot and makes it active. Opening a name that is
// already open just activates it; the existing context is kept.
func (r *Registry) Open(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[name]; ok {
		r.active = name
		return nil
	}

	ctx, cancel, err := r.newContext(r.parent)
	if err != nil {
		return fmt.Errorf("opening slot %q: %w", name, err)
	}

	r.slots[name] = &slot{ctx: ctx, cancel: cancel}
	r.active = name
	r.logger.Debug("Slot opened.", zap.String("slot", name))
	return nil
}

// Activate switches the active slot. Returns ErrSlotNotFound for names that
// were never opened or were closed.
func (r *Registry) Activate(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[name]; !ok {
		return fmt.Errorf("activating slot %q: %w", name, ErrSlotNotFound)
	}
	r.active = name
	return nil
}

// Close tears down the named slot. Closing an unknown or already-closed name
// is a no-op. Closing the active slot leaves the registry with no active
// slot; the caller must Activate another before issuing page operations.
func (r *Registry) Close(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked(name)
}

func (r *Registry) closeLocked(name string) {
	s, ok := r.slots[name]
	if !ok {
		return
	}
	s.cancel()
	delete(r.slots, name)
	if r.active == name {
		r.active = ""
	}
	r.logger.Debug("Slot closed.", zap.String("slot", name))
}

// Active returns the name of the active slot, or "" when none is active.
func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// activeContext returns the chromedp context of the active slot.
func (r *Registry) activeContext() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == "" {
		return nil, ErrNoActiveSlot
	}
	s, ok := r.slots[r.active]
	if !ok {
		return nil, ErrNoActiveSlot
	}
	return s.ctx, nil
}

// CloseAll tears down every slot concurrently, bounding each teardown by
// ctx. Used during shutdown.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	names := make([]string, 0, len(r.slots))
	for name := range r.slots {
		names = append(names, name)
	}
	r.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			done := make(chan struct{})
			go func() {
				r.Close(name)
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("closing slot %q: %w", name, ctx.Err())
			case <-time.After(10 * time.Second):
				return fmt.Errorf("closing slot %q: teardown timed out", name)
			}
		})
	}
	return g.Wait()
}
