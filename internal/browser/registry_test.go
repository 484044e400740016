// File: internal/browser/registry_test.go
package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRegistry swaps the chromedp slot factory for plain contexts so slot
// bookkeeping can be exercised without a browser.
func newTestRegistry() *Registry {
	r := NewRegistry(context.Background())
	r.newContext = func(parent context.Context) (context.Context, context.CancelFunc, error) {
		ctx, cancel := context.WithCancel(parent)
		return ctx, cancel, nil
	}
	return r
}

func TestRegistry(t *testing.T) {

	t.Run("should have no active slot initially", func(t *testing.T) {
		r := newTestRegistry()
		assert.Empty(t, r.Active())

		_, err := r.activeContext()
		assert.ErrorIs(t, err, ErrNoActiveSlot)
	})

	t.Run("open should create and activate the slot", func(t *testing.T) {
		r := newTestRegistry()
		require.NoError(t, r.Open(SlotPrimary))
		assert.Equal(t, SlotPrimary, r.Active())

		ctx, err := r.activeContext()
		require.NoError(t, err)
		assert.NoError(t, ctx.Err())
	})

	t.Run("open should be idempotent and keep the existing context", func(t *testing.T) {
		r := newTestRegistry()
		require.NoError(t, r.Open(SlotPrimary))
		first, err := r.activeContext()
		require.NoError(t, err)

		require.NoError(t, r.Open(SlotSecondary))
		require.NoError(t, r.Open(SlotPrimary))
		assert.Equal(t, SlotPrimary, r.Active())

		second, err := r.activeContext()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("activate should switch between open slots", func(t *testing.T) {
		r := newTestRegistry()
		require.NoError(t, r.Open(SlotPrimary))
		require.NoError(t, r.Open(SlotSecondary))
		assert.Equal(t, SlotSecondary, r.Active())

		require.NoError(t, r.Activate(SlotPrimary))
		assert.Equal(t, SlotPrimary, r.Active())
	})

	t.Run("activate should fail on a never-opened slot", func(t *testing.T) {
		r := newTestRegistry()
		err := r.Activate("tertiary")
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})

	t.Run("activate should fail on a closed slot", func(t *testing.T) {
		r := newTestRegistry()
		require.NoError(t, r.Open(SlotSecondary))
		r.Close(SlotSecondary)

		err := r.Activate(SlotSecondary)
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})

	t.Run("close should cancel the slot context", func(t *testing.T) {
		r := newTestRegistry()
		require.NoError(t, r.Open(SlotPrimary))
		ctx, err := r.activeContext()
		require.NoError(t, err)

		r.Close(SlotPrimary)
		assert.Error(t, ctx.Err())
	})

	t.Run("closing the active slot should leave no slot active", func(t *testing.T) {
		r := newTestRegistry()
		require.NoError(t, r.Open(SlotPrimary))
		require.NoError(t, r.Open(SlotSecondary))

		r.Close(SlotSecondary)
		assert.Empty(t, r.Active())

		// The primary slot survives and can be reactivated.
		require.NoError(t, r.Activate(SlotPrimary))
		assert.Equal(t, SlotPrimary, r.Active())
	})

	t.Run("closing an inactive slot should not disturb the active one", func(t *testing.T) {
		r := newTestRegistry()
		require.NoError(t, r.Open(SlotSecondary))
		require.NoError(t, r.Open(SlotPrimary))

		r.Close(SlotSecondary)
		assert.Equal(t, SlotPrimary, r.Active())
	})

	t.Run("close should be a no-op on unknown names", func(t *testing.T) {
		r := newTestRegistry()
		assert.NotPanics(t, func() { r.Close("never-opened") })
	})

	t.Run("close all should tear down every slot", func(t *testing.T) {
		r := newTestRegistry()
		require.NoError(t, r.Open(SlotPrimary))
		require.NoError(t, r.Open(SlotSecondary))

		require.NoError(t, r.CloseAll(context.Background()))
		assert.Empty(t, r.Active())
		assert.ErrorIs(t, r.Activate(SlotPrimary), ErrSlotNotFound)
		assert.ErrorIs(t, r.Activate(SlotSecondary), ErrSlotNotFound)
	})
}
