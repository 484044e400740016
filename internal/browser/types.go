// File: internal/browser/types.go
package browser

import (
	"context"
	"errors"
	"time"
)

// Slot names for the two browsing contexts the workflow uses. The primary
// slot carries the panel login session; the secondary one exists only while
// the verification code is being fetched from webmail.
const (
	SlotPrimary   = "primary"
	SlotSecondary = "secondary"
)

// ErrSlotNotFound is returned by Activate on a name that was never opened or
// was already closed. This is always a programming-logic fault; callers
// abort the workflow instead of retrying.
var ErrSlotNotFound = errors.New("browser: context slot not found")

// ErrNoActiveSlot is returned by page operations when no slot is active.
var ErrNoActiveSlot = errors.New("browser: no active context slot")

// Driver is the page-driving capability the workflow components consume.
// All operations apply to the registry's currently active slot. Locate-style
// calls report absence through their boolean result; the error return is
// reserved for hard faults (context cancelled, browser gone).
type Driver interface {
	Navigate(ctx context.Context, url string) error

	// WaitVisible waits up to timeout for selector to become visible.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// LocateFirst tries each selector in order with a bounded wait and
	// returns the first that resolves.
	LocateFirst(ctx context.Context, selectors []string, timeout time.Duration) (string, bool, error)

	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	PressEnter(ctx context.Context, selector string) error

	CurrentURL(ctx context.Context) (string, error)
	PageContent(ctx context.Context) (string, error)
	PageTitle(ctx context.Context) (string, error)

	Evaluate(ctx context.Context, script string, res any) error
	ScrollHeight(ctx context.Context) (int64, error)
	ScrollToBottom(ctx context.Context) error
	ScrollToTop(ctx context.Context) error

	// Settle waits the configured post-navigation settle delay.
	Settle(ctx context.Context) error
	// Screenshot writes a labeled step screenshot and returns its filename.
	// Failures are reported but callers treat them as non-fatal.
	Screenshot(ctx context.Context, label string) (string, error)
}

// SlotManager is the context-registry surface consumed by components that
// need to acquire and release browsing contexts (the out-of-band code
// retriever). *Registry implements it.
type SlotManager interface {
	Open(name string) error
	Activate(name string) error
	Close(name string)
	Active() string
}
