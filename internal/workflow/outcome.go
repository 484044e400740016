// File: internal/workflow/outcome.go
package workflow

import (
	"fmt"
	"regexp"
	"time"
)

// RenewalStatus is the terminal disposition of the renewal wizard.
type RenewalStatus string

const (
	// StatusSuccess means the wizard reached its completion page.
	StatusSuccess RenewalStatus = "success"
	// StatusUnexpired means the contract has too much time left and the
	// panel refuses to extend it yet.
	StatusUnexpired RenewalStatus = "unexpired"
	// StatusFailed means a wizard step did not land where expected.
	StatusFailed RenewalStatus = "failed"
	// StatusUnknown means the wizard never ran, usually because it is
	// disabled or authentication did not complete.
	StatusUnknown RenewalStatus = "unknown"
)

// RenewalOutcome is what the wizard reports back to the state machine. The
// expiry fields hold whatever the panel displayed; they stay empty when the
// page did not expose them.
type RenewalOutcome struct {
	Status    RenewalStatus
	OldExpiry string
	NewExpiry string
	Remaining time.Duration
	// StepsExecuted counts the wizard steps that actually ran, including
	// the one that stopped the walk.
	StepsExecuted int
	// Reason carries a human-readable explanation for Failed outcomes.
	Reason string
}

var (
	remainingPattern = regexp.MustCompile(`残り\s*(\d+)\s*時間\s*(\d+)\s*分`)
	expiryPattern    = regexp.MustCompile(`\((\d{4}-\d{2}-\d{2})\s*まで\)`)
)

// parseRemaining extracts the "N hours M minutes left" figure the panel
// shows on the game dashboard.
func parseRemaining(content string) (time.Duration, bool) {
	m := remainingPattern.FindStringSubmatch(content)
	if m == nil {
		return 0, false
	}
	var hours, minutes int
	if _, err := fmt.Sscanf(m[1], "%d", &hours); err != nil {
		return 0, false
	}
	if _, err := fmt.Sscanf(m[2], "%d", &minutes); err != nil {
		return 0, false
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, true
}

// parseExpiry extracts the "(YYYY-MM-DD まで)" expiry date.
func parseExpiry(content string) (string, bool) {
	m := expiryPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}
