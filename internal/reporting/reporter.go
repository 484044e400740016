// File: internal/reporting/reporter.go

// Package reporting persists the one-shot run report. Exactly one document
// is written per run, after the workflow reaches a terminal state.
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/observability"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/workflow"
)

// Report is the persisted run summary.
type Report struct {
	Timestamp     time.Time `json:"timestamp"`
	RunID         string    `json:"run_id"`
	FinalState    string    `json:"final_state"`
	RenewalStatus string    `json:"renewal_status"`
	OldExpiry     string    `json:"old_expiry,omitempty"`
	NewExpiry     string    `json:"new_expiry,omitempty"`
	Remaining     string    `json:"remaining,omitempty"`
	StepsExecuted int       `json:"steps_executed,omitempty"`
	LastURL       string    `json:"last_url,omitempty"`
	AbortReason   string    `json:"abort_reason,omitempty"`
}

// FromResult converts a workflow result into the persisted form.
func FromResult(runID string, res workflow.Result) Report {
	r := Report{
		Timestamp:     time.Now().UTC(),
		RunID:         runID,
		FinalState:    string(res.FinalState),
		RenewalStatus: string(res.Renewal.Status),
		OldExpiry:     res.Renewal.OldExpiry,
		NewExpiry:     res.Renewal.NewExpiry,
		StepsExecuted: res.Renewal.StepsExecuted,
		LastURL:       res.LastURL,
		AbortReason:   res.AbortReason,
	}
	if res.Renewal.Remaining > 0 {
		r.Remaining = res.Renewal.Remaining.String()
	}
	return r
}

// Write serializes the report to path, or to stdout when path is empty.
func Write(path string, report Report) error {
	logger := observability.GetLogger().Named("reporting")

	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing report: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	logger.Info("Run report written.", zap.String("path", path))
	return nil
}
