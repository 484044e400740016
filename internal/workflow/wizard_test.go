// File: internal/workflow/wizard_test.go
package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/config"
)

var wizardTestCfg = config.WizardConfig{
	Enabled:           true,
	CompletionURL:     "/extend/complete",
	SuccessMarker:     "期限の延長が完了しました",
	RestrictionMarker: "残り契約時間が24時間を切るまで、期限の延長は行えません",
	StepTimeout:       time.Second,
}

// fiveSteps is a wizard with a restriction guard on the third of five hops.
func fiveSteps(cfg config.WizardConfig) []Step {
	return []Step{
		{Name: "s1", TriggerSelector: "#t1", ExpectURLSubstring: "/p1"},
		{Name: "s2", TriggerSelector: "#t2", ExpectURLSubstring: "/p2", Capture: true},
		{Name: "s3", TriggerSelector: "#t3", ExpectURLSubstring: "/p3", RestrictionMarker: cfg.RestrictionMarker},
		{Name: "s4", TriggerSelector: "#t4", ExpectURLSubstring: "/p4"},
		{Name: "s5", TriggerSelector: "#t5", ExpectURLSubstring: "/extend/complete", Capture: true},
	}
}

func TestNavigatorRun(t *testing.T) {

	t.Run("should walk all steps and succeed via the completion url", func(t *testing.T) {
		drv := newFakeDriver(0,
			fakePage{url: "https://host/p0", content: "top"},
			fakePage{url: "https://host/p1", content: "one"},
			fakePage{url: "https://host/p2", content: "残り20時間05分（自動更新なし）(2026-08-30 まで)"},
			fakePage{url: "https://host/p3", content: "three"},
			fakePage{url: "https://host/p4", content: "four"},
			fakePage{url: "https://host/extend/complete", content: "(2026-09-01 まで)"},
		)

		n := NewNavigator(drv, wizardTestCfg)
		out := n.Run(context.Background(), fiveSteps(wizardTestCfg))

		want := RenewalOutcome{
			Status:        StatusSuccess,
			OldExpiry:     "2026-08-30",
			NewExpiry:     "2026-09-01",
			Remaining:     20*time.Hour + 5*time.Minute,
			StepsExecuted: 5,
		}
		if diff := cmp.Diff(want, out); diff != "" {
			t.Errorf("outcome mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, []string{"#t1", "#t2", "#t3", "#t4", "#t5"}, drv.clicked)
	})

	t.Run("should succeed via the success marker alone", func(t *testing.T) {
		steps := []Step{{Name: "only", TriggerSelector: "#go", ExpectURLSubstring: "/done"}}
		drv := newFakeDriver(0,
			fakePage{url: "https://host/start", content: "start"},
			fakePage{url: "https://host/done", content: "期限の延長が完了しました"},
		)

		n := NewNavigator(drv, wizardTestCfg)
		out := n.Run(context.Background(), steps)

		assert.Equal(t, StatusSuccess, out.Status)
	})

	t.Run("should stop as unexpired at the guarded step", func(t *testing.T) {
		drv := newFakeDriver(0,
			fakePage{url: "https://host/p0", content: "top"},
			fakePage{url: "https://host/p1", content: "one"},
			fakePage{url: "https://host/p2", content: "残り704時間11分 (2026-09-25 まで) " + wizardTestCfg.RestrictionMarker},
			fakePage{url: "https://host/p3", content: "never reached"},
		)

		n := NewNavigator(drv, wizardTestCfg)
		out := n.Run(context.Background(), fiveSteps(wizardTestCfg))

		assert.Equal(t, StatusUnexpired, out.Status)
		assert.Equal(t, 3, out.StepsExecuted, "guard stops the walk at the third step")
		assert.Equal(t, []string{"#t1", "#t2"}, drv.clicked, "the guarded trigger must never be clicked")
		assert.Equal(t, "2026-09-25", out.OldExpiry)
		assert.Equal(t, 704*time.Hour+11*time.Minute, out.Remaining)
	})

	t.Run("should fail on a landing mismatch and keep the captured expiry", func(t *testing.T) {
		drv := newFakeDriver(0,
			fakePage{url: "https://host/p0", content: "top"},
			fakePage{url: "https://host/p1", content: "one"},
			fakePage{url: "https://host/p2", content: "(2026-08-30 まで)"},
			fakePage{url: "https://host/elsewhere", content: "detour"},
		)

		n := NewNavigator(drv, wizardTestCfg)
		out := n.Run(context.Background(), fiveSteps(wizardTestCfg))

		assert.Equal(t, StatusFailed, out.Status)
		assert.Equal(t, 3, out.StepsExecuted)
		assert.Contains(t, out.Reason, "step s3")
		assert.Equal(t, "2026-08-30", out.OldExpiry, "expiry captured before the failure is retained")
		assert.Empty(t, out.NewExpiry)
	})

	t.Run("should fail when a trigger never appears", func(t *testing.T) {
		drv := newFakeDriver(0, fakePage{url: "https://host/p0", content: "top"})
		drv.visible = map[string]bool{}

		n := NewNavigator(drv, wizardTestCfg)
		out := n.Run(context.Background(), fiveSteps(wizardTestCfg))

		assert.Equal(t, StatusFailed, out.Status)
		assert.Equal(t, 1, out.StepsExecuted)
		assert.Contains(t, out.Reason, "not found")
	})

	t.Run("should fail when the walk ends without either success signal", func(t *testing.T) {
		steps := []Step{{Name: "only", TriggerSelector: "#go", ExpectURLSubstring: "/landing"}}
		drv := newFakeDriver(0,
			fakePage{url: "https://host/start", content: "start"},
			fakePage{url: "https://host/landing", content: "まだ完了していません"},
		)

		n := NewNavigator(drv, wizardTestCfg)
		out := n.Run(context.Background(), steps)

		assert.Equal(t, StatusFailed, out.Status)
		assert.Contains(t, out.Reason, "neither completion URL nor success marker")
	})
}

func TestDefaultSteps(t *testing.T) {
	steps := DefaultSteps(wizardTestCfg)

	assert.Len(t, steps, 3)
	assert.True(t, steps[0].Capture, "the dashboard step records the current expiry")
	assert.Equal(t, wizardTestCfg.RestrictionMarker, steps[2].RestrictionMarker,
		"the confirmation step is guarded by the restriction marker")
	assert.Equal(t, wizardTestCfg.CompletionURL, steps[2].ExpectURLSubstring)
}
