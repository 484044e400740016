// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validViper returns a viper carrying defaults plus real-looking credentials.
func validViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.Set("panel.email", "user@example.net")
	v.Set("panel.password", "s3cret!!")
	v.Set("webmail.username", "kaixa913")
	v.Set("webmail.password", "s3cret!!")
	v.Set("webmail.mailbox_label", "kaixa913")
	return v
}

func TestNewFromViper(t *testing.T) {

	t.Run("should build a valid config from defaults plus credentials", func(t *testing.T) {
		cfg, err := NewFromViper(validViper())
		require.NoError(t, err)

		assert.Equal(t, "https://secure.xserver.ne.jp/xapanel/login/xmgame", cfg.Panel.LoginURL)
		assert.Equal(t, "https://zmkk.edu.kg/login", cfg.Webmail.URL)
		assert.True(t, cfg.Browser.Headless)
		assert.True(t, cfg.Browser.Humanoid.Enabled)
		assert.Equal(t, 180*time.Second, cfg.Verification.TimeBudget)
		assert.Equal(t, 2*time.Second, cfg.Verification.PollInterval)
		assert.Equal(t, 5, cfg.Verification.MaxScrollLoops)
		assert.True(t, cfg.Wizard.Enabled)
		assert.Equal(t, "/xmgame/game/freeplan/extend/complete", cfg.Wizard.CompletionURL)
		assert.NotEmpty(t, cfg.Wizard.RestrictionMarker)
		assert.NotEmpty(t, cfg.Webmail.SubjectSignatures)
		assert.Equal(t, "renewal_report.json", cfg.Report.Path)
	})

	t.Run("should reject missing credentials", func(t *testing.T) {
		v := validViper()
		v.Set("panel.email", "")

		_, err := NewFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panel.email")
	})

	t.Run("should reject placeholder credentials", func(t *testing.T) {
		v := validViper()
		v.Set("panel.email", "your_email@example.com")

		_, err := NewFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "placeholder")
	})

	t.Run("should reject a missing mailbox label", func(t *testing.T) {
		v := validViper()
		v.Set("webmail.mailbox_label", "")

		_, err := NewFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mailbox_label")
	})

	t.Run("should reject non-positive retrieval bounds", func(t *testing.T) {
		v := validViper()
		v.Set("verification.time_budget", "0s")
		_, err := NewFromViper(v)
		assert.Error(t, err)

		v = validViper()
		v.Set("verification.max_scroll_loops", 0)
		_, err = NewFromViper(v)
		assert.Error(t, err)
	})

	t.Run("should expand home-relative paths", func(t *testing.T) {
		v := validViper()
		v.Set("report.path", "~/reports/run.json")

		cfg, err := NewFromViper(v)
		require.NoError(t, err)
		assert.NotContains(t, cfg.Report.Path, "~")
	})
}
