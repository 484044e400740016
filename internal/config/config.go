// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Placeholder values shipped in the sample config. Running with any of these
// still in place is a configuration fault and must abort before a browser is
// ever launched.
var placeholderValues = map[string]bool{
	"your_email@example.com": true,
	"your_password":          true,
	"your_mailbox_user":      true,
}

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Browser      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	Panel        PanelConfig        `mapstructure:"panel" yaml:"panel"`
	Webmail      WebmailConfig      `mapstructure:"webmail" yaml:"webmail"`
	Verification VerificationConfig `mapstructure:"verification" yaml:"verification"`
	Wizard       WizardConfig       `mapstructure:"wizard" yaml:"wizard"`
	Report       ReportConfig       `mapstructure:"report" yaml:"report"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser process.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	AcceptLanguage    string         `mapstructure:"accept_language" yaml:"accept_language"`
	WindowWidth       int            `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int            `mapstructure:"window_height" yaml:"window_height"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SelectorTimeout   time.Duration  `mapstructure:"selector_timeout" yaml:"selector_timeout"`
	SettleDelay       time.Duration  `mapstructure:"settle_delay" yaml:"settle_delay"`
	ScreenshotDir     string         `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	Humanoid          HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// HumanoidConfig tunes the human-like typing simulation.
type HumanoidConfig struct {
	Enabled       bool    `mapstructure:"enabled" yaml:"enabled"`
	KeyDelayMean  float64 `mapstructure:"key_delay_mean_ms" yaml:"key_delay_mean_ms"`
	KeyDelayStdev float64 `mapstructure:"key_delay_stdev_ms" yaml:"key_delay_stdev_ms"`
	KeyDelayMin   float64 `mapstructure:"key_delay_min_ms" yaml:"key_delay_min_ms"`
}

// PanelConfig describes the target panel: login endpoint, credentials, and
// the selectors that drive the login form and the renewal wizard.
type PanelConfig struct {
	LoginURL string `mapstructure:"login_url" yaml:"login_url"`
	Email    string `mapstructure:"email" yaml:"email"`
	Password string `mapstructure:"password" yaml:"password"`

	EmailSelectors    []string `mapstructure:"email_selectors" yaml:"email_selectors"`
	PasswordSelectors []string `mapstructure:"password_selectors" yaml:"password_selectors"`
	SubmitSelectors   []string `mapstructure:"submit_selectors" yaml:"submit_selectors"`

	SendCodeSelector   string `mapstructure:"send_code_selector" yaml:"send_code_selector"`
	CodeInputSelector  string `mapstructure:"code_input_selector" yaml:"code_input_selector"`
	CodeSubmitSelector string `mapstructure:"code_submit_selector" yaml:"code_submit_selector"`
}

// WebmailConfig describes the webmail used for out-of-band code delivery.
type WebmailConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	MailboxLabel string `mapstructure:"mailbox_label" yaml:"mailbox_label"`

	// SubjectSignatures are the substrings that identify the verification
	// mail in the message list. A message matching several signatures is
	// still one candidate.
	SubjectSignatures []string `mapstructure:"subject_signatures" yaml:"subject_signatures"`

	UserSelectors     []string `mapstructure:"user_selectors" yaml:"user_selectors"`
	PasswordSelectors []string `mapstructure:"password_selectors" yaml:"password_selectors"`
	SubmitSelectors   []string `mapstructure:"submit_selectors" yaml:"submit_selectors"`
}

// VerificationConfig bounds the out-of-band code retrieval.
type VerificationConfig struct {
	DeliveryWait   time.Duration `mapstructure:"delivery_wait" yaml:"delivery_wait"`
	TimeBudget     time.Duration `mapstructure:"time_budget" yaml:"time_budget"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxScrollLoops int           `mapstructure:"max_scroll_loops" yaml:"max_scroll_loops"`
	SearchRetries  uint          `mapstructure:"search_retries" yaml:"search_retries"`
	SearchRetryGap time.Duration `mapstructure:"search_retry_gap" yaml:"search_retry_gap"`
}

// WizardConfig controls the post-authentication renewal wizard.
type WizardConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	CompletionURL     string        `mapstructure:"completion_url" yaml:"completion_url"`
	SuccessMarker     string        `mapstructure:"success_marker" yaml:"success_marker"`
	RestrictionMarker string        `mapstructure:"restriction_marker" yaml:"restriction_marker"`
	StepTimeout       time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
}

// ReportConfig controls the one-shot run report.
type ReportConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults initializes default values for all configuration parameters.
// URL substrings, selectors, and text markers default to the XServer GAME
// panel this tool was built against.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "xiaoriziyouxi")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.accept_language", "ja-JP,ja,en-US,en")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.selector_timeout", "10s")
	v.SetDefault("browser.settle_delay", "3s")
	v.SetDefault("browser.screenshot_dir", "")
	v.SetDefault("browser.humanoid.enabled", true)
	v.SetDefault("browser.humanoid.key_delay_mean_ms", 110.0)
	v.SetDefault("browser.humanoid.key_delay_stdev_ms", 40.0)
	v.SetDefault("browser.humanoid.key_delay_min_ms", 50.0)

	// -- Panel --
	v.SetDefault("panel.login_url", "https://secure.xserver.ne.jp/xapanel/login/xmgame")
	v.SetDefault("panel.email_selectors", []string{`input[name="memberid"]`})
	v.SetDefault("panel.password_selectors", []string{`input[name="user_password"]`})
	v.SetDefault("panel.submit_selectors", []string{`//input[@value='ログインする']`})
	v.SetDefault("panel.send_code_selector", `//input[@type='submit'][@value='認証コードを送信']`)
	v.SetDefault("panel.code_input_selector", `input#auth_code[name="auth_code"]`)
	v.SetDefault("panel.code_submit_selector", `//input[@type='submit'][@value='ログイン']`)

	// -- Webmail --
	v.SetDefault("webmail.url", "https://zmkk.edu.kg/login")
	v.SetDefault("webmail.user_selectors", []string{`input[placeholder="邮箱"]`})
	v.SetDefault("webmail.password_selectors", []string{`input[placeholder="密码"]`})
	v.SetDefault("webmail.submit_selectors", []string{`button.el-button.el-button--primary.btn`})
	v.SetDefault("webmail.subject_signatures", []string{
		"【XServerアカウント】ログイン用認証コードのお知らせ",
		"ログイン用認証コード",
	})

	// -- Verification --
	v.SetDefault("verification.delivery_wait", "30s")
	v.SetDefault("verification.time_budget", "180s")
	v.SetDefault("verification.poll_interval", "2s")
	v.SetDefault("verification.max_scroll_loops", 5)
	v.SetDefault("verification.search_retries", 4)
	v.SetDefault("verification.search_retry_gap", "5s")

	// -- Wizard --
	v.SetDefault("wizard.enabled", true)
	v.SetDefault("wizard.completion_url", "/xmgame/game/freeplan/extend/complete")
	v.SetDefault("wizard.success_marker", "期限の延長が完了しました")
	v.SetDefault("wizard.restriction_marker", "残り契約時間が24時間を切るまで、期限の延長は行えません")
	v.SetDefault("wizard.step_timeout", "15s")

	// -- Report --
	v.SetDefault("report.path", "renewal_report.json")
}

// NewFromViper builds and validates a Config from a viper instance.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand ~ in filesystem paths up front so downstream code never deals
	// with unexpanded paths.
	if cfg.Report.Path != "" {
		expanded, err := homedir.Expand(cfg.Report.Path)
		if err != nil {
			return nil, fmt.Errorf("could not resolve report path %q: %w", cfg.Report.Path, err)
		}
		cfg.Report.Path = expanded
	}
	if cfg.Browser.ScreenshotDir != "" {
		expanded, err := homedir.Expand(cfg.Browser.ScreenshotDir)
		if err != nil {
			return nil, fmt.Errorf("could not resolve screenshot dir %q: %w", cfg.Browser.ScreenshotDir, err)
		}
		cfg.Browser.ScreenshotDir = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks for required fields and placeholder credentials. It runs
// before any browser is launched; failures here are configuration faults.
func (c *Config) Validate() error {
	if err := requireCredential("panel.email", c.Panel.Email); err != nil {
		return err
	}
	if err := requireCredential("panel.password", c.Panel.Password); err != nil {
		return err
	}
	if err := requireCredential("webmail.username", c.Webmail.Username); err != nil {
		return err
	}
	if err := requireCredential("webmail.password", c.Webmail.Password); err != nil {
		return err
	}
	if c.Panel.LoginURL == "" {
		return fmt.Errorf("panel.login_url is required")
	}
	if c.Webmail.URL == "" {
		return fmt.Errorf("webmail.url is required")
	}
	if c.Webmail.MailboxLabel == "" {
		return fmt.Errorf("webmail.mailbox_label is required")
	}
	if c.Verification.TimeBudget <= 0 {
		return fmt.Errorf("verification.time_budget must be a positive duration")
	}
	if c.Verification.PollInterval <= 0 {
		return fmt.Errorf("verification.poll_interval must be a positive duration")
	}
	if c.Verification.MaxScrollLoops <= 0 {
		return fmt.Errorf("verification.max_scroll_loops must be a positive integer")
	}
	return nil
}

func requireCredential(key, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s is required", key)
	}
	if placeholderValues[trimmed] {
		return fmt.Errorf("%s still holds the placeholder value %q", key, trimmed)
	}
	return nil
}
