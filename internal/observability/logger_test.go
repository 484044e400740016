// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/config"
)

// setupTestLogger initializes the global logger to write to a buffer.
func setupTestLogger(cfg config.LoggerConfig) *bytes.Buffer {
	buf := new(bytes.Buffer)
	Initialize(cfg, zapcore.AddSync(buf))
	return buf
}

func TestInitializeLogger(t *testing.T) {

	t.Run("should initialize console logger with colors", func(t *testing.T) {
		ResetForTest()

		buf := setupTestLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "test-svc",
		})

		GetLogger().Info("hello")
		out := buf.String()
		assert.Contains(t, out, "hello")
		assert.Contains(t, out, colorGreen, "info lines carry the green level color")
		assert.Contains(t, out, "test-svc")
	})

	t.Run("should emit structured json when configured", func(t *testing.T) {
		ResetForTest()

		buf := setupTestLogger(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "test-svc",
		})

		GetLogger().Info("structured entry")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "structured entry", entry["msg"])
		assert.Equal(t, "INFO", entry["level"])
	})

	t.Run("should respect the configured level", func(t *testing.T) {
		ResetForTest()

		buf := setupTestLogger(config.LoggerConfig{
			Level:       "warn",
			Format:      "console",
			ServiceName: "test-svc",
		})

		GetLogger().Info("suppressed")
		GetLogger().Warn("visible")

		out := buf.String()
		assert.NotContains(t, out, "suppressed")
		assert.Contains(t, out, "visible")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		ResetForTest()

		buf := setupTestLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "first"})
		setupTestLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "second"})

		GetLogger().Info("which service")
		assert.Contains(t, buf.String(), "first")
	})

	t.Run("should fall back to a development logger before initialization", func(t *testing.T) {
		ResetForTest()
		assert.NotNil(t, GetLogger())
	})
}
