// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/uicheck/internal/config"
)

// -- Test Helper Functions --

// lockedBuffer lets the tests hand a plain buffer to Initialize as the console sink.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("should initialize console logger with colors", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "uicheck",
			Colors:      config.ColorConfig{Info: "green"},
		}
		Initialize(cfg, out)
		GetLogger().Info("Scenario started.")
		Sync()

		output := out.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "Scenario started.")
		assert.Contains(t, output, colorGreen, "info level should be colorized green")
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "uicheck.", "console names carry a trailing dot")
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		cfg := config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}
		Initialize(cfg, out)
		GetLogger().Warn("Evidence capture failed.", zap.String("scenario", "footer-links-presence"))
		Sync()

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &logEntry), "log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "Evidence capture failed.", logEntry["msg"])
		assert.Equal(t, "footer-links-presence", logEntry["scenario"])
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		logPath := filepath.Join(t.TempDir(), "uicheck.log")

		cfg := config.LoggerConfig{Level: "debug", Format: "json", LogFile: logPath, MaxSize: 1}
		Initialize(cfg, &lockedBuffer{})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First"}, out)
		logger1 := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, out)
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")
		Sync()

		assert.True(t, strings.Contains(out.String(), "First"))
		assert.False(t, strings.Contains(out.String(), "Second"))
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "verbose", Format: "json"}, out)
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		Sync()

		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"}, &lockedBuffer{})

		assert.Equal(t, globalLogger.Load(), GetLogger())
	})

	t.Run("sync without initialization is a no-op", func(t *testing.T) {
		ResetForTest()
		assert.NotPanics(t, Sync)
	})
}

func TestNewCapturingLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Named("harness")

	logger, capture := NewCapturingLogger(base, zapcore.InfoLevel)
	logger.Debug("below capture level")
	logger.Info("navigating", zap.String("url", "https://example.test/"))
	logger.Warn("slow probe")

	lines := capture.Lines()
	require.Len(t, lines, 2, "debug entries are filtered by the capture level")
	assert.Contains(t, lines[0], "INFO")
	assert.Contains(t, lines[0], "navigating")
	assert.Contains(t, lines[0], "https://example.test/")
	assert.Contains(t, lines[1], "WARN")
	for _, l := range lines {
		assert.False(t, strings.HasSuffix(l, "\n"))
	}

	assert.Equal(t, 3, logs.Len(), "the base core still receives every entry")

	// Lines returns a copy.
	lines[0] = "mutated"
	assert.NotEqual(t, "mutated", capture.Lines()[0])
}
