package observability

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCapture buffers the console-encoded lines written through a logger
// returned by NewCapturingLogger.
type LogCapture struct {
	mu    sync.Mutex
	lines []string
}

// Write implements zapcore.WriteSyncer. Every call carries one encoded entry.
func (c *LogCapture) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
	return len(p), nil
}

// Sync is a no-op; the buffer is in memory.
func (c *LogCapture) Sync() error { return nil }

// Lines returns a copy of the captured lines in write order.
func (c *LogCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// NewCapturingLogger tees base with an in-memory console core at the given
// level. Entries still reach base's cores unchanged.
func NewCapturingLogger(base *zap.Logger, level zapcore.Level) (*zap.Logger, *LogCapture) {
	capture := &LogCapture{}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.CallerKey = zapcore.OmitKey
	encoderConfig.StacktraceKey = zapcore.OmitKey
	encoderConfig.NameKey = zapcore.OmitKey

	captureCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), capture, level)

	logger := base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, captureCore)
	}))
	return logger, capture
}
