package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/elmdev/internal/config"
)

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "debug", LogFormat: "text"}

	logger := SetupWithWriter(cfg, &buf)
	require.NotNil(t, logger)

	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "json"}

	logger := SetupWithWriter(cfg, &buf)
	require.NotNil(t, logger)

	logger.Info("test-msg")
	assert.Contains(t, buf.String(), `"msg":"test-msg"`)
}

func TestSetup_SetsDefault(t *testing.T) {
	cfg := &config.Config{LogLevel: "info", LogFormat: "text"}
	logger := Setup(cfg)
	assert.Equal(t, logger.Handler(), slog.Default().Handler())
}

// A buffer is not a terminal, so the full timestamp is kept.
func TestSetup_NonTerminalKeepsFullTimestamp(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "text"}

	SetupWithWriter(cfg, &buf).Info("stamp")
	assert.Regexp(t, `^time=\d{4}-\d{2}-\d{2}T`, buf.String())
}

func TestSetup_Levels(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		logFn   func(*slog.Logger)
		visible bool
	}{
		{"quiet hides info", config.Config{LogLevel: "info", Quiet: true}, func(l *slog.Logger) { l.Info("marker") }, false},
		{"quiet keeps error", config.Config{LogLevel: "info", Quiet: true}, func(l *slog.Logger) { l.Error("marker") }, true},
		{"debug shows debug", config.Config{LogLevel: "debug"}, func(l *slog.Logger) { l.Debug("marker") }, true},
		{"info hides debug", config.Config{LogLevel: "info"}, func(l *slog.Logger) { l.Debug("marker") }, false},
		{"warn hides info", config.Config{LogLevel: "warn"}, func(l *slog.Logger) { l.Info("marker") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			cfg := tt.cfg
			cfg.LogFormat = config.LogFormatText

			tt.logFn(SetupWithWriter(&cfg, &buf))

			if tt.visible {
				assert.Contains(t, buf.String(), "marker")
			} else {
				assert.NotContains(t, buf.String(), "marker")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer

	base := slog.New(slog.NewTextHandler(&buf, nil))
	Component(base, "server").Info("listening")

	assert.Contains(t, buf.String(), "component=server")
	assert.NotNil(t, Component(nil, "watch"))
}

func TestShortTime(t *testing.T) {
	ts := time.Date(2026, time.October, 19, 9, 5, 7, 0, time.UTC)

	a := shortTime(nil, slog.Time(slog.TimeKey, ts))
	assert.Equal(t, "09:05:07", a.Value.String())

	// Nested or unrelated attributes are untouched.
	nested := shortTime([]string{"req"}, slog.Time(slog.TimeKey, ts))
	assert.Equal(t, slog.KindTime, nested.Value.Kind())

	other := shortTime(nil, slog.String("path", "/Todo.js"))
	assert.Equal(t, "/Todo.js", other.Value.String())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)

	defer f.Close()

	assert.False(t, IsTerminal(f))
}

func TestContext_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := NewContext(context.Background(), logger)
	assert.Equal(t, logger, FromContext(ctx))
}

func TestFromContext_FallbackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}
