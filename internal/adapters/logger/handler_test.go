package logger_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/respawn/internal/adapters/logger"
)

func TestPrettyHandler_Handle_Levels(t *testing.T) {
	tests := []struct {
		name       string
		level      slog.Level
		msg        string
		goldenName string
	}{
		{"info level", slog.LevelInfo, "information message", "handler_info"},
		{"warn level", slog.LevelWarn, "warning message", "handler_warn"},
		{"error level", slog.LevelError, "error message", "handler_error"},
		{"debug level filtered", slog.LevelDebug, "debug message", "handler_debug_filtered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", "1")

			buf := &bytes.Buffer{}
			handler := logger.NewPrettyHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo})
			slog.New(handler).Log(t.Context(), tt.level, tt.msg)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestPrettyHandler_WithAttrs(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	var handler slog.Handler = logger.NewPrettyHandler(buf, nil)
	handler = handler.WithAttrs([]slog.Attr{slog.String("path", "a.ts")})
	slog.New(handler).Info("compiled", "ms", 12)

	assert.Equal(t, "[respawn] compiled path=a.ts ms=12\n", buf.String())
}

func TestPrettyHandler_WithGroup(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	var handler slog.Handler = logger.NewPrettyHandler(buf, nil)
	handler = handler.WithGroup("worker")
	slog.New(handler).Info("spawned", "pid", 42)

	assert.Equal(t, "[respawn] spawned worker.pid=42\n", buf.String())
}

func TestPrettyHandler_NestedGroups(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	var handler slog.Handler = logger.NewPrettyHandler(buf, nil)
	handler = handler.WithAttrs([]slog.Attr{slog.Int("pid", 7)})
	handler = handler.WithGroup("worker").WithGroup("exit")
	slog.New(handler).Warn("stopped", "code", 1, slog.Group("signal", "name", "SIGTERM"))

	assert.Equal(t, "[respawn] ! stopped pid=7 worker.exit.code=1 worker.exit.signal.name=SIGTERM\n", buf.String())
}

func TestPrettyHandler_BoundAttrsDoNotLeak(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	base := logger.NewPrettyHandler(buf, nil)
	_ = base.WithAttrs([]slog.Attr{slog.String("path", "a.ts")})
	slog.New(base.WithGroup("")).Info("idle")

	assert.Equal(t, "[respawn] idle\n", buf.String())
}

func TestPrettyHandler_FollowsLevelVar(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	level := &slog.LevelVar{}
	log := slog.New(logger.NewPrettyHandler(buf, &slog.HandlerOptions{Level: level}))

	log.Debug("hidden")
	level.Set(slog.LevelDebug)
	log.Debug("shown")

	assert.Equal(t, "[respawn] shown\n", buf.String())
}
