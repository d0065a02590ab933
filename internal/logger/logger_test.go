package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func TestHandlerLevels(t *testing.T) {
	color.NoColor = true
	var b strings.Builder
	log := slog.New(&handler{w: &b, level: slog.LevelInfo})

	log.Debug("hidden")
	log.Info("checking", "file", "a.cpp")
	log.Error("failed", "err", "boom")

	out := b.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "INFO checking file=a.cpp")
	require.Contains(t, out, "ERROR failed err=boom")
}

func TestHandlerWithAttrs(t *testing.T) {
	color.NoColor = true
	var b strings.Builder
	log := slog.New(&handler{w: &b, level: slog.LevelDebug}).With("tool", "clang-tidy")

	log.Info("done")
	require.Contains(t, b.String(), "INFO done tool=clang-tidy")
}

func TestEnabled(t *testing.T) {
	h := &handler{level: slog.LevelWarn}
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))
}
