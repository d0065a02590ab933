package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	debugColor = color.New(color.FgCyan)
	infoColor  = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
)

// New builds the process logger writing colored leveled lines to stderr.
// Verbose mode, or ACTIONS_STEP_DEBUG in a workflow, enables debug output.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose || os.Getenv("ACTIONS_STEP_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	return slog.New(&handler{w: os.Stderr, level: level})
}

type handler struct {
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
	mu    sync.Mutex
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{w: h.w, level: h.level, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *handler) WithGroup(name string) slog.Handler {
	// flat output; group names add no value in a short-lived CLI
	return h
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return errorColor.Sprint("ERROR")
	case level >= slog.LevelWarn:
		return warnColor.Sprint("WARN")
	case level >= slog.LevelInfo:
		return infoColor.Sprint("INFO")
	default:
		return debugColor.Sprint("DEBUG")
	}
}

// StartGroup opens a collapsible log group in a workflow run. Outside of
// Actions it prints a plain section header.
func StartGroup(name string) {
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		fmt.Printf("::group::%s\n", name)
		return
	}
	fmt.Printf("== %s ==\n", name)
}

func EndGroup() {
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		fmt.Println("::endgroup::")
	}
}
