package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/brianndofor/clint/internal/diagnostic"
)

// ErrToolUnavailable means the tool executable could not be found. Fatal for
// that tool across the whole run, reported once.
var ErrToolUnavailable = errors.New("tool executable not found")

// Runner abstracts child-process execution so tool invocations can be tested
// against recorded output.
type Runner interface {
	// Run executes name with args in dir. A non-zero exit is not an error;
	// the error is reserved for failures to launch or cancellation.
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, exitCode int, err error)
}

type RealRunner struct{}

func (RealRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), ctx.Err()
			}
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		}
		return nil, nil, -1, fmt.Errorf("%s failed to start: %w", name, err)
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// Result is the outcome of one (file, tool) invocation.
type Result struct {
	Tool     diagnostic.Tool
	Path     string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	// Failure is a human-readable reason when the invocation or its parse
	// failed for this file. Empty on success.
	Failure string
	Diags   []diagnostic.Diagnostic
	// Patched holds the style tool's fixed-up file content when requested.
	Patched []byte
}

func (r Result) Failed() bool { return r.Failure != "" }

var versionNumRE = regexp.MustCompile(`\d+\.\d+\.\d+`)

// FindTool locates a clang tool by name and version hint. The hint may be a
// major version (tried as name-N), a directory containing the binary, or
// empty to use whatever is on PATH.
func FindTool(name, version string) (string, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		path, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrToolUnavailable, name)
		}
		return path, nil
	}
	if info, err := os.Stat(version); err == nil && info.IsDir() {
		candidate := filepath.Join(version, name)
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s in %s", ErrToolUnavailable, name, version)
	}
	major, _, _ := strings.Cut(version, ".")
	if path, err := exec.LookPath(name + "-" + major); err == nil {
		return path, nil
	}
	// fall back to the bare name; installs often omit the version suffix
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s (version %s)", ErrToolUnavailable, name, version)
}

// Version runs `exe --version` and extracts the version number for run
// metadata. Failures degrade to an empty string.
func Version(ctx context.Context, r Runner, exe string) string {
	stdout, _, code, err := r.Run(ctx, "", exe, "--version")
	if err != nil || code != 0 {
		return ""
	}
	return versionNumRE.FindString(string(stdout))
}
