package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/config"
	"github.com/brianndofor/clint/internal/filter"
	"github.com/brianndofor/clint/internal/orchestrator"
)

func parseTestFlags(t *testing.T, args ...string) (*cobra.Command, *flags) {
	t.Helper()
	f := &flags{}
	cmd := &cobra.Command{Use: "clint"}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestFlagOverridesWinOverConfig(t *testing.T) {
	cmd, f := parseTestFlags(t,
		"--style", "google",
		"--tidy-checks", "bugprone-*",
		"--lines-changed-only",
		"--thread-comments", "update",
		"--jobs", "3",
		"--no-tidy",
	)

	cfg := config.Defaults()
	cfg.Style = "llvm"
	applyFlagOverrides(&cfg, cmd.Flags(), f)

	require.Equal(t, "google", cfg.Style)
	require.Equal(t, "bugprone-*", cfg.Checks)
	require.Equal(t, "changed-lines", cfg.LineFilter.Policy)
	require.Equal(t, "update", cfg.Feedback.ThreadComment)
	require.Equal(t, 3, cfg.Concurrency)
	require.True(t, cfg.NoTidy)
}

func TestUnsetFlagsLeaveConfigAlone(t *testing.T) {
	cmd, f := parseTestFlags(t)

	cfg := config.Defaults()
	cfg.Style = "file"
	cfg.Feedback.ThreadComment = "recreate"
	applyFlagOverrides(&cfg, cmd.Flags(), f)

	require.Equal(t, "file", cfg.Style)
	require.Equal(t, "recreate", cfg.Feedback.ThreadComment)
}

func TestParsePolicy(t *testing.T) {
	require.Equal(t, filter.AllLines, parsePolicy("all-lines"))
	require.Equal(t, filter.AllLines, parsePolicy(""))
	require.Equal(t, filter.ChangedFilesOnly, parsePolicy("changed-files"))
	require.Equal(t, filter.ChangedLinesOnly, parsePolicy("Changed-Lines"))
}

func TestParseCommentMode(t *testing.T) {
	require.Equal(t, orchestrator.CommentNone, parseCommentMode("none"))
	require.Equal(t, orchestrator.CommentUpdate, parseCommentMode("update"))
	require.Equal(t, orchestrator.CommentRecreate, parseCommentMode("recreate"))
	require.Equal(t, orchestrator.CommentNone, parseCommentMode("bogus"))
}

func TestBuildResolverPrecedence(t *testing.T) {
	// no client, no diff base: nothing to resolve
	require.Nil(t, buildResolver(nil, config.CI{}, &flags{}))

	// local diff when a base ref was given
	r := buildResolver(nil, config.CI{}, &flags{diffBase: "origin/main", repoRoot: "."})
	local, ok := r.(changeset.LocalResolver)
	require.True(t, ok)
	require.Equal(t, "origin/main", local.Base)
}

func TestVersionCommand(t *testing.T) {
	var exitCode int
	root := NewRootCmd(&exitCode)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "clint")
}
