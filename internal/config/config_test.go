package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".clint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "llvm", cfg.Style)
	require.Equal(t, "warning", cfg.FailOn)
	require.Equal(t, "all-lines", cfg.LineFilter.Policy)
	require.True(t, cfg.Feedback.Annotations)
	require.GreaterOrEqual(t, cfg.Concurrency, 1)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
style: google
checks: "-*,bugprone-*"
line_filter:
  policy: changed-lines
  keep_file_level: true
feedback:
  thread_comment: update
  step_summary: true
concurrency: 4
tool_timeout_seconds: 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "google", cfg.Style)
	require.Equal(t, "-*,bugprone-*", cfg.Checks)
	require.Equal(t, "changed-lines", cfg.LineFilter.Policy)
	require.True(t, cfg.LineFilter.KeepFileLevel)
	require.Equal(t, "update", cfg.Feedback.ThreadComment)
	require.Equal(t, 4, cfg.Concurrency)
	require.Equal(t, int64(30), int64(cfg.ToolTimeout().Seconds()))
	// untouched keys keep their defaults
	require.Equal(t, "warning", cfg.FailOn)
	require.Contains(t, cfg.Files.Extensions, "cpp")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "style: llvm\nstile: oops\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "schema validation")
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	path := writeConfig(t, "line_filter:\n  policy: everything\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestFileFilterMatch(t *testing.T) {
	f := NewFileFilter(FilesConfig{
		Extensions: []string{"cpp", ".h"},
		Ignore:     []string{"build", "third_party/*", "!third_party/keep.cpp"},
	})

	require.True(t, f.Match("src/a.cpp"))
	require.True(t, f.Match("include/a.h"))
	require.False(t, f.Match("src/a.py"))
	require.False(t, f.Match("build/gen.cpp"))
	require.False(t, f.Match("build/deep/gen.cpp"))
	require.False(t, f.Match("third_party/vendor.cpp"))
	require.True(t, f.Match("third_party/keep.cpp"))
}

func TestFileFilterGitmodules(t *testing.T) {
	root := t.TempDir()
	gitmodules := "[submodule \"vendor/lib\"]\n\tpath = vendor/lib\n\turl = https://example.com/lib.git\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitmodules"), []byte(gitmodules), 0o644))

	f := NewFileFilter(FilesConfig{Extensions: []string{"cpp"}})
	require.NoError(t, f.AddGitmodules(root))
	require.False(t, f.Match("vendor/lib/a.cpp"))
	require.True(t, f.Match("src/a.cpp"))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"src/a.cpp", "src/b.h", "build/gen.cpp", "docs/readme.md", ".git/objects/x.cpp"} {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	f := NewFileFilter(FilesConfig{Extensions: []string{"cpp", "h"}, Ignore: []string{"build"}})
	files, err := f.Discover(root)
	require.NoError(t, err)
	require.Equal(t, []string{"src/a.cpp", "src/b.h"}, files)
}

func TestFromEnvPullRequestRef(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("GITHUB_REPOSITORY", "acme/app")
	t.Setenv("GITHUB_SHA", "abc123")
	t.Setenv("GITHUB_REF", "refs/pull/42/merge")
	t.Setenv("GITHUB_ACTIONS", "true")
	t.Setenv("GITHUB_EVENT_PATH", "")

	ci := FromEnv()
	require.Equal(t, "tok", ci.Token)
	require.Equal(t, "acme/app", ci.Repo)
	require.Equal(t, 42, ci.PR)
	require.True(t, ci.Actions)
}

func TestFromEnvEventPayload(t *testing.T) {
	payload := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(payload, []byte(`{"pull_request":{"number":7}}`), 0o644))
	t.Setenv("GITHUB_REF", "refs/heads/main")
	t.Setenv("GITHUB_EVENT_PATH", payload)

	require.Equal(t, 7, FromEnv().PR)
}
