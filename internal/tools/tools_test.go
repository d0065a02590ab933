package tools

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/diagnostic"
)

type recordingRunner struct {
	args     [][]string
	stdout   []byte
	stderr   []byte
	exitCode int
	err      error
}

func (r *recordingRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, int, error) {
	r.args = append(r.args, append([]string{name}, args...))
	return r.stdout, r.stderr, r.exitCode, r.err
}

const formatXML = `<?xml version='1.0'?>
<replacements xml:space='preserve' incomplete_format='false'>
<replacement offset='4' length='1'>&#10;</replacement>
<replacement offset='10' length='0'> </replacement>
</replacements>`

func TestParseFormatXML(t *testing.T) {
	src := []byte("abc\nd e f\nghi\n")
	diags, err := ParseFormatXML("a.cpp", src, []byte(formatXML), "llvm")
	require.NoError(t, err)
	require.Len(t, diags, 2)

	assert.Equal(t, diagnostic.ToolFormat, diags[0].Tool)
	assert.Equal(t, diagnostic.SeverityWarning, diags[0].Severity)
	assert.Empty(t, diags[0].RuleID)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, []diagnostic.Edit{{Offset: 4, Length: 1, Text: "\n"}}, diags[0].Edits)
	assert.Equal(t, []diagnostic.Edit{{Offset: 10, Length: 0, Text: " "}}, diags[1].Edits)
	assert.Contains(t, diags[0].Message, "LLVM style")
}

func TestParseFormatXMLEmpty(t *testing.T) {
	diags, err := ParseFormatXML("a.cpp", nil, []byte("  \n"), "file")
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestParseFormatXMLMalformed(t *testing.T) {
	_, err := ParseFormatXML("a.cpp", nil, []byte("<replacements><oops"), "file")
	assert.Error(t, err)
}

func TestRunFormatBuildsArgs(t *testing.T) {
	runner := &recordingRunner{stdout: []byte(formatXML)}
	res := RunFormat(context.Background(), runner, "a.cpp", []byte("abc\nd e f\n"), FormatOptions{
		Exe:    "clang-format-14",
		Style:  "google",
		Ranges: []changeset.LineRange{{Start: 2, End: 5}},
	})
	require.False(t, res.Failed(), res.Failure)
	require.Len(t, runner.args, 1)
	assert.Equal(t,
		[]string{"clang-format-14", "--style", "google", "--lines=2:5", "--output-replacements-xml", "a.cpp"},
		runner.args[0])
	assert.Len(t, res.Diags, 2)
}

func TestRunFormatTimeout(t *testing.T) {
	runner := &recordingRunner{err: context.DeadlineExceeded}
	res := RunFormat(context.Background(), runner, "a.cpp", nil, FormatOptions{
		Exe: "clang-format", Style: "llvm", Timeout: time.Nanosecond,
	})
	assert.True(t, res.Failed())
	assert.Equal(t, "invocation timed out", res.Failure)
}

const tidyStdout = `src/demo.hpp:11:11: warning: use a trailing return type for this function [modernize-use-trailing-return-type]
auto g() -> int;
          ^
src/demo.cpp:42:9: error: variable 'x' is uninitialized [cppcoreguidelines-init-variables]
    int x;
        ^
/usr/include/stdio.h:33:1: warning: something in a system header [misc-foo]
`

func TestParseTidyStdout(t *testing.T) {
	diags := ParseTidyStdout([]byte(tidyStdout), "")
	require.Len(t, diags, 3)

	assert.Equal(t, "src/demo.hpp", diags[0].Path)
	assert.Equal(t, 11, diags[0].Line)
	assert.Equal(t, 11, diags[0].Col)
	assert.Equal(t, diagnostic.SeverityWarning, diags[0].Severity)
	assert.Equal(t, "modernize-use-trailing-return-type", diags[0].RuleID)
	assert.Equal(t, "use a trailing return type for this function", diags[0].Message)

	// -warnings-as-errors relabels the note; the parser keeps the label
	assert.Equal(t, diagnostic.SeverityError, diags[1].Severity)
}

func TestParseTidyStdoutEmpty(t *testing.T) {
	assert.Empty(t, ParseTidyStdout(nil, ""))
	assert.Empty(t, ParseTidyStdout([]byte("1234 warnings generated.\n"), ""))
}

const tidyFixesYAML = `---
MainSourceFile: 'src/demo.cpp'
Diagnostics:
  - DiagnosticName: 'cppcoreguidelines-init-variables'
    DiagnosticMessage:
      Message: "variable 'x' is uninitialized"
      FilePath: '/repo/src/demo.cpp'
      FileOffset: 6
      Replacements:
        - FilePath: '/repo/src/demo.cpp'
          Offset: 9
          Length: 0
          ReplacementText: ' = 0'
    Level: Warning
...
`

func TestParseTidyFixes(t *testing.T) {
	src := []byte("abcd\nint x;\n")
	diags, err := ParseTidyFixes([]byte(tidyFixesYAML), src, "/repo")
	require.NoError(t, err)
	require.Len(t, diags, 1)

	assert.Equal(t, "src/demo.cpp", diags[0].Path)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, "cppcoreguidelines-init-variables", diags[0].RuleID)
	assert.Equal(t, []diagnostic.Edit{{Offset: 9, Length: 0, Text: " = 0"}}, diags[0].Edits)
}

func TestAttachFixes(t *testing.T) {
	notes := []diagnostic.Diagnostic{
		{Path: "a.cpp", Line: 2, RuleID: "rule-a"},
	}
	fixes := []diagnostic.Diagnostic{
		{Path: "a.cpp", Line: 2, RuleID: "rule-a", Edits: []diagnostic.Edit{{Offset: 1, Length: 1, Text: "y"}}},
		{Path: "b.cpp", Line: 7, RuleID: "rule-b", Edits: []diagnostic.Edit{{Offset: 0, Length: 0, Text: "z"}}},
	}
	merged := attachFixes(notes, fixes)
	require.Len(t, merged, 2)
	assert.Equal(t, []diagnostic.Edit{{Offset: 1, Length: 1, Text: "y"}}, merged[0].Edits)
	assert.Equal(t, "b.cpp", merged[1].Path)
}

func TestRunTidyDropsUnknownFiles(t *testing.T) {
	runner := &recordingRunner{stdout: []byte(tidyStdout)}
	known := func(path string) bool { return path == "src/demo.cpp" || path == "src/demo.hpp" }
	var logBuf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	res := RunTidy(context.Background(), runner, "src/demo.cpp", nil, "", known, TidyOptions{
		Exe:    "clang-tidy",
		Checks: "modernize-*",
		Ranges: []changeset.LineRange{{Start: 40, End: 45}},
		Log:    log,
	})
	require.False(t, res.Failed(), res.Failure)
	require.Len(t, res.Diags, 2)
	for _, d := range res.Diags {
		assert.NotContains(t, d.Path, "stdio.h")
	}
	assert.Contains(t, logBuf.String(), "outside the checked file list")
	assert.Contains(t, logBuf.String(), "stdio.h")

	joined := ""
	for _, a := range runner.args[0] {
		joined += a + " "
	}
	assert.Contains(t, joined, "-checks modernize-*")
	assert.Contains(t, joined, `"lines":[[40,45]]`)
}

func TestRunTidyUnparseableFailure(t *testing.T) {
	runner := &recordingRunner{stdout: []byte("error: unknown argument\n"), stderr: []byte("bad flag"), exitCode: 1}
	res := RunTidy(context.Background(), runner, "a.cpp", nil, "", nil, TidyOptions{Exe: "clang-tidy"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Failure, "exited 1")
}

func TestLineFilterJSON(t *testing.T) {
	got := lineFilterJSON("src/a.cpp", []changeset.LineRange{{Start: 1, End: 3}, {Start: 9, End: 9}})
	assert.Equal(t, `[{"name":"src/a.cpp","lines":[[1,3],[9,9]]}]`, got)
}

func TestSummarizeStyle(t *testing.T) {
	assert.Equal(t, "LLVM", SummarizeStyle("llvm"))
	assert.Equal(t, "Google", SummarizeStyle("google"))
	assert.Equal(t, "Custom", SummarizeStyle("file"))
}
