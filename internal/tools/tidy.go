package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/diagnostic"
)

// TidyOptions configures one clang-tidy invocation.
type TidyOptions struct {
	Exe       string
	Checks    string
	Database  string
	ExtraArgs []string
	Ranges    []changeset.LineRange
	// ExportFixes asks clang-tidy for its fixes document so diagnostics
	// carry replacement edits.
	ExportFixes bool
	Timeout     time.Duration
	Log         *slog.Logger
}

// RunTidy invokes clang-tidy on path and parses its stdout notes, merged
// with the exported fixes document when requested. src is used to resolve
// byte offsets back into line/column positions. repoRoot and known keep
// foreign paths (system headers, other files) out of the result.
func RunTidy(ctx context.Context, r Runner, path string, src []byte, repoRoot string, known func(string) bool, opts TidyOptions) Result {
	res := Result{Tool: diagnostic.ToolTidy, Path: path}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var fixesPath string
	if opts.ExportFixes {
		fixes, err := os.CreateTemp("", "clint-fixes-*.yml")
		if err != nil {
			res.Failure = fmt.Sprintf("create fixes file: %v", err)
			return res
		}
		fixesPath = fixes.Name()
		fixes.Close()
		defer os.Remove(fixesPath)
	}

	args := tidyArgs(path, fixesPath, opts)
	start := time.Now()
	stdout, stderr, code, err := r.Run(ctx, "", opts.Exe, args...)
	res.Duration = time.Since(start)
	res.Stdout = stdout
	res.Stderr = stderr
	res.ExitCode = code
	if err != nil {
		res.Failure = invocationFailure(ctx, err)
		return res
	}

	diags := ParseTidyStdout(stdout, repoRoot)
	if len(diags) == 0 && code != 0 {
		res.Failure = fmt.Sprintf("clang-tidy exited %d with no parseable findings: %s",
			code, firstLine(stderr))
		return res
	}

	if fixesPath != "" {
		if raw, err := os.ReadFile(fixesPath); err == nil && len(raw) > 0 {
			fixes, perr := ParseTidyFixes(raw, src, repoRoot)
			if perr != nil {
				res.Failure = fmt.Sprintf("parse exported fixes: %v", perr)
				return res
			}
			diags = attachFixes(diags, fixes)
		}
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	kept := diags[:0]
	for _, d := range diags {
		if known != nil && !known(d.Path) {
			log.Debug("dropping clang-tidy finding outside the checked file list",
				"invoked-on", path, "reported", d.Path, "rule", d.RuleID)
			continue
		}
		kept = append(kept, d)
	}
	res.Diags = kept
	return res
}

func tidyArgs(path, fixesPath string, opts TidyOptions) []string {
	var args []string
	if opts.Checks != "" {
		args = append(args, "-checks", opts.Checks)
	}
	if opts.Database != "" {
		args = append(args, "-p", opts.Database)
	}
	for _, extra := range opts.ExtraArgs {
		args = append(args, "--extra-arg", extra)
	}
	if len(opts.Ranges) > 0 {
		args = append(args, "--line-filter", lineFilterJSON(path, opts.Ranges))
	}
	if fixesPath != "" {
		args = append(args, "--export-fixes", fixesPath)
	}
	return append(args, path)
}

// lineFilterJSON renders clang-tidy's --line-filter argument for one file.
func lineFilterJSON(path string, ranges []changeset.LineRange) string {
	type fileFilter struct {
		Name  string  `json:"name"`
		Lines [][]int `json:"lines"`
	}
	filter := fileFilter{Name: path}
	for _, r := range ranges {
		filter.Lines = append(filter.Lines, []int{r.Start, r.End})
	}
	raw, _ := json.Marshal([]fileFilter{filter})
	return string(raw)
}

var tidyNoteRE = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s(\w+):(.*)\[([a-zA-Z\d\-\.]+)\]$`)

// ParseTidyStdout extracts diagnostic notes from clang-tidy's stdout. Lines
// that do not match the note grammar belong to the preceding note's code
// excerpt and are skipped. With -warnings-as-errors active the tool labels
// promoted notes "error", so severity normalization falls out of the label.
func ParseTidyStdout(stdout []byte, repoRoot string) []diagnostic.Diagnostic {
	var diags []diagnostic.Diagnostic
	for _, line := range strings.Split(string(stdout), "\n") {
		m := tidyNoteRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		colNo, _ := strconv.Atoi(m[3])
		diags = append(diags, diagnostic.Diagnostic{
			Tool:     diagnostic.ToolTidy,
			Path:     diagnostic.NormalizePath(m[1], repoRoot),
			Line:     lineNo,
			Col:      colNo,
			Severity: diagnostic.ParseSeverity(m[4]),
			Message:  strings.TrimSpace(m[5]),
			RuleID:   m[6],
		})
	}
	return diags
}

type tidyFixesDoc struct {
	MainSourceFile string         `yaml:"MainSourceFile"`
	Diagnostics    []tidyFixEntry `yaml:"Diagnostics"`
}

type tidyFixEntry struct {
	Name    string      `yaml:"DiagnosticName"`
	Message tidyMessage `yaml:"DiagnosticMessage"`
	Level   string      `yaml:"Level"`
}

type tidyMessage struct {
	Message      string `yaml:"Message"`
	FilePath     string `yaml:"FilePath"`
	FileOffset   int    `yaml:"FileOffset"`
	Replacements []struct {
		FilePath string `yaml:"FilePath"`
		Offset   int    `yaml:"Offset"`
		Length   int    `yaml:"Length"`
		Text     string `yaml:"ReplacementText"`
	} `yaml:"Replacements"`
}

// ParseTidyFixes reads clang-tidy's exported fixes document. Offsets are
// resolved against src, the real file's bytes, because the tool may have
// analyzed a temporary compile-database view of it.
func ParseTidyFixes(raw, src []byte, repoRoot string) ([]diagnostic.Diagnostic, error) {
	var doc tidyFixesDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal fixes yaml: %w", err)
	}
	var diags []diagnostic.Diagnostic
	for _, entry := range doc.Diagnostics {
		line, col := diagnostic.LineCol(src, entry.Message.FileOffset)
		d := diagnostic.Diagnostic{
			Tool:     diagnostic.ToolTidy,
			Path:     diagnostic.NormalizePath(entry.Message.FilePath, repoRoot),
			Line:     line,
			Col:      col,
			Severity: diagnostic.ParseSeverity(entry.Level),
			Message:  entry.Message.Message,
			RuleID:   entry.Name,
		}
		for _, rep := range entry.Message.Replacements {
			if diagnostic.NormalizePath(rep.FilePath, repoRoot) != d.Path {
				// edit targets another file; keep the diagnostic, skip the edit
				continue
			}
			d.Edits = append(d.Edits, diagnostic.Edit{
				Offset: rep.Offset,
				Length: rep.Length,
				Text:   rep.Text,
			})
		}
		diags = append(diags, d)
	}
	return diags, nil
}

// attachFixes merges the edits of exported fixes into the stdout notes.
// Notes match on (rule, path, line); fixes with no matching note are kept as
// diagnostics of their own.
func attachFixes(notes, fixes []diagnostic.Diagnostic) []diagnostic.Diagnostic {
	for _, fix := range fixes {
		matched := false
		for i := range notes {
			if notes[i].RuleID == fix.RuleID && notes[i].Path == fix.Path && notes[i].Line == fix.Line {
				notes[i].Edits = append(notes[i].Edits, fix.Edits...)
				matched = true
				break
			}
		}
		if !matched {
			notes = append(notes, fix)
		}
	}
	return notes
}

func firstLine(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
