package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/diagnostic"
)

// FormatOptions configures one clang-format invocation.
type FormatOptions struct {
	Exe    string
	Style  string
	Ranges []changeset.LineRange
	// WantPatched also produces the fully formatted file content, used to
	// render review suggestions.
	WantPatched bool
	Timeout     time.Duration
}

// RunFormat invokes clang-format on path and parses its replacements XML
// into diagnostics. src is the file's current content, used to resolve byte
// offsets into line/column positions.
func RunFormat(ctx context.Context, r Runner, path string, src []byte, opts FormatOptions) Result {
	res := Result{Tool: diagnostic.ToolFormat, Path: path}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{"--style", opts.Style}
	for _, rng := range opts.Ranges {
		args = append(args, fmt.Sprintf("--lines=%d:%d", rng.Start, rng.End))
	}
	args = append(args, "--output-replacements-xml", path)

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

	diags, perr := ParseFormatXML(path, src, stdout, opts.Style)
	if perr != nil {
		if code != 0 {
			res.Failure = fmt.Sprintf("clang-format exited %d with unparseable output: %v", code, perr)
		} else {
			res.Failure = fmt.Sprintf("parse clang-format output: %v", perr)
		}
		return res
	}
	res.Diags = diags

	if opts.WantPatched && len(diags) > 0 {
		patched, err := formatScratchCopy(ctx, r, path, src, opts)
		if err != nil {
			res.Failure = fmt.Sprintf("produce formatted copy: %v", err)
			return res
		}
		res.Patched = patched
	}
	return res
}

// formatScratchCopy formats a throwaway copy of the file so the original is
// never mutated. The scratch directory is removed on every exit path.
func formatScratchCopy(ctx context.Context, r Runner, path string, src []byte, opts FormatOptions) ([]byte, error) {
	scratch, err := os.MkdirTemp("", "clint-format-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	copyPath := filepath.Join(scratch, filepath.Base(path))
	if err := os.WriteFile(copyPath, src, 0o644); err != nil {
		return nil, err
	}
	args := []string{"--style", opts.Style}
	for _, rng := range opts.Ranges {
		args = append(args, fmt.Sprintf("--lines=%d:%d", rng.Start, rng.End))
	}
	args = append(args, "-i", copyPath)
	if _, stderr, code, err := r.Run(ctx, "", opts.Exe, args...); err != nil {
		return nil, err
	} else if code != 0 {
		return nil, fmt.Errorf("clang-format -i exited %d: %s", code, strings.TrimSpace(string(stderr)))
	}
	return os.ReadFile(copyPath)
}

type formatReplacements struct {
	XMLName      xml.Name            `xml:"replacements"`
	Incomplete   bool                `xml:"incomplete_format,attr"`
	Replacements []formatReplacement `xml:"replacement"`
}

type formatReplacement struct {
	Offset int    `xml:"offset,attr"`
	Length int    `xml:"length,attr"`
	Text   string `xml:",chardata"`
}

// ParseFormatXML converts clang-format's replacements XML into diagnostics:
// one Warning per replacement, in document order, no rule id. Empty output
// means a clean file, not an error.
func ParseFormatXML(path string, src, raw []byte, style string) ([]diagnostic.Diagnostic, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, nil
	}
	var doc formatReplacements
	if err := xml.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal replacements xml: %w", err)
	}
	message := fmt.Sprintf("code does not conform to the %s style guidelines", SummarizeStyle(style))
	diags := make([]diagnostic.Diagnostic, 0, len(doc.Replacements))
	for _, rep := range doc.Replacements {
		line, col := diagnostic.LineCol(src, rep.Offset)
		_, endLine := diagnostic.LineSpan(src, rep.Offset, rep.Length)
		diags = append(diags, diagnostic.Diagnostic{
			Tool:     diagnostic.ToolFormat,
			Path:     path,
			Line:     line,
			Col:      col,
			EndLine:  endLine,
			Severity: diagnostic.SeverityWarning,
			Message:  message,
			Edits: []diagnostic.Edit{{
				Offset: rep.Offset,
				Length: rep.Length,
				Text:   rep.Text,
			}},
		})
	}
	return diags, nil
}

// SummarizeStyle names the configured style for user-facing text.
func SummarizeStyle(style string) string {
	switch strings.ToLower(style) {
	case "llvm", "gnu":
		return strings.ToUpper(style)
	case "google", "chromium", "microsoft", "mozilla", "webkit":
		return strings.ToUpper(style[:1]) + strings.ToLower(style[1:])
	default:
		return "Custom"
	}
}

func invocationFailure(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "invocation timed out"
	}
	if ctx.Err() == context.Canceled {
		return "invocation cancelled"
	}
	return err.Error()
}
