package feedback

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/brianndofor/clint/internal/diagnostic"
	"github.com/brianndofor/clint/internal/tools"
)

// The platform rejects annotation messages longer than 64 KiB and titles
// longer than 255 characters.
const (
	maxAnnotationMessage = 64 * 1024
	maxAnnotationTitle   = 255
	elisionMarker        = "…"
)

// Annotation is one inline check-run annotation.
type Annotation struct {
	Path    string `json:"path"`
	Line    int    `json:"start_line"`
	EndLine int    `json:"end_line"`
	Level   string `json:"annotation_level"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// ComposeAnnotations renders the diagnostic set as an annotation list:
// one aggregated notice per file for style findings, one annotation per
// semantic finding.
func ComposeAnnotations(diags []diagnostic.Diagnostic, meta Meta) []Annotation {
	diags = sorted(diags)
	var out []Annotation

	formatLines := map[string][]int{}
	for _, d := range diags {
		if d.Tool != diagnostic.ToolFormat {
			continue
		}
		lines := formatLines[d.Path]
		if len(lines) == 0 || lines[len(lines)-1] != d.Line {
			formatLines[d.Path] = append(lines, d.Line)
		}
	}
	formatPaths := make([]string, 0, len(formatLines))
	for path := range formatLines {
		formatPaths = append(formatPaths, path)
	}
	sort.Strings(formatPaths)
	for _, path := range formatPaths {
		lines := formatLines[path]
		lineWords := make([]string, len(lines))
		for i, n := range lines {
			lineWords[i] = strconv.Itoa(n)
		}
		out = append(out, Annotation{
			Path:    path,
			Line:    lines[0],
			EndLine: lines[0],
			Level:   "notice",
			Title:   truncate(fmt.Sprintf("Run clang-format on %s", path), maxAnnotationTitle),
			Message: truncate(fmt.Sprintf("File %s does not conform to the %s style guidelines. (lines %s)",
				path, tools.SummarizeStyle(meta.Style), strings.Join(lineWords, ", ")), maxAnnotationMessage),
		})
	}

	for _, d := range diags {
		if d.Tool != diagnostic.ToolTidy {
			continue
		}
		endLine := d.EndLine
		if endLine < d.Line {
			endLine = d.Line
		}
		out = append(out, Annotation{
			Path:    d.Path,
			Line:    d.Line,
			EndLine: endLine,
			Level:   annotationLevel(d.Severity),
			Title:   truncate(fmt.Sprintf("%s:%d:%d [%s]", d.Path, d.Line, d.Col, d.RuleID), maxAnnotationTitle),
			Message: truncate(d.Message, maxAnnotationMessage),
		})
	}
	return out
}

func annotationLevel(s diagnostic.Severity) string {
	switch s {
	case diagnostic.SeverityError:
		return "failure"
	case diagnostic.SeverityWarning:
		return "warning"
	default:
		return "notice"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len(elisionMarker)
	// back up so the cut never splits a multi-byte rune
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + elisionMarker
}
