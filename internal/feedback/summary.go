package feedback

import (
	"fmt"
	"strings"

	"github.com/brianndofor/clint/internal/diagnostic"
)

// ComposeSummary renders the Markdown step summary written to
// GITHUB_STEP_SUMMARY. It is shorter than the thread comment: a per-tool
// verdict plus a table of concerns.
func ComposeSummary(diags []diagnostic.Diagnostic, meta Meta) string {
	diags = sorted(diags)
	t := TallyOf(diags)

	var b strings.Builder
	b.WriteString("# Clint Summary\n\n")
	if t.FormatFiles == 0 {
		b.WriteString(":heavy_check_mark: clang-format: all files formatted\n")
	} else {
		fmt.Fprintf(&b, ":warning: clang-format: %d file(s) not formatted\n", t.FormatFiles)
	}
	if t.TidyNotes == 0 {
		b.WriteString(":heavy_check_mark: clang-tidy: no concerns\n")
	} else {
		fmt.Fprintf(&b, ":warning: clang-tidy: %d concern(s)\n", t.TidyNotes)
	}
	if t.Clean() {
		return b.String()
	}

	b.WriteString("\n| File | Location | Tool | Severity | Concern |\n|---|---|---|---|---|\n")
	formatSeen := map[string]bool{}
	for _, d := range diags {
		// style findings collapse to one row per file
		if d.Tool == diagnostic.ToolFormat {
			if formatSeen[d.Path] {
				continue
			}
			formatSeen[d.Path] = true
			fmt.Fprintf(&b, "| %s | - | %s | %s | file is not formatted |\n", d.Path, d.Tool, d.Severity)
			continue
		}
		loc := "-"
		if d.Line > 0 {
			loc = fmt.Sprintf("%d:%d", d.Line, d.Col)
		}
		msg := d.Message
		if d.RuleID != "" {
			msg = fmt.Sprintf("%s [%s]", msg, d.RuleID)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			d.Path, loc, d.Tool, d.Severity, strings.ReplaceAll(msg, "|", "\\|"))
	}
	return b.String()
}
