package feedback

import (
	"fmt"
	"strings"

	"github.com/brianndofor/clint/internal/diagnostic"
	"github.com/brianndofor/clint/internal/tools"
)

// maxCommentLength is the GitHub issue-comment body limit.
const maxCommentLength = 65535

// ComposeComment renders the thread comment. Output is deterministic for a
// given set of diagnostics so repeated runs can be compared byte for byte.
func ComposeComment(diags []diagnostic.Diagnostic, meta Meta) string {
	diags = sorted(diags)
	t := TallyOf(diags)

	var b strings.Builder
	b.WriteString(Marker)
	b.WriteString("\n# Clint Report ")
	if t.Clean() {
		b.WriteString(":heavy_check_mark:\n\nNo concerns reported by clang-format or clang-tidy.\n")
	} else {
		b.WriteString(":warning:\n\nSome files did not pass the configured checks!\n")
		writeFormatSection(&b, diags, meta)
		writeTidySection(&b, diags)
	}
	fmt.Fprintf(&b, "\nHave any feedback or feature suggestions? [Share it here.](https://github.com/brianndofor/clint/issues)\n")

	return truncate(b.String(), maxCommentLength)
}

func writeFormatSection(b *strings.Builder, diags []diagnostic.Diagnostic, meta Meta) {
	var paths []string
	seen := map[string]bool{}
	for _, d := range diags {
		if d.Tool == diagnostic.ToolFormat && !seen[d.Path] {
			seen[d.Path] = true
			paths = append(paths, d.Path)
		}
	}
	if len(paths) == 0 {
		return
	}
	style := tools.SummarizeStyle(meta.Style)
	fmt.Fprintf(b, "\n<details><summary>clang-format (v%s) reports: <strong>%d file(s) not formatted</strong></summary>\n\n", orUnknown(meta.FormatVersion), len(paths))
	for _, p := range paths {
		fmt.Fprintf(b, "- %s (style: %s)\n", p, style)
	}
	b.WriteString("\n</details>\n")
}

func writeTidySection(b *strings.Builder, diags []diagnostic.Diagnostic) {
	var notes []diagnostic.Diagnostic
	for _, d := range diags {
		if d.Tool == diagnostic.ToolTidy {
			notes = append(notes, d)
		}
	}
	if len(notes) == 0 {
		return
	}
	fmt.Fprintf(b, "\n<details><summary>clang-tidy reports: <strong>%d concern(s)</strong></summary>\n\n", len(notes))
	for _, d := range notes {
		fmt.Fprintf(b, "- **%s:%d:%d:** %s: [%s]\n  > %s\n", d.Path, d.Line, d.Col, d.Severity, d.RuleLink(), d.Message)
	}
	b.WriteString("\n</details>\n")
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
