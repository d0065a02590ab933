package diagnostic

import (
	"sort"
	"strings"
)

// Tool identifies which analysis tool produced a finding.
type Tool int

const (
	ToolFormat Tool = iota
	ToolTidy
)

func (t Tool) String() string {
	if t == ToolFormat {
		return "clang-format"
	}
	return "clang-tidy"
}

type Severity int

const (
	SeverityNote Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}

// ParseSeverity maps a tool's severity label to a Severity. Unknown labels
// degrade to note so a grammar drift never promotes a finding.
func ParseSeverity(label string) Severity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "error", "fatal":
		return SeverityError
	case "warning":
		return SeverityWarning
	default:
		return SeverityNote
	}
}

// Edit is one byte-range replacement. Applying a diagnostic's edits in
// reverse offset order produces the suggested fix.
type Edit struct {
	Offset int
	Length int
	Text   string
}

// Diagnostic is the unified shape of one finding from either tool.
type Diagnostic struct {
	Tool     Tool
	Path     string
	Line     int
	Col      int
	EndLine  int
	EndCol   int
	Severity Severity
	RuleID   string
	Message  string
	Edits    []Edit
}

// RuleLink renders the rule id as a markdown link into the clang-tidy check
// docs. Compiler diagnostics (clang-diagnostic-*) have no doc page.
func (d Diagnostic) RuleLink() string {
	if d.RuleID == "" || strings.HasPrefix(d.RuleID, "clang-diagnostic") {
		return d.RuleID
	}
	category, name, ok := strings.Cut(d.RuleID, "-")
	if !ok {
		return d.RuleID
	}
	return "[" + d.RuleID + "](https://clang.llvm.org/extra/clang-tidy/checks/" + category + "/" + name + ".html)"
}

// Sort orders diagnostics by path, then line, then column, then tool.
// Within one file a tool's emission order is already positional, so this
// yields a deterministic order for rendering.
func Sort(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		return a.Tool < b.Tool
	})
}

// LineCol converts a byte offset into 1-based line and column numbers for
// the given file content. Offsets past the end of the buffer resolve to the
// final position.
func LineCol(src []byte, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	line = 1
	lastNL := -1
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			lastNL = i
		}
	}
	return line, offset - lastNL
}

// LineSpan reports the 1-based line numbers covered by a byte range.
func LineSpan(src []byte, offset, length int) (start, end int) {
	start, _ = LineCol(src, offset)
	if length <= 0 {
		return start, start
	}
	end, _ = LineCol(src, offset+length)
	return start, end
}

// NormalizePath makes a tool-reported path repository relative with forward
// slashes. Absolute paths under root are stripped; foreign paths are
// returned cleaned so the caller can reject them against its file list.
func NormalizePath(path, root string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	r := strings.ReplaceAll(root, "\\", "/")
	if r != "" && !strings.HasSuffix(r, "/") {
		r += "/"
	}
	p = strings.TrimPrefix(p, r)
	p = strings.TrimPrefix(p, "./")
	return p
}
