package feedback

import (
	"github.com/brianndofor/clint/internal/diagnostic"
)

// Marker is the hidden string that identifies artifacts produced by clint,
// enabling update-in-place on reruns.
const Marker = "<!-- clint report -->"

// Kind enumerates the feedback artifact variants. Adding a variant must be
// reflected in every switch over Kind.
type Kind int

const (
	KindAnnotations Kind = iota
	KindReview
	KindComment
	KindSummary
)

func (k Kind) String() string {
	switch k {
	case KindAnnotations:
		return "annotations"
	case KindReview:
		return "review"
	case KindComment:
		return "comment"
	default:
		return "summary"
	}
}

// Meta carries run metadata that renders into artifacts.
type Meta struct {
	Repo          string
	SHA           string
	Style         string
	FormatVersion string
	TidyVersion   string
}

// ContentFn loads a file's current bytes for suggestion rendering.
type ContentFn func(path string) ([]byte, error)

// Tally summarizes a diagnostic set per tool.
type Tally struct {
	// FormatFiles counts files with at least one style finding.
	FormatFiles int
	// TidyNotes counts individual semantic findings.
	TidyNotes int
}

func (t Tally) Clean() bool { return t.FormatFiles == 0 && t.TidyNotes == 0 }

func TallyOf(diags []diagnostic.Diagnostic) Tally {
	var t Tally
	formatFiles := map[string]bool{}
	for _, d := range diags {
		switch d.Tool {
		case diagnostic.ToolFormat:
			formatFiles[d.Path] = true
		case diagnostic.ToolTidy:
			t.TidyNotes++
		}
	}
	t.FormatFiles = len(formatFiles)
	return t
}

// sorted returns a copy ordered by path/line/column so every composer is
// deterministic regardless of worker completion order.
func sorted(diags []diagnostic.Diagnostic) []diagnostic.Diagnostic {
	out := make([]diagnostic.Diagnostic, len(diags))
	copy(out, diags)
	diagnostic.Sort(out)
	return out
}
