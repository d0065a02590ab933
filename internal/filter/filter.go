package filter

import (
	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/diagnostic"
)

// Policy selects which diagnostics survive change-set filtering.
type Policy int

const (
	// AllLines keeps every diagnostic regardless of the change set.
	AllLines Policy = iota
	// ChangedFilesOnly keeps diagnostics in files that have any change.
	ChangedFilesOnly
	// ChangedLinesOnly keeps diagnostics whose line, or whose suggested
	// edit, touches a changed line.
	ChangedLinesOnly
)

func (p Policy) String() string {
	switch p {
	case ChangedFilesOnly:
		return "changed-files"
	case ChangedLinesOnly:
		return "changed-lines"
	default:
		return "all-lines"
	}
}

// ContentFn loads a file's current bytes, used to map edit byte ranges onto
// line numbers. A nil ContentFn disables the edit tie-break.
type ContentFn func(path string) ([]byte, error)

// Options tunes filtering behavior beyond the policy itself.
type Options struct {
	// KeepFileLevel retains line-less diagnostics under ChangedLinesOnly
	// even when the file is not fully new.
	KeepFileLevel bool
}

// Result is the filtered diagnostic set plus what was held back.
type Result struct {
	Kept []diagnostic.Diagnostic
	// Suppressed counts excluded diagnostics per file, for summary
	// reporting; nothing is silently dropped.
	Suppressed map[string]int
}

// Apply intersects diagnostics with the change set under the given policy.
func Apply(diags []diagnostic.Diagnostic, cs *changeset.ChangeSet, policy Policy, content ContentFn, opts Options) Result {
	res := Result{Suppressed: map[string]int{}}
	if policy == AllLines || cs == nil {
		res.Kept = append(res.Kept, diags...)
		return res
	}
	for _, d := range diags {
		if keep(d, cs, policy, content, opts) {
			res.Kept = append(res.Kept, d)
		} else {
			res.Suppressed[d.Path]++
		}
	}
	return res
}

func keep(d diagnostic.Diagnostic, cs *changeset.ChangeSet, policy Policy, content ContentFn, opts Options) bool {
	if !cs.Changed(d.Path) {
		return false
	}
	if policy == ChangedFilesOnly {
		return true
	}

	// ChangedLinesOnly
	if d.Line <= 0 {
		// file-level finding: only meaningful when every line is new
		return cs.IsNew(d.Path) || opts.KeepFileLevel
	}
	if cs.ContainsLine(d.Path, d.Line) {
		return true
	}
	// the reported line may sit outside the change while the edit itself
	// touches changed lines; the edit's location decides relevance
	return editTouchesChange(d, cs, content)
}

func editTouchesChange(d diagnostic.Diagnostic, cs *changeset.ChangeSet, content ContentFn) bool {
	if len(d.Edits) == 0 || content == nil {
		return false
	}
	src, err := content(d.Path)
	if err != nil {
		return false
	}
	for _, edit := range d.Edits {
		start, end := diagnostic.LineSpan(src, edit.Offset, edit.Length)
		for line := start; line <= end; line++ {
			if cs.ContainsLine(d.Path, line) {
				return true
			}
		}
	}
	return false
}
