package changeset

import (
	"errors"
	"sort"
)

// ErrUnavailable means neither a local diff nor a pull-request context could
// produce a change set. Fatal only when line filtering was requested.
var ErrUnavailable = errors.New("change set unavailable")

// LineRange is an inclusive range of 1-based line numbers.
type LineRange struct {
	Start int
	End   int
}

func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// File holds the changed-line information for one file in the change set.
type File struct {
	// Ranges spans only added lines, ordered and non-overlapping.
	Ranges []LineRange
	// New marks a fully new file: every line counts as changed.
	New bool
	// Patch is the unified-diff fragment for this file, kept for mapping
	// lines to review positions.
	Patch string
}

// ChangeSet maps repository-relative paths to their changed line ranges.
// Built once per run and read-only afterwards.
type ChangeSet struct {
	files map[string]*File
}

func New() *ChangeSet {
	return &ChangeSet{files: map[string]*File{}}
}

func (c *ChangeSet) add(path string, f *File) {
	c.files[path] = f
}

// Paths returns the changed file paths in sorted order.
func (c *ChangeSet) Paths() []string {
	paths := make([]string, 0, len(c.files))
	for p := range c.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (c *ChangeSet) Lookup(path string) (*File, bool) {
	f, ok := c.files[path]
	return f, ok
}

// Changed reports whether the file has any changed lines at all.
func (c *ChangeSet) Changed(path string) bool {
	f, ok := c.files[path]
	if !ok {
		return false
	}
	return f.New || len(f.Ranges) > 0
}

// ContainsLine reports whether the given line of the file was added or is
// part of a fully new file.
func (c *ChangeSet) ContainsLine(path string, line int) bool {
	f, ok := c.files[path]
	if !ok {
		return false
	}
	if f.New {
		return true
	}
	for _, r := range f.Ranges {
		if r.Contains(line) {
			return true
		}
	}
	return false
}

// IsNew reports whether the file was introduced by the change set.
func (c *ChangeSet) IsNew(path string) bool {
	f, ok := c.files[path]
	return ok && f.New
}

// consolidate turns a sorted list of line numbers into inclusive ranges of
// consecutive runs.
func consolidate(lines []int) []LineRange {
	if len(lines) == 0 {
		return nil
	}
	var ranges []LineRange
	start := lines[0]
	prev := lines[0]
	for _, n := range lines[1:] {
		if n != prev+1 {
			ranges = append(ranges, LineRange{Start: start, End: prev})
			start = n
		}
		prev = n
	}
	ranges = append(ranges, LineRange{Start: start, End: prev})
	return ranges
}
