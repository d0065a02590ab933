package changeset

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// FromUnifiedDiff builds a ChangeSet from a full multi-file unified diff,
// as produced by `git diff` or the platform's diff media type.
func FromUnifiedDiff(raw []byte) (*ChangeSet, error) {
	fileDiffs, err := diff.ParseMultiFileDiff(raw)
	if err != nil {
		return nil, fmt.Errorf("parse unified diff: %w", err)
	}
	cs := New()
	for _, fd := range fileDiffs {
		path := strippedPath(fd.NewName)
		if path == "" || path == "/dev/null" {
			// deleted file: nothing to report against
			continue
		}
		patch, err := diff.PrintHunks(fd.Hunks)
		if err != nil {
			return nil, fmt.Errorf("render hunks for %q: %w", path, err)
		}
		cs.add(path, &File{
			Ranges: addedRanges(fd.Hunks),
			New:    isNewFile(fd),
			Patch:  string(patch),
		})
	}
	return cs, nil
}

// PatchFile is one changed file as reported by the platform's list-files
// endpoint: a path, a status, and a patch fragment of hunks.
type PatchFile struct {
	Path   string
	Status string
	Patch  string
}

// FromPatchFiles builds a ChangeSet from per-file patch fragments. Files
// without a patch (binary, renames without edits) contribute no ranges.
func FromPatchFiles(files []PatchFile) (*ChangeSet, error) {
	cs := New()
	for _, pf := range files {
		if pf.Status == "removed" {
			continue
		}
		f := &File{New: pf.Status == "added", Patch: pf.Patch}
		if pf.Patch != "" {
			hunks, err := diff.ParseHunks([]byte(pf.Patch))
			if err != nil {
				return nil, fmt.Errorf("parse patch for %q: %w", pf.Path, err)
			}
			f.Ranges = addedRanges(hunks)
		}
		cs.add(pf.Path, f)
	}
	return cs, nil
}

// addedRanges walks hunk bodies and consolidates added line numbers into
// inclusive ranges. Deleted-only hunks contribute nothing.
func addedRanges(hunks []*diff.Hunk) []LineRange {
	var added []int
	for _, h := range hunks {
		line := int(h.NewStartLine)
		bodyLines := strings.Split(string(h.Body), "\n")
		if n := len(bodyLines); n > 0 && bodyLines[n-1] == "" {
			bodyLines = bodyLines[:n-1]
		}
		for _, body := range bodyLines {
			if body == "" {
				// blank context line with its leading space stripped
				line++
				continue
			}
			switch body[0] {
			case '+':
				added = append(added, line)
				line++
			case ' ':
				line++
			case '-', '\\':
				// removals and "\ No newline" markers do not advance the new side
			}
		}
	}
	return consolidate(added)
}

func isNewFile(fd *diff.FileDiff) bool {
	if fd.OrigName == "/dev/null" {
		return true
	}
	for _, ext := range fd.Extended {
		if strings.HasPrefix(ext, "new file mode") {
			return true
		}
	}
	return false
}

func strippedPath(name string) string {
	name = strings.TrimPrefix(name, "b/")
	return strings.TrimPrefix(name, "a/")
}
