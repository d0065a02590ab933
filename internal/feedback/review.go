package feedback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/diagnostic"
)

// ReviewComment is one inline suggestion in a pull-request review.
type ReviewComment struct {
	Path      string `json:"path"`
	Body      string `json:"body"`
	Line      int    `json:"line"`
	Side      string `json:"side"`
	StartLine int    `json:"start_line,omitempty"`
	StartSide string `json:"start_side,omitempty"`
}

// ReviewBatch is the composed pull-request review: an event, a summary
// body, and inline suggestion comments.
type ReviewBatch struct {
	Event    string
	Body     string
	Comments []ReviewComment
	// OutsideDiff counts suggestions that could not be anchored because
	// their lines are not part of the diff.
	OutsideDiff int
}

// ComposeReview groups diagnostics by file, merges adjacent or overlapping
// edits into minimal suggestion blocks, and anchors each block to the diff.
// Passive reviews always use the COMMENT event; otherwise the event is
// REQUEST_CHANGES when suggestions exist and APPROVE when none do.
func ComposeReview(diags []diagnostic.Diagnostic, pm changeset.PositionMap, content ContentFn, meta Meta, passive bool) (ReviewBatch, error) {
	diags = sorted(diags)

	perFile := map[string][]mergedEdit{}
	var paths []string
	for _, d := range diags {
		if len(d.Edits) == 0 {
			continue
		}
		if _, seen := perFile[d.Path]; !seen {
			paths = append(paths, d.Path)
		}
		perFile[d.Path] = append(perFile[d.Path], toMergedEdits(d)...)
	}

	batch := ReviewBatch{}
	for _, path := range paths {
		src, err := content(path)
		if err != nil {
			return ReviewBatch{}, fmt.Errorf("read %s for suggestions: %w", path, err)
		}
		for _, group := range mergeEdits(perFile[path]) {
			comment, ok := suggestionComment(path, src, group, pm)
			if !ok {
				batch.OutsideDiff++
				continue
			}
			batch.Comments = append(batch.Comments, comment)
		}
	}

	tally := TallyOf(diags)
	switch {
	case passive:
		batch.Event = "COMMENT"
	case len(batch.Comments) > 0:
		batch.Event = "REQUEST_CHANGES"
	default:
		batch.Event = "APPROVE"
	}
	batch.Body = reviewBody(tally, batch, meta)
	return batch, nil
}

type mergedEdit struct {
	offset int
	length int
	text   string
	tools  map[diagnostic.Tool]bool
}

func toMergedEdits(d diagnostic.Diagnostic) []mergedEdit {
	out := make([]mergedEdit, 0, len(d.Edits))
	for _, e := range d.Edits {
		out = append(out, mergedEdit{
			offset: e.Offset,
			length: e.Length,
			text:   e.Text,
			tools:  map[diagnostic.Tool]bool{d.Tool: true},
		})
	}
	return out
}

// mergeEdits coalesces edits whose byte ranges touch or overlap. Overlapping
// replacement text concatenates in offset order; within one diagnostic
// ranges never overlap, so overlap only happens across tools and resolves
// in favor of the earlier edit's removal span.
func mergeEdits(edits []mergedEdit) [][]mergedEdit {
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].offset < edits[j].offset })
	var groups [][]mergedEdit
	var current []mergedEdit
	end := -1
	for _, e := range edits {
		if current != nil && e.offset <= end {
			current = append(current, e)
		} else {
			if current != nil {
				groups = append(groups, current)
			}
			current = []mergedEdit{e}
		}
		if e.offset+e.length > end {
			end = e.offset + e.length
		}
	}
	if current != nil {
		groups = append(groups, current)
	}
	return groups
}

// suggestionComment renders one merged edit group as a suggestion block
// spanning the full lines the group touches.
func suggestionComment(path string, src []byte, group []mergedEdit, pm changeset.PositionMap) (ReviewComment, bool) {
	first := group[0]
	groupEnd := first.offset
	for _, e := range group {
		if e.offset+e.length > groupEnd {
			groupEnd = e.offset + e.length
		}
	}
	startLine, endLine := diagnostic.LineSpan(src, first.offset, groupEnd-first.offset)

	// every suggested line must be anchorable in the diff
	for line := startLine; line <= endLine; line++ {
		if _, ok := pm.PositionForLine(path, line); !ok {
			return ReviewComment{}, false
		}
	}

	spanStart := lineStart(src, startLine)
	spanEnd := lineEnd(src, endLine)
	patched := applyEdits(src[spanStart:spanEnd], group, spanStart)

	tools := map[diagnostic.Tool]bool{}
	for _, e := range group {
		for tool := range e.tools {
			tools[tool] = true
		}
	}
	var header string
	switch {
	case tools[diagnostic.ToolFormat] && tools[diagnostic.ToolTidy]:
		header = "### clang-format and clang-tidy suggestion"
	case tools[diagnostic.ToolTidy]:
		header = "### clang-tidy suggestion"
	default:
		header = "### clang-format suggestion"
	}

	body := fmt.Sprintf("%s\n```suggestion\n%s\n```", header, strings.TrimRight(string(patched), "\n"))
	comment := ReviewComment{Path: path, Body: body, Line: endLine, Side: "RIGHT"}
	if startLine < endLine {
		comment.StartLine = startLine
		comment.StartSide = "RIGHT"
	}
	return comment, true
}

// applyEdits applies a group's edits, highest offset first, to the byte
// span starting at base.
func applyEdits(span []byte, group []mergedEdit, base int) []byte {
	edits := make([]mergedEdit, len(group))
	copy(edits, group)
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].offset > edits[j].offset })
	out := append([]byte(nil), span...)
	for _, e := range edits {
		start := e.offset - base
		end := start + e.length
		if start < 0 || end > len(out) {
			continue
		}
		out = append(out[:start], append([]byte(e.text), out[end:]...)...)
	}
	return out
}

func lineStart(src []byte, line int) int {
	current := 1
	for i := 0; i < len(src); i++ {
		if current == line {
			return i
		}
		if src[i] == '\n' {
			current++
		}
	}
	return len(src)
}

func lineEnd(src []byte, line int) int {
	start := lineStart(src, line)
	for i := start; i < len(src); i++ {
		if src[i] == '\n' {
			return i
		}
	}
	return len(src)
}

func reviewBody(t Tally, batch ReviewBatch, meta Meta) string {
	var b strings.Builder
	b.WriteString(Marker)
	b.WriteString("\n## Clint Review\n\n")
	if t.Clean() {
		b.WriteString("No concerns from clang-format")
		if meta.FormatVersion != "" {
			fmt.Fprintf(&b, " (v%s)", meta.FormatVersion)
		}
		b.WriteString(" or clang-tidy")
		if meta.TidyVersion != "" {
			fmt.Fprintf(&b, " (v%s)", meta.TidyVersion)
		}
		b.WriteString(".\n")
		return b.String()
	}
	if t.FormatFiles > 0 {
		fmt.Fprintf(&b, "- clang-format reports %d file(s) not formatted\n", t.FormatFiles)
	}
	if t.TidyNotes > 0 {
		fmt.Fprintf(&b, "- clang-tidy reports %d concern(s)\n", t.TidyNotes)
	}
	if batch.OutsideDiff > 0 {
		fmt.Fprintf(&b, "\n%d suggestion(s) fall outside the diff and are not shown inline.\n", batch.OutsideDiff)
	}
	return b.String()
}
