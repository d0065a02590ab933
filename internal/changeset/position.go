package changeset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRE = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// PositionMap resolves (path, line) pairs to review-comment positions, the
// 1-based offset into a file's patch fragment that the platform's review
// endpoint expects.
type PositionMap struct {
	newLineToPosition map[string]map[int]int
}

// BuildPositionMap indexes every file patch in the change set.
func BuildPositionMap(cs *ChangeSet) (PositionMap, error) {
	pm := PositionMap{newLineToPosition: map[string]map[int]int{}}
	for _, path := range cs.Paths() {
		f, _ := cs.Lookup(path)
		if f.Patch == "" {
			continue
		}
		newMap, err := buildFilePositions(f.Patch)
		if err != nil {
			return PositionMap{}, fmt.Errorf("build position map for %q: %w", path, err)
		}
		if len(newMap) > 0 {
			pm.newLineToPosition[path] = newMap
		}
	}
	return pm, nil
}

// PositionForLine maps a head-side line number to its patch position.
func (p PositionMap) PositionForLine(path string, line int) (int, bool) {
	fileMap, ok := p.newLineToPosition[path]
	if !ok {
		return 0, false
	}
	pos, ok := fileMap[line]
	return pos, ok
}

func buildFilePositions(patch string) (map[int]int, error) {
	newLineToPos := map[int]int{}

	pos := 0
	newLine := 0
	inHunk := false

	lines := strings.Split(patch, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for _, line := range lines {
		if line == "" {
			// blank context line with its leading space stripped
			if inHunk {
				pos++
				newLineToPos[newLine] = pos
				newLine++
			}
			continue
		}
		matches := hunkHeaderRE.FindStringSubmatch(line)
		if len(matches) > 0 {
			newStart, err := strconv.Atoi(matches[3])
			if err != nil {
				return nil, fmt.Errorf("invalid hunk header: %q", line)
			}
			newLine = newStart
			inHunk = true
			pos++
			continue
		}
		if !inHunk {
			continue
		}

		pos++
		switch {
		case strings.HasPrefix(line, " "), strings.HasPrefix(line, "+"):
			newLineToPos[newLine] = pos
			newLine++
		case strings.HasPrefix(line, "-"):
		case strings.HasPrefix(line, "\\"):
			// "\ No newline at end of file" applies to the previous line.
		}
	}

	return newLineToPos, nil
}
