package diagnostic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityError, ParseSeverity("error"))
	assert.Equal(t, SeverityError, ParseSeverity("Fatal"))
	assert.Equal(t, SeverityWarning, ParseSeverity("warning"))
	assert.Equal(t, SeverityNote, ParseSeverity("note"))
	assert.Equal(t, SeverityNote, ParseSeverity("remark"))
}

func TestLineCol(t *testing.T) {
	src := []byte("abc\ndef\nghi\n")

	line, col := LineCol(src, 0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)

	line, col = LineCol(src, 5)
	assert.Equal(t, 2, line)
	assert.Equal(t, 2, col)

	// offset past EOF clamps to the final position
	line, _ = LineCol(src, 100)
	assert.Equal(t, 4, line)
}

func TestLineSpan(t *testing.T) {
	src := []byte("abc\ndef\nghi\n")
	start, end := LineSpan(src, 1, 8)
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, end)

	start, end = LineSpan(src, 4, 0)
	assert.Equal(t, 2, start)
	assert.Equal(t, 2, end)
}

func TestRuleLink(t *testing.T) {
	d := Diagnostic{RuleID: "modernize-use-trailing-return-type"}
	assert.Equal(t,
		"[modernize-use-trailing-return-type](https://clang.llvm.org/extra/clang-tidy/checks/modernize/use-trailing-return-type.html)",
		d.RuleLink())

	d = Diagnostic{RuleID: "clang-diagnostic-unused-variable"}
	assert.Equal(t, "clang-diagnostic-unused-variable", d.RuleLink())
}

func TestSort(t *testing.T) {
	diags := []Diagnostic{
		{Path: "b.cpp", Line: 1},
		{Path: "a.cpp", Line: 9},
		{Path: "a.cpp", Line: 2, Col: 5, Tool: ToolTidy},
		{Path: "a.cpp", Line: 2, Col: 5, Tool: ToolFormat},
	}
	Sort(diags)
	assert.Equal(t, ToolFormat, diags[0].Tool)
	assert.Equal(t, ToolTidy, diags[1].Tool)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, 9, diags[2].Line)
	assert.Equal(t, "b.cpp", diags[3].Path)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "src/a.cpp", NormalizePath("/repo/src/a.cpp", "/repo"))
	assert.Equal(t, "src/a.cpp", NormalizePath("./src/a.cpp", ""))
	assert.Equal(t, "src/a.cpp", NormalizePath("src\\a.cpp", ""))
	assert.Equal(t, "/usr/include/stdio.h", NormalizePath("/usr/include/stdio.h", "/repo"))
}
