package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

func edit(startLine, startCol, endLine, endCol int, text string) types.FileEdit {
	return types.FileEdit{
		Range: types.TextRange{
			StartLine:       startLine,
			StartLineOffset: startCol,
			EndLine:         endLine,
			EndLineOffset:   endCol,
		},
		NewText: text,
	}
}

func TestApplyEdits_SingleReplacement(t *testing.T) {
	content := []byte("function f() {\n  return true;\n}\n")

	out, err := ApplyEdits(content, []types.FileEdit{edit(2, 9, 2, 13, "false")})
	require.NoError(t, err)
	assert.Equal(t, "function f() {\n  return false;\n}\n", string(out))
}

func TestApplyEdits_RemoveWholeLine(t *testing.T) {
	content := []byte("a();\nreturn;\n")

	// Deleting the redundant trailing return: replace from the start of
	// line 2 through the start of the (virtual) line 3 with nothing.
	out, err := ApplyEdits(content, []types.FileEdit{edit(2, 0, 3, 0, "")})
	require.NoError(t, err)
	assert.Equal(t, "a();\n", string(out))
}

func TestApplyEdits_DescendingOrderRegardlessOfInput(t *testing.T) {
	content := []byte("aaa\nbbb\nccc\n")

	// Supplied ascending; application must be descending so the line-1
	// edit cannot shift the line-3 range.
	edits := []types.FileEdit{
		edit(1, 0, 1, 3, "AAAAAA"),
		edit(3, 0, 3, 3, "C"),
	}
	out, err := ApplyEdits(content, edits)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA\nbbb\nC\n", string(out))
}

func TestApplyEdits_MultiLineRange(t *testing.T) {
	content := []byte("if (x) {\n  dead();\n  code();\n}\n")

	out, err := ApplyEdits(content, []types.FileEdit{edit(2, 2, 3, 9, "live();")})
	require.NoError(t, err)
	assert.Equal(t, "if (x) {\n  live();\n}\n", string(out))
}

func TestApplyEdits_LinePastEOF(t *testing.T) {
	_, err := ApplyEdits([]byte("one line\n"), []types.FileEdit{edit(5, 0, 5, 1, "x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "past end of file")
}

func TestApplyEdits_ColumnPastEOL(t *testing.T) {
	_, err := ApplyEdits([]byte("ab\ncd\n"), []types.FileEdit{edit(1, 10, 1, 12, "x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "past end of line")
}

func TestApplyEdits_EmptyEditList(t *testing.T) {
	content := []byte("unchanged\n")
	out, err := ApplyEdits(content, nil)
	require.NoError(t, err)
	assert.Equal(t, content, out)
}

func TestByteOffset(t *testing.T) {
	text := "ab\ncde\nf"

	tests := []struct {
		name    string
		line    int
		col     int
		want    int
		wantErr bool
	}{
		{name: "start of file", line: 1, col: 0, want: 0},
		{name: "mid first line", line: 1, col: 2, want: 2},
		{name: "start of second line", line: 2, col: 0, want: 3},
		{name: "end of second line", line: 2, col: 3, want: 6},
		{name: "last line no newline", line: 3, col: 1, want: 8},
		{name: "zero line invalid", line: 0, col: 0, wantErr: true},
		{name: "negative column invalid", line: 1, col: -1, wantErr: true},
		{name: "column past line end", line: 1, col: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := byteOffset(text, tt.line, tt.col)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasQuickFix(t *testing.T) {
	assert.False(t, types.Finding{}.HasQuickFix())
	assert.False(t, types.Finding{QuickFixes: []types.QuickFix{{Message: "empty"}}}.HasQuickFix())
	assert.True(t, types.Finding{QuickFixes: []types.QuickFix{{
		Message: "remove",
		Edits:   []types.FileEdit{edit(1, 0, 1, 1, "")},
	}}}.HasQuickFix())
}
