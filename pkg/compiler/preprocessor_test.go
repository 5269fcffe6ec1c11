package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Value
	}
	return out
}

// memFS serves included files from a map keyed by absolute path.
func memFS(files map[string]string) ReadFileFunc {
	return func(path string) ([]byte, error) {
		abs, _ := filepath.Abs(path)
		if src, ok := files[abs]; ok {
			return []byte(src), nil
		}
		return nil, os.ErrNotExist
	}
}

func abs(t *testing.T, path string) string {
	t.Helper()
	p, err := filepath.Abs(path)
	require.NoError(t, err)
	return p
}

func TestPreprocessMacros(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected []string
	}{
		{
			name:     "Simple macro",
			src:      "MACRO two 2 END two two PLUS",
			expected: []string{"2", "2", "PLUS"},
		},
		{
			name:     "Case-insensitive reference",
			src:      "macro Inc 1 + end 5 INC inc",
			expected: []string{"5", "1", "PLUS", "1", "PLUS"},
		},
		{
			name:     "Nested macro",
			src:      "MACRO one 1 END MACRO two one one + END two .",
			expected: []string{"1", "1", "PLUS", "PRINT_INT"},
		},
		{
			name:     "Redefinition replaces",
			src:      "MACRO x 1 END x MACRO x 2 END x",
			expected: []string{"1", "2"},
		},
		{
			name:     "Macro body with control flow",
			src:      "MACRO pos? DUP 0 > END 3 IF pos? DO ENDIF",
			expected: []string{"3", "IF", "DUP", "0", "GT", "DO", "ENDIF"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Lex("t.stk", tc.src)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, values(got))
		})
	}
}

func TestPreprocessMacroLocations(t *testing.T) {
	src := "MACRO twice\n  DUP PLUS\nEND\n\n  7 twice"
	got, err := Lex("t.stk", src)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, loc(5, 3), got[0].Loc)
	// Tokens from the body take the invocation site.
	assert.Equal(t, loc(5, 5), got[1].Loc)
	assert.Equal(t, loc(5, 5), got[2].Loc)

	pp := NewPreprocessor(nil)
	_, err = pp.Process("t.stk", src)
	require.NoError(t, err)
	m, ok := pp.Macros()["TWICE"]
	require.True(t, ok)
	assert.Equal(t, loc(1, 7), m.Loc)
	assert.Equal(t, []string{"DUP", "PLUS"}, values(m.Body))
}

func TestPreprocessErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind ErrorKind
	}{
		{"Direct recursion", "MACRO a a END a", RecursiveMacro},
		{"Indirect recursion", "MACRO a b END MACRO b a END a", RecursiveMacro},
		{"Missing END", "MACRO a 1 2", UnterminatedMacro},
		{"Missing name", "MACRO", UnterminatedMacro},
		{"Keyword name", "MACRO IF 1 END", UnterminatedMacro},
		{"Nested definition", "MACRO a MACRO b END END", UnterminatedMacro},
		{"INCLUDE without path", "INCLUDE 5", InvalidLiteral},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Lex("t.stk", tc.src)
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tc.kind, kind, err.Error())
		})
	}
}

func TestPreprocessInclude(t *testing.T) {
	root := abs(t, "prog/main.stk")
	files := map[string]string{
		abs(t, "prog/lib/std.stk"):  "MACRO sq DUP * END\nINCLUDE \"util.stk\"",
		abs(t, "prog/lib/util.stk"): "MACRO nl 10 END",
		abs(t, "prog/other.stk"):    "INCLUDE \"lib/util.stk\" 42",
	}

	pp := NewPreprocessor(memFS(files))
	got, err := pp.Process(root, "INCLUDE \"lib/std.stk\" INCLUDE \"other.stk\" 3 sq nl")
	require.NoError(t, err)
	// util.stk is spliced once even though two files include it.
	assert.Equal(t, []string{"42", "3", "DUP", "MUL", "10"}, values(got))
	assert.Equal(t, Location{File: abs(t, "prog/other.stk"), Row: 1, Col: 24}, got[0].Loc)
	assert.Contains(t, pp.Macros(), "NL")
}

func TestPreprocessIncludeErrors(t *testing.T) {
	files := map[string]string{
		abs(t, "a.stk"): "INCLUDE \"b.stk\"",
		abs(t, "b.stk"): "INCLUDE \"a.stk\"",
	}
	_, err := NewPreprocessor(memFS(files)).Process("a.stk", files[abs(t, "a.stk")])
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, CircularInclude, kind)

	_, err = NewPreprocessor(memFS(nil)).Process("a.stk", "INCLUDE \"missing.stk\"")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "reading included file")
}
