package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func stackStrings(vs []Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

func TestCheckStack(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		stack []string
	}{
		{"Fold PLUS", "1 2 PLUS", []string{"3"}},
		{"Fold arithmetic", "7 3 - 4 * 2 /", []string{"8"}},
		{"Fold MOD and DIVMOD", "7 3 % 17 5 DIVMOD", []string{"1", "3", "2"}},
		{"Fold POW", "2 10 ^ 5 0 ^", []string{"1024", "1"}},
		{"Fold comparisons", "1 2 < 1 2 > 2 2 == 2 2 != 3 3 >= 3 4 <=", []string{"1", "0", "1", "0", "1", "1"}},
		{"Fold bitwise", "12 10 AND 12 10 OR", []string{"8", "14"}},
		{"Truncated division", "-7 2 DIV -7 2 MOD", []string{"-3", "-1"}},
		{"Boolean literal", "TRUE FALSE", []string{"1", "0"}},
		{"String push", `"hey"`, []string{"3", "*buf str_0"}},
		{"Escaped string length", `"a\n"`, []string{"2", "*buf str_0"}},
		{"C-string push", `'hey'`, []string{"*buf cstr_0"}},
		{"Array push", `ARRAY(a, b)`, []string{"*buf array_0"}},
		{"INPUT", `INPUT`, []string{"INT", "*buf input_0"}},
		{"ARGC ARGV", `ARGC ARGV`, []string{"INT", "*buf argv"}},
		{"Unknown values do not fold", "ARGC 1 PLUS", []string{"INT"}},
		{"Division by unknown", "ARGC 0 DIV", []string{"INT"}},
		{"DUP", "1 DUP", []string{"1", "1"}},
		{"DUP2", "1 2 DUP2", []string{"1", "2", "1", "2"}},
		{"DROP", "1 2 DROP", []string{"1"}},
		{"OVER", "1 2 OVER", []string{"1", "2", "1"}},
		{"ROT", "1 2 3 ROT", []string{"2", "3", "1"}},
		{"SWAP", "1 2 SWAP", []string{"2", "1"}},
		{"SWAP2", "1 2 3 4 SWAP2", []string{"3", "4", "1", "2"}},
		{"GET_NTH 1 is OVER", "7 8 1 GET_NTH", []string{"7", "8", "7"}},
		{"GET_NTH 2", "7 8 9 2 GET_NTH", []string{"7", "8", "9", "7"}},
		{"SYSCALL3", `1 "hi" 1 SYSCALL3`, []string{"INT"}},
		{"PUTS", `"hi" PUTS`, []string{}},
		{"IF duplicates", "1 IF", []string{"1", "1"}},
		{"DO pops two", "1 IF DUP DO", []string{"1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Check(mustProgram(t, tc.src))
			require.NoError(t, err)
			assert.Equal(t, tc.stack, stackStrings(a.Stack))
		})
	}
}

func TestCheckScenarios(t *testing.T) {
	a, err := Check(mustProgram(t, "1 2 PLUS PRINT_INT"))
	require.NoError(t, err)
	assert.Empty(t, a.Stack)

	a, err = Check(mustProgram(t, "5 WHILE DUP 0 GT DO 1 MINUS DONE"))
	require.NoError(t, err)
	require.Len(t, a.Stack, 1)
	assert.Equal(t, knownInt(4), a.Stack[0])

	a, err = Check(mustProgram(t, `0 IF DUP DO "x" PUTS ELSE "y" PUTS ENDIF`))
	require.NoError(t, err)
	assert.Equal(t, []string{"0"}, stackStrings(a.Stack))
	require.Len(t, a.Statics, 2)
	assert.Equal(t, StaticString, a.Statics[0].Kind)
	assert.Equal(t, "str_4", a.Statics[0].Op.Symbol())

	st, ok := a.StaticFor(7)
	require.True(t, ok)
	assert.Equal(t, "str_7", st.Op.Symbol())
	_, ok = a.StaticFor(0)
	assert.False(t, ok)
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind ErrorKind
		msg  string
	}{
		{"Bare DROP", "DROP", StackUnderflow, "DROP requires 1 values on the stack, found 0"},
		{"PLUS with one", "1 PLUS", StackUnderflow, "PLUS requires 2"},
		{"IF on empty", "IF", StackUnderflow, "IF requires 1"},
		{"DO with one", "DO", StackUnderflow, "DO requires 2"},
		{"Pointer arithmetic", `'a' 1 PLUS`, OperandTypeMismatch, "PLUS expected INT, got *buf cstr_0"},
		{"PUTS needs pointer", "1 2 PUTS", OperandTypeMismatch, "PUTS expected *buf, got 2"},
		{"Literal zero divisor", "5 0 DIV", DivisionByZero, "DIV of 5 by zero"},
		{"Literal zero MOD", "5 0 MOD", DivisionByZero, "MOD"},
		{"Literal zero DIVMOD", "5 0 DIVMOD", DivisionByZero, "DIVMOD"},
		{"GET_NTH too deep", "3 1 GET_NTH", StackIndexError, "NOT_ENOUGH_ELEMENTS_IN_STACK"},
		{"GET_NTH zero", "3 4 0 GET_NTH", StackIndexError, "positive integer literal"},
		{"GET_NTH unknown", "3 4 ARGC GET_NTH", StackIndexError, "got INT"},
		{"SYSCALL number must be INT", "1 'a' SYSCALL1", OperandTypeMismatch, "SYSCALL1 expected INT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Check(mustProgram(t, tc.src))
			require.Error(t, err)
			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.kind, cerr.Kind)
			assert.Contains(t, cerr.Msg, tc.msg)
		})
	}
}

func TestCheckErrorLocation(t *testing.T) {
	_, err := Check(mustProgram(t, "1 2 PLUS\n  5 0 DIV"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "t.stk:2:7: DivisionByZero:"), err.Error())
}

// Every intrinsic has a type-check rule: none of them reports NotImplemented
// when enough integer operands are available.
func TestCheckCoversEveryIntrinsic(t *testing.T) {
	for _, in := range Intrinsics() {
		src := "1 2 3 4 5 6 7 8 1 " + in.String()
		if in == PUTS {
			src = `"s" PUTS`
		}
		_, err := Check(mustProgram(t, src))
		if err != nil {
			kind, _ := KindOf(err)
			assert.NotEqual(t, NotImplemented, kind, "%s: %v", in, err)
		}
	}
}

func TestIpow(t *testing.T) {
	assert.Equal(t, int64(1), ipow(3, 0))
	assert.Equal(t, int64(1), ipow(3, -2))
	assert.Equal(t, int64(81), ipow(3, 4))
	assert.Equal(t, int64(-8), ipow(-2, 3))
}

func genArithmeticProgram(t *rapid.T) string {
	n := rapid.IntRange(1, 30).Draw(t, "n")
	var parts []string
	depth := 0
	for i := 0; i < n; i++ {
		if depth >= 2 && rapid.Bool().Draw(t, "op") {
			op := rapid.SampledFrom([]string{"PLUS", "MINUS", "MUL", "EQ", "LT", "AND", "OR", "SWAP", "OVER", "DIV"}).Draw(t, "name")
			parts = append(parts, op)
			switch op {
			case "SWAP":
			case "OVER":
				depth++
			default:
				depth--
			}
			continue
		}
		parts = append(parts, fmt.Sprint(rapid.IntRange(-50, 50).Draw(t, "lit")))
		depth++
	}
	if rapid.Bool().Draw(t, "drop") {
		parts = append(parts, "DROP", "DROP", "DROP")
	}
	return strings.Join(parts, " ")
}

// Checking the same program twice gives the same verdict and the same
// folded stack.
func TestCheckIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := genArithmeticProgram(t)
		tokens, err := Lex("t.stk", src)
		if err != nil {
			t.Fatalf("lex %q: %v", src, err)
		}
		prog, err := NewProgram(tokens)
		if err != nil {
			t.Fatalf("program %q: %v", src, err)
		}

		a1, err1 := Check(prog)
		a2, err2 := Check(prog)
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("verdicts differ for %q: %v vs %v", src, err1, err2)
		}
		if err1 != nil {
			if err1.Error() != err2.Error() {
				t.Fatalf("errors differ for %q: %v vs %v", src, err1, err2)
			}
			return
		}
		if fmt.Sprint(stackStrings(a1.Stack)) != fmt.Sprint(stackStrings(a2.Stack)) {
			t.Fatalf("stacks differ for %q: %v vs %v", src, a1.Stack, a2.Stack)
		}
	})
}

// A program that passes the checker never has fewer values than an
// operation needs; a DROP on an empty stack is always an underflow.
func TestCheckUnderflowProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(t, "n")
		src := strings.Repeat("1 ", n) + strings.Repeat("DROP ", n+1)
		_, err := Check(mustProgramRapid(t, src))
		kind, ok := KindOf(err)
		if !ok || kind != StackUnderflow {
			t.Fatalf("%q: want StackUnderflow, got %v", src, err)
		}
	})
}

func mustProgramRapid(t *rapid.T, src string) *Program {
	tokens, err := Lex("t.stk", src)
	if err != nil {
		t.Fatalf("lex %q: %v", src, err)
	}
	prog, err := NewProgram(tokens)
	if err != nil {
		t.Fatalf("program %q: %v", src, err)
	}
	return prog
}
