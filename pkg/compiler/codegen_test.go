package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"stackc/pkg/asm"
)

func mustCompile(t *testing.T, src string) string {
	t.Helper()
	res, err := Compile(src, Options{File: "t.stk"})
	require.NoError(t, err)
	return res.Assembly()
}

// textSection returns everything after "section .text".
func textSection(t *testing.T, out string) string {
	t.Helper()
	i := strings.Index(out, "section .text")
	require.GreaterOrEqual(t, i, 0)
	return out[i:]
}

func TestGenerateArithmetic(t *testing.T) {
	out := mustCompile(t, "1 2 PLUS PRINT_INT")
	text := textSection(t, out)

	assert.Contains(t, text, "    ; 0 1\n    push 1\n")
	assert.Contains(t, text, "    ; 1 2\n    push 2\n")
	assert.Contains(t, text, "    ; 2 PLUS\n    pop rbx\n    pop rax\n    add rax, rbx\n    push rax\n")
	assert.Contains(t, text, "    ; 3 PRINT_INT\n    pop rdi\n    call print_int\n")
	assert.True(t, strings.HasSuffix(out, "    mov eax, 60\n    xor edi, edi\n    syscall\n"), out)
	assert.Contains(t, out, "global _start")
	assert.Contains(t, out, "args_ptr: resb 8")
}

func TestGenerateIfElse(t *testing.T) {
	// 0:0 1:IF 2:DUP 3:DO 4:"x" 5:PUTS 6:ELSE 7:"y" 8:PUTS 9:ENDIF
	out := mustCompile(t, `0 IF DUP DO "x" PUTS ELSE "y" PUTS ENDIF`)
	text := textSection(t, out)

	assert.Contains(t, text, "    ; 1 IF\n    push qword [rsp]\n")
	assert.Contains(t, text, "    pop rax\n    add rsp, 8\n    test rax, rax\n    jz ELSE_6\n")
	assert.Contains(t, text, "    jmp ENDIF_9\nELSE_6:\n")
	assert.Contains(t, text, "ENDIF_9:\n")
	assert.Contains(t, text, "    push 1\n    mov rax, str_4\n    push rax\n")

	ro := out[:strings.Index(out, "section .bss")]
	assert.Contains(t, ro, `str_4: db "x"`)
	assert.Contains(t, ro, `str_7: db "y"`)
	assert.Less(t, strings.Index(ro, "str_4"), strings.Index(ro, "str_7"))
}

func TestGenerateElif(t *testing.T) {
	// 0:2 1:IF 2:DUP 3:1 4:EQ 5:DO 6:10 7:ELIF 8:DUP 9:2 10:EQ 11:DO 12:20 13:ENDIF
	out := mustCompile(t, "2 IF DUP 1 == DO 10 ELIF DUP 2 == DO 20 ENDIF")
	assert.Contains(t, out, "jz ELIF_7\n")
	assert.Contains(t, out, "    jmp ENDIF_13\nELIF_7:\n    push qword [rsp]\n")
	assert.Contains(t, out, "jz ENDIF_13\n")
}

func TestGenerateWhileAndBreak(t *testing.T) {
	// 0:5 1:WHILE 2:DUP 3:0 4:GT 5:DO 6:1 7:MINUS 8:DONE
	out := mustCompile(t, "5 WHILE DUP 0 GT DO 1 MINUS DONE")
	assert.Contains(t, out, "WHILE_1:\n    push qword [rsp]\n")
	assert.Contains(t, out, "jz DONE_8\n")
	assert.Contains(t, out, "    jmp WHILE_1\nDONE_8:\n")

	// 0:1 1:WHILE 2:DUP 3:DO 4:BREAK 5:DONE
	out = mustCompile(t, "1 WHILE DUP DO BREAK DONE")
	assert.Contains(t, out, "    ; 4 BREAK\n    jmp DONE_5\n")
}

func TestGenerateIntrinsicTemplates(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"7 2 DIV", "    cqo\n    idiv rbx\n    push rax\n"},
		{"7 2 MOD", "    idiv rbx\n    push rdx\n"},
		{"7 2 DIVMOD", "    idiv rbx\n    push rax\n    push rdx\n"},
		{"2 3 POW", "POW_2_loop:\n    test rcx, rcx\n    jle POW_2_done\n"},
		{"1 2 LE", "    cmp rax, rbx\n    setle cl\n    push rcx\n"},
		{"1 2 DUP2", "    push qword [rsp+8]\n    push qword [rsp+8]\n"},
		{"1 2 3 1 GET_NTH", "    pop rax\n    push qword [rsp+rax*8]\n"},
		{"0 EXIT", "    pop rdi\n    mov eax, 60\n    syscall\n"},
		{"ARGC", "    mov rax, [args_ptr]\n    push qword [rax]\n"},
		{"ARGV", "    mov rax, [args_ptr]\n    add rax, 8\n    push rax\n"},
		{"1 2 3 60 SYSCALL3", "    pop rax\n    pop rdx\n    pop rsi\n    pop rdi\n    syscall\n    push rax\n"},
		{"1 2 3 4 5 6 9 SYSCALL6", "    pop r9\n    pop r8\n    pop r10\n    pop rdx\n"},
		{"5000000000", "    mov rax, 5000000000\n    push rax\n"},
		{"-5", "    push -5\n"},
		{`'hi'`, "    mov rax, cstr_0\n    push rax\n"},
	}

	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			assert.Contains(t, mustCompile(t, tc.src), tc.want)
		})
	}
}

func TestGenerateStaticData(t *testing.T) {
	out := mustCompile(t, `'ab' ARRAY(x, "y z") DROP DROP "q\"" DROP DROP`)
	assert.Contains(t, out, `cstr_0: db "ab", 0`)
	assert.Contains(t, out, `array_1_0: db "x", 0`)
	assert.Contains(t, out, `array_1_1: db "y z", 0`)
	assert.Contains(t, out, "array_1: dq array_1_0, array_1_1, 0")
	assert.Contains(t, out, `str_4: db "q", 34`)
	assert.Contains(t, out, "    push 2\n    mov rax, str_4\n")
}

func TestGenerateMultilineArray(t *testing.T) {
	out := mustCompile(t, "ARRAY(a,\n  b) DROP")
	text := textSection(t, out)
	assert.Contains(t, text, "    ; 0 ARRAY(a, b)\n")

	for _, line := range strings.Split(text, "\n") {
		switch {
		case line == "",
			strings.HasPrefix(line, "    "),
			strings.HasPrefix(line, "section "),
			strings.HasPrefix(line, "global "),
			strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " \t"):
		default:
			t.Errorf("unexpected line in .text: %q", line)
		}
	}
	require.NoError(t, asm.Verify(out))
}

func TestGenerateInputBuffer(t *testing.T) {
	res, err := Compile("INPUT PUTS", Options{File: "t.stk", InputBufferSize: 64})
	require.NoError(t, err)
	out := res.Assembly()
	assert.Contains(t, out, "input_0: resb 64")
	assert.Contains(t, out, "    mov rsi, input_0\n    mov edx, 64\n    syscall\n    push rax\n")

	out = mustCompile(t, "INPUT PUTS")
	assert.Contains(t, out, "input_0: resb 256")
}

// Every intrinsic has a code template.
func TestGenerateCoversEveryIntrinsic(t *testing.T) {
	for _, in := range Intrinsics() {
		src := "1 2 3 4 5 6 7 8 1 " + in.String()
		if in == PUTS {
			src = `"s" PUTS`
		}
		res, err := Compile(src, Options{File: "t.stk"})
		require.NoError(t, err, in.String())
		assert.Contains(t, res.Assembly(), " "+in.String()+"\n", in.String())
	}
}

func TestGenerateMissingStatic(t *testing.T) {
	prog := mustProgram(t, `"a"`)
	blocks, err := ResolveBlocks(prog)
	require.NoError(t, err)

	_, err = Generate(prog, blocks, &Analysis{}, 0)
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, NotImplemented, kind)
}

// genCheckedProgram builds a well-typed program mixing nested blocks with
// data-declaring operations.
func genCheckedProgram(t *rapid.T) string {
	body := genBlocks(t, 0, false)
	var parts []string
	for _, tok := range body {
		parts = append(parts, tok)
		if tok == "DO" && rapid.Bool().Draw(t, "data") {
			parts = append(parts, rapid.SampledFrom([]string{
				`"s" PUTS`,
				`'c' DROP`,
				`ARRAY(a, b) DROP`,
				`INPUT PUTS`,
				`2 3 POW DROP`,
			}).Draw(t, "snippet"))
		}
	}
	return "1 " + strings.Join(parts, " ")
}

// Every label a jump references is defined exactly once, and every data
// symbol used in .text is declared before .text.
func TestGenerateClosureProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := genCheckedProgram(t)
		res, err := Compile(src, Options{File: "t.stk"})
		if err != nil {
			t.Fatalf("%q: %v", src, err)
		}
		out := res.Assembly()
		if err := asm.Verify(out); err != nil {
			t.Fatalf("%q: %v\n%s", src, err, out)
		}
		text := out[strings.Index(out, "section .text"):]
		for _, sym := range res.Artifact.Symbols() {
			if strings.Contains(text, sym+":") {
				t.Fatalf("%q: data symbol %s defined in .text", src, sym)
			}
		}
	})
}
