package compiler

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/glog"

	"stackc/pkg/asm"
)

// DefaultInputBufferSize is the size of each INPUT receive buffer.
const DefaultInputBufferSize = 256

// argsPtr holds the initial rsp, from which ARGC and ARGV are read.
const argsPtr = "args_ptr"

var syscallRegisters = [...]string{"rdi", "rsi", "rdx", "r10", "r8", "r9"}

var setcc = map[Intrinsic]string{
	EQ: "sete",
	NE: "setne",
	GT: "setg",
	GE: "setge",
	LT: "setl",
	LE: "setle",
}

// CodeGen walks a checked and resolved program and emits x86-64 NASM.
type CodeGen struct {
	prog     *Program
	blocks   *Blocks
	analysis *Analysis
	bufSize  int
	out      *asm.Artifact
	emitted  int
}

func newCodeGen(prog *Program, blocks *Blocks, analysis *Analysis, bufSize int) *CodeGen {
	if bufSize <= 0 {
		bufSize = DefaultInputBufferSize
	}
	return &CodeGen{
		prog:     prog,
		blocks:   blocks,
		analysis: analysis,
		bufSize:  bufSize,
		out:      asm.NewArtifact(),
	}
}

// Generate emits the program. prog must have passed Check (which produced
// analysis) and ResolveBlocks (which produced blocks).
func Generate(prog *Program, blocks *Blocks, analysis *Analysis, inputBufferSize int) (*asm.Artifact, error) {
	cg := newCodeGen(prog, blocks, analysis, inputBufferSize)
	if err := cg.preamble(); err != nil {
		return nil, err
	}
	for _, op := range prog.Ops {
		if err := cg.emit(op); err != nil {
			return nil, err
		}
	}
	cg.epilogue()
	if glog.V(3) {
		glog.Infof("codegen: %d operations, %d data symbols, %d bytes", cg.emitted, len(cg.out.Symbols()), cg.out.Len())
	}
	return cg.out, nil
}

func (cg *CodeGen) line(format string, args ...any) {
	cg.out.Instr(format, args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.out.Comment(format, args...)
}

func (cg *CodeGen) preamble() error {
	if err := cg.out.ReserveBuffer(argsPtr, 8); err != nil {
		return err
	}

	cg.out.Global("_start")
	cg.out.Blank()

	// print_int writes rdi as a signed decimal followed by a newline.
	cg.out.Label("print_int")
	cg.line("sub rsp, 40")
	cg.line("mov rax, rdi")
	cg.line("lea r8, [rsp+39]")
	cg.line("mov byte [r8], 10")
	cg.line("mov ecx, 1")
	cg.line("mov r9, rdi")
	cg.line("test rax, rax")
	cg.line("jns .digits")
	cg.line("neg rax")
	cg.out.Label(".digits")
	cg.line("xor edx, edx")
	cg.line("mov r10, 10")
	cg.line("div r10")
	cg.line("add dl, '0'")
	cg.line("dec r8")
	cg.line("mov [r8], dl")
	cg.line("inc rcx")
	cg.line("test rax, rax")
	cg.line("jnz .digits")
	cg.line("test r9, r9")
	cg.line("jns .write")
	cg.line("dec r8")
	cg.line("mov byte [r8], '-'")
	cg.line("inc rcx")
	cg.out.Label(".write")
	cg.line("mov eax, 1")
	cg.line("mov edi, 1")
	cg.line("mov rsi, r8")
	cg.line("mov rdx, rcx")
	cg.line("syscall")
	cg.line("add rsp, 40")
	cg.line("ret")
	cg.out.Blank()

	cg.out.Label("_start")
	cg.line("mov [%s], rsp", argsPtr)
	return nil
}

func (cg *CodeGen) epilogue() {
	cg.comment("exit(0)")
	cg.line("mov eax, 60")
	cg.line("xor edi, edi")
	cg.line("syscall")
}

// partner returns the label of the operation paired with op.
func (cg *CodeGen) partner(op Op) (string, error) {
	idx, ok := cg.blocks.Target(op.Index)
	if !ok {
		return "", errorAt(UnbalancedBlock, op.Token.Loc, "%s has no matching block partner", op.Kind)
	}
	return cg.prog.Ops[idx].Label(), nil
}

func (cg *CodeGen) emit(op Op) error {
	cg.comment("%d %s", op.Index, strings.Join(strings.Fields(op.Token.Value), " "))
	if err := cg.declare(op); err != nil {
		return err
	}
	cg.emitted++

	switch op.Kind {
	case OpIf:
		cg.line("push qword [rsp]")
	case OpWhile:
		cg.out.Label(op.Label())
		cg.line("push qword [rsp]")
	case OpElif:
		endif, err := cg.partner(op)
		if err != nil {
			return err
		}
		cg.line("jmp %s", endif)
		cg.out.Label(op.Label())
		cg.line("push qword [rsp]")
	case OpElse:
		endif, err := cg.partner(op)
		if err != nil {
			return err
		}
		cg.line("jmp %s", endif)
		cg.out.Label(op.Label())
	case OpEndif:
		cg.out.Label(op.Label())
	case OpDo:
		target, err := cg.partner(op)
		if err != nil {
			return err
		}
		cg.line("pop rax")
		cg.line("add rsp, 8")
		cg.line("test rax, rax")
		cg.line("jz %s", target)
	case OpDone:
		while, err := cg.partner(op)
		if err != nil {
			return err
		}
		cg.line("jmp %s", while)
		cg.out.Label(op.Label())
	case OpBreak:
		done, err := cg.partner(op)
		if err != nil {
			return err
		}
		cg.line("jmp %s", done)

	case OpPushInt:
		v := op.IntValue()
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			cg.line("push %d", v)
		} else {
			cg.line("mov rax, %d", v)
			cg.line("push rax")
		}
	case OpPushStr:
		s, err := Unquote(op.Token.Value)
		if err != nil {
			return errorAt(InvalidLiteral, op.Token.Loc, "%v", err)
		}
		cg.line("push %d", len(s))
		cg.pushAddress(op.Symbol())
	case OpPushCStr, OpPushArray:
		cg.pushAddress(op.Symbol())
	case OpIntrinsic:
		return cg.intrinsic(op)
	default:
		return errorAt(NotImplemented, op.Token.Loc, "code generation for %s is not implemented", op.Kind)
	}
	return nil
}

func (cg *CodeGen) pushAddress(sym string) {
	cg.line("mov rax, %s", sym)
	cg.line("push rax")
}

// declare adds the data the checker registered for op, if any.
func (cg *CodeGen) declare(op Op) error {
	sym := op.Symbol()
	if sym == "" {
		return nil
	}
	st, ok := cg.analysis.StaticFor(op.Index)
	if !ok {
		return errorAt(NotImplemented, op.Token.Loc, "no data declaration registered for %s", sym)
	}

	var err error
	switch st.Kind {
	case StaticString, StaticCString:
		var data []byte
		if data, err = Unquote(op.Token.Value); err != nil {
			return errorAt(InvalidLiteral, op.Token.Loc, "%v", err)
		}
		if st.Kind == StaticString {
			err = cg.out.DeclareString(sym, data)
		} else {
			err = cg.out.DeclareCString(sym, data)
		}
	case StaticArray:
		var elems [][]byte
		if elems, err = ArrayElements(op.Token.Value); err != nil {
			return errorAt(InvalidLiteral, op.Token.Loc, "%v", err)
		}
		err = cg.out.DeclareArray(sym, elems)
	case StaticBuffer:
		err = cg.out.ReserveBuffer(sym, cg.bufSize)
	default:
		return errorAt(NotImplemented, op.Token.Loc, "unknown data kind %d", st.Kind)
	}
	if err != nil {
		return errorAt(NotImplemented, op.Token.Loc, "%v", err)
	}
	if glog.V(5) {
		glog.Infof("declare %s for %s", sym, op)
	}
	return nil
}

func (cg *CodeGen) binary(instr string) {
	cg.line("pop rbx")
	cg.line("pop rax")
	cg.line("%s rax, rbx", instr)
	cg.line("push rax")
}

func (cg *CodeGen) intrinsic(op Op) error {
	switch in := op.Intrinsic; in {
	case PLUS:
		cg.binary("add")
	case MINUS:
		cg.binary("sub")
	case MUL:
		cg.binary("imul")
	case AND:
		cg.binary("and")
	case OR:
		cg.binary("or")

	case DIV, MOD, DIVMOD:
		cg.line("pop rbx")
		cg.line("pop rax")
		cg.line("cqo")
		cg.line("idiv rbx")
		switch in {
		case DIV:
			cg.line("push rax")
		case MOD:
			cg.line("push rdx")
		default:
			cg.line("push rax")
			cg.line("push rdx")
		}

	case POW:
		loop := fmt.Sprintf("POW_%d_loop", op.Index)
		done := fmt.Sprintf("POW_%d_done", op.Index)
		cg.line("pop rcx")
		cg.line("pop rbx")
		cg.line("mov eax, 1")
		cg.out.Label(loop)
		cg.line("test rcx, rcx")
		cg.line("jle %s", done)
		cg.line("imul rax, rbx")
		cg.line("dec rcx")
		cg.line("jmp %s", loop)
		cg.out.Label(done)
		cg.line("push rax")

	case EQ, NE, GT, GE, LT, LE:
		cg.line("pop rbx")
		cg.line("pop rax")
		cg.line("xor ecx, ecx")
		cg.line("cmp rax, rbx")
		cg.line("%s cl", setcc[in])
		cg.line("push rcx")

	case DUP:
		cg.line("push qword [rsp]")
	case DUP2:
		cg.line("push qword [rsp+8]")
		cg.line("push qword [rsp+8]")
	case DROP:
		cg.line("add rsp, 8")
	case OVER:
		cg.line("push qword [rsp+8]")
	case ROT:
		cg.line("pop rcx")
		cg.line("pop rbx")
		cg.line("pop rax")
		cg.line("push rbx")
		cg.line("push rcx")
		cg.line("push rax")
	case SWAP:
		cg.line("pop rax")
		cg.line("pop rbx")
		cg.line("push rax")
		cg.line("push rbx")
	case SWAP2:
		cg.line("pop rdx")
		cg.line("pop rcx")
		cg.line("pop rbx")
		cg.line("pop rax")
		cg.line("push rcx")
		cg.line("push rdx")
		cg.line("push rax")
		cg.line("push rbx")
	case GET_NTH:
		cg.line("pop rax")
		cg.line("push qword [rsp+rax*8]")

	case PRINT_INT:
		cg.line("pop rdi")
		cg.line("call print_int")
	case PUTS:
		cg.line("pop rsi")
		cg.line("pop rdx")
		cg.line("mov eax, 1")
		cg.line("mov edi, 1")
		cg.line("syscall")
	case INPUT:
		sym := op.Symbol()
		cg.line("xor eax, eax")
		cg.line("xor edi, edi")
		cg.line("mov rsi, %s", sym)
		cg.line("mov edx, %d", cg.bufSize)
		cg.line("syscall")
		cg.line("push rax")
		cg.pushAddress(sym)
	case EXIT:
		cg.line("pop rdi")
		cg.line("mov eax, 60")
		cg.line("syscall")
	case ARGC:
		cg.line("mov rax, [%s]", argsPtr)
		cg.line("push qword [rax]")
	case ARGV:
		cg.line("mov rax, [%s]", argsPtr)
		cg.line("add rax, 8")
		cg.line("push rax")

	case SYSCALL0, SYSCALL1, SYSCALL2, SYSCALL3, SYSCALL4, SYSCALL5, SYSCALL6:
		n, _ := in.SyscallArgs()
		cg.line("pop rax")
		for i := n - 1; i >= 0; i-- {
			cg.line("pop %s", syscallRegisters[i])
		}
		cg.line("syscall")
		cg.line("push rax")

	default:
		return errorAt(NotImplemented, op.Token.Loc, "code generation for %s is not implemented", in)
	}
	return nil
}
