package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

// ValueType is the coarse type of an abstract stack entry.
type ValueType int

const (
	TypeInt ValueType = iota
	TypePtr           // pointer into a data symbol
)

// Value is one entry of the abstract stack. Known integers carry their
// folded value.
type Value struct {
	Type   ValueType
	Symbol string // TypePtr only
	Known  bool
	Int    int64
}

func intValue() Value { return Value{Type: TypeInt} }

func knownInt(v int64) Value { return Value{Type: TypeInt, Known: true, Int: v} }

func ptrValue(sym string) Value { return Value{Type: TypePtr, Symbol: sym} }

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (v Value) String() string {
	switch {
	case v.Type == TypePtr:
		return "*buf " + v.Symbol
	case v.Known:
		return strconv.FormatInt(v.Int, 10)
	default:
		return "INT"
	}
}

// Pattern is an operand precondition.
type Pattern int

const (
	PatInt Pattern = iota
	PatPtr
	PatAny
)

func (p Pattern) String() string {
	switch p {
	case PatInt:
		return "INT"
	case PatPtr:
		return "*buf"
	default:
		return "ANY"
	}
}

// Match reports whether v satisfies p.
func (p Pattern) Match(v Value) bool {
	switch p {
	case PatInt:
		return v.Type == TypeInt
	case PatPtr:
		return v.Type == TypePtr
	default:
		return true
	}
}

// StaticKind is the kind of data an operation needs declared.
type StaticKind int

const (
	StaticString StaticKind = iota
	StaticCString
	StaticArray
	StaticBuffer
)

// Static is a pending data declaration registered by the checker and
// consumed by the code generator.
type Static struct {
	Op   Op
	Kind StaticKind
}

// Analysis is the result of a successful check.
type Analysis struct {
	Stack   []Value  // abstract stack after the last operation
	Statics []Static // in discovery order

	byIndex map[int]int // operation index -> position in Statics
}

// StaticFor returns the declaration registered for the operation at index.
func (a *Analysis) StaticFor(index int) (Static, bool) {
	if a.byIndex == nil {
		a.byIndex = make(map[int]int, len(a.Statics))
		for i, s := range a.Statics {
			a.byIndex[s.Op.Index] = i
		}
	}
	i, ok := a.byIndex[index]
	if !ok {
		return Static{}, false
	}
	return a.Statics[i], true
}

// Checker simulates a program over an abstract value stack. A Checker is
// used for a single run; Check creates a fresh one every time.
type Checker struct {
	stack   []Value
	statics []Static
}

// Check type-checks prog and returns the final abstract stack.
func Check(prog *Program) (*Analysis, error) {
	c := &Checker{}
	for _, op := range prog.Ops {
		if err := c.step(op); err != nil {
			return nil, err
		}
		if glog.V(5) {
			glog.Infof("check %-24s stack=%s", op, c.describe())
		}
	}
	if glog.V(3) {
		glog.Infof("check: %d operations, final depth %d, %d statics", len(prog.Ops), len(c.stack), len(c.statics))
	}
	return &Analysis{Stack: c.stack, Statics: c.statics}, nil
}

func (c *Checker) describe() string {
	parts := make([]string, len(c.stack))
	for i, v := range c.stack {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (c *Checker) push(vs ...Value) {
	c.stack = append(c.stack, vs...)
}

// require fails with StackUnderflow unless the stack holds at least n values.
func (c *Checker) require(op Op, n int) error {
	if len(c.stack) < n {
		return errorAt(StackUnderflow, op.Token.Loc,
			"%s requires %d values on the stack, found %d", opName(op), n, len(c.stack))
	}
	return nil
}

// pop removes the top value and checks it against p.
func (c *Checker) pop(op Op, p Pattern) (Value, error) {
	if err := c.require(op, 1); err != nil {
		return Value{}, err
	}
	v := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	if !p.Match(v) {
		return Value{}, errorAt(OperandTypeMismatch, op.Token.Loc,
			"%s expected %s, got %s", opName(op), p, v)
	}
	return v, nil
}

// popN pops len(ps) values; ps[0] is matched against the top of the stack.
func (c *Checker) popN(op Op, ps ...Pattern) ([]Value, error) {
	if err := c.require(op, len(ps)); err != nil {
		return nil, err
	}
	vs := make([]Value, len(ps))
	for i, p := range ps {
		v, err := c.pop(op, p)
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	return vs, nil
}

func (c *Checker) register(op Op, kind StaticKind) {
	c.statics = append(c.statics, Static{Op: op, Kind: kind})
}

func opName(op Op) string {
	if op.Kind == OpIntrinsic {
		return op.Intrinsic.String()
	}
	return op.Kind.String()
}

func (c *Checker) step(op Op) error {
	switch op.Kind {
	case OpIf, OpElif, OpWhile:
		if err := c.require(op, 1); err != nil {
			return err
		}
		c.push(c.stack[len(c.stack)-1])
		return nil
	case OpDo:
		_, err := c.popN(op, PatAny, PatAny)
		return err
	case OpBreak, OpDone, OpElse, OpEndif, OpEnd:
		return nil
	case OpPushInt:
		c.push(knownInt(op.IntValue()))
		return nil
	case OpPushStr:
		b, err := Unquote(op.Token.Value)
		if err != nil {
			return errorAt(InvalidLiteral, op.Token.Loc, "%v", err)
		}
		c.register(op, StaticString)
		c.push(knownInt(int64(len(b))), ptrValue(op.Symbol()))
		return nil
	case OpPushCStr:
		c.register(op, StaticCString)
		c.push(ptrValue(op.Symbol()))
		return nil
	case OpPushArray:
		c.register(op, StaticArray)
		c.push(ptrValue(op.Symbol()))
		return nil
	case OpIntrinsic:
		return c.intrinsic(op)
	}
	return errorAt(NotImplemented, op.Token.Loc, "type check for %s is not implemented", op.Kind)
}

func (c *Checker) intrinsic(op Op) error {
	switch op.Intrinsic {
	case PLUS, MINUS, MUL, POW, EQ, NE, GT, GE, LT, LE, AND, OR:
		vs, err := c.popN(op, PatInt, PatInt)
		if err != nil {
			return err
		}
		b, a := vs[0], vs[1]
		if a.Known && b.Known {
			c.push(knownInt(foldBinary(op.Intrinsic, a.Int, b.Int)))
		} else {
			c.push(intValue())
		}
		return nil

	case DIV, MOD, DIVMOD:
		vs, err := c.popN(op, PatInt, PatInt)
		if err != nil {
			return err
		}
		b, a := vs[0], vs[1]
		if !a.Known || !b.Known {
			c.push(intValue())
			if op.Intrinsic == DIVMOD {
				c.push(intValue())
			}
			return nil
		}
		if b.Int == 0 {
			return errorAt(DivisionByZero, op.Token.Loc, "%s of %d by zero", op.Intrinsic, a.Int)
		}
		switch op.Intrinsic {
		case DIV:
			c.push(knownInt(a.Int / b.Int))
		case MOD:
			c.push(knownInt(a.Int % b.Int))
		default:
			c.push(knownInt(a.Int/b.Int), knownInt(a.Int%b.Int))
		}
		return nil

	case DUP:
		vs, err := c.popN(op, PatAny)
		if err != nil {
			return err
		}
		c.push(vs[0], vs[0])
		return nil
	case DUP2:
		vs, err := c.popN(op, PatAny, PatAny)
		if err != nil {
			return err
		}
		b, a := vs[0], vs[1]
		c.push(a, b, a, b)
		return nil
	case DROP:
		_, err := c.popN(op, PatAny)
		return err
	case OVER:
		vs, err := c.popN(op, PatAny, PatAny)
		if err != nil {
			return err
		}
		b, a := vs[0], vs[1]
		c.push(a, b, a)
		return nil
	case ROT:
		vs, err := c.popN(op, PatAny, PatAny, PatAny)
		if err != nil {
			return err
		}
		cc, b, a := vs[0], vs[1], vs[2]
		c.push(b, cc, a)
		return nil
	case SWAP:
		vs, err := c.popN(op, PatAny, PatAny)
		if err != nil {
			return err
		}
		c.push(vs[0], vs[1])
		return nil
	case SWAP2:
		vs, err := c.popN(op, PatAny, PatAny, PatAny, PatAny)
		if err != nil {
			return err
		}
		d, cc, b, a := vs[0], vs[1], vs[2], vs[3]
		c.push(cc, d, a, b)
		return nil
	case GET_NTH:
		return c.getNth(op)

	case PRINT_INT, EXIT:
		_, err := c.popN(op, PatInt)
		return err
	case PUTS:
		_, err := c.popN(op, PatPtr, PatInt)
		return err
	case INPUT:
		c.register(op, StaticBuffer)
		c.push(intValue(), ptrValue(op.Symbol()))
		return nil
	case ARGC:
		c.push(intValue())
		return nil
	case ARGV:
		c.push(ptrValue("argv"))
		return nil

	case SYSCALL0, SYSCALL1, SYSCALL2, SYSCALL3, SYSCALL4, SYSCALL5, SYSCALL6:
		n, _ := op.Intrinsic.SyscallArgs()
		ps := make([]Pattern, n+1)
		ps[0] = PatInt
		for i := 1; i <= n; i++ {
			ps[i] = PatAny
		}
		if _, err := c.popN(op, ps...); err != nil {
			return err
		}
		c.push(intValue())
		return nil
	}
	return errorAt(NotImplemented, op.Token.Loc, "type check for %s is not implemented", op.Intrinsic)
}

// getNth copies the value n positions below the top, where n is the
// literal popped from the top. 1 GET_NTH behaves like OVER.
func (c *Checker) getNth(op Op) error {
	nv, err := c.pop(op, PatInt)
	if err != nil {
		return err
	}
	if !nv.Known || nv.Int < 1 {
		return errorAt(StackIndexError, op.Token.Loc,
			"GET_NTH index must be a positive integer literal, got %s", nv)
	}
	if int64(len(c.stack)) <= nv.Int {
		return errorAt(StackIndexError, op.Token.Loc,
			"NOT_ENOUGH_ELEMENTS_IN_STACK: GET_NTH %d needs %d values below the index, found %d",
			nv.Int, nv.Int+1, len(c.stack))
	}
	c.push(c.stack[len(c.stack)-1-int(nv.Int)])
	return nil
}

// foldBinary evaluates a non-dividing binary primitive on constants with
// 64-bit wraparound, matching the generated code.
func foldBinary(in Intrinsic, a, b int64) int64 {
	switch in {
	case PLUS:
		return a + b
	case MINUS:
		return a - b
	case MUL:
		return a * b
	case POW:
		return ipow(a, b)
	case EQ:
		return boolToInt(a == b)
	case NE:
		return boolToInt(a != b)
	case GT:
		return boolToInt(a > b)
	case GE:
		return boolToInt(a >= b)
	case LT:
		return boolToInt(a < b)
	case LE:
		return boolToInt(a <= b)
	case AND:
		return a & b
	case OR:
		return a | b
	}
	panic(fmt.Sprintf("foldBinary: unexpected intrinsic %s", in))
}

// ipow returns base^exp modulo 2^64, or 1 when exp <= 0.
func ipow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}
