package compiler

import (
	"fmt"
	"strconv"

	"github.com/golang/glog"
)

// OpKind tags an operation.
type OpKind int

const (
	// Structural keywords
	OpBreak OpKind = iota
	OpDo
	OpDone
	OpElif
	OpElse
	OpEnd
	OpEndif
	OpIf
	OpWhile

	// Literal pushes
	OpPushInt
	OpPushStr
	OpPushCStr
	OpPushArray

	OpIntrinsic
)

var opKindNames = [...]string{
	OpBreak:     "BREAK",
	OpDo:        "DO",
	OpDone:      "DONE",
	OpElif:      "ELIF",
	OpElse:      "ELSE",
	OpEnd:       "END",
	OpEndif:     "ENDIF",
	OpIf:        "IF",
	OpWhile:     "WHILE",
	OpPushInt:   "PUSH_INT",
	OpPushStr:   "PUSH_STR",
	OpPushCStr:  "PUSH_CSTR",
	OpPushArray: "PUSH_ARRAY",
	OpIntrinsic: "INTRINSIC",
}

func (k OpKind) String() string {
	if int(k) >= 0 && int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// IsStructural reports whether k is a control-flow keyword.
func (k OpKind) IsStructural() bool {
	return k <= OpWhile
}

var structuralByKeyword = map[string]OpKind{
	"BREAK": OpBreak,
	"DO":    OpDo,
	"DONE":  OpDone,
	"ELIF":  OpElif,
	"ELSE":  OpElse,
	"END":   OpEnd,
	"ENDIF": OpEndif,
	"IF":    OpIf,
	"WHILE": OpWhile,
}

// Op is one operation of the flat program. Index is its position in the
// program and is unique; generated labels and data symbols derive from it.
type Op struct {
	Index     int
	Kind      OpKind
	Intrinsic Intrinsic // only meaningful when Kind == OpIntrinsic
	Token     Token
}

func (op Op) String() string {
	if op.Kind == OpIntrinsic {
		return fmt.Sprintf("%d %s", op.Index, op.Intrinsic)
	}
	return fmt.Sprintf("%d %s %s", op.Index, op.Kind, op.Token.Value)
}

// Label is the assembly label of a structural operation, e.g. WHILE_4.
func (op Op) Label() string {
	return fmt.Sprintf("%s_%d", op.Kind, op.Index)
}

// Symbol is the data symbol owned by the operation, if any: str_<i>,
// cstr_<i>, array_<i> or input_<i>.
func (op Op) Symbol() string {
	switch {
	case op.Kind == OpPushStr:
		return fmt.Sprintf("str_%d", op.Index)
	case op.Kind == OpPushCStr:
		return fmt.Sprintf("cstr_%d", op.Index)
	case op.Kind == OpPushArray:
		return fmt.Sprintf("array_%d", op.Index)
	case op.Kind == OpIntrinsic && op.Intrinsic == INPUT:
		return fmt.Sprintf("input_%d", op.Index)
	}
	return ""
}

// Program is the ordered operation sequence. Nesting of conditionals and
// loops is implicit in the order.
type Program struct {
	Ops []Op
}

// NewProgram maps every token to an operation.
func NewProgram(tokens []Token) (*Program, error) {
	prog := &Program{Ops: make([]Op, 0, len(tokens))}
	for _, tok := range tokens {
		op := Op{Index: len(prog.Ops), Token: tok}
		switch tok.Type {
		case KEYWORD:
			kind, ok := structuralByKeyword[tok.Value]
			if !ok {
				return nil, errorAt(UnknownOperation, tok.Loc, "unexpected keyword %s", tok.Value)
			}
			op.Kind = kind
		case INTEGER, BOOLEAN:
			if _, err := strconv.ParseInt(tok.Value, 10, 64); err != nil {
				return nil, errorAt(InvalidLiteral, tok.Loc, "invalid integer %s", tok.Value)
			}
			op.Kind = OpPushInt
		case STRING:
			op.Kind = OpPushStr
		case CSTRING:
			op.Kind = OpPushCStr
		case ARRAY:
			op.Kind = OpPushArray
		case WORD:
			in, ok := LookupIntrinsic(tok.Value)
			if !ok {
				return nil, errorAt(UnknownOperation, tok.Loc, "unknown operation %s", tok.Value)
			}
			op.Kind = OpIntrinsic
			op.Intrinsic = in
		default:
			return nil, errorAt(NotImplemented, tok.Loc, "token type %s", tok.Type)
		}
		prog.Ops = append(prog.Ops, op)
	}
	if glog.V(3) {
		glog.Infof("program: %d operations", len(prog.Ops))
	}
	return prog, nil
}

// IntValue returns the literal of a PUSH_INT operation.
func (op Op) IntValue() int64 {
	v, _ := strconv.ParseInt(op.Token.Value, 10, 64)
	return v
}
