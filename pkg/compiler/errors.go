package compiler

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a fatal compile error.
type ErrorKind int

const (
	UnknownOperation ErrorKind = iota
	NotImplemented
	AmbiguousDo
	AmbiguousBreak
	StackUnderflow
	OperandTypeMismatch
	DivisionByZero
	StackIndexError
	InvalidLiteral
	RecursiveMacro
	UnterminatedMacro
	CircularInclude
	UnbalancedBlock
)

var errorKindNames = [...]string{
	UnknownOperation:    "UnknownOperation",
	NotImplemented:      "NotImplemented",
	AmbiguousDo:         "AmbiguousDo",
	AmbiguousBreak:      "AmbiguousBreak",
	StackUnderflow:      "StackUnderflow",
	OperandTypeMismatch: "OperandTypeMismatch",
	DivisionByZero:      "DivisionByZero",
	StackIndexError:     "StackIndexError",
	InvalidLiteral:      "InvalidLiteral",
	RecursiveMacro:      "RecursiveMacro",
	UnterminatedMacro:   "UnterminatedMacro",
	CircularInclude:     "CircularInclude",
	UnbalancedBlock:     "UnbalancedBlock",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a fatal compile error tied to the token that caused it.
type Error struct {
	Kind ErrorKind
	Msg  string
	Loc  Location
}

func (e *Error) Error() string {
	if e.Loc.File == "" && e.Loc.Row == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Loc, e.Kind, e.Msg)
}

func errorAt(kind ErrorKind, loc Location, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Loc: loc}
}

// KindOf reports the ErrorKind of err if it wraps a *Error.
func KindOf(err error) (ErrorKind, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind, true
	}
	return 0, false
}
