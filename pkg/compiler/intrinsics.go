package compiler

import "fmt"

// Intrinsic identifies a primitive, non-structural operation.
type Intrinsic int

const (
	PLUS Intrinsic = iota
	MINUS
	MUL
	DIV
	MOD
	DIVMOD
	POW
	EQ
	NE
	GT
	GE
	LT
	LE
	AND
	OR
	DUP
	DUP2
	DROP
	OVER
	ROT
	SWAP
	SWAP2
	GET_NTH
	PRINT_INT
	PUTS
	INPUT
	EXIT
	ARGC
	ARGV
	SYSCALL0
	SYSCALL1
	SYSCALL2
	SYSCALL3
	SYSCALL4
	SYSCALL5
	SYSCALL6

	numIntrinsics
)

var intrinsicNames = [...]string{
	PLUS:      "PLUS",
	MINUS:     "MINUS",
	MUL:       "MUL",
	DIV:       "DIV",
	MOD:       "MOD",
	DIVMOD:    "DIVMOD",
	POW:       "POW",
	EQ:        "EQ",
	NE:        "NE",
	GT:        "GT",
	GE:        "GE",
	LT:        "LT",
	LE:        "LE",
	AND:       "AND",
	OR:        "OR",
	DUP:       "DUP",
	DUP2:      "DUP2",
	DROP:      "DROP",
	OVER:      "OVER",
	ROT:       "ROT",
	SWAP:      "SWAP",
	SWAP2:     "SWAP2",
	GET_NTH:   "GET_NTH",
	PRINT_INT: "PRINT_INT",
	PUTS:      "PUTS",
	INPUT:     "INPUT",
	EXIT:      "EXIT",
	ARGC:      "ARGC",
	ARGV:      "ARGV",
	SYSCALL0:  "SYSCALL0",
	SYSCALL1:  "SYSCALL1",
	SYSCALL2:  "SYSCALL2",
	SYSCALL3:  "SYSCALL3",
	SYSCALL4:  "SYSCALL4",
	SYSCALL5:  "SYSCALL5",
	SYSCALL6:  "SYSCALL6",
}

// Fails to compile if the table is shorter than the enumeration.
var _ = intrinsicNames[numIntrinsics-1]

var intrinsicByName = func() map[string]Intrinsic {
	m := make(map[string]Intrinsic, numIntrinsics)
	for i, name := range intrinsicNames {
		m[name] = Intrinsic(i)
	}
	return m
}()

func (in Intrinsic) String() string {
	if in >= 0 && in < numIntrinsics {
		return intrinsicNames[in]
	}
	return fmt.Sprintf("Intrinsic(%d)", int(in))
}

// LookupIntrinsic resolves an upper-case primitive name.
func LookupIntrinsic(name string) (Intrinsic, bool) {
	in, ok := intrinsicByName[name]
	return in, ok
}

// Intrinsics lists every primitive in declaration order.
func Intrinsics() []Intrinsic {
	all := make([]Intrinsic, numIntrinsics)
	for i := range all {
		all[i] = Intrinsic(i)
	}
	return all
}

// SyscallArgs returns the argument count of a SYSCALLn primitive.
func (in Intrinsic) SyscallArgs() (int, bool) {
	if in >= SYSCALL0 && in <= SYSCALL6 {
		return int(in - SYSCALL0), true
	}
	return 0, false
}
