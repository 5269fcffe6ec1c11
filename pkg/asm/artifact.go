package asm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Section is one of the three fixed regions of the output.
type Section int

const (
	Rodata Section = iota
	Bss
	Text
)

var sectionNames = [...]string{
	Rodata: ".rodata",
	Bss:    ".bss",
	Text:   ".text",
}

func (s Section) String() string {
	if s >= 0 && int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return fmt.Sprintf("Section(%d)", int(s))
}

// Artifact accumulates NASM source. Each section has its own buffer, so a
// data declaration discovered while emitting code is appended to its
// section without touching what was already written. The sections are
// joined once, in String or WriteTo.
type Artifact struct {
	sections [len(sectionNames)]strings.Builder
	symbols  map[string]Section
	order    []string
}

// NewArtifact returns an empty artifact.
func NewArtifact() *Artifact {
	return &Artifact{symbols: make(map[string]Section)}
}

func (a *Artifact) declare(sym string, s Section) error {
	if !isIdentifier(sym) {
		return errors.Errorf("invalid symbol name '%s'", sym)
	}
	if prev, ok := a.sectionOf(sym); ok {
		return errors.Errorf("symbol '%s' already declared in %s", sym, prev)
	}
	a.symbols[sym] = s
	a.order = append(a.order, sym)
	return nil
}

func (a *Artifact) write(s Section, format string, args ...any) {
	fmt.Fprintf(&a.sections[s], format+"\n", args...)
}

// DeclareString adds data bytes to .rodata under sym, without terminator.
func (a *Artifact) DeclareString(sym string, data []byte) error {
	if err := a.declare(sym, Rodata); err != nil {
		return err
	}
	a.write(Rodata, "%s: db %s", sym, FormatBytes(data))
	return nil
}

// DeclareCString adds data to .rodata under sym followed by a NUL byte.
func (a *Artifact) DeclareCString(sym string, data []byte) error {
	if err := a.declare(sym, Rodata); err != nil {
		return err
	}
	a.write(Rodata, "%s: db %s", sym, FormatBytes(append(append([]byte{}, data...), 0)))
	return nil
}

// DeclareArray adds each element as a C string named <sym>_<i>, then a
// pointer table sym whose last entry is 0.
func (a *Artifact) DeclareArray(sym string, elems [][]byte) error {
	if err := a.declare(sym, Rodata); err != nil {
		return err
	}
	refs := make([]string, 0, len(elems)+1)
	for i, e := range elems {
		name := sym + "_" + strconv.Itoa(i)
		if err := a.DeclareCString(name, e); err != nil {
			return err
		}
		refs = append(refs, name)
	}
	refs = append(refs, "0")
	a.write(Rodata, "%s: dq %s", sym, strings.Join(refs, ", "))
	return nil
}

// ReserveBuffer adds an uninitialised area of size bytes to .bss.
func (a *Artifact) ReserveBuffer(sym string, size int) error {
	if size <= 0 {
		return errors.Errorf("buffer '%s' must have a positive size, got %d", sym, size)
	}
	if err := a.declare(sym, Bss); err != nil {
		return err
	}
	a.write(Bss, "%s: resb %d", sym, size)
	return nil
}

// Global exports sym from the object file.
func (a *Artifact) Global(sym string) {
	a.write(Text, "global %s", sym)
}

// Label starts a new label in .text.
func (a *Artifact) Label(name string) {
	a.write(Text, "%s:", name)
}

// Instr appends one instruction to .text.
func (a *Artifact) Instr(format string, args ...any) {
	a.write(Text, "    "+format, args...)
}

// Comment appends a comment line to .text.
func (a *Artifact) Comment(format string, args ...any) {
	a.write(Text, "    ; "+format, args...)
}

// Blank appends an empty line to .text.
func (a *Artifact) Blank() {
	a.sections[Text].WriteByte('\n')
}

// sectionOf reports the section a symbol was declared in.
func (a *Artifact) sectionOf(sym string) (Section, bool) {
	s, ok := a.symbols[sym]
	return s, ok
}

// Symbols lists the declared data symbols in declaration order.
func (a *Artifact) Symbols() []string {
	return append([]string(nil), a.order...)
}

// Len returns the length of the joined text.
func (a *Artifact) Len() int {
	n := 0
	for i := range a.sections {
		n += len("section ") + len(sectionNames[i]) + 1 + a.sections[i].Len()
	}
	return n
}

// String joins the sections in their fixed order.
func (a *Artifact) String() string {
	var sb strings.Builder
	sb.Grow(a.Len())
	_, _ = a.WriteTo(&sb)
	return sb.String()
}

// WriteTo writes the joined sections to w.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i := range a.sections {
		n, err := io.WriteString(w, "section "+sectionNames[i]+"\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
		n, err = io.WriteString(w, a.sections[i].String())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// FormatBytes renders data as NASM db operands: printable runs become
// double-quoted strings, everything else decimal bytes. Empty data renders
// as a single 0.
func FormatBytes(data []byte) string {
	if len(data) == 0 {
		return "0"
	}
	var parts []string
	var run []byte
	flush := func() {
		if len(run) > 0 {
			parts = append(parts, `"`+string(run)+`"`)
			run = run[:0]
		}
	}
	for _, b := range data {
		if b >= 0x20 && b < 0x7f && b != '"' {
			run = append(run, b)
			continue
		}
		flush()
		parts = append(parts, strconv.Itoa(int(b)))
	}
	flush()
	return strings.Join(parts, ", ")
}
