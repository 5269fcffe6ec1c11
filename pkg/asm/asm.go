// Package asm builds the NASM text produced by the compiler and checks
// finished text for label and symbol consistency before it is handed to
// the external assembler.
package asm

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

var directives = map[string]bool{
	"SECTION": true,
	"GLOBAL":  true,
	"EXTERN":  true,
	"DEFAULT": true,
	"BITS":    true,
}

var sizeKeywords = map[string]bool{
	"byte":  true,
	"word":  true,
	"dword": true,
	"qword": true,
	"rel":   true,
}

var registers = func() map[string]bool {
	m := make(map[string]bool)
	for _, r := range []string{
		"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
		"eax", "ebx", "ecx", "edx", "esi", "edi", "ebp", "esp",
		"ax", "bx", "cx", "dx", "si", "di", "bp", "sp",
		"al", "bl", "cl", "dl", "sil", "dil", "bpl", "spl",
		"ah", "bh", "ch", "dh",
	} {
		m[r] = true
	}
	for i := 8; i <= 15; i++ {
		n := "r" + strconv.Itoa(i)
		m[n], m[n+"d"], m[n+"w"], m[n+"b"] = true, true, true, true
	}
	return m
}()

// Verifier checks NASM text in two passes: the first collects every label,
// the second resolves every symbol an instruction or data directive
// references.
type Verifier struct {
	labels map[string]labelInfo
}

type labelInfo struct {
	lineNo  int
	section Section
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewVerifier() *Verifier {
	return &Verifier{labels: make(map[string]labelInfo)}
}

// Verify reports the first duplicate label, undefined symbol, or data
// symbol referenced from .text before its declaration.
func Verify(code string) error {
	return NewVerifier().Verify(code)
}

func (v *Verifier) Verify(code string) error {
	lines := strings.Split(code, "\n")
	if err := v.pass1(lines); err != nil {
		return err
	}
	return v.pass2(lines)
}

// Labels returns the number of labels found by the last Verify.
func (v *Verifier) Labels() int {
	return len(v.labels)
}

func (v *Verifier) pass1(lines []string) error {
	section := Text
	scope := ""
	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}
		for _, lbl := range p.labels {
			key := qualify(lbl, scope)
			if !strings.HasPrefix(lbl, ".") {
				scope = lbl
			}
			if prev, exists := v.labels[key]; exists {
				return errors.Errorf("duplicate label '%s' on line %d (first defined on line %d)", key, lineNo, prev.lineNo)
			}
			v.labels[key] = labelInfo{lineNo: lineNo, section: section}
		}
		if p.mnemonic == "SECTION" {
			if section, err = parseSection(p, lineNo); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Verifier) pass2(lines []string) error {
	section := Text
	scope := ""
	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}
		for _, lbl := range p.labels {
			if !strings.HasPrefix(lbl, ".") {
				scope = lbl
			}
		}

		switch p.mnemonic {
		case "":
			continue
		case "SECTION":
			section, _ = parseSection(p, lineNo)
			continue
		case "EXTERN", "DEFAULT", "BITS":
			continue
		}

		for _, operand := range p.operands {
			for _, ref := range references(operand) {
				key := qualify(ref, scope)
				def, ok := v.labels[key]
				if !ok {
					return errors.Errorf("undefined symbol '%s' on line %d", key, lineNo)
				}
				if section == Text && def.section != Text && def.lineNo > lineNo {
					return errors.Errorf("symbol '%s' used on line %d is declared after use on line %d",
						key, lineNo, def.lineNo)
				}
			}
		}
	}
	return nil
}

func parseSection(p parsedLine, lineNo int) (Section, error) {
	if len(p.operands) != 1 {
		return Text, errors.Errorf("section expects exactly one operand on line %d", lineNo)
	}
	for i, name := range sectionNames {
		if strings.EqualFold(p.operands[0], name) {
			return Section(i), nil
		}
	}
	return Text, errors.Errorf("unknown section '%s' on line %d", p.operands[0], lineNo)
}

func qualify(label, scope string) string {
	if strings.HasPrefix(label, ".") {
		return scope + label
	}
	return label
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	fields := strings.Fields(line)
	if directives[strings.ToUpper(fields[0])] {
		p.mnemonic = strings.ToUpper(fields[0])
		p.operands = fields[1:]
		return p, nil
	}

	for {
		colon := indexUnquoted(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t") {
			break
		}
		if !isIdentifier(strings.TrimPrefix(beforeColon, ".")) {
			return p, errors.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	mnemonic, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		mnemonic, rest = line[:i], strings.TrimSpace(line[i+1:])
	}
	if !isIdentifier(mnemonic) {
		return p, errors.Errorf("invalid instruction '%s' on line %d", mnemonic, lineNo)
	}
	p.mnemonic = strings.ToUpper(mnemonic)
	if rest != "" {
		p.operands = splitOperands(rest)
	}
	return p, nil
}

// stripComments removes a ';' comment that is not inside a quoted string.
func stripComments(line string) string {
	if i := indexUnquoted(line, ';'); i >= 0 {
		return line[:i]
	}
	return line
}

func indexUnquoted(s string, c byte) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		switch {
		case quote != 0:
			if s[i] == quote {
				quote = 0
			}
		case s[i] == '"' || s[i] == '\'' || s[i] == '`':
			quote = s[i]
		case s[i] == c:
			return i
		}
	}
	return -1
}

func splitOperands(s string) []string {
	var out []string
	for {
		i := indexUnquoted(s, ',')
		if i < 0 {
			break
		}
		out = append(out, strings.TrimSpace(s[:i]))
		s = s[i+1:]
	}
	return append(out, strings.TrimSpace(s))
}

// references returns the symbols named by an operand, skipping quoted
// text, numbers, registers and size keywords.
func references(operand string) []string {
	var sb strings.Builder
	var quote byte
	for i := 0; i < len(operand); i++ {
		c := operand[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			sb.WriteByte(' ')
		case c == '"' || c == '\'' || c == '`':
			quote = c
			sb.WriteByte(' ')
		case c == '[' || c == ']' || c == '+' || c == '-' || c == '*':
			sb.WriteByte(' ')
		default:
			sb.WriteByte(c)
		}
	}

	var refs []string
	for _, f := range strings.Fields(sb.String()) {
		lower := strings.ToLower(f)
		if registers[lower] || sizeKeywords[lower] {
			continue
		}
		if isIdentifier(strings.TrimPrefix(f, ".")) {
			refs = append(refs, f)
		}
	}
	return refs
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}
