package compiler

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	file string
	src  []rune
	pos  int // index of the next rune to consume
	row  int // current 1-based source row
	col  int // current 1-based source column
}

func newLexer(file, src string) *Lexer {
	return &Lexer{file: file, src: []rune(src), row: 1, col: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.row++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) loc() Location {
	return Location{File: l.file, Row: l.row, Col: l.col}
}

func (l *Lexer) atComment() bool {
	return l.peek() == '/' && l.peek2() == '/'
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) {
		if unicode.IsSpace(l.peek()) {
			l.advance()
			continue
		}
		if l.atComment() {
			l.skipLineComment()
			continue
		}
		return
	}
}

// skipLineComment discards everything from "//" to end-of-line.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// hasArrayPrefix reports whether the input continues with "ARRAY(" in any case.
func (l *Lexer) hasArrayPrefix() bool {
	const prefix = "ARRAY("
	if l.pos+len(prefix) > len(l.src) {
		return false
	}
	return strings.EqualFold(string(l.src[l.pos:l.pos+len(prefix)]), prefix)
}

// scanQuoted collects a string or C-string literal including its quotes.
// The opening quote must still be at l.peek().
func (l *Lexer) scanQuoted() (string, error) {
	start := l.loc()
	begin := l.pos
	quote := l.advance()
	for l.pos < len(l.src) {
		r := l.peek()
		if r == '\n' {
			break
		}
		if r == '\\' {
			l.advance()
			if l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
			continue
		}
		l.advance()
		if r == quote {
			return string(l.src[begin:l.pos]), nil
		}
	}
	return "", errorAt(InvalidLiteral, start, "unterminated literal %s", string(l.src[begin:l.pos]))
}

// scanArray collects an ARRAY(...) literal. Parentheses inside quoted
// elements do not close the literal.
func (l *Lexer) scanArray() (string, error) {
	start := l.loc()
	begin := l.pos
	for i := 0; i < len("ARRAY("); i++ {
		l.advance()
	}
	for l.pos < len(l.src) {
		r := l.peek()
		switch r {
		case '"', '\'':
			if _, err := l.scanQuoted(); err != nil {
				return "", err
			}
			continue
		case ')':
			l.advance()
			return string(l.src[begin:l.pos]), nil
		}
		l.advance()
	}
	return "", errorAt(InvalidLiteral, start, "unterminated array literal")
}

// scanWord collects a maximal run of non-whitespace runes, stopping at a
// line comment.
func (l *Lexer) scanWord() string {
	begin := l.pos
	for l.pos < len(l.src) && !unicode.IsSpace(l.peek()) && !l.atComment() {
		l.advance()
	}
	return string(l.src[begin:l.pos])
}

// nextToken skips whitespace and comments and returns the next token. ok is
// false at end of input.
func (l *Lexer) nextToken() (tok Token, ok bool, err error) {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return Token{}, false, nil
	}

	loc := l.loc()
	var raw string
	switch {
	case l.hasArrayPrefix():
		raw, err = l.scanArray()
	case l.peek() == '"' || l.peek() == '\'':
		raw, err = l.scanQuoted()
	default:
		raw = l.scanWord()
	}
	if err != nil {
		return Token{}, false, err
	}

	tok, err = classify(raw, loc)
	return tok, err == nil, err
}

// classify assigns a TokenType to raw token text. First match wins:
// keyword, array, boolean, string, C-string, integer, word.
func classify(raw string, loc Location) (Token, error) {
	upper := strings.ToUpper(raw)

	if keywords[upper] || upper == kwMacro || upper == kwInclude {
		return Token{Type: KEYWORD, Value: upper, Loc: loc}, nil
	}

	if strings.HasPrefix(upper, "ARRAY(") && strings.HasSuffix(raw, ")") {
		if _, err := ArrayElements(raw); err != nil {
			return Token{}, errorAt(InvalidLiteral, loc, "%v", err)
		}
		return Token{Type: ARRAY, Value: raw, Loc: loc}, nil
	}

	switch upper {
	case "TRUE":
		return Token{Type: BOOLEAN, Value: "1", Loc: loc}, nil
	case "FALSE":
		return Token{Type: BOOLEAN, Value: "0", Loc: loc}, nil
	}

	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		if _, err := Unquote(raw); err != nil {
			return Token{}, errorAt(InvalidLiteral, loc, "%v", err)
		}
		return Token{Type: STRING, Value: raw, Loc: loc}, nil
	}

	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		if _, err := Unquote(raw); err != nil {
			return Token{}, errorAt(InvalidLiteral, loc, "%v", err)
		}
		return Token{Type: CSTRING, Value: raw, Loc: loc}, nil
	}

	if isIntegerText(raw) {
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return Token{}, errorAt(InvalidLiteral, loc, "integer literal %s out of range", raw)
		}
		return Token{Type: INTEGER, Value: raw, Loc: loc}, nil
	}

	if name, ok := operatorNames[raw]; ok {
		return Token{Type: WORD, Value: name, Loc: loc}, nil
	}
	return Token{Type: WORD, Value: upper, Loc: loc}, nil
}

func isIntegerText(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Unquote decodes a quoted string or C-string literal into its bytes. The
// trailing NUL of a C-string is not included.
func Unquote(lit string) ([]byte, error) {
	if len(lit) < 2 {
		return nil, errors.Errorf("malformed literal %s", lit)
	}
	body := lit[1 : len(lit)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(body) {
			return nil, errors.Errorf("dangling escape in %s", lit)
		}
		switch body[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '0':
			out = append(out, 0)
		case '\\':
			out = append(out, '\\')
		case '"':
			out = append(out, '"')
		case '\'':
			out = append(out, '\'')
		default:
			return nil, errors.Errorf("unknown escape sequence \\%c in %s", body[i], lit)
		}
	}
	return out, nil
}

// ArrayElements splits an ARRAY(...) literal into decoded element strings.
// Elements are comma separated; quoted elements are unquoted, bare ones are
// trimmed.
func ArrayElements(lit string) ([][]byte, error) {
	open := strings.IndexByte(lit, '(')
	if open < 0 || !strings.HasSuffix(lit, ")") {
		return nil, errors.Errorf("malformed array literal %s", lit)
	}
	inner := lit[open+1 : len(lit)-1]
	if strings.TrimSpace(inner) == "" {
		return nil, nil
	}

	var parts []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(inner) {
				i++
				cur.WriteByte(inner[i])
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == ',':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())

	elems := make([][]byte, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, errors.Errorf("empty element in array literal %s", lit)
		}
		if p[0] == '"' || p[0] == '\'' {
			b, err := Unquote(p)
			if err != nil {
				return nil, err
			}
			elems = append(elems, b)
			continue
		}
		elems = append(elems, []byte(p))
	}
	return elems, nil
}

// Tokenize scans src without any preprocessing. MACRO, INCLUDE and END are
// returned as keywords.
func Tokenize(file, src string) ([]Token, error) {
	l := newLexer(file, src)
	var tokens []Token
	for {
		tok, ok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		if !ok {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}
