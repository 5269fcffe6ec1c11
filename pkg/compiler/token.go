package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	KEYWORD TokenType = iota // BREAK, DO, DONE, ELIF, ELSE, END, ENDIF, IF, WHILE
	WORD                     // anything else; must name an intrinsic
	INTEGER                  // decimal integer literal
	STRING                   // "..."
	CSTRING                  // '...'
	BOOLEAN                  // TRUE / FALSE, normalized to 1 / 0
	ARRAY                    // ARRAY(...)
)

var tokenNames = [...]string{
	KEYWORD: "KEYWORD",
	WORD:    "WORD",
	INTEGER: "INTEGER",
	STRING:  "STRING",
	CSTRING: "CSTRING",
	BOOLEAN: "BOOLEAN",
	ARRAY:   "ARRAY",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Location is a 1-based position in a source file.
type Location struct {
	File string
	Row  int
	Col  int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Row, l.Col)
}

// Token is a single lexical unit produced by the Lexer.
//
// Value is the normalized text: keywords and words are upper-cased, symbolic
// operators are replaced by their intrinsic names, booleans become "1"/"0".
// String and C-string values keep their quotes; array values keep the
// ARRAY(...) wrapper.
type Token struct {
	Type  TokenType
	Value string
	Loc   Location
}

func (t Token) String() string {
	return fmt.Sprintf("%-8s %-14q  %s", t.Type, t.Value, t.Loc)
}

// keywords is the fixed structural keyword set.
var keywords = map[string]bool{
	"BREAK": true,
	"DO":    true,
	"DONE":  true,
	"ELIF":  true,
	"ELSE":  true,
	"END":   true,
	"ENDIF": true,
	"IF":    true,
	"WHILE": true,
}

// Preprocessor keywords. They are consumed by the lexer and never reach the
// program assembler.
const (
	kwMacro   = "MACRO"
	kwInclude = "INCLUDE"
	kwEnd     = "END"
)

// operatorNames maps symbolic operators to their canonical intrinsic names.
var operatorNames = map[string]string{
	"%":  "MOD",
	"/":  "DIV",
	"==": "EQ",
	">=": "GE",
	">":  "GT",
	"<=": "LE",
	"<":  "LT",
	"-":  "MINUS",
	"*":  "MUL",
	"!=": "NE",
	"+":  "PLUS",
	"^":  "POW",
	".":  "PRINT_INT",
}
