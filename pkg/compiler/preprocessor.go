package compiler

import (
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Macro is a named, parameterless token substitution.
type Macro struct {
	Name string
	Body []Token
	Loc  Location // where the macro was defined
}

// ReadFileFunc loads an included source file.
type ReadFileFunc func(path string) ([]byte, error)

// Preprocessor strips MACRO definitions, expands macro references and
// splices INCLUDEd files into the token stream.
type Preprocessor struct {
	readFile ReadFileFunc
	macros   map[string]Macro
	// alreadyProcessed holds every file spliced so far; a second INCLUDE of
	// the same file from another branch is skipped.
	alreadyProcessed map[string]bool
}

// NewPreprocessor returns a Preprocessor that reads included files with
// readFile, or os.ReadFile when readFile is nil.
func NewPreprocessor(readFile ReadFileFunc) *Preprocessor {
	if readFile == nil {
		readFile = os.ReadFile
	}
	return &Preprocessor{
		readFile:         readFile,
		macros:           make(map[string]Macro),
		alreadyProcessed: make(map[string]bool),
	}
}

// Lex tokenizes src and runs the preprocessor over it, reading included
// files from disk.
func Lex(file, src string) ([]Token, error) {
	return NewPreprocessor(nil).Process(file, src)
}

// Process returns the fully expanded token stream for src.
func (p *Preprocessor) Process(file, src string) ([]Token, error) {
	key := canonicalPath(file)
	p.alreadyProcessed[key] = true
	tokens, err := p.process(file, src, map[string]bool{key: true})
	if err != nil {
		return nil, err
	}
	if glog.V(3) {
		glog.Infof("preprocess %s: %d tokens, %d macros", file, len(tokens), len(p.macros))
	}
	return tokens, nil
}

// Macros returns the macros defined so far, keyed by upper-case name.
func (p *Preprocessor) Macros() map[string]Macro {
	return p.macros
}

func (p *Preprocessor) process(file, src string, visitedStack map[string]bool) ([]Token, error) {
	raw, err := Tokenize(file, src)
	if err != nil {
		return nil, err
	}

	var out []Token
	for i := 0; i < len(raw); i++ {
		tok := raw[i]

		if tok.Type == KEYWORD && tok.Value == kwMacro {
			end, err := p.define(raw, i)
			if err != nil {
				return nil, err
			}
			i = end
			continue
		}

		if tok.Type == KEYWORD && tok.Value == kwInclude {
			if i+1 >= len(raw) || raw[i+1].Type != STRING {
				return nil, errorAt(InvalidLiteral, tok.Loc, "INCLUDE expects a quoted file name")
			}
			included, err := p.include(file, raw[i+1], visitedStack)
			if err != nil {
				return nil, err
			}
			out = append(out, included...)
			i++
			continue
		}

		if tok.Type == WORD {
			if _, ok := p.macros[tok.Value]; ok {
				expanded, err := p.expand(tok, tok.Value, make(map[string]bool))
				if err != nil {
					return nil, err
				}
				out = append(out, expanded...)
				continue
			}
		}

		out = append(out, tok)
	}
	return out, nil
}

// define records the macro starting at raw[start] and returns the index of
// its END token.
func (p *Preprocessor) define(raw []Token, start int) (int, error) {
	macroTok := raw[start]
	if start+1 >= len(raw) {
		return 0, errorAt(UnterminatedMacro, macroTok.Loc, "MACRO without a name")
	}
	name := raw[start+1]
	if name.Type != WORD {
		return 0, errorAt(UnterminatedMacro, name.Loc, "invalid macro name %s", name.Value)
	}

	for j := start + 2; j < len(raw); j++ {
		t := raw[j]
		if t.Type != KEYWORD {
			continue
		}
		switch t.Value {
		case kwEnd:
			body := make([]Token, j-start-2)
			copy(body, raw[start+2:j])
			p.macros[name.Value] = Macro{Name: name.Value, Body: body, Loc: name.Loc}
			if glog.V(5) {
				glog.Infof("macro %s defined at %s with %d tokens", name.Value, name.Loc, len(body))
			}
			return j, nil
		case kwMacro, kwInclude:
			return 0, errorAt(UnterminatedMacro, t.Loc, "%s inside the body of macro %s", t.Value, name.Value)
		}
	}
	return 0, errorAt(UnterminatedMacro, macroTok.Loc, "macro %s has no END", name.Value)
}

// expand substitutes the body of macro name at site. Tokens from the body
// take the location of site.
func (p *Preprocessor) expand(site Token, name string, active map[string]bool) ([]Token, error) {
	if active[name] {
		return nil, errorAt(RecursiveMacro, site.Loc, "macro %s references itself", name)
	}
	active[name] = true
	defer delete(active, name)

	var out []Token
	for _, bt := range p.macros[name].Body {
		if bt.Type == WORD {
			if _, ok := p.macros[bt.Value]; ok {
				nested, err := p.expand(site, bt.Value, active)
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
				continue
			}
		}
		bt.Loc = site.Loc
		out = append(out, bt)
	}
	return out, nil
}

// include lexes and preprocesses the file named by pathTok, resolved
// relative to the including file.
func (p *Preprocessor) include(from string, pathTok Token, visitedStack map[string]bool) ([]Token, error) {
	name, err := Unquote(pathTok.Value)
	if err != nil {
		return nil, errorAt(InvalidLiteral, pathTok.Loc, "%v", err)
	}
	fullPath := filepath.Join(filepath.Dir(from), string(name))
	key := canonicalPath(fullPath)

	if visitedStack[key] {
		return nil, errorAt(CircularInclude, pathTok.Loc, "circular include of %s", name)
	}
	if p.alreadyProcessed[key] {
		return nil, nil
	}
	p.alreadyProcessed[key] = true

	content, err := p.readFile(fullPath)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: reading included file %s", pathTok.Loc, fullPath)
	}

	// Copy the stack so that diamond includes are not reported as cycles.
	newStack := make(map[string]bool, len(visitedStack)+1)
	for k, v := range visitedStack {
		newStack[k] = v
	}
	newStack[key] = true

	if glog.V(3) {
		glog.Infof("include %s from %s", fullPath, from)
	}
	return p.process(fullPath, string(content), newStack)
}

func canonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
