package compiler

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"stackc/pkg/asm"
)

// Options control a single compilation.
type Options struct {
	// File names the source in locations and anchors relative INCLUDEs.
	File string
	// InputBufferSize is the size of each INPUT buffer; zero means
	// DefaultInputBufferSize.
	InputBufferSize int
	// ReadFile loads included files; nil means os.ReadFile.
	ReadFile ReadFileFunc
}

// Result holds the output of every phase of a successful compilation.
type Result struct {
	Tokens   []Token
	Program  *Program
	Analysis *Analysis
	Blocks   *Blocks
	Artifact *asm.Artifact
}

// Assembly returns the generated NASM text.
func (r *Result) Assembly() string {
	return r.Artifact.String()
}

// Compile runs the whole pipeline over src. It stops at the first error;
// compile errors are *Error values.
func Compile(src string, opts Options) (*Result, error) {
	tokens, err := NewPreprocessor(opts.ReadFile).Process(opts.File, src)
	if err != nil {
		return nil, err
	}

	prog, err := NewProgram(tokens)
	if err != nil {
		return nil, err
	}

	analysis, err := Check(prog)
	if err != nil {
		return nil, err
	}

	blocks, err := ResolveBlocks(prog)
	if err != nil {
		return nil, err
	}

	artifact, err := Generate(prog, blocks, analysis, opts.InputBufferSize)
	if err != nil {
		return nil, err
	}

	text := artifact.String()
	if err := asm.Verify(text); err != nil {
		return nil, errors.Wrapf(err, "generated assembly for %s is inconsistent", opts.File)
	}
	if glog.V(7) {
		glog.Infof("assembly for %s:\n%s", opts.File, text)
	}

	return &Result{
		Tokens:   tokens,
		Program:  prog,
		Analysis: analysis,
		Blocks:   blocks,
		Artifact: artifact,
	}, nil
}
