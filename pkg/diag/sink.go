// Package diag renders fatal errors for the stackc command line.
package diag

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"stackc/pkg/compiler"
)

// FormatOptions controls the output style and content.
type FormatOptions struct {
	Pwd    string // if set, file names are printed relative to it.
	Colors bool   // if true, the error tag and location are colorized.
}

// Sink writes diagnostics and counts them.
type Sink struct {
	opts   FormatOptions
	w      io.Writer
	errors int

	tag *color.Color
	loc *color.Color
}

// NewSink returns a sink writing to w.
func NewSink(w io.Writer, opts FormatOptions) *Sink {
	s := &Sink{
		opts: opts,
		w:    w,
		tag:  color.New(color.FgRed, color.Bold),
		loc:  color.New(color.FgCyan),
	}
	// color.NoColor reflects stdout; the sink decides for its own writer.
	if opts.Colors {
		s.tag.EnableColor()
		s.loc.EnableColor()
	} else {
		s.tag.DisableColor()
		s.loc.DisableColor()
	}
	return s
}

// Errors returns the number of errors written so far.
func (s *Sink) Errors() int {
	return s.errors
}

// Success reports whether no error has been written.
func (s *Sink) Success() bool {
	return s.errors == 0
}

// Error writes err as a single diagnostic.
func (s *Sink) Error(err error) {
	msg := s.Stringify(err)
	glog.V(3).Infof("diag: %s", strings.TrimSuffix(msg, "\n"))
	fmt.Fprint(s.w, msg)
	s.errors++
}

// Stringify formats err the way Error prints it, e.g.
// "prog.stk:3:7: error[StackUnderflow]: DROP requires 1 values on the stack, found 0\n".
func (s *Sink) Stringify(err error) string {
	var buffer bytes.Buffer

	var cerr *compiler.Error
	switch {
	case errors.As(err, &cerr):
		if cerr.Loc.File != "" || cerr.Loc.Row != 0 {
			buffer.WriteString(s.StringifyLocation(cerr.Loc))
			buffer.WriteString(": ")
		}
		buffer.WriteString(s.tag.Sprintf("error[%s]", cerr.Kind))
		buffer.WriteString(": ")
		buffer.WriteString(cerr.Msg)
	default:
		buffer.WriteString(s.tag.Sprint("error"))
		buffer.WriteString(": ")
		buffer.WriteString(errorMessage(err))
	}

	buffer.WriteRune('\n')
	return buffer.String()
}

// StringifyLocation renders loc as file:row:col.
func (s *Sink) StringifyLocation(loc compiler.Location) string {
	file := loc.File
	if s.opts.Pwd != "" && filepath.IsAbs(file) {
		if rel, err := filepath.Rel(s.opts.Pwd, file); err == nil {
			file = rel
		}
	}
	return s.loc.Sprintf("%s:%d:%d", file, loc.Row, loc.Col)
}

// errorMessage returns a message, possibly cleaning up the text if
// appropriate.
func errorMessage(err error) string {
	if merr, ok := err.(*multierror.Error); ok {
		errs := merr.Errors
		if len(errs) == 1 {
			return errs[0].Error()
		}
		msg := fmt.Sprintf("%d errors occurred:", len(errs))
		for i, e := range errs {
			msg += fmt.Sprintf("\n    %d) %s", i+1, e)
		}
		return msg
	}
	return err.Error()
}

// StderrSupportsColor reports whether stderr is a terminal that should get
// coloured output.
func StderrSupportsColor() bool {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return false
	}
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}
