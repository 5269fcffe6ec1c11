package main

import (
	"context"
	"io"
	"os"

	"github.com/golang/glog"

	"stackc/pkg/diag"
	"stackc/pkg/toolchain"
)

// app carries the process streams so the command can be driven from tests.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	runner toolchain.Runner
	// colors reports whether diagnostics may be coloured.
	colors func() bool

	noColor  bool
	exitCode int
}

func main() {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		colors: diag.StderrSupportsColor,
	}
	os.Exit(a.execute(os.Args[1:]))
}

// execute runs the command line and returns the process exit status: 1 for
// any error, otherwise the status of the program when --run was given.
func (a *app) execute(args []string) int {
	cmd := newStackcCmd(a)
	cmd.SetArgs(args)
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		pwd, _ := os.Getwd()
		colors := !a.noColor && a.colors != nil && a.colors()
		diag.NewSink(a.stderr, diag.FormatOptions{Pwd: pwd, Colors: colors}).Error(err)
		glog.Flush()
		return 1
	}
	return a.exitCode
}
