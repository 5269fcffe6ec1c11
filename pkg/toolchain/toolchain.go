// Package toolchain turns generated assembly into a running program by
// driving the external assembler and linker.
package toolchain

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"stackc/pkg/config"
)

// Stdio are the streams handed to a child process.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner starts an external program and waits for it.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdio Stdio) error
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, stdio Stdio) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdio.Stdin
	cmd.Stdout = stdio.Stdout
	cmd.Stderr = stdio.Stderr
	return cmd.Run()
}

// Toolchain assembles, links and runs stackc output.
type Toolchain struct {
	cfg    *config.Config
	runner Runner
	stdio  Stdio
}

// New returns a toolchain using cfg's tools; a nil runner means ExecRunner.
func New(cfg *config.Config, runner Runner, stdio Stdio) *Toolchain {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Toolchain{cfg: cfg, runner: runner, stdio: stdio}
}

// Paths are the files of one build.
type Paths struct {
	Asm    string
	Object string
	Exe    string
}

// PathsFor derives the intermediate file names from the executable path.
func PathsFor(exe string) Paths {
	return Paths{Asm: exe + ".asm", Object: exe + ".o", Exe: exe}
}

func (t *Toolchain) invoke(ctx context.Context, step string, tool config.Tool, args ...string) error {
	argv := append(append([]string{}, tool.Args...), args...)
	glog.V(3).Infof("%s: %s %s", step, tool.Command, strings.Join(argv, " "))
	// Tool output goes to stderr; stdout belongs to the compiled program.
	stdio := Stdio{Stdout: t.stdio.Stderr, Stderr: t.stdio.Stderr}
	if err := t.runner.Run(ctx, tool.Command, argv, stdio); err != nil {
		return errors.Wrapf(err, "%s failed (%s)", step, tool.Command)
	}
	return nil
}

// Assemble runs the assembler over asmPath, producing objPath.
func (t *Toolchain) Assemble(ctx context.Context, asmPath, objPath string) error {
	return t.invoke(ctx, "assemble", t.cfg.Assembler, "-o", objPath, asmPath)
}

// Link runs the linker over objPath, producing exePath.
func (t *Toolchain) Link(ctx context.Context, objPath, exePath string) error {
	return t.invoke(ctx, "link", t.cfg.Linker, "-o", exePath, objPath)
}

// Build writes asm to p.Asm, assembles and links it into p.Exe, then
// removes the object file and, unless keepAsm, the assembly file.
func (t *Toolchain) Build(ctx context.Context, asm io.WriterTo, p Paths, keepAsm bool) (err error) {
	if err := WriteFile(p.Asm, asm); err != nil {
		return err
	}

	temps := []string{p.Object}
	if !keepAsm {
		temps = append(temps, p.Asm)
	}
	defer func() {
		if cerr := Cleanup(temps...); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	if err := t.Assemble(ctx, p.Asm, p.Object); err != nil {
		return err
	}
	return t.Link(ctx, p.Object, p.Exe)
}

// Run executes the program at exe and returns its exit status. A non-zero
// status is not an error; failing to start the program is.
func (t *Toolchain) Run(ctx context.Context, exe string, args []string) (int, error) {
	glog.V(3).Infof("run: %s %s", exe, strings.Join(args, " "))
	err := t.runner.Run(ctx, exe, args, t.stdio)
	if err == nil {
		return 0, nil
	}
	var status interface{ ExitCode() int }
	if errors.As(err, &status) && status.ExitCode() >= 0 {
		return status.ExitCode(), nil
	}
	return -1, errors.Wrapf(err, "could not run %s", exe)
}

// WriteFile stores the output of w at path.
func WriteFile(path string, w io.WriterTo) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "could not close %s", path)
		}
	}()
	if _, err := w.WriteTo(f); err != nil {
		return errors.Wrapf(err, "could not write %s", path)
	}
	return nil
}

// Cleanup removes every path, ignoring ones that do not exist, and reports
// all failures together.
func Cleanup(paths ...string) error {
	var result error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, errors.Wrapf(err, "failed to delete %s", path))
			continue
		}
		glog.V(5).Infof("removed %s", path)
	}
	return result
}
