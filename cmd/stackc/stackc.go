package main

import (
	"context"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"stackc/pkg/compiler"
	"stackc/pkg/config"
	"stackc/pkg/toolchain"
	"stackc/pkg/utils"
)

// buildFlags are the command line settings of one invocation.
type buildFlags struct {
	output          string
	run             bool
	keepAsm         bool
	emitAsm         bool
	configPath      string
	inputBufferSize int
	logToStderr     bool
	verbose         int
}

func newStackcCmd(a *app) *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "stackc <source> [-- program arguments]",
		Short: "stackc compiles stack language programs to x86-64 executables",
		Long: "stackc compiles a stack language source file to NASM assembly, then assembles\n" +
			"and links it into a Linux x86-64 executable.",
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging(f.logToStderr, f.verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			glog.Flush()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dir, err := utils.ReadSource(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, dir, &f)
			if err != nil {
				return err
			}
			code, err := a.build(cmd.Context(), cfg, args[0], src, args[1:], f)
			a.exitCode = code
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.output, "output", "o", "", "Write the executable (or assembly, with --emit-asm) to this path")
	flags.BoolVarP(&f.run, "run", "r", false, "Run the executable after building it")
	flags.BoolVarP(&f.keepAsm, "keep-asm", "S", false, "Keep the generated assembly next to the executable")
	flags.BoolVar(&f.emitAsm, "emit-asm", false, "Only write the generated assembly; do not assemble or link")
	flags.StringVar(&f.configPath, "config", "", "Read build settings from this file instead of "+config.FileName)
	flags.IntVar(&f.inputBufferSize, "input-buffer-size", 0, "Size in bytes of each INPUT buffer")

	pflags := cmd.PersistentFlags()
	pflags.BoolVar(&a.noColor, "no-color", false, "Disable colored diagnostics")
	pflags.BoolVar(&f.logToStderr, "logtostderr", false, "Log to stderr instead of to files")
	pflags.IntVarP(&f.verbose, "verbose", "v", 0, "Enable verbose logging (e.g., v=3); anything >3 is very verbose")

	return cmd
}

// loadConfig layers the configuration file and the command line flags over
// the defaults.
func loadConfig(cmd *cobra.Command, dir string, f *buildFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath, dir)
	if err != nil {
		return nil, err
	}

	if f.output != "" {
		cfg.Output = f.output
	}
	if cmd.Flags().Changed("keep-asm") {
		cfg.KeepAsm = f.keepAsm
	}
	if cmd.Flags().Changed("input-buffer-size") {
		cfg.InputBufferSize = f.inputBufferSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// build compiles src and, depending on f, writes the assembly, builds the
// executable, or builds and runs it. The returned code is the exit status
// of the program when it was run.
func (a *app) build(ctx context.Context, cfg *config.Config, source, src string, progArgs []string, f buildFlags) (int, error) {
	res, err := compiler.Compile(src, compiler.Options{
		File:            source,
		InputBufferSize: cfg.InputBufferSize,
	})
	if err != nil {
		return 0, err
	}
	glog.V(3).Infof("compiled %s: %d operations, %d bytes of assembly", source, len(res.Program.Ops), res.Artifact.Len())

	if f.emitAsm {
		path := cfg.Output
		if path == "" {
			path = toolchain.PathsFor(cfg.OutputFor(source)).Asm
		}
		return 0, toolchain.WriteFile(path, res.Artifact)
	}

	exe, _, err := utils.GetPathInfo(cfg.OutputFor(source))
	if err != nil {
		return 0, err
	}
	tc := toolchain.New(cfg, a.runner, toolchain.Stdio{Stdin: a.stdin, Stdout: a.stdout, Stderr: a.stderr})
	if err := tc.Build(ctx, res.Artifact, toolchain.PathsFor(exe), cfg.KeepAsm); err != nil {
		return 0, err
	}
	if !f.run {
		return 0, nil
	}
	return tc.Run(ctx, exe, progArgs)
}
