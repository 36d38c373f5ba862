// Package cli is the ngbuild command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ngbuild/internal/pipeline"
)

// IO is the set of streams a command reads and writes.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type CLIResult struct {
	ExitCode int
	// Report is the last pipeline report, nil when no pipeline ran.
	Report *pipeline.Report
}

type options struct {
	root    string
	config  string
	verbose bool
	yes     bool
	trace   string
	timeout time.Duration
}

// app carries per-invocation state between cobra hooks and commands.
type app struct {
	io      IO
	opts    options
	log     *zap.Logger
	started bool
	report  *pipeline.Report
}

// Run executes one ngbuild invocation. It never calls os.Exit; the caller
// maps the returned result to the process status.
func Run(ctx context.Context, args []string, streams IO) (res CLIResult, err error) {
	if streams.Out == nil {
		streams.Out = io.Discard
	}
	if streams.Err == nil {
		streams.Err = io.Discard
	}
	a := &app{io: streams}

	defer func() {
		if r := recover(); r != nil {
			if a.log != nil {
				a.log.Error("panic", zap.Any("value", r), zap.ByteString("stack", debug.Stack()))
			}
			err = &InvocationError{ExitCode: ExitInternalError, Message: fmt.Sprintf("internal error: %v", r)}
			res = CLIResult{ExitCode: ExitInternalError, Report: a.report}
		}
	}()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)

	err = root.ExecuteContext(ctx)
	if err != nil && !a.started {
		// Flag, argument and command-name errors surface before any hook runs.
		var inv *InvocationError
		if !errors.As(err, &inv) {
			err = invalidInvocationf("%v", err)
		}
	}
	return CLIResult{ExitCode: ExitCode(err), Report: a.report}, err
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ngbuild",
		Short: "Build runner for Angular front ends",
		Long: `ngbuild assembles an Angular application into a development build
directory and a minified production directory.

Run without a command to build, serve the build with live reload and
rebuild on change.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.started = true
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDefault(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.opts.root, "root", "", "project root (default: current directory)")
	pf.StringVarP(&a.opts.config, "config", "c", "", "override file (default: <root>/ngbuild.yaml when present)")
	pf.BoolVarP(&a.opts.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVarP(&a.opts.yes, "yes", "y", false, "answer yes to confirmation prompts")
	pf.StringVar(&a.opts.trace, "trace", "", "write the pipeline trace as JSON to this path")
	pf.DurationVar(&a.opts.timeout, "timeout", 0, "abort the pipeline after this long (0 disables)")

	root.AddCommand(
		a.pipelineCommand("build", "Assemble the development build", pipeline.Development()),
		a.pipelineCommand("prod", "Assemble the production build", pipeline.Production()),
		a.singleCommand("test", "Run the unit tests once", "test"),
		a.singleCommand("lint", "Lint application and build scripts", "lint", "jshint"),
		a.singleCommand("images", "Compress images into the production build", "compress-images"),
		a.watchCommand(),
		a.stageCommand(),
		a.stagesCommand(),
		a.ciCommand(),
	)
	return root
}

// setup resolves the project root and builds the logger.
func (a *app) setup() error {
	if a.opts.root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		a.opts.root = wd
	}
	abs, err := filepath.Abs(a.opts.root)
	if err != nil {
		return invalidInvocationf("invalid --root: %v", err)
	}
	a.opts.root = abs
	if a.opts.timeout < 0 {
		return invalidInvocationf("--timeout must not be negative")
	}

	a.log = newLogger(a.io.Err, a.opts.verbose)
	return nil
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg.EncoderConfig), zapcore.AddSync(w), cfg.Level)
	return zap.New(core)
}
