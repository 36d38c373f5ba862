package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ngbuild/internal/ci"
	"ngbuild/internal/config"
	"ngbuild/internal/fsutil"
	"ngbuild/internal/livereload"
	"ngbuild/internal/pipeline"
	"ngbuild/internal/registry"
	"ngbuild/internal/stage"
	"ngbuild/internal/trace"
	"ngbuild/internal/watch"
)

func (a *app) pipelineCommand(use, short string, p pipeline.Pipeline) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := a.project()
			if err != nil {
				return err
			}
			return a.runPipeline(cmd.Context(), env, p)
		},
	}
}

func (a *app) singleCommand(use, short string, name stage.Name, aliases ...string) *cobra.Command {
	c := a.pipelineCommand(use, short, pipeline.Single(name))
	c.Aliases = aliases
	return c
}

func (a *app) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Serve the development build and rebuild on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := a.project()
			if err != nil {
				return err
			}
			return a.serveAndWatch(cmd.Context(), env)
		},
	}
}

func (a *app) stageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stage NAME...",
		Short: "Run the named stages in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]stage.Name, 0, len(args))
			for _, arg := range args {
				n := stage.Name(strings.TrimSpace(arg))
				if _, ok := stage.Lookup(n); !ok {
					return invalidInvocationf("unknown stage %q (see ngbuild stages)", arg)
				}
				names = append(names, n)
			}
			env, err := a.project()
			if err != nil {
				return err
			}
			return a.runPipeline(cmd.Context(), env, pipeline.Pipeline{Name: "stage", Stages: names})
		},
	}
}

func (a *app) stagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the available stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range stage.All() {
				fmt.Fprintf(tw, "%s\t%s\n", s.Name(), s.Help())
			}
			return tw.Flush()
		},
	}
}

func (a *app) ciCommand() *cobra.Command {
	var environment, ref string
	trigger := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the CI endpoint to build a ref",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(environment) == "" || strings.TrimSpace(ref) == "" {
				return invalidInvocationf("ci trigger requires --env and --ref")
			}
			if err := ci.LoadDotEnv(a.opts.root); err != nil {
				return &InvocationError{ExitCode: ExitConfigError, Message: err.Error()}
			}
			cfg, err := config.Load(a.opts.root, a.opts.config)
			if err != nil {
				return err
			}
			client, err := ci.NewClient(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := a.deadline(cmd.Context())
			defer cancel()
			resp, err := client.Trigger(ctx, cfg.Project, environment, ref)
			if err != nil {
				return err
			}
			a.log.Info("ci triggered",
				zap.String("environment", environment),
				zap.String("ref", ref),
				zap.String("request_id", resp.RequestID),
				zap.Int("status", resp.Status),
			)
			fmt.Fprintln(cmd.OutOrStdout(), resp.RequestID)
			return nil
		},
	}
	trigger.Flags().StringVar(&environment, "env", "", "target environment (required)")
	trigger.Flags().StringVar(&ref, "ref", "", "git ref to build (required)")

	c := &cobra.Command{
		Use:   "ci",
		Short: "Remote CI handoff",
		Args:  cobra.NoArgs,
	}
	c.AddCommand(trigger)
	return c
}

// project loads the configuration and builds the stage environment.
func (a *app) project() (*stage.Env, error) {
	cfg, err := config.Load(a.opts.root, a.opts.config)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(cfg)
	if err != nil {
		return nil, err
	}
	env := stage.NewEnv(cfg, reg, a.log, a.io.Out, a.io.Err)
	if a.opts.yes {
		env.Prompter = stage.AutoConfirm{}
	} else {
		env.Prompter = stage.LinePrompter{In: a.io.In, Out: a.io.Err}
	}
	a.log.Debug("project loaded",
		zap.String("root", cfg.Root),
		zap.String("project", cfg.Project.Name),
		zap.String("version", cfg.Project.Version),
		zap.String("override", cfg.File),
	)
	return env, nil
}

func (a *app) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.timeout > 0 {
		return context.WithTimeout(ctx, a.opts.timeout)
	}
	return context.WithCancel(ctx)
}

// runPipeline runs p, writes the trace when asked and turns a halted report
// into a StageError.
func (a *app) runPipeline(ctx context.Context, env *stage.Env, p pipeline.Pipeline) error {
	ctx, cancel := a.deadline(ctx)
	defer cancel()

	rec := trace.NewRecorder()
	seq := &pipeline.Sequencer{Env: env, Sink: rec}
	report, err := seq.Run(ctx, p)
	if err != nil {
		return err
	}
	a.report = report

	if a.opts.trace != "" {
		if err := a.writeTrace(rec.Trace(p.Name)); err != nil {
			return err
		}
	}
	if report.Halted != nil {
		return &StageError{Pipeline: p.Name, Result: report.Halted}
	}
	return nil
}

func (a *app) writeTrace(t trace.PipelineTrace) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	path := a.opts.trace
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.opts.root, path)
	}
	if err := fsutil.WriteFileAtomic(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	a.log.Debug("trace written", zap.String("path", path))
	return nil
}

// runDefault builds once and then serves and watches.
func (a *app) runDefault(ctx context.Context) error {
	env, err := a.project()
	if err != nil {
		return err
	}
	if err := a.runPipeline(ctx, env, pipeline.Development()); err != nil {
		return err
	}
	return a.serveAndWatch(ctx, env)
}

// serveAndWatch serves the build directory with live reload and reruns the
// matching stages on change until ctx is done.
func (a *app) serveAndWatch(ctx context.Context, env *stage.Env) error {
	cfg := env.Config
	hub := livereload.NewHub(a.log.Named("livereload"))
	srv := livereload.NewServer(cfg.BuildRoot(), cfg.Server.Port, hub, a.log.Named("server"))

	skip := append([]string{cfg.BuildDir, cfg.ProdDir}, watch.DefaultSkipDirs...)
	w, err := watch.NewWatcher(cfg.Root, skip, a.log.Named("watch"))
	if err != nil {
		return err
	}

	seq := &pipeline.Sequencer{Env: env}
	ctrl := watch.NewController(
		watch.NewClassifier(cfg, env.Registry).Classify,
		seq.RunStages,
		hub,
		cfg.Server.Debounce,
		a.log.Named("watch"),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	g.Go(func() error { return watch.Serve(ctx, w, ctrl) })
	return g.Wait()
}
