// Package pipeline orders stages into validated graphs and runs them with
// explicit barriers: a stage starts only after every stage before it has
// returned, and the first Failed or Aborted stage skips everything after it.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ngbuild/internal/stage"
	"ngbuild/internal/trace"
)

// Pipeline is a named, ordered list of stages.
type Pipeline struct {
	Name   string
	Stages []stage.Name
}

// Development assembles the build directory.
func Development() Pipeline {
	return Pipeline{Name: "build", Stages: []stage.Name{
		stage.Clean,
		stage.CompileStyles,
		stage.CompileTemplates,
		stage.Copy,
		stage.AnnotateDependencies,
		stage.InjectReferences,
	}}
}

// Production runs the development stages and then assembles dist.
func Production() Pipeline {
	dev := Development().Stages
	stages := append([]stage.Name{stage.CleanProd}, dev[1:]...)
	stages = append(stages,
		stage.MinifyJS,
		stage.MinifyCSS,
		stage.BuildProdIndex,
		stage.SubstituteCDN,
		stage.CopyProdAssets,
	)
	return Pipeline{Name: "prod", Stages: stages}
}

// Single wraps one stage as a pipeline named after it.
func Single(name stage.Name) Pipeline {
	return Pipeline{Name: string(name), Stages: []stage.Name{name}}
}

// Graph validates the pipeline and builds its chain graph. Every stage must
// exist in the stage catalog.
func (p Pipeline) Graph() (*Graph, error) {
	if p.Name == "" {
		return nil, invalidf("pipeline name is required")
	}
	for _, n := range p.Stages {
		if _, ok := stage.Lookup(n); !ok {
			return nil, invalidf("unknown stage: %q", n)
		}
	}
	return Chain(p.Stages...)
}

// Sequencer runs pipelines against one stage environment.
type Sequencer struct {
	Env *stage.Env
	// Sink receives trace events. Nil discards them.
	Sink trace.Sink
}

// Run validates p and executes it serially.
func (s *Sequencer) Run(ctx context.Context, p Pipeline) (*Report, error) {
	g, err := p.Graph()
	if err != nil {
		return nil, err
	}
	ex, err := NewExecutor(g, envRunner{env: s.Env}, s.Sink)
	if err != nil {
		return nil, err
	}

	log := s.logger().With(zap.String("pipeline", p.Name))
	log.Debug("pipeline started", zap.Int("stages", len(p.Stages)))
	report, err := ex.RunSerial(ctx)
	if err != nil {
		return nil, err
	}
	if report.Halted != nil {
		log.Error("pipeline halted",
			zap.String("stage", string(report.Halted.Stage)),
			zap.String("status", string(report.Halted.Status)),
			zap.Int("skipped", len(report.Skipped)),
			zap.Error(report.Halted.Err),
		)
	} else {
		log.Info("pipeline completed")
	}
	return report, nil
}

// RunStages runs an ad-hoc chain of stages.
func (s *Sequencer) RunStages(ctx context.Context, name string, stages ...stage.Name) (*Report, error) {
	return s.Run(ctx, Pipeline{Name: name, Stages: stages})
}

func (s *Sequencer) logger() *zap.Logger {
	if s.Env == nil || s.Env.Logger == nil {
		return zap.NewNop()
	}
	return s.Env.Logger
}

// envRunner resolves stages from the catalog and runs them with env.
type envRunner struct {
	env *stage.Env
}

func (r envRunner) Run(ctx context.Context, name stage.Name) (*stage.Result, error) {
	st, ok := stage.Lookup(name)
	if !ok {
		return nil, invalidf("unknown stage: %q", name)
	}
	log := zap.NewNop()
	if r.env.Logger != nil {
		log = r.env.Logger.With(zap.String("stage", string(name)))
	}

	start := time.Now()
	log.Info("starting")
	res, err := st.Run(ctx, r.env)
	if err != nil {
		log.Error("errored", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, err
	}
	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.Int("files", len(res.Written)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if res.Skipped > 0 {
		fields = append(fields, zap.Int("unchanged", res.Skipped))
	}
	switch res.Status {
	case stage.Completed:
		log.Info("finished", fields...)
		for _, d := range res.Diagnostics {
			log.Warn("diagnostic", zap.String("detail", d))
		}
	case stage.Aborted:
		log.Warn("aborted", fields...)
	default:
		log.Error("failed", append(fields, zap.Error(res.Err))...)
	}
	return res, nil
}
