// Package stage implements the individual build steps.
//
// A stage reads the project tree through the registry, does its work and
// reports a Result. Stages never call each other; ordering and barriers are
// the pipeline's job. Within a stage, per-file work may fan out, but it always
// joins before Run returns.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"

	"ngbuild/internal/config"
	"ngbuild/internal/markup"
	"ngbuild/internal/registry"
	"ngbuild/internal/toolchain"
)

// Name identifies a stage on the command line and in traces.
type Name string

const (
	Clean                Name = "clean"
	CleanProd            Name = "clean-prod"
	CompileStyles        Name = "compile-styles"
	Copy                 Name = "copy"
	CompileTemplates     Name = "compile-templates"
	AnnotateDependencies Name = "annotate-dependencies"
	InjectReferences     Name = "inject-references"
	Lint                 Name = "lint"
	MinifyJS             Name = "minify-js"
	MinifyCSS            Name = "minify-css"
	BuildProdIndex       Name = "build-prod-index"
	SubstituteCDN        Name = "substitute-cdn"
	CopyProdAssets       Name = "copy-prod-assets"
	CompressImages       Name = "compress-images"
	Test                 Name = "test"
)

// Status is the outcome of a stage run.
type Status string

const (
	Completed Status = "completed"
	Failed    Status = "failed"
	Aborted   Status = "aborted"
)

// Result describes one stage run.
type Result struct {
	Stage  Name
	Status Status

	// Written lists project-relative paths the stage wrote, sorted.
	Written []string
	// Skipped counts inputs that were already up to date.
	Skipped int
	// Diagnostics are non-fatal problems, e.g. per-file annotate failures.
	Diagnostics []string

	// Err is the cause of a Failed status.
	Err error
}

// Stage is one build step.
type Stage interface {
	Name() Name
	Help() string
	Run(ctx context.Context, env *Env) (*Result, error)
}

// Env is everything a stage may use. It is shared read-only between stages.
type Env struct {
	Config   *config.Config
	Registry *registry.Registry
	Tools    *toolchain.Set
	Versions markup.VersionSource
	Prompter Prompter
	Logger   *zap.Logger

	Stdout io.Writer
	Stderr io.Writer

	// Concurrency bounds per-file fan-out. Zero means GOMAXPROCS.
	Concurrency int
}

// NewEnv builds an environment with the default collaborators for cfg.
func NewEnv(cfg *config.Config, reg *registry.Registry, logger *zap.Logger, stdout, stderr io.Writer) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{
		Config:   cfg,
		Registry: reg,
		Tools:    toolchain.NewSet(cfg, stdout, stderr),
		Versions: markup.NewBowerVersions(cfg.Root),
		Prompter: AutoDecline{},
		Logger:   logger,
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

func (e *Env) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Env) limit() int {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}

// rel returns abs relative to the project root, slash separated.
func (e *Env) rel(abs string) string {
	r, err := filepath.Rel(e.Config.Root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(r)
}

func (e *Env) buildPath(rel ...string) string {
	return filepath.Join(append([]string{e.Config.BuildRoot()}, rel...)...)
}

func (e *Env) prodPath(rel ...string) string {
	return filepath.Join(append([]string{e.Config.ProdRoot()}, rel...)...)
}

// outcome accumulates a Result from concurrent workers.
type outcome struct {
	mu      sync.Mutex
	written []string
	skipped int
	diags   []string
}

func (o *outcome) wrote(p string) {
	o.mu.Lock()
	o.written = append(o.written, p)
	o.mu.Unlock()
}

func (o *outcome) skip() {
	o.mu.Lock()
	o.skipped++
	o.mu.Unlock()
}

func (o *outcome) diag(format string, args ...any) {
	o.mu.Lock()
	o.diags = append(o.diags, fmt.Sprintf(format, args...))
	o.mu.Unlock()
}

func (o *outcome) result(name Name, status Status) *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	written := append([]string(nil), o.written...)
	sort.Strings(written)
	diags := append([]string(nil), o.diags...)
	sort.Strings(diags)
	return &Result{
		Stage:       name,
		Status:      status,
		Written:     written,
		Skipped:     o.skipped,
		Diagnostics: diags,
	}
}

func failed(name Name, err error) *Result {
	return &Result{Stage: name, Status: Failed, Err: err}
}

type funcStage struct {
	name Name
	help string
	run  func(ctx context.Context, env *Env) (*Result, error)
}

func (s funcStage) Name() Name   { return s.name }
func (s funcStage) Help() string { return s.help }
func (s funcStage) Run(ctx context.Context, env *Env) (*Result, error) {
	return s.run(ctx, env)
}

var catalog = []Stage{
	funcStage{Clean, "removes the development build directory", runClean},
	funcStage{CleanProd, "removes the production build directory after confirmation", runCleanProd},
	funcStage{CompileStyles, "compiles the main LESS entry into the versioned stylesheet", runCompileStyles},
	funcStage{Copy, "copies changed sources, vendor files and fonts into the build directory", runCopy},
	funcStage{CompileTemplates, "compiles html templates into $templateCache modules", runCompileTemplates},
	funcStage{AnnotateDependencies, "adds explicit dependency-injection annotations to built app scripts", runAnnotate},
	funcStage{InjectReferences, "writes the development index with script and stylesheet tags", runInjectReferences},
	funcStage{Lint, "lints application and build scripts", runLint},
	funcStage{MinifyJS, "bundles and minifies app scripts with a source map", runMinifyJS},
	funcStage{MinifyCSS, "bundles and minifies stylesheets for production", runMinifyCSS},
	funcStage{BuildProdIndex, "writes the production index", runBuildProdIndex},
	funcStage{SubstituteCDN, "points vendor references in the production index at CDN copies", runSubstituteCDN},
	funcStage{CopyProdAssets, "copies images needed by the production build", runCopyProdAssets},
	funcStage{CompressImages, "compresses images into the production assets directory", runCompressImages},
	funcStage{Test, "runs the unit tests once", runTest},
}

// All returns every stage in catalog order.
func All() []Stage {
	out := make([]Stage, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a stage by name.
func Lookup(name Name) (Stage, bool) {
	for _, s := range catalog {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// toolFailure reports whether err means the stage failed on its inputs
// rather than on infrastructure.
func toolFailure(err error) bool {
	var te *toolchain.ToolError
	var pe *registry.PatternError
	return errors.As(err, &te) || errors.As(err, &pe) || errors.Is(err, toolchain.ErrToolNotConfigured)
}
