package stage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"ngbuild/internal/config"
	"ngbuild/internal/fsutil"
	"ngbuild/internal/registry"
	"ngbuild/internal/toolchain"
)

// builtAppScripts are annotated in place inside the build directory.
var builtAppScripts = config.Patterns{"app/**/*.js"}

// runAnnotate keeps going past per-file failures: each one is logged and
// reported as a diagnostic, and the stage still completes.
func runAnnotate(ctx context.Context, env *Env) (*Result, error) {
	files, err := registry.ResolvePatterns(builtAppScripts, env.Config.BuildRoot())
	if err != nil {
		return failed(AnnotateDependencies, err), nil
	}
	if len(files) == 0 {
		return &Result{Stage: AnnotateDependencies, Status: Completed}, nil
	}
	if !env.Tools.Annotate.Configured() {
		return failed(AnnotateDependencies, fmt.Errorf("%s: %w", toolchain.Annotate, toolchain.ErrToolNotConfigured)), nil
	}

	var out outcome
	err = forEach(ctx, env.limit(), len(files), func(ctx context.Context, i int) error {
		f := files[i]
		changed, err := annotateOne(ctx, env.Tools.Annotate, f)
		switch {
		case err == nil:
			if changed {
				out.wrote(env.rel(f.Abs()))
			} else {
				out.skip()
			}
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case toolFailure(err) || errors.Is(err, os.ErrNotExist):
			env.log().Warn("annotate failed", zap.String("path", env.rel(f.Abs())), zap.Error(err))
			out.diag("%s: %v", env.rel(f.Abs()), err)
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return out.result(AnnotateDependencies, Completed), nil
}

// annotateOne rewrites f in place. The modification time is kept so the
// incremental copy still sees the file as current.
func annotateOne(ctx context.Context, tool *toolchain.Tool, f registry.File) (bool, error) {
	info, err := os.Stat(f.Abs())
	if err != nil {
		return false, err
	}
	src, err := os.ReadFile(f.Abs())
	if err != nil {
		return false, err
	}
	annotated, err := tool.Transform(ctx, f.Path, src)
	if err != nil {
		return false, err
	}
	if string(annotated) == string(src) {
		return false, nil
	}
	if err := fsutil.WriteFileAtomic(f.Abs(), annotated, info.Mode().Perm()); err != nil {
		return false, err
	}
	return true, os.Chtimes(f.Abs(), info.ModTime(), info.ModTime())
}
