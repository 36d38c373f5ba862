package stage

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"ngbuild/internal/fsutil"
	"ngbuild/internal/registry"
)

func runCompileStyles(ctx context.Context, env *Env) (*Result, error) {
	entries, err := env.Registry.Resolve(registry.AppStyleSource, env.Config.Root)
	if err != nil {
		return failed(CompileStyles, err), nil
	}
	if len(entries) == 0 {
		env.log().Warn("no style entry point matched", zap.Strings("patterns", env.Registry.Patterns(registry.AppStyleSource)))
		return &Result{Stage: CompileStyles, Status: Completed}, nil
	}

	var css bytes.Buffer
	for _, f := range entries {
		src, err := os.ReadFile(f.Abs())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Path, err)
		}
		out, err := env.Tools.Styles.Transform(ctx, f.Path, src)
		if err != nil {
			if toolFailure(err) {
				return failed(CompileStyles, err), nil
			}
			return nil, err
		}
		css.Write(out)
	}

	dst := env.buildPath("assets", env.Config.Artifacts().Stylesheet)
	if err := fsutil.WriteFileAtomic(dst, css.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return &Result{Stage: CompileStyles, Status: Completed, Written: []string{env.rel(dst)}}, nil
}
