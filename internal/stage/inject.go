package stage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"ngbuild/internal/config"
	"ngbuild/internal/fsutil"
	"ngbuild/internal/markup"
	"ngbuild/internal/registry"
)

// ErrNoIndex is reported when no top-level html document matches.
var ErrNoIndex = errors.New("no top-level html document")

func runInjectReferences(_ context.Context, env *Env) (*Result, error) {
	dst, err := injectIndex(env, env.Config.DevInjectSources(), env.buildPath("index.html"))
	if err != nil {
		return failedOr(InjectReferences, err)
	}
	return &Result{Stage: InjectReferences, Status: Completed, Written: []string{env.rel(dst)}}, nil
}

func runBuildProdIndex(_ context.Context, env *Env) (*Result, error) {
	dst, err := injectIndex(env, env.Config.ProdInjectSources(), env.prodPath("index.html"))
	if err != nil {
		return failedOr(BuildProdIndex, err)
	}
	return &Result{Stage: BuildProdIndex, Status: Completed, Written: []string{env.rel(dst)}}, nil
}

// injectIndex reads the entry document, injects the resolved sources in
// order and writes it to dst.
func injectIndex(env *Env, sources config.OrderedSources, dst string) (string, error) {
	index, err := entryDocument(env)
	if err != nil {
		return "", err
	}
	doc, err := os.ReadFile(index.Abs())
	if err != nil {
		return "", err
	}

	files, err := registry.ResolveSources(env.Config.Root, sources)
	if err != nil {
		return "", err
	}
	refs := registry.Paths(files)

	out, err := markup.Inject(doc, refs)
	if err != nil {
		return "", fmt.Errorf("%s: %w", index.Path, err)
	}
	if err := fsutil.WriteFileAtomic(dst, out, 0o644); err != nil {
		return "", err
	}
	env.log().Debug("injected references", zap.String("path", env.rel(dst)), zap.Int("refs", len(refs)))
	return dst, nil
}

func entryDocument(env *Env) (registry.File, error) {
	docs, err := env.Registry.Resolve(registry.TopLevelHTML, env.Config.Root)
	if err != nil {
		return registry.File{}, err
	}
	if len(docs) == 0 {
		return registry.File{}, ErrNoIndex
	}
	return docs[0], nil
}

// failedOr turns input problems into a Failed result and passes other
// errors through.
func failedOr(name Name, err error) (*Result, error) {
	var re *markup.RegionError
	if toolFailure(err) || errors.As(err, &re) || errors.Is(err, ErrNoIndex) {
		return failed(name, err), nil
	}
	return nil, err
}
