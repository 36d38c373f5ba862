package stage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"ngbuild/internal/fsutil"
	"ngbuild/internal/markup"
	"ngbuild/internal/registry"
	"ngbuild/internal/toolchain"
)

func runSubstituteCDN(_ context.Context, env *Env) (*Result, error) {
	index := env.prodPath("index.html")
	doc, err := os.ReadFile(index)
	if err != nil {
		if os.IsNotExist(err) {
			return failed(SubstituteCDN, fmt.Errorf("%s: %w", env.rel(index), ErrNoIndex)), nil
		}
		return nil, err
	}

	cdn := markup.NewCDN(env.Config.BowerFiles.CDN, env.Versions)
	out, subs, err := cdn.Substitute(doc)
	if err != nil {
		return failed(SubstituteCDN, err), nil
	}
	for _, s := range subs {
		env.log().Debug("cdn substitution", zap.String("from", s.From), zap.String("to", s.To))
	}
	if err := fsutil.WriteFileAtomic(index, out, 0o644); err != nil {
		return nil, err
	}
	return &Result{Stage: SubstituteCDN, Status: Completed, Written: []string{env.rel(index)}}, nil
}

func runCopyProdAssets(ctx context.Context, env *Env) (*Result, error) {
	return copyImages(ctx, env, CopyProdAssets, false)
}

func runCompressImages(ctx context.Context, env *Env) (*Result, error) {
	return copyImages(ctx, env, CompressImages, true)
}

// copyImages places app images and misc images under the production assets
// directory. Images pass through the image tool when it is configured; with
// requireTool set, an unconfigured tool fails the stage.
func copyImages(ctx context.Context, env *Env, name Name, requireTool bool) (*Result, error) {
	tool := env.Tools.Images
	if requireTool && !tool.Configured() {
		return failed(name, fmt.Errorf("%s: %w", toolchain.Images, toolchain.ErrToolNotConfigured)), nil
	}

	type job struct {
		src registry.File
		dst string
	}
	var jobs []job
	seen := make(map[string]struct{})
	for _, c := range []registry.Category{registry.Image, registry.MiscImage} {
		files, err := env.Registry.Resolve(c, env.Config.Root)
		if err != nil {
			return failed(name, err), nil
		}
		for _, f := range files {
			dst := env.prodPath("assets", filepath.FromSlash(assetRel(f)))
			if _, dup := seen[dst]; dup {
				continue
			}
			seen[dst] = struct{}{}
			jobs = append(jobs, job{src: f, dst: dst})
		}
	}

	var out outcome
	err := forEach(ctx, env.limit(), len(jobs), func(ctx context.Context, i int) error {
		j := jobs[i]
		if !tool.Configured() {
			if err := fsutil.CopyFile(j.src.Abs(), j.dst); err != nil {
				return err
			}
			out.wrote(env.rel(j.dst))
			return nil
		}
		raw, err := os.ReadFile(j.src.Abs())
		if err != nil {
			return err
		}
		compressed, err := tool.Transform(ctx, j.src.Path, raw)
		if err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(j.dst, compressed, 0o644); err != nil {
			return err
		}
		out.wrote(env.rel(j.dst))
		return nil
	})
	if err != nil {
		if toolFailure(err) {
			return failed(name, err), nil
		}
		return nil, err
	}
	return out.result(name, Completed), nil
}

// assetRel places a file relative to the assets directory.
func assetRel(f registry.File) string {
	if rel, ok := cutDir(f.Path, "assets"); ok {
		return rel
	}
	return path.Base(f.Path)
}

func cutDir(p, dir string) (string, bool) {
	prefix := dir + "/"
	if len(p) > len(prefix) && p[:len(prefix)] == prefix {
		return p[len(prefix):], true
	}
	return "", false
}
