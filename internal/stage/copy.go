package stage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"ngbuild/internal/fsutil"
	"ngbuild/internal/registry"
)

// Copied app and build scripts run in their own strict-mode function.
const (
	wrapPrefix = "(function(){\n\"use strict\";\n"
	wrapSuffix = "\n})();"
)

// Wrap applies the strict-mode function wrapper to a script.
func Wrap(src []byte) []byte {
	out := make([]byte, 0, len(wrapPrefix)+len(src)+len(wrapSuffix))
	out = append(out, wrapPrefix...)
	out = append(out, src...)
	return append(out, wrapSuffix...)
}

// copyGroup maps a set of categories into one destination directory.
type copyGroup struct {
	label      string
	categories []registry.Category
	// base is stripped from source paths. Empty means the pattern's own glob
	// base.
	base string
	dest string
	wrap bool
}

func copyGroups() []copyGroup {
	return []copyGroup{
		{label: "assets", categories: []registry.Category{registry.AppStyle, registry.Image}, base: "assets", dest: "assets"},
		{label: "app-scripts", categories: []registry.Category{registry.AppScript}, dest: "app", wrap: true},
		{label: "build-scripts", categories: []registry.Category{registry.BuildScript}, dest: "scripts", wrap: true},
		{label: "vendor-scripts", categories: []registry.Category{registry.VendorScript}, base: ".", dest: "."},
		{label: "vendor-styles", categories: []registry.Category{registry.VendorStyle}, base: ".", dest: "."},
		{label: "fonts", categories: []registry.Category{registry.Font}, base: ".", dest: "."},
	}
}

type copyJob struct {
	src  registry.File
	dst  string
	wrap bool
}

func runCopy(ctx context.Context, env *Env) (*Result, error) {
	var jobs []copyJob
	seen := make(map[string]struct{})
	for _, g := range copyGroups() {
		for _, c := range g.categories {
			files, err := env.Registry.Resolve(c, env.Config.Root)
			if err != nil {
				return failed(Copy, fmt.Errorf("%s: %w", g.label, err)), nil
			}
			for _, f := range files {
				dst := env.buildPath(filepath.FromSlash(path.Join(g.dest, stripBase(f, g.base))))
				if _, dup := seen[dst]; dup {
					continue
				}
				seen[dst] = struct{}{}
				jobs = append(jobs, copyJob{src: f, dst: dst, wrap: g.wrap})
			}
		}
	}

	var out outcome
	err := forEach(ctx, env.limit(), len(jobs), func(_ context.Context, i int) error {
		j := jobs[i]
		fresh, err := fsutil.UpToDate(j.src.Abs(), j.dst)
		if err != nil {
			return err
		}
		if fresh {
			out.skip()
			return nil
		}
		if err := copyOne(j); err != nil {
			return fmt.Errorf("copy %s: %w", j.src.Path, err)
		}
		out.wrote(env.rel(j.dst))
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := out.result(Copy, Completed)
	env.log().Debug("copy finished", zap.Int("copied", len(res.Written)), zap.Int("unchanged", res.Skipped))
	return res, nil
}

func copyOne(j copyJob) error {
	if !j.wrap {
		return fsutil.CopyFile(j.src.Abs(), j.dst)
	}
	info, err := os.Stat(j.src.Abs())
	if err != nil {
		return err
	}
	src, err := os.ReadFile(j.src.Abs())
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(j.dst, Wrap(src), info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(j.dst, info.ModTime(), info.ModTime())
}

// stripBase returns the part of f's path below base.
func stripBase(f registry.File, base string) string {
	switch base {
	case "":
		return f.Rel
	case ".":
		return f.Path
	}
	if rel, ok := strings.CutPrefix(f.Path, base+"/"); ok {
		return rel
	}
	return f.Rel
}
