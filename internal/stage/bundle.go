package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"ngbuild/internal/config"
	"ngbuild/internal/fsutil"
	"ngbuild/internal/registry"
)

// ErrNoInputs is reported when a bundle has nothing to concatenate.
var ErrNoInputs = errors.New("no input files")

// Units of the script bundle are separated by a statement terminator so a
// file without a trailing semicolon cannot merge into the next one.
const unitSeparator = ";\n"

// concatSources reads every file of sources in order and joins them with sep.
func concatSources(env *Env, sources config.OrderedSources, sep string) ([]byte, int, error) {
	files, err := registry.ResolveSources(env.Config.Root, sources)
	if err != nil {
		return nil, 0, err
	}
	var b bytes.Buffer
	for i, f := range files {
		data, err := os.ReadFile(f.Abs())
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", f.Path, err)
		}
		if i > 0 {
			b.WriteString(sep)
		}
		b.Write(data)
	}
	return b.Bytes(), len(files), nil
}

func runMinifyJS(ctx context.Context, env *Env) (*Result, error) {
	a := env.Config.Artifacts()
	bundle, n, err := concatSources(env, env.Config.BundleSources(), unitSeparator)
	if err != nil {
		return failedOr(MinifyJS, err)
	}
	if n == 0 {
		return failed(MinifyJS, fmt.Errorf("%s: %w", a.ScriptBundle, ErrNoInputs)), nil
	}

	if env.Tools.Annotate.Configured() {
		bundle, err = env.Tools.Annotate.Transform(ctx, a.ScriptBundle, bundle)
		if err != nil {
			return failedOr(MinifyJS, err)
		}
	}

	minified, err := minifyJS(bundle, a.ScriptBundle, env.Config.Minify.Target, env.Config.Minify.Mangle, true)
	if err != nil {
		return failed(MinifyJS, err), nil
	}
	logByteDiff(env, MinifyJS, len(bundle), len(minified.Code))

	code := append(bytes.TrimRight(minified.Code, "\n"), []byte("\n//# sourceMappingURL=../maps/"+a.SourceMap+"\n")...)
	jsPath := env.prodPath("assets", a.ScriptBundle)
	mapPath := env.prodPath("maps", a.SourceMap)
	if err := fsutil.WriteFileAtomic(jsPath, code, 0o644); err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(mapPath, minified.Map, 0o644); err != nil {
		return nil, err
	}
	return &Result{
		Stage:   MinifyJS,
		Status:  Completed,
		Written: []string{env.rel(jsPath), env.rel(mapPath)},
	}, nil
}

func runMinifyCSS(_ context.Context, env *Env) (*Result, error) {
	a := env.Config.Artifacts()
	sheet, n, err := concatSources(env, env.Config.StylesheetSources(), "\n")
	if err != nil {
		return failedOr(MinifyCSS, err)
	}
	if n == 0 {
		return failed(MinifyCSS, fmt.Errorf("%s: %w", a.Stylesheet, ErrNoInputs)), nil
	}

	minified, err := markupMinifier().Bytes("text/css", sheet)
	if err != nil {
		return failed(MinifyCSS, fmt.Errorf("minify %s: %w", a.Stylesheet, err)), nil
	}
	logByteDiff(env, MinifyCSS, len(sheet), len(minified))

	dst := env.prodPath("assets", a.Stylesheet)
	if err := fsutil.WriteFileAtomic(dst, minified, 0o644); err != nil {
		return nil, err
	}
	return &Result{Stage: MinifyCSS, Status: Completed, Written: []string{env.rel(dst)}}, nil
}

func logByteDiff(env *Env, name Name, before, after int) {
	saved := 0.0
	if before > 0 {
		saved = 100 * float64(before-after) / float64(before)
	}
	env.log().Info("minified",
		zap.String("stage", string(name)),
		zap.String("before", humanize.Bytes(uint64(before))),
		zap.String("after", humanize.Bytes(uint64(after))),
		zap.String("saved", fmt.Sprintf("%.1f%%", saved)),
	)
}
