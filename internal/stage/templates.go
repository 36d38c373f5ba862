package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"ngbuild/internal/config"
	"ngbuild/internal/fsutil"
	"ngbuild/internal/registry"
)

type templateSet struct {
	category registry.Category
	module   string
	file     string
}

func runCompileTemplates(ctx context.Context, env *Env) (*Result, error) {
	a := env.Config.Artifacts()
	sets := []templateSet{
		{category: registry.AppTemplate, module: config.AppTemplatesModule, file: a.AppTemplates},
		{category: registry.CommonTemplate, module: config.CommonTemplatesModule, file: a.CommonTemplates},
	}

	var out outcome
	for _, s := range sets {
		files, err := env.Registry.Resolve(s.category, env.Config.Root)
		if err != nil {
			return failed(CompileTemplates, err), nil
		}
		if len(files) == 0 {
			env.log().Debug("no templates", zap.String("module", s.module))
			continue
		}

		module, err := TemplateModule(ctx, s.module, files, env.limit())
		if err != nil {
			return failed(CompileTemplates, err), nil
		}
		minified, err := minifyJS(module, s.file, env.Config.Minify.Target, env.Config.Minify.Mangle, false)
		if err != nil {
			return failed(CompileTemplates, err), nil
		}

		dst := env.buildPath(s.file)
		if err := fsutil.WriteFileAtomic(dst, minified.Code, 0o644); err != nil {
			return nil, err
		}
		out.wrote(env.rel(dst))
		env.log().Debug("compiled templates", zap.String("module", s.module), zap.Int("files", len(files)))
	}
	return out.result(CompileTemplates, Completed), nil
}

// TemplateModule minifies each template and registers it with
// $templateCache under its path relative to the pattern base. Fragments keep
// the order of files.
func TemplateModule(ctx context.Context, module string, files []registry.File, limit int) ([]byte, error) {
	m := markupMinifier()
	fragments := make([][]byte, len(files))
	err := forEach(ctx, limit, len(files), func(_ context.Context, i int) error {
		raw, err := os.ReadFile(files[i].Abs())
		if err != nil {
			return err
		}
		tpl, err := m.Bytes("text/html", raw)
		if err != nil {
			return fmt.Errorf("minify %s: %w", files[i].Path, err)
		}
		fragments[i], err = templateFragment(module, files[i].Rel, tpl)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bytes.Join(fragments, []byte("\n")), nil
}

func templateFragment(module, key string, html []byte) ([]byte, error) {
	mod, err := jsString(module)
	if err != nil {
		return nil, err
	}
	k, err := jsString(key)
	if err != nil {
		return nil, err
	}
	body, err := jsString(string(html))
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString("(function(module) {\n")
	b.WriteString("try {\n  module = angular.module(")
	b.Write(mod)
	b.WriteString(");\n} catch (e) {\n  module = angular.module(")
	b.Write(mod)
	b.WriteString(", []);\n}\n")
	b.WriteString("module.run(['$templateCache', function($templateCache) {\n  $templateCache.put(")
	b.Write(k)
	b.WriteString(",\n    ")
	b.Write(body)
	b.WriteString(");\n}]);\n})();\n")
	return b.Bytes(), nil
}

// jsString quotes s as a JavaScript string literal. Markup characters are
// left readable.
func jsString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
