package stage

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
)

// markupMinifier minifies template fragments and stylesheets. Empty
// attributes, quotes, end tags and default attribute values are kept so
// Angular directives keep working.
func markupMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDefaultAttrVals: true,
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
	})
	return m
}

var esTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es6":    api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

func esTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ES5, nil
	}
	t, ok := esTargets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown minify target %q", name)
	}
	return t, nil
}

// jsOutput is the result of minifying one script.
type jsOutput struct {
	Code []byte
	Map  []byte
}

// minifyJS minifies src. With sourcemap set, an external map is produced for
// sourcefile.
func minifyJS(src []byte, sourcefile, target string, mangle, sourcemap bool) (*jsOutput, error) {
	t, err := esTarget(target)
	if err != nil {
		return nil, err
	}
	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            t,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: mangle,
		Sourcefile:        sourcefile,
		LegalComments:     api.LegalCommentsNone,
	}
	if sourcemap {
		opts.Sourcemap = api.SourceMapExternal
	}
	res := api.Transform(string(src), opts)
	if len(res.Errors) > 0 {
		msgs := api.FormatMessages(res.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return nil, fmt.Errorf("minify %s: %s", sourcefile, strings.TrimSpace(strings.Join(msgs, "\n")))
	}
	return &jsOutput{Code: res.Code, Map: res.Map}, nil
}
