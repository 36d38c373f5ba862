// Package registry classifies project files into named categories.
//
// Every category is an ordered list of glob patterns relative to a root.
// Patterns are evaluated each time a category is resolved, so a stage always
// sees files produced by the stages before it.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"ngbuild/internal/config"
)

// Category names a class of project files.
type Category string

const (
	AppScript        Category = "app-script"
	AppScriptTest    Category = "app-script-test"
	BuildScript      Category = "build-script"
	VendorScript     Category = "vendor-script"
	AppStyleSource   Category = "app-style-source"
	AppStyle         Category = "app-style"
	VendorStyle      Category = "vendor-style"
	AppTemplate      Category = "app-template"
	CommonTemplate   Category = "common-template"
	TopLevelHTML     Category = "top-level-html"
	Font             Category = "font"
	Image            Category = "image"
	VendorAsset      Category = "vendor-asset"
	TestVendorScript Category = "test-vendor-script"
	MiscImage        Category = "misc-image"
)

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{
		AppScript, AppScriptTest, BuildScript, VendorScript,
		AppStyleSource, AppStyle, VendorStyle,
		AppTemplate, CommonTemplate, TopLevelHTML,
		Font, Image, VendorAsset, TestVendorScript, MiscImage,
	}
}

// File is one resolved file.
type File struct {
	// Root is the absolute directory the patterns were resolved in.
	Root string
	// Path is slash-separated and relative to Root.
	Path string
	// Base is the static prefix of the pattern that matched.
	Base string
	// Rel is Path relative to Base.
	Rel string
}

// Abs returns the absolute OS path of the file.
func (f File) Abs() string {
	return filepath.Join(f.Root, filepath.FromSlash(f.Path))
}

// PatternError reports a malformed glob pattern.
type PatternError struct {
	Category Category
	Pattern  string
	Reason   string
}

func (e *PatternError) Error() string {
	if e.Category == "" {
		return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Reason)
	}
	return fmt.Sprintf("category %s: invalid pattern %q: %s", e.Category, e.Pattern, e.Reason)
}

// Registry maps categories to their pattern lists.
type Registry struct {
	patterns map[Category]config.Patterns
}

// New builds a registry from cfg and validates every pattern.
func New(cfg *config.Config) (*Registry, error) {
	r := &Registry{patterns: map[Category]config.Patterns{
		AppScript:        cfg.AppFiles.JS.Clone(),
		AppScriptTest:    cfg.AppFiles.JSUnit.Clone(),
		BuildScript:      cfg.AppFiles.Scripts.Clone(),
		VendorScript:     cfg.BowerFiles.JS.Clone(),
		AppStyleSource:   cfg.AppFiles.Less.Clone(),
		AppStyle:         cfg.AppFiles.CSS.Clone(),
		VendorStyle:      cfg.BowerFiles.CSS.Clone(),
		AppTemplate:      cfg.AppFiles.AHTML.Clone(),
		CommonTemplate:   cfg.AppFiles.CHTML.Clone(),
		TopLevelHTML:     cfg.AppFiles.HTML.Clone(),
		Font:             cfg.BowerFiles.Fonts.Clone(),
		Image:            cfg.AppFiles.Assets.Clone(),
		VendorAsset:      cfg.BowerFiles.Assets.Clone(),
		TestVendorScript: cfg.TestFiles.JS.Clone(),
		MiscImage:        cfg.MiscFiles.Img.Clone(),
	}}
	for _, c := range Categories() {
		for _, p := range r.patterns[c] {
			if err := validatePattern(p); err != nil {
				err.Category = c
				return nil, err
			}
		}
	}
	return r, nil
}

// Patterns returns a copy of the patterns of c.
func (r *Registry) Patterns(c Category) config.Patterns {
	return r.patterns[c].Clone()
}

// Resolve expands the patterns of c under root.
func (r *Registry) Resolve(c Category, root string) ([]File, error) {
	p, ok := r.patterns[c]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", c)
	}
	files, err := ResolvePatterns(p, root)
	if err != nil {
		var pe *PatternError
		if errors.As(err, &pe) {
			pe.Category = c
		}
		return nil, err
	}
	return files, nil
}

// Match reports whether the root-relative slash path belongs to c.
func (r *Registry) Match(c Category, rel string) bool {
	return MatchPatterns(r.patterns[c], rel)
}

// Classify returns every category rel belongs to, in Categories order.
func (r *Registry) Classify(rel string) []Category {
	var out []Category
	for _, c := range Categories() {
		if r.Match(c, rel) {
			out = append(out, c)
		}
	}
	return out
}

// ResolvePatterns expands an ordered pattern list under root.
//
// Inclusion patterns are expanded in order; the matches of each pattern are
// sorted lexically and a file keeps the position of the first pattern that
// matched it. Negated patterns are applied after all inclusions. Directories
// are never returned and a pattern that matches nothing is not an error.
func ResolvePatterns(patterns config.Patterns, root string) ([]File, error) {
	if len(patterns) == 0 {
		return []File{}, nil
	}
	root = filepath.Clean(root)
	fsys := os.DirFS(root)

	var negations []string
	seen := make(map[string]struct{})
	out := make([]File, 0)

	for _, p := range patterns {
		if err := validatePattern(p); err != nil {
			return nil, err
		}
		if neg, ok := negated(p); ok {
			negations = append(negations, neg)
			continue
		}
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding pattern %q: %w", p, err)
		}
		// Explicitly sorted: directory read order is not part of the contract.
		sort.Strings(matches)

		base := Base(p)
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, File{Root: root, Path: m, Base: base, Rel: relTo(base, m)})
		}
	}

	if len(negations) == 0 {
		return out, nil
	}
	kept := out[:0]
	for _, f := range out {
		if !matchAny(negations, f.Path) {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

// MatchPatterns reports whether rel is selected by patterns: some inclusion
// matches and no negation does.
func MatchPatterns(patterns config.Patterns, rel string) bool {
	rel = path.Clean(filepath.ToSlash(rel))
	included := false
	for _, p := range patterns {
		if neg, ok := negated(p); ok {
			if m, _ := doublestar.Match(neg, rel); m {
				return false
			}
			continue
		}
		if !included {
			if m, _ := doublestar.Match(p, rel); m {
				included = true
			}
		}
	}
	return included
}

// Base returns the static directory prefix of a pattern, "." when there is
// none. For a literal path it is the containing directory.
func Base(pattern string) string {
	if neg, ok := negated(pattern); ok {
		pattern = neg
	}
	base, _ := doublestar.SplitPattern(pattern)
	if base == "" {
		return "."
	}
	return base
}

func relTo(base, p string) string {
	if base == "." {
		return p
	}
	return strings.TrimPrefix(p, base+"/")
}

func negated(p string) (string, bool) {
	if strings.HasPrefix(p, "!") {
		return p[1:], true
	}
	return p, false
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if m, _ := doublestar.Match(p, rel); m {
			return true
		}
	}
	return false
}

func validatePattern(p string) *PatternError {
	raw, _ := negated(p)
	switch {
	case strings.TrimSpace(raw) == "":
		return &PatternError{Pattern: p, Reason: "empty pattern"}
	case strings.HasPrefix(raw, "/") || filepath.IsAbs(raw):
		return &PatternError{Pattern: p, Reason: "must be relative to the project root"}
	case !fs.ValidPath(strings.TrimSuffix(raw, "/")):
		return &PatternError{Pattern: p, Reason: "must not contain . or .. segments"}
	case !doublestar.ValidatePattern(raw):
		return &PatternError{Pattern: p, Reason: "malformed glob"}
	}
	return nil
}
