// Package watch re-runs the stages affected by source edits and asks the
// browser to reload once they finish.
package watch

import (
	"path"
	"path/filepath"
	"strings"

	"ngbuild/internal/config"
	"ngbuild/internal/registry"
	"ngbuild/internal/stage"
)

// Group is a set of source files that share a rebuild.
type Group string

const (
	GroupStyles    Group = "styles"
	GroupAssets    Group = "assets"
	GroupTemplates Group = "templates"
	GroupIndex     Group = "index"
)

// Groups is the fixed dispatch order.
var Groups = []Group{GroupStyles, GroupAssets, GroupTemplates, GroupIndex}

// Stages returns what a change in g re-runs.
func (g Group) Stages() []stage.Name {
	switch g {
	case GroupStyles:
		return []stage.Name{stage.CompileStyles}
	case GroupAssets:
		return []stage.Name{stage.Copy}
	case GroupTemplates:
		return []stage.Name{stage.CompileTemplates}
	case GroupIndex:
		return []stage.Name{stage.Copy, stage.InjectReferences}
	default:
		return nil
	}
}

var groupCategories = map[Group][]registry.Category{
	GroupStyles:    {registry.AppStyleSource},
	GroupAssets:    {registry.AppScript, registry.BuildScript, registry.AppStyle, registry.Image},
	GroupTemplates: {registry.AppTemplate, registry.CommonTemplate},
	GroupIndex:     {registry.TopLevelHTML},
}

// Classifier maps project-relative paths to groups.
type Classifier struct {
	reg        *registry.Registry
	configFile string
	lessDir    []string
}

// NewClassifier builds a classifier for cfg. Edits to the override file count
// as index changes. Any .less file next to or below a style entry point
// counts as a style change, since entry points import their siblings.
func NewClassifier(cfg *config.Config, reg *registry.Registry) *Classifier {
	c := &Classifier{reg: reg, configFile: config.DefaultFileName}
	if cfg.File != "" {
		if rel, err := filepath.Rel(cfg.Root, cfg.File); err == nil {
			c.configFile = filepath.ToSlash(rel)
		}
	}
	for _, p := range reg.Patterns(registry.AppStyleSource) {
		c.lessDir = append(c.lessDir, registry.Base(p))
	}
	return c
}

// Classify returns the groups rel belongs to, in dispatch order.
func (c *Classifier) Classify(rel string) []Group {
	rel = path.Clean(filepath.ToSlash(rel))
	var out []Group
	for _, g := range Groups {
		if c.in(g, rel) {
			out = append(out, g)
		}
	}
	return out
}

func (c *Classifier) in(g Group, rel string) bool {
	if g == GroupIndex && rel == c.configFile {
		return true
	}
	if g == GroupStyles && path.Ext(rel) == ".less" {
		for _, d := range c.lessDir {
			if d == "." || strings.HasPrefix(rel, d+"/") {
				return true
			}
		}
	}
	for _, cat := range groupCategories[g] {
		if c.reg.Match(cat, rel) {
			return true
		}
	}
	return false
}
