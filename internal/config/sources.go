package config

import "path"

// Artifacts are the generated file names. They are pure functions of the
// project name and version.
type Artifacts struct {
	ScriptBundle    string
	Stylesheet      string
	SourceMap       string
	AppTemplates    string
	CommonTemplates string
}

// Template module names registered with the template cache.
const (
	AppTemplatesModule    = "templates-app"
	CommonTemplatesModule = "templates-common"
)

// Artifacts returns the names of every generated file.
func (c *Config) Artifacts() Artifacts {
	base := c.Project.Name + "-" + c.Project.Version
	return Artifacts{
		ScriptBundle:    base + ".min.js",
		Stylesheet:      base + ".css",
		SourceMap:       base + ".min.js.map",
		AppTemplates:    AppTemplatesModule + ".js",
		CommonTemplates: CommonTemplatesModule + ".js",
	}
}

// SourceGroup is one labelled entry of an OrderedSources list.
//
// Dir is the project-relative directory the patterns are resolved in; emitted
// paths are relative to it. An empty Dir means the project root.
type SourceGroup struct {
	Label    string
	Dir      string
	Patterns Patterns
}

// OrderedSources lists file groups in ascending precedence.
//
// Consumers must preserve the order: groups are concatenated or injected first
// to last, and a file that appears in an earlier group keeps its earlier
// position. In the browser a later reference overrides an earlier one, so a
// group placed later wins conflicts.
type OrderedSources []SourceGroup

// DevInjectSources is what the development index references, resolved inside
// the build tree: vendor scripts, app scripts, build scripts, app styles,
// vendor styles, generated template modules and finally the compiled
// stylesheet.
func (c *Config) DevInjectSources() OrderedSources {
	a := c.Artifacts()
	return OrderedSources{
		{Label: "vendor-scripts", Dir: c.BuildDir, Patterns: c.BowerFiles.JS.Clone()},
		{Label: "app-scripts", Dir: c.BuildDir, Patterns: c.AppFiles.JS.Clone()},
		{Label: "build-scripts", Dir: c.BuildDir, Patterns: c.AppFiles.Scripts.Clone()},
		{Label: "app-styles", Dir: c.BuildDir, Patterns: c.AppFiles.CSS.Clone()},
		{Label: "vendor-styles", Dir: c.BuildDir, Patterns: c.BowerFiles.CSS.Clone()},
		{Label: "template-modules", Dir: c.BuildDir, Patterns: Patterns{a.AppTemplates, a.CommonTemplates}},
		{Label: "compiled-stylesheet", Dir: c.BuildDir, Patterns: Patterns{path.Join("assets", a.Stylesheet)}},
	}
}

// ProdInjectSources is what the production index references. Vendor files are
// emitted with their local paths so the CDN stage can swap them.
func (c *Config) ProdInjectSources() OrderedSources {
	a := c.Artifacts()
	return OrderedSources{
		{Label: "prod-stylesheet", Dir: c.ProdDir, Patterns: Patterns{path.Join("assets", a.Stylesheet)}},
		{Label: "vendor-scripts", Patterns: c.BowerFiles.JS.Clone()},
		{Label: "vendor-styles", Patterns: c.BowerFiles.CSS.Clone()},
		{Label: "prod-bundle", Dir: c.ProdDir, Patterns: Patterns{path.Join("assets", a.ScriptBundle)}},
	}
}

// BundleSources is the concatenation order of the production script bundle.
func (c *Config) BundleSources() OrderedSources {
	a := c.Artifacts()
	return OrderedSources{
		{Label: "app-scripts", Patterns: c.AppFiles.JS.Clone()},
		{Label: "build-scripts", Patterns: c.AppFiles.Scripts.Clone()},
		{Label: "app-templates", Dir: c.BuildDir, Patterns: Patterns{a.AppTemplates}},
	}
}

// StylesheetSources is the concatenation order of the production stylesheet:
// the compiled main stylesheet, then plain app stylesheets so they can
// override it.
func (c *Config) StylesheetSources() OrderedSources {
	a := c.Artifacts()
	return OrderedSources{
		{Label: "compiled-stylesheet", Dir: c.BuildDir, Patterns: Patterns{path.Join("assets", a.Stylesheet)}},
		{Label: "app-styles", Dir: c.BuildDir, Patterns: Patterns{"assets/css/*.css"}},
	}
}
