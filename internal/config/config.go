// Package config holds the immutable build configuration for a project.
//
// A Config is built once per invocation by Load and then passed by pointer to
// every stage. Nothing in the build mutates it after Load returns; stages that
// need derived values (artifact names, ordered source lists) call the accessor
// methods, which always return fresh copies.
package config

import (
	"time"
)

// DefaultFileName is the optional project-level override file.
const DefaultFileName = "ngbuild.yaml"

// Config is the complete build configuration.
//
// The zero value is not useful; use Default or Load.
type Config struct {
	// Root is the absolute project root. Every relative path below is resolved
	// against it.
	Root string `yaml:"-"`

	// File is the absolute path of the override file that was applied, if any.
	File string `yaml:"-"`

	// Project is read from package.json and drives artifact naming.
	Project Project `yaml:"-"`

	// BuildDir is where development builds are assembled.
	BuildDir string `yaml:"buildDir"`
	// ProdDir is where the production build is written.
	ProdDir string `yaml:"prodDir"`

	AppFiles   AppFiles   `yaml:"appFiles"`
	TestFiles  TestFiles  `yaml:"testFiles"`
	MiscFiles  MiscFiles  `yaml:"miscFiles"`
	BowerFiles BowerFiles `yaml:"bowerFiles"`

	Tools  Tools        `yaml:"tools"`
	Minify MinifyConfig `yaml:"minify"`
	Server ServerConfig `yaml:"server"`
	CI     CIConfig     `yaml:"ci"`
}

// AppFiles are the patterns for first-party code.
type AppFiles struct {
	// JS is all application javascript, less tests and vendor-copied scripts.
	JS Patterns `yaml:"js"`
	// JSUnit is the application's unit tests.
	JSUnit Patterns `yaml:"jsunit"`
	// Scripts are loose build scripts outside the app tree.
	Scripts Patterns `yaml:"scripts"`

	// AHTML are application templates, CHTML shared component templates.
	AHTML Patterns `yaml:"ahtml"`
	CHTML Patterns `yaml:"chtml"`

	// HTML is the single entry document.
	HTML Patterns `yaml:"html"`

	// Less is the main style-source entry point.
	Less Patterns `yaml:"less"`
	// CSS are plain stylesheets shipped as-is.
	CSS Patterns `yaml:"css"`

	// Assets are static images.
	Assets Patterns `yaml:"assets"`
}

// TestFiles are only used by the unit-test runner.
type TestFiles struct {
	JS Patterns `yaml:"js"`
}

// MiscFiles are copied into production builds.
type MiscFiles struct {
	Img Patterns `yaml:"img"`
}

// BowerFiles are vendor paths under bower_components.
type BowerFiles struct {
	JS     Patterns     `yaml:"js"`
	CSS    Patterns     `yaml:"css"`
	Assets Patterns     `yaml:"assets"`
	Fonts  Patterns     `yaml:"fonts"`
	CDN    []CdnMapping `yaml:"cdn"`
}

// CdnMapping replaces a local vendor reference with a hosted copy in
// production builds.
//
// File must equal the path emitted into the injected markup. Package names the
// bower package whose installed version fills the ${version} placeholder.
type CdnMapping struct {
	File    string `yaml:"file"`
	Package string `yaml:"package"`
	CDN     string `yaml:"cdn"`
}

// ToolConfig describes an external command. See package toolchain for the
// invocation contract.
type ToolConfig struct {
	Command string            `yaml:"command"`
	Env     map[string]string `yaml:"env,omitempty"`
	PassEnv []string          `yaml:"passEnv,omitempty"`
}

// Tools are the external collaborators.
type Tools struct {
	Styles   ToolConfig `yaml:"styles"`
	Annotate ToolConfig `yaml:"annotate"`
	Lint     ToolConfig `yaml:"lint"`
	Test     ToolConfig `yaml:"test"`
	Images   ToolConfig `yaml:"images"`
}

// MinifyConfig tunes the in-process minifiers.
type MinifyConfig struct {
	// Mangle renames local identifiers in the production bundle.
	Mangle bool `yaml:"mangle"`
	// Target is the esbuild language target, e.g. "es5" or "es2015".
	Target string `yaml:"target"`
}

// ServerConfig configures the development server used by watch mode.
type ServerConfig struct {
	Port     int           `yaml:"port"`
	Debounce time.Duration `yaml:"debounce"`
}

// CIConfig configures the optional remote CI handoff. Credentials are never
// part of this struct; TokenEnv names the environment variable holding them.
type CIConfig struct {
	Endpoint string `yaml:"endpoint"`
	TokenEnv string `yaml:"tokenEnv"`
}

// Default returns the stock configuration for an Angular project laid out as
// app/, scripts/, assets/ and bower_components/.
func Default() *Config {
	return &Config{
		BuildDir: "build",
		ProdDir:  "dist",
		AppFiles: AppFiles{
			JS:      Patterns{"app/**/*.js", "!app/**/*.spec.js", "!scripts/**/*.spec.js", "!assets/**/*.js"},
			JSUnit:  Patterns{"src/**/*.spec.js"},
			Scripts: Patterns{"scripts/*.js"},
			AHTML:   Patterns{"app/**/*.html"},
			CHTML:   Patterns{},
			HTML:    Patterns{"index.html"},
			Less:    Patterns{"assets/less/main.less"},
			CSS:     Patterns{"assets/css/custom.css"},
			Assets:  Patterns{"assets/img/**/*"},
		},
		TestFiles: TestFiles{
			JS: Patterns{"vendor/angular-mocks/angular-mocks.js"},
		},
		MiscFiles: MiscFiles{
			Img: Patterns{"assets/img/favicon.png"},
		},
		BowerFiles: BowerFiles{
			JS: Patterns{
				"bower_components/angular/angular.js",
				"bower_components/ng-table/dist/ng-table.js",
				"bower_components/Chart.js/Chart.js",
				"bower_components/angular-chart.js/angular-chart.js",
				"bower_components/angular-ui-router/release/angular-ui-router.js",
				"bower_components/angular-ui-bootstrap-bower/ui-bootstrap.js",
				"bower_components/angular-ui-bootstrap-bower/ui-bootstrap-tpls.js",
				"bower_components/angular-aria/angular-aria.js",
			},
			CSS: Patterns{
				"bower_components/bootstrap/dist/css/bootstrap.min.css",
				"bower_components/fontawesome/css/font-awesome.min.css",
				"bower_components/ng-table/ng-table.css",
			},
			Assets: Patterns{},
			Fonts:  Patterns{"bower_components/fontawesome/fonts/*"},
			CDN: []CdnMapping{
				{File: "bower_components/angular/angular.js", Package: "angular", CDN: "//ajax.googleapis.com/ajax/libs/angularjs/${version}/angular.min.js"},
				{File: "bower_components/ng-table/ng-table.js", Package: "ng-table", CDN: "//cdnjs.cloudflare.com/ajax/libs/ng-table/${version}/ng-table.js"},
				{File: "bower_components/angular-ui-router/release/angular-ui-router.js", Package: "angular-ui-router", CDN: "//cdnjs.cloudflare.com/ajax/libs/angular-ui-router/${version}/angular-ui-router.js"},
				{File: "bower_components/angular-ui-bootstrap-bower/ui-bootstrap.js", Package: "angular-ui-bootstrap-bower", CDN: "//cdnjs.cloudflare.com/ajax/libs/angular-ui-bootstrap/${version}/ui-bootstrap.js"},
				{File: "bower_components/angular-ui-bootstrap-bower/ui-bootstrap-tpls.js", Package: "angular-ui-bootstrap-bower", CDN: "//cdnjs.cloudflare.com/ajax/libs/angular-ui-bootstrap/${version}/ui-bootstrap-tpls.js"},
				{File: "bower_components/angular-aria/angular-aria.js", Package: "angular-aria", CDN: "//cdnjs.cloudflare.com/ajax/libs/angular.js/${version}/angular-aria.js"},
				{File: "bower_components/bootstrap/dist/css/bootstrap.min.css", Package: "bootstrap", CDN: "https://maxcdn.bootstrapcdn.com/bootstrap/${version}/css/bootstrap.min.css"},
				{File: "bower_components/fontawesome/css/font-awesome.min.css", Package: "fontawesome", CDN: "https://maxcdn.bootstrapcdn.com/font-awesome/${version}/css/font-awesome.min.css"},
				{File: "bower_components/ng-table/ng-table.css", Package: "ng-table", CDN: "//cdnjs.cloudflare.com/ajax/libs/ng-table/${version}/ng-table.css"},
			},
		},
		Tools: Tools{
			Styles:   ToolConfig{Command: `npx lessc "$1"`},
			Annotate: ToolConfig{Command: "npx ng-annotate --add -"},
			Lint:     ToolConfig{Command: "npx jshint --reporter=node_modules/jshint-stylish"},
			Test:     ToolConfig{Command: "npx karma start karma.conf.js --single-run"},
		},
		Minify: MinifyConfig{Mangle: true, Target: "es5"},
		Server: ServerConfig{Port: 1337, Debounce: 100 * time.Millisecond},
		CI:     CIConfig{TokenEnv: "NGBUILD_CI_TOKEN"},
	}
}
