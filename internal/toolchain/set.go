package toolchain

import (
	"io"

	"ngbuild/internal/config"
)

// Tool names, as shown in logs and errors.
const (
	Styles   = "styles"
	Annotate = "annotate"
	Lint     = "lint"
	Test     = "test"
	Images   = "images"
)

// Set is the group of tools a build uses.
type Set struct {
	Styles   *Tool
	Annotate *Tool
	Lint     *Tool
	Test     *Tool
	Images   *Tool
}

// NewSet builds every tool from cfg, running in the project root and
// streaming to out and errOut.
func NewSet(cfg *config.Config, out, errOut io.Writer) *Set {
	mk := func(name string, tc config.ToolConfig) *Tool {
		t := New(name, tc, cfg.Root)
		t.Stdout = out
		t.Stderr = errOut
		return t
	}
	return &Set{
		Styles:   mk(Styles, cfg.Tools.Styles),
		Annotate: mk(Annotate, cfg.Tools.Annotate),
		Lint:     mk(Lint, cfg.Tools.Lint),
		Test:     mk(Test, cfg.Tools.Test),
		Images:   mk(Images, cfg.Tools.Images),
	}
}
