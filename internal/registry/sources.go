package registry

import (
	"fmt"
	"path/filepath"

	"ngbuild/internal/config"
)

// ResolveSources expands an ordered source list under the project root.
//
// Each group is resolved in its own directory and the results are appended in
// group order. A file already emitted by an earlier group is not repeated.
func ResolveSources(projectRoot string, sources config.OrderedSources) ([]File, error) {
	var out []File
	seen := make(map[string]struct{})
	for _, g := range sources {
		dir := projectRoot
		if g.Dir != "" {
			dir = filepath.Join(projectRoot, filepath.FromSlash(g.Dir))
		}
		files, err := ResolvePatterns(g.Patterns, dir)
		if err != nil {
			return nil, fmt.Errorf("source group %s: %w", g.Label, err)
		}
		for _, f := range files {
			key := f.Abs()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, f)
		}
	}
	return out, nil
}

// Paths returns the Path of every file, in order.
func Paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}
