package markup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrVersionNotFound is returned when a package has no readable version.
var ErrVersionNotFound = errors.New("package version not found")

// BowerVersions reads installed versions from bower_components.
//
// The installed .bower.json is preferred over bower.json. Lookups are cached
// for the lifetime of the value.
type BowerVersions struct {
	dir   string
	cache *lru.Cache[string, string]
}

// NewBowerVersions reads packages under root/bower_components.
func NewBowerVersions(root string) *BowerVersions {
	// Size is fixed and positive, so New cannot fail.
	cache, _ := lru.New[string, string](64)
	return &BowerVersions{dir: filepath.Join(root, "bower_components"), cache: cache}
}

// Version returns the installed version of pkg.
func (b *BowerVersions) Version(pkg string) (string, error) {
	if v, ok := b.cache.Get(pkg); ok {
		return v, nil
	}
	for _, name := range []string{".bower.json", "bower.json"} {
		v, err := readVersion(filepath.Join(b.dir, pkg, name))
		if err != nil {
			return "", err
		}
		if v != "" {
			b.cache.Add(pkg, v)
			return v, nil
		}
	}
	return "", fmt.Errorf("%s: %w", pkg, ErrVersionNotFound)
}

func readVersion(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var manifest struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(b, &manifest); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return strings.TrimPrefix(strings.TrimSpace(manifest.Version), "v"), nil
}
