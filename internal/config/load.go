package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error reports an invalid or unreadable configuration.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Project is the name/version pair from package.json.
type Project struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Load builds the configuration for the project at root.
//
// root must be absolute. file is the override file; when empty, ngbuild.yaml
// under root is used if it exists. An explicitly named file that does not
// exist is an error.
func Load(root, file string) (*Config, error) {
	root = filepath.Clean(root)
	if !filepath.IsAbs(root) {
		return nil, &Error{Err: fmt.Errorf("project root must be absolute (got %q)", root)}
	}

	cfg := Default()
	cfg.Root = root

	explicit := strings.TrimSpace(file) != ""
	if !explicit {
		file = DefaultFileName
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(root, file)
	}

	b, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := decodeOverrides(b, cfg); err != nil {
			return nil, &Error{Path: file, Err: err}
		}
		cfg.File = file
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, &Error{Path: file, Err: err}
	}

	project, err := readProject(filepath.Join(root, "package.json"))
	if err != nil {
		return nil, err
	}
	cfg.Project = project

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeOverrides(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func readProject(path string) (Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Project{}, &Error{Path: path, Err: err}
	}
	var p Project
	if err := json.Unmarshal(b, &p); err != nil {
		return Project{}, &Error{Path: path, Err: fmt.Errorf("parse package.json: %w", err)}
	}
	if strings.TrimSpace(p.Name) == "" {
		return Project{}, &Error{Path: path, Err: errors.New("package.json has no name")}
	}
	if strings.TrimSpace(p.Version) == "" {
		return Project{}, &Error{Path: path, Err: errors.New("package.json has no version")}
	}
	return p, nil
}

// Validate checks the structural invariants every stage relies on.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BuildDir) == "" {
		errs = append(errs, errors.New("buildDir is required"))
	}
	if strings.TrimSpace(c.ProdDir) == "" {
		errs = append(errs, errors.New("prodDir is required"))
	}
	if c.BuildDir != "" && c.ProdDir != "" && filepath.Clean(c.BuildDir) == filepath.Clean(c.ProdDir) {
		errs = append(errs, errors.New("buildDir and prodDir must differ"))
	}
	for _, d := range []string{c.BuildDir, c.ProdDir} {
		clean := filepath.Clean(d)
		if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
			errs = append(errs, fmt.Errorf("output dir %q must be a subdirectory of the project root", d))
		}
	}
	for i, m := range c.BowerFiles.CDN {
		if m.File == "" || m.Package == "" || m.CDN == "" {
			errs = append(errs, fmt.Errorf("bowerFiles.cdn[%d]: file, package and cdn are required", i))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if len(errs) == 0 {
		return nil
	}
	return &Error{Path: c.File, Err: errors.Join(errs...)}
}

// Abs resolves a project-relative path.
func (c *Config) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(c.Root, filepath.FromSlash(rel))
}

// BuildRoot is the absolute development output directory.
func (c *Config) BuildRoot() string { return c.Abs(c.BuildDir) }

// ProdRoot is the absolute production output directory.
func (c *Config) ProdRoot() string { return c.Abs(c.ProdDir) }
