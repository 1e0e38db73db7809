package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/QTest-hq/codehealth/internal/parser"
)

// ProjectFileNames are looked up in order in the project root
var ProjectFileNames = []string{".codehealth.yaml", ".codehealth.yml"}

// ProjectConfig represents a .codehealth.yaml file in a project
type ProjectConfig struct {
	Version string `yaml:"version"`

	// File selection
	Extensions  []string `yaml:"extensions,omitempty"`
	Exclude     []string `yaml:"exclude,omitempty"` // doublestar globs relative to the target
	ExcludeDirs []string `yaml:"excludeDirs,omitempty"`
	MaxFiles    int      `yaml:"maxFiles,omitempty"`

	// Dependency graph
	IncludeNpm  bool   `yaml:"includeNpm,omitempty"`
	AliasPrefix string `yaml:"aliasPrefix,omitempty"`

	// include or exclude
	NestedFunctions string `yaml:"nestedFunctions,omitempty"`

	Workers int `yaml:"workers,omitempty"`
}

// DefaultProjectConfig returns sensible defaults
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Version:         "1.0",
		Extensions:      []string{".ts", ".tsx", ".js", ".jsx"},
		ExcludeDirs:     []string{"node_modules", ".git", ".next", "dist", "build", "out", "coverage"},
		AliasPrefix:     "@/",
		NestedFunctions: string(parser.NestedInclude),
		Workers:         3,
	}
}

// LoadProjectConfig loads a .codehealth.yaml from the given directory,
// returning defaults when none exists
func LoadProjectConfig(root string) (*ProjectConfig, error) {
	for _, name := range ProjectFileNames {
		configPath := filepath.Join(root, name)

		data, err := os.ReadFile(configPath)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", configPath, err)
		}

		cfg := DefaultProjectConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
		return cfg, nil
	}

	return DefaultProjectConfig(), nil
}

// SaveProjectConfig saves the config to .codehealth.yaml
func SaveProjectConfig(root string, cfg *ProjectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(root, ProjectFileNames[0]), data, 0644)
}

// Merge applies overrides from another config (e.g., CLI flags)
func (c *ProjectConfig) Merge(other *ProjectConfig) {
	if other == nil {
		return
	}

	if len(other.Extensions) > 0 {
		c.Extensions = other.Extensions
	}

	if len(other.Exclude) > 0 {
		c.Exclude = other.Exclude
	}

	if len(other.ExcludeDirs) > 0 {
		c.ExcludeDirs = other.ExcludeDirs
	}

	if other.MaxFiles != 0 {
		c.MaxFiles = other.MaxFiles
	}

	if other.IncludeNpm {
		c.IncludeNpm = true
	}

	if other.AliasPrefix != "" {
		c.AliasPrefix = other.AliasPrefix
	}

	if other.NestedFunctions != "" {
		c.NestedFunctions = other.NestedFunctions
	}

	if other.Workers != 0 {
		c.Workers = other.Workers
	}
}

// Validate rejects settings the analyzer cannot use
func (c *ProjectConfig) Validate() error {
	if !c.NestedPolicy().Valid() {
		return fmt.Errorf("nestedFunctions must be %q or %q, got %q", parser.NestedInclude, parser.NestedExclude, c.NestedFunctions)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.MaxFiles < 0 {
		return fmt.Errorf("maxFiles must not be negative, got %d", c.MaxFiles)
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return nil
}

// NestedPolicy returns the nested-function policy for the parser
func (c *ProjectConfig) NestedPolicy() parser.NestedFunctionPolicy {
	return parser.NestedFunctionPolicy(c.NestedFunctions)
}
