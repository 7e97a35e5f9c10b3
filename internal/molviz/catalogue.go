package molviz

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogueFile is the name of the catalogue inside a preset directory.
const CatalogueFile = "catalogue.yaml"

//go:embed presets
var embeddedPresets embed.FS

// PresetConfig is one selectable molecule.
type PresetConfig struct {
	Name        string `yaml:"name" json:"name"`
	File        string `yaml:"file" json:"file"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// CatalogueConfig is the on-disk form of the preset catalogue.
type CatalogueConfig struct {
	BasePath  string         `yaml:"base_path" json:"base_path"`
	Molecules []PresetConfig `yaml:"molecules" json:"molecules"`
}

// ValidationError collects multiple validation issues
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid catalogue: unknown validation error"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0]
	}
	return "catalogue validation errors: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

// ParseCatalogueYAML decodes and validates a catalogue.
func ParseCatalogueYAML(data []byte) (CatalogueConfig, error) {
	var cfg CatalogueConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CatalogueConfig{}, fmt.Errorf("invalid catalogue yaml: %w", err)
	}
	if err := ValidateCatalogueConfig(cfg); err != nil {
		return CatalogueConfig{}, err
	}
	return cfg, nil
}

// ValidateCatalogueConfig checks that every preset has a unique name and
// points at a .pdb file that stays inside the base path.
func ValidateCatalogueConfig(cfg CatalogueConfig) error {
	err := &ValidationError{}

	if len(cfg.Molecules) == 0 {
		err.Add("catalogue must list at least one molecule")
	}

	names := make(map[string]bool)
	for i, m := range cfg.Molecules {
		prefix := fmt.Sprintf("molecule at index %d", i)
		if m.Name != "" {
			prefix = "molecule '" + m.Name + "'"
		}

		if m.Name == "" {
			err.Add(prefix + ": name is required")
		} else if names[strings.ToLower(m.Name)] {
			err.Add("duplicate molecule name: " + m.Name)
		} else {
			names[strings.ToLower(m.Name)] = true
		}

		switch {
		case m.File == "":
			err.Add(prefix + ": file is required")
		case ValidateFileName(m.File) != nil:
			err.Add(prefix + ": file '" + m.File + "' must have a .pdb extension")
		case !fs.ValidPath(path.Join(cfg.BasePath, m.File)):
			err.Add(prefix + ": file '" + m.File + "' escapes the base path")
		}
	}

	if err.HasIssues() {
		return err
	}
	return nil
}

// Catalogue is the validated, read-only name -> path mapping.
type Catalogue struct {
	basePath string
	entries  []PresetConfig
	byName   map[string]PresetConfig
}

// NewCatalogue builds a catalogue from a validated config.
func NewCatalogue(cfg CatalogueConfig) (*Catalogue, error) {
	if err := ValidateCatalogueConfig(cfg); err != nil {
		return nil, err
	}
	c := &Catalogue{
		basePath: cfg.BasePath,
		entries:  append([]PresetConfig(nil), cfg.Molecules...),
		byName:   make(map[string]PresetConfig, len(cfg.Molecules)),
	}
	for _, m := range cfg.Molecules {
		c.byName[strings.ToLower(m.Name)] = m
	}
	return c, nil
}

// LoadCatalogue reads the named catalogue from fsys, CatalogueFile when
// name is empty.
func LoadCatalogue(fsys fs.FS, name string) (*Catalogue, error) {
	if name == "" {
		name = CatalogueFile
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseCatalogueYAML(data)
	if err != nil {
		return nil, err
	}
	return NewCatalogue(cfg)
}

// EmbeddedPresets returns the bundled preset filesystem.
func EmbeddedPresets() fs.FS {
	sub, err := fs.Sub(embeddedPresets, "presets")
	if err != nil {
		panic(err)
	}
	return sub
}

// Resolve maps a preset name (case-insensitive) to its path.
func (c *Catalogue) Resolve(name string) (string, error) {
	m, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return path.Join(c.basePath, m.File), nil
}

// Has reports whether name is in the catalogue.
func (c *Catalogue) Has(name string) bool {
	_, ok := c.byName[strings.ToLower(name)]
	return ok
}

// Entries returns the presets in catalogue order.
func (c *Catalogue) Entries() []PresetConfig {
	return append([]PresetConfig(nil), c.entries...)
}

// Default is the first preset, which sessions start with.
func (c *Catalogue) Default() string {
	return c.entries[0].Name
}
