package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fixtures/internal/engine"
	"github.com/roach88/fixtures/internal/ir"
)

// Manifest is a set of recipe lists keyed by entity type.
type Manifest struct {
	Entities map[string][]ir.Recipe `yaml:"entities" json:"entities"`

	// Source is the file or directory the manifest was loaded from.
	Source string `yaml:"-" json:"-"`
}

// Registrar accepts recipe lists. *engine.Resolver implements it.
type Registrar interface {
	Register(ctx context.Context, entityType string, recipes []ir.Recipe) error
}

// ErrEmpty is returned for manifests without entities.
var ErrEmpty = errors.New("manifest declares no entities")

// Load reads a manifest from path, choosing the format by extension.
// A directory is loaded as a CUE package.
func Load(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if info.IsDir() {
		return LoadCUEDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m *Manifest
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		m, err = ParseYAML(data)
	case ".cue":
		m, err = ParseCUE(path, data)
	default:
		return nil, fmt.Errorf("unsupported manifest extension %q (want .yaml, .yml or .cue)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Source = path
	return m, nil
}

// ParseYAML parses and validates a YAML manifest.
// Unknown fields are rejected so typos fail loudly.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// EntityTypes returns the declared entity types in sorted order.
func (m *Manifest) EntityTypes() []string {
	names := make([]string, 0, len(m.Entities))
	for name := range m.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keys returns every declared fixture key, sorted by entity type and then
// in declaration order.
func (m *Manifest) Keys() []ir.FixtureKey {
	var keys []ir.FixtureKey
	for _, entity := range m.EntityTypes() {
		for _, rc := range m.Entities[entity] {
			keys = append(keys, ir.Key(entity, rc.SetName))
		}
	}
	return keys
}

// Len returns the number of recipes in the manifest.
func (m *Manifest) Len() int {
	n := 0
	for _, recipes := range m.Entities {
		n += len(recipes)
	}
	return n
}

// Validate checks every recipe list the way registration would.
// The first invalid entity type, in sorted order, is reported.
func (m *Manifest) Validate() error {
	if len(m.Entities) == 0 {
		return ErrEmpty
	}
	for _, entity := range m.EntityTypes() {
		if err := engine.ValidateRecipes(entity, m.Entities[entity]); err != nil {
			return err
		}
	}
	return nil
}

// Register registers every entity type's recipe list with r, in sorted
// order, stopping at the first error.
func (m *Manifest) Register(ctx context.Context, r Registrar) error {
	for _, entity := range m.EntityTypes() {
		if err := r.Register(ctx, entity, m.Entities[entity]); err != nil {
			return fmt.Errorf("register %s: %w", entity, err)
		}
	}
	return nil
}
