package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/driftwise/reach-api/internal/domain"
)

// Catalog holds the validated species and hatch documents, indexed for
// lookup. It is immutable after load.
type Catalog struct {
	species map[string]domain.SpeciesConfig
	hatches map[string]domain.HatchConfig
}

// LoadCatalog reads every species and hatch document and refuses to build a
// catalog containing a single invalid one: the process must not serve scores
// from configuration it cannot trust.
func LoadCatalog(docs DocumentsConfig) (*Catalog, error) {
	species, err := loadSpeciesDir(docs.SpeciesDir)
	if err != nil {
		return nil, err
	}
	hatches, err := loadHatchesDir(docs.HatchesDir)
	if err != nil {
		return nil, err
	}
	return &Catalog{species: species, hatches: hatches}, nil
}

// Species returns the configuration for one species id.
func (c *Catalog) Species(id string) (domain.SpeciesConfig, bool) {
	s, ok := c.species[id]
	return s, ok
}

// AllSpecies returns every species sorted by id.
func (c *Catalog) AllSpecies() []domain.SpeciesConfig {
	out := make([]domain.SpeciesConfig, 0, len(c.species))
	for _, s := range c.species {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllHatches returns every hatch sorted by id.
func (c *Catalog) AllHatches() []domain.HatchConfig {
	out := make([]domain.HatchConfig, 0, len(c.hatches))
	for _, h := range c.hatches {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func loadSpeciesDir(dir string) (map[string]domain.SpeciesConfig, error) {
	out := make(map[string]domain.SpeciesConfig)
	err := eachDocument(dir, func(path string, data []byte) error {
		var s domain.SpeciesConfig
		if err := yaml.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("parse species document %s: %w", path, err)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("species document %s: %w", path, err)
		}
		if _, dup := out[s.ID]; dup {
			return fmt.Errorf("species document %s: duplicate id %q", path, s.ID)
		}
		out[s.ID] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func loadHatchesDir(dir string) (map[string]domain.HatchConfig, error) {
	out := make(map[string]domain.HatchConfig)
	err := eachDocument(dir, func(path string, data []byte) error {
		var h domain.HatchConfig
		if err := yaml.Unmarshal(data, &h); err != nil {
			return fmt.Errorf("parse hatch document %s: %w", path, err)
		}
		if err := h.Validate(); err != nil {
			return fmt.Errorf("hatch document %s: %w", path, err)
		}
		if _, dup := out[h.ID]; dup {
			return fmt.Errorf("hatch document %s: duplicate id %q", path, h.ID)
		}
		out[h.ID] = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// eachDocument calls fn for every *.yaml / *.yml file in dir, in name order.
// A missing directory is an empty catalog, not an error: a deployment may
// serve hydrology without any scoring documents.
func eachDocument(dir string, fn func(path string, data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read document dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read document %s: %w", path, err)
		}
		if err := fn(path, data); err != nil {
			return err
		}
	}
	return nil
}
