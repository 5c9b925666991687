// Package modules loads user-defined capture module definitions from a YAML
// registry file and syncs them into the store so the classifier can offer
// them as targets.
package modules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// Definition is one module entry in the registry file.
type Definition struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Fields      []para.ModuleField `yaml:"fields,omitempty"`
}

// Registry is the parsed registry file.
type Registry struct {
	Modules []Definition `yaml:"modules"`
}

// Load parses and validates the registry file. A missing file is not an
// error; it yields an empty registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{}, nil
		}
		return nil, fmt.Errorf("read module registry: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse module registry: %w", err)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	seen := make(map[string]bool, len(r.Modules))
	for i, m := range r.Modules {
		if m.ID == "" || m.Name == "" {
			return fmt.Errorf("module registry: entry %d missing id or name", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("module registry: duplicate id %q", m.ID)
		}
		seen[m.ID] = true
		for _, f := range m.Fields {
			if f.Key == "" {
				return fmt.Errorf("module registry: module %q has a field with no key", m.ID)
			}
			if f.Type != "" && f.Type != "number" && f.Type != "text" {
				return fmt.Errorf("module registry: module %q field %q: unknown type %q", m.ID, f.Key, f.Type)
			}
		}
	}
	return nil
}

// Records converts the registry into store records.
func (r *Registry) Records() []para.Module {
	out := make([]para.Module, 0, len(r.Modules))
	for _, m := range r.Modules {
		out = append(out, para.Module{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			Fields:      m.Fields,
		})
	}
	return out
}
