// Package config provides the hierarchical section/key configuration store
// consumed by the task framework. Parsing of vendor configuration formats
// is an external concern; this package ships a YAML-backed loader with
// profile overlays.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// A Store maps section names to key/value pairs.
type Store struct {
	sections map[string]map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sections: make(map[string]map[string]string)}
}

// Set assigns one key in a section.
func (s *Store) Set(section, key, value string) {
	sec, found := s.sections[section]
	if !found {
		sec = make(map[string]string)
		s.sections[section] = sec
	}
	sec[key] = value
}

// Section returns the key/value pairs of a section. A missing section
// yields an empty map, so tasks fall back to parameter defaults.
func (s *Store) Section(name string) map[string]string {
	sec, found := s.sections[name]
	if !found {
		return map[string]string{}
	}
	return sec
}

// Sections lists the section names present in the store.
func (s *Store) Sections() []string {
	names := make([]string, 0, len(s.sections))
	for n := range s.sections {
		names = append(names, n)
	}
	return names
}

type fileFormat struct {
	Sections map[string]map[string]string            `yaml:"sections"`
	Profiles map[string]map[string]map[string]string `yaml:"profiles"`
}

// Load reads a configuration file and applies the overlay of the selected
// profile, if any. Profile values override base section values.
func Load(path, profile string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	s := NewStore()
	for sec, kv := range f.Sections {
		for k, v := range kv {
			s.Set(sec, k, v)
		}
	}

	if profile != "" {
		overlay, found := f.Profiles[profile]
		if !found {
			return nil, fmt.Errorf("profile %q not defined in %s", profile, path)
		}
		for sec, kv := range overlay {
			for k, v := range kv {
				s.Set(sec, k, v)
			}
		}
	}

	return s, nil
}
