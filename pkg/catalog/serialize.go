package catalog

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

type treeSerializer struct {
	indent int
}

type registryDump struct {
	Name  string `yaml:"name"`
	Items []Item `yaml:"items"`
}

type storeDump struct {
	Catalog    string         `yaml:"catalog"`
	Loaded     bool           `yaml:"loaded"`
	Registries []registryDump `yaml:"registries"`
}

func (ts *treeSerializer) serialize(d storeDump) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(ts.indent)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// getSerializer builds the serializer on first use. Two racing callers may
// both build one; either result is fine.
func (s *Store) getSerializer() *treeSerializer {
	if ts := s.serializer.Load(); ts != nil {
		return ts
	}
	ts := &treeSerializer{indent: 2}
	s.serializer.Store(ts)
	return ts
}

// Serialize dumps the whole registry tree as YAML.
func (s *Store) Serialize() ([]byte, error) {
	d := storeDump{Catalog: s.name, Loaded: s.IsLoaded()}
	for _, r := range s.registries() {
		rd := registryDump{Name: r.name, Items: []Item{}}
		r.snapshot().each(func(h *Handle) {
			rd.Items = append(rd.Items, h.Item())
		})
		d.Registries = append(d.Registries, rd)
	}

	out, err := s.getSerializer().serialize(d)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", s.name, err)
	}
	return out, nil
}

// String returns the serialized tree.
func (s *Store) String() string {
	out, err := s.Serialize()
	if err != nil {
		return fmt.Sprintf("%s[%v]", s.name, err)
	}
	return string(out)
}
