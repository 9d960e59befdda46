package params

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// MapSource is a single flat scope of parameter values.
type MapSource map[string]any

func (m MapSource) Lookup(key string) (any, error) {
	if value, ok := m[key]; ok {
		return value, nil
	}
	return nil, ErrNotFound
}

// ChainSource searches scopes in order; the first scope holding the key
// wins. An empty chain resolves nothing.
type ChainSource []Source

func (c ChainSource) Lookup(key string) (any, error) {
	for _, scope := range c {
		value, err := scope.Lookup(key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// LoadYAMLSource reads one YAML document into a flat scope. An empty
// document yields an empty scope.
func LoadYAMLSource(r io.Reader) (Source, error) {
	var doc map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return MapSource{}, nil
		}
		return nil, fmt.Errorf("parse datasource: %w", err)
	}
	return MapSource(doc), nil
}
