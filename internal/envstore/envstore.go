// Package envstore backs the last rule of the Instance Host's
// constructor-parameter classification (§4.4): a primitive parameter
// without a default is resolved from a per-photon env store keyed
// (photon, paramName), then from the process environment, else the
// load is rejected.
package envstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/photon-run/photond/internal/config"
)

// Store is a flat string map persisted at ${HOME}/.photon/env/<P>.json.
type Store struct {
	values map[string]string
}

// Load reads the env store for a photon. A missing file yields an
// empty store rather than an error — most photons never need it.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Store{values: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load env store: %w", err)
	}
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse env store %s: %w", path, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return &Store{values: values}, nil
}

// Save writes the store back atomically with restrictive permissions.
func (s *Store) Save(path string) error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal env store: %w", err)
	}
	return config.AtomicWriteFile(path, data, 0600)
}

func (s *Store) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Set(key, value string) {
	s.values[key] = value
}

// Resolve implements the §4.4 fallback chain for a single parameter:
// env store entry, then process environment, then not-found.
func (s *Store) Resolve(paramName string) (string, bool) {
	if v, ok := s.Get(paramName); ok {
		return v, true
	}
	if v, ok := os.LookupEnv(paramName); ok {
		return v, true
	}
	return "", false
}
