package config

import (
	"sync/atomic"
)

// Store holds the current configuration and swaps it atomically on hot
// reload. Readers always observe a complete, internally consistent value;
// fields are never mutated in place.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store seeded with an initial configuration
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the configuration in effect
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Swap installs a new configuration and returns the previous one
func (s *Store) Swap(cfg *Config) *Config {
	return s.current.Swap(cfg)
}

// Reload loads a file and installs it if valid
func (s *Store) Reload(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	return cfg, nil
}
