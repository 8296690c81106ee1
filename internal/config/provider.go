package config

import (
	"fmt"
	"sync/atomic"
)

// Provider serves configuration snapshots to concurrent readers.
// Snapshot returns the same *Config for the lifetime of one request;
// Reload atomically swaps in a freshly loaded configuration.
type Provider struct {
	path    string
	current atomic.Pointer[Config]
}

// NewProvider loads the configuration file and wraps it in a Provider.
func NewProvider(path string) (*Provider, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	p := &Provider{path: path}
	p.current.Store(cfg)
	return p, nil
}

// NewStaticProvider wraps an already-built configuration. Used where hot
// reload is not wanted; Reload has no file to read and fails.
func NewStaticProvider(cfg *Config) *Provider {
	p := &Provider{}
	p.current.Store(cfg)
	return p
}

// Path returns the configuration file path the provider was created with.
func (p *Provider) Path() string {
	return p.path
}

// Snapshot returns the current configuration. The returned value is
// immutable; callers must not modify it.
func (p *Provider) Snapshot() *Config {
	return p.current.Load()
}

// Reload re-reads the configuration file and publishes the new snapshot.
// On failure the previous snapshot stays active.
func (p *Provider) Reload() error {
	cfg, err := Load(p.path)
	if err != nil {
		return fmt.Errorf("config reload failed: %w", err)
	}

	p.current.Store(cfg)
	return nil
}
