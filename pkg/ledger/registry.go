// Copyright 2025 Certen Protocol
//
// Backend registry: a sync.RWMutex-guarded map of named backend
// constructors, the same shape as pkg/strategy/registry.go's
// RegisterAttestationStrategy/GetAttestationStrategy pair, adapted from
// strategy selection to storage-backend selection.

package ledger

import (
	"fmt"
	"sync"
)

// Constructor builds a Backend from a string-keyed configuration map —
// the backend-specific subset of pkg/skipledgerconfig's parsed YAML
// (flat-file path, Postgres DSN, KV directory, ...).
type Constructor func(cfg map[string]string) (Backend, error)

// Registry holds named backend constructors, registered by each backend
// subpackage's init() (flatfile, relational, kvstore).
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// DefaultRegistry is the process-wide registry backend subpackages
// register themselves into from init().
var DefaultRegistry = NewRegistry()

// Register adds a named backend constructor. Re-registering the same
// name is an error, matching the teacher's
// "strategy already registered" rejection.
func (r *Registry) Register(name string, ctor Constructor) error {
	if ctor == nil {
		return fmt.Errorf("ledger: nil constructor for backend %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[name]; exists {
		return fmt.Errorf("ledger: backend already registered: %q", name)
	}
	r.constructors[name] = ctor
	return nil
}

// Open builds a Backend using the constructor registered under name.
func (r *Registry) Open(name string, cfg map[string]string) (Backend, error) {
	r.mu.RLock()
	ctor, exists := r.constructors[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("ledger: no backend registered for %q", name)
	}
	return ctor(cfg)
}

// Names returns the registered backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		out = append(out, name)
	}
	return out
}

// RegisterBackend registers a constructor into DefaultRegistry.
func RegisterBackend(name string, ctor Constructor) error {
	return DefaultRegistry.Register(name, ctor)
}

// Open builds a Backend from DefaultRegistry.
func Open(name string, cfg map[string]string) (Backend, error) {
	return DefaultRegistry.Open(name, cfg)
}
