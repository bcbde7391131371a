package photon

import (
	"context"
	"fmt"
	"sync"
)

// Registry is a concrete, in-process Extractor. Since the core never
// parses the photon source language itself (§6.3), a real deployment
// pairs it with an out-of-process extractor that reads JSDoc
// annotations; Registry instead lets Go-native photons register their
// descriptor and constructor directly, which is what the daemon's own
// tests and examples use in place of a JS toolchain.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

type registryEntry struct {
	descriptor  *Descriptor
	constructor Constructor
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register associates a source path with a descriptor and
// constructor. Subsequent Extract calls for that path return them.
func (r *Registry) Register(sourcePath string, descriptor *Descriptor, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sourcePath] = registryEntry{descriptor: descriptor, constructor: constructor}
}

func (r *Registry) Extract(ctx context.Context, sourcePath string) (*Descriptor, Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[sourcePath]
	if !ok {
		return nil, nil, fmt.Errorf("photon registry: no photon registered at %q", sourcePath)
	}
	// Return a copy of the descriptor so a caller mutating it never
	// corrupts the registration.
	d := *entry.descriptor
	d.Methods = append([]MethodDescriptor(nil), entry.descriptor.Methods...)
	return &d, entry.constructor, nil
}
