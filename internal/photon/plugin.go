package photon

import (
	"context"
	"fmt"
	"plugin"
)

// PluginExtractor is the concrete Extractor a real photon CLI loads:
// since the core deliberately never parses the photon source language
// itself (§6.3), "compiling" an annotated source file down to a
// descriptor and constructor happens ahead of time, as a Go plugin
// built with `go build -buildmode=plugin`. The plugin exports two
// symbols the extractor looks up by name.
type PluginExtractor struct{}

func NewPluginExtractor() *PluginExtractor {
	return &PluginExtractor{}
}

// Extract opens the .so at sourcePath and reads its Descriptor and
// NewInstance symbols.
func (PluginExtractor) Extract(ctx context.Context, sourcePath string) (*Descriptor, Constructor, error) {
	p, err := plugin.Open(sourcePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open photon plugin %s: %w", sourcePath, err)
	}

	descSym, err := p.Lookup("Descriptor")
	if err != nil {
		return nil, nil, fmt.Errorf("photon plugin %s: missing Descriptor symbol: %w", sourcePath, err)
	}
	descriptor, ok := descSym.(*Descriptor)
	if !ok {
		return nil, nil, fmt.Errorf("photon plugin %s: Descriptor has the wrong type", sourcePath)
	}

	ctorSym, err := p.Lookup("NewInstance")
	if err != nil {
		return nil, nil, fmt.Errorf("photon plugin %s: missing NewInstance symbol: %w", sourcePath, err)
	}
	constructor, ok := ctorSym.(func(context.Context, map[string]any) (Instance, error))
	if !ok {
		return nil, nil, fmt.Errorf("photon plugin %s: NewInstance has the wrong signature", sourcePath)
	}

	d := *descriptor
	d.Methods = append([]MethodDescriptor(nil), descriptor.Methods...)
	return &d, Constructor(constructor), nil
}
