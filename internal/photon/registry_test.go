package photon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInstance struct{ greeting string }

func (f *fakeInstance) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	return f.greeting, nil
}

func TestRegistry_ExtractReturnsRegisteredEntry(t *testing.T) {
	r := NewRegistry()
	descriptor := &Descriptor{Name: "greeter", Methods: []MethodDescriptor{{Name: "greet"}}}
	r.Register("greeter.js", descriptor, func(ctx context.Context, args map[string]any) (Instance, error) {
		return &fakeInstance{greeting: "hi"}, nil
	})

	got, ctor, err := r.Extract(context.Background(), "greeter.js")
	require.NoError(t, err)
	assert.Equal(t, "greeter", got.Name)

	inst, err := ctor(context.Background(), nil)
	require.NoError(t, err)
	result, err := inst.Invoke(context.Background(), "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

func TestRegistry_ExtractUnknownPath(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Extract(context.Background(), "nope.js")
	assert.Error(t, err)
}

func TestRegistry_ExtractReturnsIndependentCopy(t *testing.T) {
	r := NewRegistry()
	descriptor := &Descriptor{Name: "greeter", Methods: []MethodDescriptor{{Name: "greet"}}}
	r.Register("greeter.js", descriptor, func(ctx context.Context, args map[string]any) (Instance, error) {
		return &fakeInstance{}, nil
	})

	got, _, err := r.Extract(context.Background(), "greeter.js")
	require.NoError(t, err)
	got.Methods[0].Name = "mutated"

	got2, _, err := r.Extract(context.Background(), "greeter.js")
	require.NoError(t, err)
	assert.Equal(t, "greet", got2.Methods[0].Name)
}
