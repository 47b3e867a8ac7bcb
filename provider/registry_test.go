package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodRegistry_Register(t *testing.T) {
	registry := NewMethodRegistry()

	mockFactory := func(Dependencies, map[string]string) (PaymentMethod, error) { return nil, nil }

	registry.Register("test-method", mockFactory)

	factory, err := registry.Get("test-method")
	assert.NoError(t, err)
	assert.NotNil(t, factory)
}

func TestMethodRegistry_GetMethodNames(t *testing.T) {
	registry := NewMethodRegistry()

	assert.Empty(t, registry.GetMethodNames())

	mockFactory := func(Dependencies, map[string]string) (PaymentMethod, error) { return nil, nil }
	registry.Register("method2", mockFactory)
	registry.Register("method1", mockFactory)

	assert.Equal(t, []string{"method1", "method2"}, registry.GetMethodNames())
}

func TestMethodRegistry_Get_NotFound(t *testing.T) {
	registry := NewMethodRegistry()

	factory, err := registry.Get("non-existent")
	assert.Error(t, err)
	assert.Nil(t, factory)
	assert.Contains(t, err.Error(), "is not registered")
}

func TestMethodRegistry_CreateMethod_PassesDependencies(t *testing.T) {
	registry := NewMethodRegistry()
	locks := NewKeyedMutex()

	var got Dependencies
	var gotConfig map[string]string
	registry.Register("capture", func(deps Dependencies, config map[string]string) (PaymentMethod, error) {
		got = deps
		gotConfig = config
		return nil, nil
	})

	_, err := registry.CreateMethod("capture", Dependencies{Locks: locks}, map[string]string{"apiKey": "k"})
	require.NoError(t, err)
	assert.Same(t, locks, got.Locks)
	assert.Equal(t, "k", gotConfig["apiKey"])

	_, err = registry.CreateMethod("missing", Dependencies{}, nil)
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	mockFactory := func(Dependencies, map[string]string) (PaymentMethod, error) { return nil, nil }

	Register("default-test", mockFactory)

	factory, err := Get("default-test")
	assert.NoError(t, err)
	assert.NotNil(t, factory)
	assert.Contains(t, DefaultRegistry.GetMethodNames(), "default-test")
}
