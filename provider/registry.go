package provider

import (
	"fmt"
	"sort"
	"sync"
)

// MethodRegistry manages all payment method implementations
type MethodRegistry struct {
	methods map[string]MethodFactory
	mu      sync.RWMutex
}

// NewMethodRegistry creates a new payment method registry
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{
		methods: make(map[string]MethodFactory),
	}
}

// Register adds a payment method factory to the registry
func (r *MethodRegistry) Register(name string, factory MethodFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = factory
}

// Get retrieves a payment method factory by name
func (r *MethodRegistry) Get(name string) (MethodFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.methods[name]
	if !exists {
		return nil, fmt.Errorf("payment method '%s' is not registered", name)
	}

	return factory, nil
}

// CreateMethod creates a new instance of a payment method
func (r *MethodRegistry) CreateMethod(name string, deps Dependencies, config map[string]string) (PaymentMethod, error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	return factory(deps, config)
}

// GetMethodNames returns the sorted names of all registered payment methods
func (r *MethodRegistry) GetMethodNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// DefaultRegistry is the global default payment method registry
var DefaultRegistry = NewMethodRegistry()

// Register registers a payment method with the default registry
func Register(name string, factory MethodFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get retrieves a payment method factory from the default registry
func Get(name string) (MethodFactory, error) {
	return DefaultRegistry.Get(name)
}

// CreateMethod creates a payment method instance from the default registry
func CreateMethod(name string, deps Dependencies, config map[string]string) (PaymentMethod, error) {
	return DefaultRegistry.CreateMethod(name, deps, config)
}
