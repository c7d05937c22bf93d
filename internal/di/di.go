// Package di provides a small typed service container used by the modules.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves services by name.
type ServiceRegistry interface {
	Get(name string) any
	Has(name string) bool
}

// Container is a ServiceRegistry that also accepts registrations.
type Container interface {
	ServiceRegistry
	// Register stores a ready-made value.
	Register(name string, value any)
	// RegisterFactory stores a lazily built singleton.
	RegisterFactory(name string, factory func(ServiceRegistry) any)
}

type entry struct {
	factory func(ServiceRegistry) any
	value   any
	built   bool
	once    sync.Once
}

type container struct {
	mu       sync.RWMutex
	services map[string]*entry
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{services: make(map[string]*entry)}
}

func (c *container) Register(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = &entry{value: value, built: true}
}

func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = &entry{factory: factory}
}

func (c *container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[name]
	return ok
}

// Get resolves name, building it on first use. Panics on unknown names.
func (c *container) Get(name string) any {
	c.mu.RLock()
	e, ok := c.services[name]
	c.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", name))
	}
	if e.built {
		return e.value
	}
	e.once.Do(func() {
		e.value = e.factory(c)
	})
	return e.value
}

// Token is a typed service name.
type Token[T any] struct {
	name string
}

// NewToken creates a typed token.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the registry key.
func (t Token[T]) Name() string {
	return t.name
}

// RegisterToken registers a lazily built singleton for token.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves token with its static type.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	v := sr.Get(token.name)
	t, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has type %T", token.name, v))
	}
	return t
}
