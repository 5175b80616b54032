package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrProviderNotRegistered is returned by Get for unknown names.
var ErrProviderNotRegistered = errors.New("provider not registered")

// ProviderFactory creates a provider instance.
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

type registration struct {
	factory ProviderFactory
	cfg     ProviderConfig
}

// Registry holds provider factories and lazily built instances.
type Registry struct {
	mu       sync.RWMutex
	regs     map[string]registration
	cache    map[string]Provider
	inflight singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{
		regs:  make(map[string]registration),
		cache: make(map[string]Provider),
	}
}

// Register sets the factory and config for name, dropping any cached instance.
func (r *Registry) Register(name string, factory ProviderFactory, cfg ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[name] = registration{factory: factory, cfg: cfg}
	delete(r.cache, name)
}

// Get returns the provider for name, building it on first use. Concurrent
// first calls share a single build.
func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.cache[name]
	reg, registered := r.regs[name]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, name)
	}

	v, err, _ := r.inflight.Do(name, func() (any, error) {
		r.mu.RLock()
		if p, ok := r.cache[name]; ok {
			r.mu.RUnlock()
			return p, nil
		}
		r.mu.RUnlock()

		p, err := reg.factory(reg.cfg)
		if err != nil {
			return nil, fmt.Errorf("create provider %s: %w", name, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("validate provider %s: %w", name, err)
		}

		r.mu.Lock()
		r.cache[name] = p
		r.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.regs))
	for name := range r.regs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invalidate drops the cached instance of name.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, name)
}
