package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry maps provider names to factories. Both binaries register the
// providers they were configured with at startup and resolve by the
// AI_PROVIDER setting.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider %q (registered: %s)", name, strings.Join(r.names(), ", "))
	}
	return f(ctx, model)
}

func (r *Registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
