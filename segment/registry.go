package segment

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/vecseg/model"
)

// Factory builds a live instance from its descriptor. col is the owning
// collection, used for the dimensionality.
type Factory func(ctx context.Context, seg model.Segment, col model.Collection, env Env) (Implementation, error)

// Registry maps segment types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[model.SegmentType]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[model.SegmentType]Factory)}
}

// Register adds a factory. Registering a type twice replaces the factory.
func (r *Registry) Register(t model.SegmentType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// Lookup returns the factory for t.
func (r *Registry) Lookup(t model.SegmentType) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownSegmentType, t)
	}
	return f, nil
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []model.SegmentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]model.SegmentType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Build looks up the factory for seg.Type and runs it.
func (r *Registry) Build(ctx context.Context, seg model.Segment, col model.Collection, env Env) (Implementation, error) {
	f, err := r.Lookup(seg.Type)
	if err != nil {
		return nil, err
	}
	return f(ctx, seg, col, env)
}
