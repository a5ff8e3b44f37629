package feed

import (
	"context"
	"fmt"
	"time"

	"jobwatcher/internal/domain"
)

// Request carries the parameters for one channel fetch: the lookback
// boundary and an optional per-source cap.
type Request struct {
	Channel string
	Since   time.Time
	Limit   int
}

// Source is a feed acquisition strategy. Messages come back oldest
// first so the pipeline processes them in posting order.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]domain.Message, error)
}

// Registry maps strategy names to implementations.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a feed strategy.
func (r *Registry) Register(source Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Source, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("feed strategy %s is not registered", name)
}
