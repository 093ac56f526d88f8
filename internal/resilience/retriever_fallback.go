package resilience

import (
	"context"

	"github.com/MrWong99/chorus/internal/cache"
)

// RetrieverFallback implements [cache.Retriever] with failover across several
// download backends, each behind its own circuit breaker.
type RetrieverFallback struct {
	group *FallbackGroup[cache.Retriever]
}

var _ cache.Retriever = (*RetrieverFallback)(nil)

// NewRetrieverFallback creates a [RetrieverFallback] with primary as the
// preferred backend.
func NewRetrieverFallback(primary cache.Retriever, primaryName string, cfg FallbackConfig) *RetrieverFallback {
	return &RetrieverFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional retriever.
func (f *RetrieverFallback) AddFallback(name string, r cache.Retriever) {
	f.group.AddFallback(name, r)
}

// BreakerStates reports the breaker state per backend.
func (f *RetrieverFallback) BreakerStates() map[string]State {
	return f.group.BreakerStates()
}

// Retrieve downloads into destPath with the first healthy backend. Every
// backend overwrites destPath, so a partial file from a failed attempt does
// not leak into the next one.
func (f *RetrieverFallback) Retrieve(ctx context.Context, sourceID, destPath string) error {
	return f.group.Execute(ctx, func(r cache.Retriever) error {
		return r.Retrieve(ctx, sourceID, destPath)
	})
}
