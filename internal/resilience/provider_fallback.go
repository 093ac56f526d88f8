package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/track"
)

// ProviderFallback implements [provider.Provider] by trying a list of
// providers in order. "No results" and "could not resolve" answers move on to
// the next provider without counting against the breaker.
type ProviderFallback struct {
	name  string
	group *FallbackGroup[provider.Provider]
}

var _ provider.Provider = (*ProviderFallback)(nil)

// NewProviderFallback creates a [ProviderFallback] that reports primary's
// name.
func NewProviderFallback(primary provider.Provider, cfg FallbackConfig) *ProviderFallback {
	cfg.CircuitBreaker.Neutral = isProviderMiss
	return &ProviderFallback{
		name:  primary.Name(),
		group: NewFallbackGroup(primary, primary.Name(), cfg),
	}
}

// AddFallback registers an additional provider.
func (f *ProviderFallback) AddFallback(p provider.Provider) {
	f.group.AddFallback(p.Name(), p)
}

// Name returns the primary provider's name.
func (f *ProviderFallback) Name() string { return f.name }

// Search returns the results of the first provider that has any.
func (f *ProviderFallback) Search(ctx context.Context, keyword string) ([]track.Summary, error) {
	return ExecuteWithResult(ctx, f.group, func(p provider.Provider) ([]track.Summary, error) {
		return p.Search(ctx, keyword)
	})
}

// Resolve returns the record of the first provider that resolves input.
func (f *ProviderFallback) Resolve(ctx context.Context, input string, requester track.Requester) (track.Record, error) {
	return ExecuteWithResult(ctx, f.group, func(p provider.Provider) (track.Record, error) {
		return p.Resolve(ctx, input, requester)
	})
}

func isProviderMiss(err error) bool {
	return errors.Is(err, provider.ErrNoResults) || errors.Is(err, provider.ErrResolution)
}
