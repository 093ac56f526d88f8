package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/pkg/provider"
)

// Locator is a download backend that can confirm a source is available and
// hand out a URL the transport streams from directly.
type Locator interface {
	Exists(ctx context.Context, sourceID string) (bool, error)
	URL(sourceID string) string
}

// Remote is a [provider.Fetcher] that does not download anything. It checks
// availability with the Locator and returns the remote URL. Checks are
// single-flight per source ID and successful ones are remembered for the
// lifetime of the process.
type Remote struct {
	loc     Locator
	metrics *observe.Metrics

	group singleflight.Group
	mu    sync.RWMutex
	ready map[string]struct{}
}

var _ provider.Fetcher = (*Remote)(nil)

// NewRemote returns a Remote backed by loc.
func NewRemote(loc Locator, m *observe.Metrics) (*Remote, error) {
	if loc == nil {
		return nil, errors.New("cache: locator must not be nil")
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Remote{loc: loc, metrics: m, ready: make(map[string]struct{})}, nil
}

// Fetch returns the remote URL for sourceID once the locator confirms it.
func (r *Remote) Fetch(ctx context.Context, sourceID string) (string, error) {
	if !ValidSourceID(sourceID) {
		return "", fmt.Errorf("cache: fetch %q: %w: %w", sourceID, ErrFetch, ErrInvalidSourceID)
	}

	r.mu.RLock()
	_, ok := r.ready[sourceID]
	r.mu.RUnlock()
	if ok {
		r.metrics.RecordCacheFetch(ctx, observe.OutcomeHit)
		return r.loc.URL(sourceID), nil
	}

	checkCtx := context.WithoutCancel(ctx)
	leader := false
	ch := r.group.DoChan(sourceID, func() (any, error) {
		leader = true
		found, err := r.loc.Exists(checkCtx, sourceID)
		if err != nil {
			return nil, fmt.Errorf("cache: check %s: %w: %w", sourceID, ErrFetch, err)
		}
		if !found {
			return nil, fmt.Errorf("cache: check %s: %w: not available", sourceID, ErrFetch)
		}
		r.mu.Lock()
		r.ready[sourceID] = struct{}{}
		r.mu.Unlock()
		return r.loc.URL(sourceID), nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("cache: fetch %s: %w", sourceID, ctx.Err())
	case res := <-ch:
		switch {
		case res.Err != nil:
			r.metrics.RecordCacheFetch(ctx, observe.OutcomeError)
			return "", res.Err
		case leader:
			r.metrics.RecordCacheFetch(ctx, observe.OutcomeMiss)
		default:
			r.metrics.RecordCacheFetch(ctx, observe.OutcomeCoalesced)
		}
		return res.Val.(string), nil
	}
}
