// Package mock provides test doubles for the provider.Provider and
// provider.Fetcher interfaces.
//
// Both types record every call under a mutex so tests may drive them from
// several goroutines and inspect the recorded calls afterwards.
//
// Example:
//
//	p := &mock.Provider{
//	    ResolveResult: track.Record{SourceID: "abc123xyz90", AudioRef: "/tmp/a.mp3"},
//	}
//	rec, err := p.Resolve(ctx, "some song", track.Requester{ID: 1})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/track"
)

// ResolveCall records a single invocation of Resolve.
type ResolveCall struct {
	Input     string
	Requester track.Requester
}

// Provider is a mock implementation of provider.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock" when empty.
	ProviderName string

	// SearchResults is returned by Search.
	SearchResults []track.Summary

	// SearchErr, if non-nil, is returned by Search.
	SearchErr error

	// ResolveResult is returned by Resolve. RequestedBy is overwritten with
	// the requester passed in.
	ResolveResult track.Record

	// ResolveErr, if non-nil, is returned by Resolve.
	ResolveErr error

	// SearchCalls records the keyword of every Search call in order.
	SearchCalls []string

	// ResolveCalls records every Resolve call in order.
	ResolveCalls []ResolveCall
}

// Name returns ProviderName or "mock".
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Search records the call and returns a copy of SearchResults, SearchErr.
func (p *Provider) Search(_ context.Context, keyword string) ([]track.Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SearchCalls = append(p.SearchCalls, keyword)
	if p.SearchErr != nil {
		return nil, p.SearchErr
	}
	out := make([]track.Summary, len(p.SearchResults))
	copy(out, p.SearchResults)
	return out, nil
}

// Resolve records the call and returns ResolveResult, ResolveErr.
func (p *Provider) Resolve(_ context.Context, input string, requester track.Requester) (track.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ResolveCalls = append(p.ResolveCalls, ResolveCall{Input: input, Requester: requester})
	if p.ResolveErr != nil {
		return track.Record{}, p.ResolveErr
	}
	rec := p.ResolveResult
	rec.RequestedBy = requester
	return rec, nil
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SearchCalls = nil
	p.ResolveCalls = nil
}

// Fetcher is a mock implementation of provider.Fetcher.
type Fetcher struct {
	mu sync.Mutex

	// Refs maps source IDs to the reference returned by Fetch. Unknown IDs
	// return "/cache/<id>.mp3".
	Refs map[string]string

	// Err, if non-nil, is returned by every Fetch call.
	Err error

	// Calls records the source ID of every Fetch call in order.
	Calls []string
}

// Fetch records the call and returns the configured reference or Err.
func (f *Fetcher) Fetch(_ context.Context, sourceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, sourceID)
	if f.Err != nil {
		return "", f.Err
	}
	if ref, ok := f.Refs[sourceID]; ok {
		return ref, nil
	}
	return "/cache/" + sourceID + ".mp3", nil
}

// CallCount returns the number of Fetch calls so far.
func (f *Fetcher) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.Fetcher  = (*Fetcher)(nil)
)
