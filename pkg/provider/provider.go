// Package provider defines the contract every audio source must satisfy.
//
// A Provider turns user input (a keyword or a link) into a [track.Record].
// Concrete providers live in sub-packages (provider/youtube,
// provider/ytmusic) and are selected at runtime through the config registry
// by name; nothing embeds or subclasses a base type.
//
// Implementations must be safe for concurrent use.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/chorus/pkg/track"
)

// DefaultSearchLimit is the number of results returned by Search when the
// provider is not configured otherwise.
const DefaultSearchLimit = 10

var (
	// ErrNoResults is returned by Search when the backend yields zero matches.
	ErrNoResults = errors.New("provider: no results")

	// ErrResolution is returned by Resolve when neither the link path nor the
	// keyword path produced a candidate.
	ErrResolution = errors.New("provider: could not resolve input")
)

// Provider is the abstraction over one audio backend.
type Provider interface {
	// Name returns the registry name of the provider (e.g. "youtube").
	Name() string

	// Search returns up to the configured limit of ranked results for
	// keyword. Returns an error wrapping [ErrNoResults] when nothing matches.
	Search(ctx context.Context, keyword string) ([]track.Summary, error)

	// Resolve turns input into a Record. When input is a recognised link the
	// source ID is taken from it directly; otherwise input is searched and the
	// top result is used. Returns an error wrapping [ErrResolution] when no
	// candidate is found.
	//
	// Resolve always asks the [Fetcher] for audio. A fetch failure does not
	// fail Resolve: the record is returned with an empty AudioRef.
	Resolve(ctx context.Context, input string, requester track.Requester) (track.Record, error)
}

// Fetcher retrieves playable audio for a source ID and returns a reference
// to it. The download cache implements this.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID string) (string, error)
}

// FormatDuration renders d as "m:ss" or "h:mm:ss". Zero renders as "".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	total := int(d.Round(time.Second).Seconds())
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
