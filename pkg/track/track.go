// Package track defines the normalized song record shared by providers, the
// queue store, and the dispatcher.
//
// A [Record] is a plain value. Once a provider has built one it is passed
// around by value and never mutated, so queue snapshots can hand out copies
// without further synchronisation.
package track

import "fmt"

// UnknownField is the placeholder used when a backend omits a title or artist.
const UnknownField = "Unknown"

// Requester identifies the chat member who asked for a track.
type Requester struct {
	// ID is the platform user ID.
	ID int64

	// DisplayName is the human-readable name shown in announcements.
	DisplayName string
}

// Mention returns a display string for the requester.
func (r Requester) Mention() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return fmt.Sprintf("user %d", r.ID)
}

// Summary is a lightweight search result. It carries enough to present a
// choice to the user but has no audio reference.
type Summary struct {
	ID       string
	Title    string
	Artist   string
	Duration string
}

// Record is the normalized metadata and audio reference for one resolved
// song request.
type Record struct {
	// SourceID is the provider-specific identifier (e.g. a YouTube video ID).
	SourceID string

	// Title and Artist fall back to [UnknownField] when the backend has none.
	Title  string
	Artist string

	// Duration is the human-formatted length ("3:45").
	Duration string

	// ImageURL is a thumbnail; providers substitute a default when absent.
	ImageURL string

	// Link is the canonical public URL of the source.
	Link string

	// AudioRef is a local path or URL to playable audio. Empty means the
	// metadata is known but audio could not be fetched.
	AudioRef string

	// RequestedBy is the member who asked for the track.
	RequestedBy Requester

	// Provider names the provider that produced this record.
	Provider string
}

// Playable reports whether the record carries an audio reference.
func (r Record) Playable() bool {
	return r.AudioRef != ""
}

// String returns "Title - Artist" for logs and announcements.
func (r Record) String() string {
	return r.Title + " - " + r.Artist
}

// OrUnknown returns s, or [UnknownField] when s is empty.
func OrUnknown(s string) string {
	if s == "" {
		return UnknownField
	}
	return s
}
