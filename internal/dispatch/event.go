package dispatch

import (
	"context"

	"github.com/MrWong99/chorus/internal/queue"
	"github.com/MrWong99/chorus/pkg/track"
)

// EventKind classifies dispatcher events.
type EventKind int

const (
	// EventNowPlaying is emitted after the transport accepted a stream.
	EventNowPlaying EventKind = iota

	// EventQueued is emitted when a request was appended to the pending queue.
	EventQueued

	// EventStartFailed is emitted when the transport refused to start a stream.
	EventStartFailed

	// EventIdle is emitted when a chat ran out of tracks.
	EventIdle
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventNowPlaying:
		return "now_playing"
	case EventQueued:
		return "queued"
	case EventStartFailed:
		return "start_failed"
	case EventIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Event describes a state change of one chat.
type Event struct {
	Kind EventKind
	Chat queue.Chat

	// Track is the affected track. Zero for EventIdle.
	Track track.Record

	// SessionID is set for EventNowPlaying.
	SessionID string

	// Position is the 1-based queue position for EventQueued.
	Position int

	// Err is set for EventStartFailed.
	Err error
}

// Notifier receives dispatcher events. Notify is called after the chat's lock
// has been released, in the order the events happened for that chat.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, ev Event)

// Notify implements [Notifier].
func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }
