// Package history keeps a log of the tracks each chat has played.
//
// Two [Store] implementations exist: [Memory], a bounded in-process log used
// when no database is configured, and [Postgres], backed by a single
// pgxpool. [Recorder] plugs either into the dispatcher as a notifier.
package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/chorus/internal/dispatch"
	"github.com/MrWong99/chorus/pkg/track"
)

// DefaultLimit is used by [Store.Recent] when limit is not positive.
const DefaultLimit = 10

// Play is one played track.
type Play struct {
	ChatID      int64
	SessionID   string
	SourceID    string
	Provider    string
	Title       string
	Artist      string
	Duration    string
	Link        string
	RequestedBy track.Requester
	StartedAt   time.Time
}

// Store persists plays.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends p to the chat's history.
	Record(ctx context.Context, p Play) error

	// Recent returns up to limit plays of the chat, newest first.
	Recent(ctx context.Context, chatID int64, limit int) ([]Play, error)

	// Close releases the store's resources.
	Close()
}

// Recorder is a [dispatch.Notifier] that writes every started track to a
// [Store].
type Recorder struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

var _ dispatch.Notifier = (*Recorder)(nil)

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, timeout: 5 * time.Second, now: time.Now}
}

// Notify implements [dispatch.Notifier]. Write failures are logged; playback
// never depends on history.
func (r *Recorder) Notify(ctx context.Context, ev dispatch.Event) {
	if ev.Kind != dispatch.EventNowPlaying {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	t := ev.Track
	p := Play{
		ChatID:      ev.Chat.ID,
		SessionID:   ev.SessionID,
		SourceID:    t.SourceID,
		Provider:    t.Provider,
		Title:       t.Title,
		Artist:      t.Artist,
		Duration:    t.Duration,
		Link:        t.Link,
		RequestedBy: t.RequestedBy,
		StartedAt:   r.now().UTC(),
	}
	if err := r.store.Record(ctx, p); err != nil {
		slog.Warn("history: record play", "chat_id", p.ChatID, "source_id", p.SourceID, "err", err)
	}
}

// ErrClosed is returned by a closed store.
var ErrClosed = errors.New("history: store closed")
