// Package dispatch decides whether a resolved track plays now or waits in the
// chat's queue, and advances the queue when the transport reports that a
// stream has ended.
//
// Per chat the dispatcher is a two-state machine:
//
//	Idle    --StreamOrQueue-->          Playing
//	Playing --StreamOrQueue-->          Playing (track appended to pending)
//	Playing --finish, pending>0-->      Playing (head of pending)
//	Playing --finish, pending empty-->  Idle
//
// A transport that fails to start leaves the chat Idle and returns
// [ErrTransportStart]; the dispatcher does not move on to the next pending
// track by itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/internal/queue"
	"github.com/MrWong99/chorus/pkg/track"
	"github.com/MrWong99/chorus/pkg/transport"
)

var (
	// ErrTransportStart is returned when the transport refused to begin
	// playback. The chat is idle afterwards.
	ErrTransportStart = errors.New("dispatch: transport failed to start")

	// ErrAudioUnavailable is returned for records without an audio reference.
	ErrAudioUnavailable = errors.New("dispatch: audio unavailable")

	// ErrNotPlaying is returned by [Dispatcher.Skip] for idle chats.
	ErrNotPlaying = errors.New("dispatch: nothing is playing")
)

// ResumeError is returned by [Dispatcher.StreamOrQueue] when the request was
// queued behind tracks left over from an earlier failure and the head of that
// queue then failed to start. The requested track stays queued at the
// position reported in the [Outcome].
type ResumeError struct {
	// Head is the track that failed to start.
	Head track.Record

	// Err wraps [ErrTransportStart].
	Err error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("dispatch: resume %s: %v", e.Head.SourceID, e.Err)
}

func (e *ResumeError) Unwrap() error { return e.Err }

// Outcome reports what [Dispatcher.StreamOrQueue] did with a track.
type Outcome struct {
	// Started is true when the track began playing immediately.
	Started bool

	// Entry is the playing entry when Started is true.
	Entry queue.Entry

	// Position is the 1-based pending position when Started is false.
	Position int
}

// Option is a functional option for [New].
type Option func(*Dispatcher)

// WithNotifier adds a notifier. Notifiers are called in registration order.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) {
		d.notifiers = append(d.notifiers, n)
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher connects the queue store with a transport.
//
// Dispatcher is safe for concurrent use. Calls for the same chat are
// serialized; calls for different chats run in parallel.
type Dispatcher struct {
	store     *queue.Store
	transport transport.Transport
	notifiers []Notifier
	metrics   *observe.Metrics

	locksMu sync.Mutex
	locks   map[int64]*chatLock
}

// New creates a Dispatcher.
func New(store *queue.Store, tr transport.Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		transport: tr,
		locks:     make(map[int64]*chatLock),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Store returns the queue store the dispatcher operates on.
func (d *Dispatcher) Store() *queue.Store { return d.store }

// chatLock serializes dispatch for one chat. refs counts holders and
// waiters; the entry is removed from the map when it drops to zero.
type chatLock struct {
	mu   sync.Mutex
	refs int
}

func (d *Dispatcher) lock(chatID int64) func() {
	d.locksMu.Lock()
	l, ok := d.locks[chatID]
	if !ok {
		l = &chatLock{}
		d.locks[chatID] = l
	}
	l.refs++
	d.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(d.locks, chatID)
		}
		d.locksMu.Unlock()
	}
}

// lockedChats reports how many chats currently have a lock entry.
func (d *Dispatcher) lockedChats() int {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	return len(d.locks)
}

// StreamOrQueue plays rec right away when the chat is idle and appends it to
// the chat's pending queue otherwise.
//
// If the chat is idle but still holds pending tracks (a previous start
// failed), rec joins the back of the queue and the head is started instead,
// so request order is kept. Should that head fail as well, the Outcome still
// carries rec's position and the error is a [*ResumeError].
func (d *Dispatcher) StreamOrQueue(ctx context.Context, chat queue.Chat, rec track.Record) (out Outcome, err error) {
	ctx, span := observe.StartSpan(ctx, "dispatch.StreamOrQueue",
		trace.WithAttributes(
			attribute.Int64("chat.id", chat.ID),
			attribute.String("track.source_id", rec.SourceID),
		))
	defer func() {
		observe.FailSpan(span, err)
		span.End()
	}()

	if !rec.Playable() {
		return Outcome{}, fmt.Errorf("dispatch: %s: %w", rec.SourceID, ErrAudioUnavailable)
	}

	var events []Event
	defer func() { d.emit(ctx, events) }()
	unlock := d.lock(chat.ID)
	defer unlock()

	snap, _ := d.store.Peek(chat.ID)
	if !snap.Idle() {
		pos, err := d.store.Enqueue(chat, rec)
		if err != nil {
			return Outcome{}, fmt.Errorf("dispatch: %w", err)
		}
		events = append(events, Event{Kind: EventQueued, Chat: chat, Track: rec, Position: pos})
		return Outcome{Position: pos}, nil
	}

	var entry queue.Entry
	behind := len(snap.Pending)
	if behind > 0 {
		if _, err := d.store.Enqueue(chat, rec); err != nil {
			return Outcome{}, fmt.Errorf("dispatch: %w", err)
		}
		var ok bool
		entry, ok = d.store.PromoteNext(chat.ID)
		invariant(ok, "promote from non-empty pending returned nothing", "chat_id", chat.ID)
		events = append(events, Event{Kind: EventQueued, Chat: chat, Track: rec, Position: behind})
	} else {
		var ok bool
		entry, ok = d.store.ClaimIfIdle(chat, rec)
		invariant(ok, "idle chat refused claim", "chat_id", chat.ID)
	}

	ev, err := d.start(ctx, chat, entry)
	events = append(events, ev)
	if err != nil {
		if behind > 0 {
			return Outcome{Position: behind}, &ResumeError{Head: entry.Track, Err: err}
		}
		return Outcome{}, err
	}
	if behind > 0 {
		return Outcome{Position: behind}, nil
	}
	return Outcome{Started: true, Entry: entry}, nil
}

// OnStreamFinished advances the chat after the stream with sessionID ended.
// Signals for a session that is no longer playing are ignored, so repeated or
// late signals advance the queue at most once.
func (d *Dispatcher) OnStreamFinished(ctx context.Context, chatID int64, sessionID string) error {
	var events []Event
	defer func() { d.emit(ctx, events) }()
	unlock := d.lock(chatID)
	defer unlock()

	snap, found := d.store.Peek(chatID)
	if !found || snap.NowPlaying == nil || snap.NowPlaying.SessionID != sessionID {
		slog.Debug("dispatch: ignoring stale finish", "chat_id", chatID, "session_id", sessionID)
		return nil
	}
	d.metrics.ActivePlaybacks.Add(ctx, -1)

	chat := queue.Chat{ID: chatID, Title: snap.ChatTitle}
	entry, ok := d.store.PromoteNext(chatID)
	if !ok {
		invariant(d.store.IsIdle(chatID), "empty promote left chat playing", "chat_id", chatID)
		events = append(events, Event{Kind: EventIdle, Chat: chat})
		return nil
	}

	ev, err := d.start(ctx, chat, entry)
	events = append(events, ev)
	return err
}

// start hands entry to the transport. The chat lock must be held. On failure
// the playing slot is cleared and the pending queue is left as is.
func (d *Dispatcher) start(ctx context.Context, chat queue.Chat, entry queue.Entry) (Event, error) {
	s := transport.Stream{
		ChatID:    chat.ID,
		SessionID: entry.SessionID,
		AudioRef:  entry.Track.AudioRef,
		Title:     entry.Track.Title,
	}
	err := d.transport.Start(ctx, s, d.finished)
	d.metrics.RecordPlaybackStart(ctx, observe.Status(err))
	if err != nil {
		cleared := d.store.ClearNowPlayingIf(chat.ID, entry.SessionID)
		invariant(cleared, "failed session was not the playing one", "chat_id", chat.ID)
		observe.Logger(ctx).Warn("dispatch: transport start failed",
			"chat_id", chat.ID, "source_id", entry.Track.SourceID, "err", err)
		err = fmt.Errorf("dispatch: chat %d: %w: %w", chat.ID, ErrTransportStart, err)
		return Event{Kind: EventStartFailed, Chat: chat, Track: entry.Track, Err: err}, err
	}

	d.metrics.ActivePlaybacks.Add(ctx, 1)
	observe.Logger(ctx).Info("dispatch: now playing",
		"chat_id", chat.ID, "source_id", entry.Track.SourceID, "session_id", entry.SessionID)
	return Event{Kind: EventNowPlaying, Chat: chat, Track: entry.Track, SessionID: entry.SessionID}, nil
}

// finished is the transport callback.
func (d *Dispatcher) finished(s transport.Stream, err error) {
	if err != nil {
		slog.Warn("dispatch: stream ended with error", "chat_id", s.ChatID, "session_id", s.SessionID, "err", err)
	}
	if err := d.OnStreamFinished(context.Background(), s.ChatID, s.SessionID); err != nil {
		slog.Error("dispatch: advance after finish", "chat_id", s.ChatID, "err", err)
	}
}

// Skip stops the current track. The transport's finish signal then advances
// the queue. It returns the entry that was playing.
func (d *Dispatcher) Skip(ctx context.Context, chatID int64) (queue.Entry, error) {
	snap, _ := d.store.Peek(chatID)
	if snap.NowPlaying == nil {
		return queue.Entry{}, ErrNotPlaying
	}
	if err := d.transport.Stop(ctx, chatID); err != nil {
		return queue.Entry{}, fmt.Errorf("dispatch: skip chat %d: %w", chatID, err)
	}
	return *snap.NowPlaying, nil
}

// Stop drops every pending track and stops the current one. It returns how
// many pending tracks were dropped.
func (d *Dispatcher) Stop(ctx context.Context, chatID int64) (int, error) {
	unlock := d.lock(chatID)
	n := d.store.ClearPending(chatID)
	idle := d.store.IsIdle(chatID)
	unlock()

	if idle {
		return n, nil
	}
	if err := d.transport.Stop(ctx, chatID); err != nil {
		return n, fmt.Errorf("dispatch: stop chat %d: %w", chatID, err)
	}
	return n, nil
}

func (d *Dispatcher) emit(ctx context.Context, events []Event) {
	for _, ev := range events {
		for _, n := range d.notifiers {
			n.Notify(ctx, ev)
		}
	}
}
