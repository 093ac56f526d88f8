// Package queue holds the per-chat playback state: the track that is playing
// now and the FIFO of tracks waiting behind it.
//
// Every operation is atomic for its chat. Different chats never contend on
// the same lock. The Store knows nothing about transports; keeping
// NowPlaying in step with the actual audio stream is the dispatcher's job.
package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/chorus/internal/observe"
	"github.com/MrWong99/chorus/pkg/track"
)

// ErrQueueFull is returned by [Store.Enqueue] when the chat already has the
// configured maximum number of pending tracks.
var ErrQueueFull = errors.New("queue: pending queue is full")

// Chat identifies a chat and carries its display title.
type Chat struct {
	ID    int64
	Title string
}

// Entry is the track currently playing in a chat.
type Entry struct {
	Track track.Record

	// SessionID identifies this playback. Finish signals carry it so that a
	// stale or repeated signal can be told apart from the current one.
	SessionID string

	StartedAt time.Time
}

// ChatState is a snapshot of one chat's queue.
type ChatState struct {
	ChatID     int64
	ChatTitle  string
	NowPlaying *Entry
	Pending    []track.Record
}

// Idle reports whether nothing is playing.
func (s ChatState) Idle() bool { return s.NowPlaying == nil }

func (s ChatState) clone() ChatState {
	out := s
	if s.NowPlaying != nil {
		np := *s.NowPlaying
		out.NowPlaying = &np
	}
	out.Pending = slices.Clone(s.Pending)
	return out
}

type chatQueue struct {
	mu      sync.Mutex
	state   ChatState
	removed bool
}

// Option is a functional option for configuring a [Store].
type Option func(*Store)

// WithMaxPending bounds the pending queue per chat. Zero means unbounded.
func WithMaxPending(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPending = n
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// withSessionIDs replaces the session ID generator. Tests only.
func withSessionIDs(fn func() string) Option {
	return func(s *Store) {
		s.newSessionID = fn
	}
}

// Store is the in-memory queue store for all chats.
type Store struct {
	mu    sync.Mutex
	chats map[int64]*chatQueue

	maxPending   int
	metrics      *observe.Metrics
	newSessionID func() string
	now          func() time.Time
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		chats:        make(map[int64]*chatQueue),
		newSessionID: func() string { return uuid.NewString() },
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// withChat runs fn with the chat's lock held. When create is false and the
// chat does not exist, fn is not called and false is returned.
func (s *Store) withChat(chat Chat, create bool, fn func(*ChatState)) bool {
	for {
		s.mu.Lock()
		q, ok := s.chats[chat.ID]
		if !ok {
			if !create {
				s.mu.Unlock()
				return false
			}
			q = &chatQueue{state: ChatState{ChatID: chat.ID, ChatTitle: chat.Title}}
			s.chats[chat.ID] = q
		}
		s.mu.Unlock()

		q.mu.Lock()
		if q.removed {
			q.mu.Unlock()
			continue
		}
		if chat.Title != "" {
			q.state.ChatTitle = chat.Title
		}
		fn(&q.state)
		q.mu.Unlock()
		return true
	}
}

// Enqueue appends rec to the chat's pending queue and returns its 1-based
// position. Identical tracks may be queued any number of times.
func (s *Store) Enqueue(chat Chat, rec track.Record) (int, error) {
	var (
		pos int
		err error
	)
	s.withChat(chat, true, func(st *ChatState) {
		if s.maxPending > 0 && len(st.Pending) >= s.maxPending {
			err = fmt.Errorf("queue: chat %d: %w (%d)", chat.ID, ErrQueueFull, s.maxPending)
			return
		}
		st.Pending = append(st.Pending, rec)
		pos = len(st.Pending)
	})
	if err != nil {
		return 0, err
	}
	s.metrics.PendingTracks.Add(context.Background(), 1)
	return pos, nil
}

// PromoteNext removes the head of the pending queue and makes it the playing
// entry with a fresh session ID. When nothing is pending it clears the
// playing entry and returns false.
func (s *Store) PromoteNext(chatID int64) (Entry, bool) {
	var (
		e  Entry
		ok bool
	)
	s.withChat(Chat{ID: chatID}, false, func(st *ChatState) {
		if len(st.Pending) == 0 {
			st.NowPlaying = nil
			return
		}
		head := st.Pending[0]
		st.Pending[0] = track.Record{}
		st.Pending = st.Pending[1:]
		e = Entry{Track: head, SessionID: s.newSessionID(), StartedAt: s.now()}
		st.NowPlaying = &e
		ok = true
	})
	if ok {
		s.metrics.PendingTracks.Add(context.Background(), -1)
	}
	return e, ok
}

// SetNowPlaying makes rec the playing entry with a fresh session ID, creating
// the chat if needed. A nil rec clears the playing entry; the returned Entry
// is then the zero value.
func (s *Store) SetNowPlaying(chat Chat, rec *track.Record) Entry {
	var e Entry
	s.withChat(chat, rec != nil, func(st *ChatState) {
		if rec == nil {
			st.NowPlaying = nil
			return
		}
		e = Entry{Track: *rec, SessionID: s.newSessionID(), StartedAt: s.now()}
		st.NowPlaying = &e
	})
	return e
}

// ClaimIfIdle atomically makes rec the playing entry if nothing is playing.
// It returns the new entry and true, or false when the chat is busy.
func (s *Store) ClaimIfIdle(chat Chat, rec track.Record) (Entry, bool) {
	var (
		e  Entry
		ok bool
	)
	s.withChat(chat, true, func(st *ChatState) {
		if st.NowPlaying != nil {
			return
		}
		e = Entry{Track: rec, SessionID: s.newSessionID(), StartedAt: s.now()}
		st.NowPlaying = &e
		ok = true
	})
	return e, ok
}

// ClearNowPlayingIf clears the playing entry only if it still belongs to
// sessionID. It reports whether it did.
func (s *Store) ClearNowPlayingIf(chatID int64, sessionID string) bool {
	cleared := false
	s.withChat(Chat{ID: chatID}, false, func(st *ChatState) {
		if st.NowPlaying != nil && st.NowPlaying.SessionID == sessionID {
			st.NowPlaying = nil
			cleared = true
		}
	})
	return cleared
}

// IsIdle reports whether nothing is playing in the chat. Unknown chats are
// idle.
func (s *Store) IsIdle(chatID int64) bool {
	idle := true
	s.withChat(Chat{ID: chatID}, false, func(st *ChatState) {
		idle = st.NowPlaying == nil
	})
	return idle
}

// Peek returns a snapshot of the chat's state. The second result is false for
// chats that have never been seen or were cleared.
func (s *Store) Peek(chatID int64) (ChatState, bool) {
	var snap ChatState
	found := s.withChat(Chat{ID: chatID}, false, func(st *ChatState) {
		snap = st.clone()
	})
	if !found {
		return ChatState{ChatID: chatID}, false
	}
	return snap, true
}

// ClearPending drops every pending track but leaves the playing entry alone.
// It returns how many tracks were dropped.
func (s *Store) ClearPending(chatID int64) int {
	n := 0
	s.withChat(Chat{ID: chatID}, false, func(st *ChatState) {
		n = len(st.Pending)
		st.Pending = nil
	})
	if n > 0 {
		s.metrics.PendingTracks.Add(context.Background(), -int64(n))
	}
	return n
}

// Clear forgets the chat entirely.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	q, ok := s.chats[chatID]
	if ok {
		delete(s.chats, chatID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	q.mu.Lock()
	q.removed = true
	n := len(q.state.Pending)
	q.mu.Unlock()
	if n > 0 {
		s.metrics.PendingTracks.Add(context.Background(), -int64(n))
	}
}

// Chats returns snapshots of every known chat ordered by chat ID.
func (s *Store) Chats() []ChatState {
	s.mu.Lock()
	qs := make([]*chatQueue, 0, len(s.chats))
	for _, q := range s.chats {
		qs = append(qs, q)
	}
	s.mu.Unlock()

	out := make([]ChatState, 0, len(qs))
	for _, q := range qs {
		q.mu.Lock()
		if !q.removed {
			out = append(out, q.state.clone())
		}
		q.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b ChatState) int {
		switch {
		case a.ChatID < b.ChatID:
			return -1
		case a.ChatID > b.ChatID:
			return 1
		}
		return 0
	})
	return out
}
