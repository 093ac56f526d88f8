package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/chorus/internal/dispatch"
)

// feedBuffer is how many events a slow subscriber may lag behind before
// events are dropped for it.
const feedBuffer = 32

// FeedEvent is the JSON form of a [dispatch.Event].
type FeedEvent struct {
	Kind      string    `json:"kind"`
	ChatID    int64     `json:"chat_id"`
	ChatTitle string    `json:"chat_title,omitempty"`
	SourceID  string    `json:"source_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Artist    string    `json:"artist,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Position  int       `json:"position,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

func newFeedEvent(ev dispatch.Event, now time.Time) FeedEvent {
	fe := FeedEvent{
		Kind:      ev.Kind.String(),
		ChatID:    ev.Chat.ID,
		ChatTitle: ev.Chat.Title,
		SourceID:  ev.Track.SourceID,
		Title:     ev.Track.Title,
		Artist:    ev.Track.Artist,
		SessionID: ev.SessionID,
		Position:  ev.Position,
		Time:      now,
	}
	if ev.Err != nil {
		fe.Error = ev.Err.Error()
	}
	return fe
}

// Feed fans dispatcher events out to live subscribers. It is a
// [dispatch.Notifier] and never blocks the dispatcher: a subscriber whose
// buffer is full misses events.
type Feed struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	now    func() time.Time
	closed bool
}

var _ dispatch.Notifier = (*Feed)(nil)

type subscription struct {
	chatID int64
	events chan FeedEvent
}

// NewFeed creates an empty Feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[*subscription]struct{}), now: time.Now}
}

// Notify implements [dispatch.Notifier].
func (f *Feed) Notify(_ context.Context, ev dispatch.Event) {
	fe := newFeedEvent(ev, f.now())
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if sub.chatID != 0 && sub.chatID != ev.Chat.ID {
			continue
		}
		select {
		case sub.events <- fe:
		default:
		}
	}
}

// Subscribe registers a subscriber for chatID, or for every chat when chatID
// is zero. The returned cancel function unregisters it and closes the
// channel.
func (f *Feed) Subscribe(chatID int64) (<-chan FeedEvent, func()) {
	sub := &subscription{chatID: chatID, events: make(chan FeedEvent, feedBuffer)}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.events)
		return sub.events, func() {}
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return sub.events, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subs[sub]; ok {
				delete(f.subs, sub)
				close(sub.events)
			}
		})
	}
}

// Subscribers returns the number of live subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every subscription. Later subscriptions receive a closed channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for sub := range f.subs {
		delete(f.subs, sub)
		close(sub.events)
	}
}
