package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/chorus/internal/dispatch"
	"github.com/MrWong99/chorus/internal/queue"
	"github.com/MrWong99/chorus/pkg/track"
)

func TestMemory_RecentNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory(3)
	for i := range 5 {
		if err := m.Record(ctx, Play{ChatID: 1, SourceID: fmt.Sprint(i)}); err != nil {
			t.Fatal(err)
		}
	}
	_ = m.Record(ctx, Play{ChatID: 2, SourceID: "other"})

	tests := []struct {
		limit int
		want  string
	}{
		{0, "[4 3 2]"},
		{2, "[4 3]"},
		{10, "[4 3 2]"},
	}
	for _, tt := range tests {
		got, err := m.Recent(ctx, 1, tt.limit)
		if err != nil {
			t.Fatal(err)
		}
		ids := make([]string, len(got))
		for i, p := range got {
			ids[i] = p.SourceID
		}
		if fmt.Sprint(ids) != tt.want {
			t.Errorf("Recent(limit=%d) = %v, want %s", tt.limit, ids, tt.want)
		}
	}

	if got, _ := m.Recent(ctx, 99, 5); len(got) != 0 {
		t.Errorf("unknown chat returned %d plays", len(got))
	}
}

func TestMemory_Closed(t *testing.T) {
	t.Parallel()

	m := NewMemory(0)
	m.Close()
	if err := m.Record(context.Background(), Play{ChatID: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Record after Close: %v", err)
	}
	if _, err := m.Recent(context.Background(), 1, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Recent after Close: %v", err)
	}
}

func TestRecorder_RecordsNowPlayingOnly(t *testing.T) {
	t.Parallel()

	m := NewMemory(10)
	r := NewRecorder(m)
	fixed := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	chat := queue.Chat{ID: 5, Title: "g"}
	rec := track.Record{
		SourceID:    "abc123xyz90",
		Title:       "Song",
		Artist:      "Band",
		Duration:    "3:12",
		Provider:    "youtube",
		RequestedBy: track.Requester{ID: 9, DisplayName: "ana"},
	}
	ctx := context.Background()
	r.Notify(ctx, dispatch.Event{Kind: dispatch.EventQueued, Chat: chat, Track: rec})
	r.Notify(ctx, dispatch.Event{Kind: dispatch.EventNowPlaying, Chat: chat, Track: rec, SessionID: "s1"})
	r.Notify(ctx, dispatch.Event{Kind: dispatch.EventIdle, Chat: chat})

	got, _ := m.Recent(ctx, 5, 10)
	if len(got) != 1 {
		t.Fatalf("plays = %d, want 1", len(got))
	}
	p := got[0]
	if p.SourceID != "abc123xyz90" || p.SessionID != "s1" || p.RequestedBy.DisplayName != "ana" || !p.StartedAt.Equal(fixed) {
		t.Errorf("play = %+v", p)
	}
}

type failingStore struct{}

func (failingStore) Record(context.Context, Play) error { return errors.New("db down") }

func (failingStore) Recent(context.Context, int64, int) ([]Play, error) { return nil, nil }

func (failingStore) Close() {}

func TestRecorder_SwallowsErrors(t *testing.T) {
	t.Parallel()

	r := NewRecorder(failingStore{})
	// Must not panic or block.
	r.Notify(context.Background(), dispatch.Event{Kind: dispatch.EventNowPlaying, Track: track.Record{SourceID: "x"}})
}
