package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/chorus/pkg/track"
)

func rec(id string) track.Record {
	return track.Record{SourceID: id, Title: "t-" + id, AudioRef: "/cache/" + id + ".mp3"}
}

func seqIDs() Option {
	var (
		mu sync.Mutex
		n  int
	)
	return withSessionIDs(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%d", n)
	})
}

var chatC = Chat{ID: -100123, Title: "Friday Night"}

func TestEnqueuePromoteFIFO(t *testing.T) {
	t.Parallel()

	s := NewStore(seqIDs())
	for i, id := range []string{"T1", "T2", "T3"} {
		pos, err := s.Enqueue(chatC, rec(id))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if pos != i+1 {
			t.Errorf("position of %s = %d, want %d", id, pos, i+1)
		}
	}

	var order []string
	for {
		e, ok := s.PromoteNext(chatC.ID)
		if !ok {
			break
		}
		order = append(order, e.Track.SourceID)
		if s.IsIdle(chatC.ID) {
			t.Fatal("chat idle right after a promote")
		}
	}
	if fmt.Sprint(order) != "[T1 T2 T3]" {
		t.Errorf("order = %v, want [T1 T2 T3]", order)
	}
	if !s.IsIdle(chatC.ID) {
		t.Error("chat not idle after promoting from an empty queue")
	}
}

func TestPromoteNext_AssignsFreshSession(t *testing.T) {
	t.Parallel()

	s := NewStore(seqIDs())
	_, _ = s.Enqueue(chatC, rec("a"))
	_, _ = s.Enqueue(chatC, rec("a"))

	e1, _ := s.PromoteNext(chatC.ID)
	e2, _ := s.PromoteNext(chatC.ID)
	if e1.SessionID == e2.SessionID {
		t.Errorf("sessions not unique: %q", e1.SessionID)
	}
	if e1.Track.SourceID != "a" || e2.Track.SourceID != "a" {
		t.Error("duplicate tracks were not both kept")
	}
}

func TestPromoteNext_UnknownChat(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if _, ok := s.PromoteNext(42); ok {
		t.Fatal("PromoteNext on unknown chat returned a track")
	}
	if _, found := s.Peek(42); found {
		t.Error("PromoteNext created chat state")
	}
}

func TestSetNowPlaying(t *testing.T) {
	t.Parallel()

	s := NewStore(seqIDs())
	r := rec("x")
	e := s.SetNowPlaying(chatC, &r)
	if e.SessionID != "s1" || e.Track.SourceID != "x" {
		t.Fatalf("entry = %+v", e)
	}
	if s.IsIdle(chatC.ID) {
		t.Fatal("chat idle after SetNowPlaying")
	}

	snap, _ := s.Peek(chatC.ID)
	if snap.ChatTitle != "Friday Night" {
		t.Errorf("title = %q", snap.ChatTitle)
	}

	s.SetNowPlaying(Chat{ID: chatC.ID}, nil)
	if !s.IsIdle(chatC.ID) {
		t.Fatal("chat not idle after clearing")
	}
	snap, _ = s.Peek(chatC.ID)
	if snap.ChatTitle != "Friday Night" {
		t.Errorf("title overwritten by empty title: %q", snap.ChatTitle)
	}
}

func TestClaimIfIdle(t *testing.T) {
	t.Parallel()

	s := NewStore()
	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.ClaimIfIdle(chatC, rec(fmt.Sprint(i))); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestClearNowPlayingIf(t *testing.T) {
	t.Parallel()

	s := NewStore(seqIDs())
	r := rec("x")
	e := s.SetNowPlaying(chatC, &r)

	if s.ClearNowPlayingIf(chatC.ID, "other") {
		t.Fatal("cleared with a stale session id")
	}
	if !s.ClearNowPlayingIf(chatC.ID, e.SessionID) {
		t.Fatal("did not clear with the current session id")
	}
	if !s.IsIdle(chatC.ID) {
		t.Fatal("chat not idle")
	}
}

func TestPeek_IsASnapshot(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _ = s.Enqueue(chatC, rec("a"))
	r := rec("now")
	s.SetNowPlaying(chatC, &r)

	snap, found := s.Peek(chatC.ID)
	if !found {
		t.Fatal("chat not found")
	}
	snap.Pending[0].Title = "mutated"
	snap.NowPlaying.Track.Title = "mutated"

	again, _ := s.Peek(chatC.ID)
	if again.Pending[0].Title != "t-a" || again.NowPlaying.Track.Title != "t-now" {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestMaxPending(t *testing.T) {
	t.Parallel()

	s := NewStore(WithMaxPending(2))
	for range 2 {
		if _, err := s.Enqueue(chatC, rec("a")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Enqueue(chatC, rec("a")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	snap, _ := s.Peek(chatC.ID)
	if len(snap.Pending) != 2 {
		t.Errorf("pending = %d, want 2", len(snap.Pending))
	}
}

func TestClearPendingAndClear(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _ = s.Enqueue(chatC, rec("a"))
	_, _ = s.Enqueue(chatC, rec("b"))
	r := rec("now")
	s.SetNowPlaying(chatC, &r)

	if n := s.ClearPending(chatC.ID); n != 2 {
		t.Errorf("ClearPending = %d, want 2", n)
	}
	if s.IsIdle(chatC.ID) {
		t.Error("ClearPending touched the playing entry")
	}

	s.Clear(chatC.ID)
	if _, found := s.Peek(chatC.ID); found {
		t.Error("chat still present after Clear")
	}
	if !s.IsIdle(chatC.ID) {
		t.Error("cleared chat not idle")
	}

	// A cleared chat starts over on the next request.
	if pos, _ := s.Enqueue(chatC, rec("c")); pos != 1 {
		t.Errorf("position after Clear = %d, want 1", pos)
	}
}

func TestChats_Sorted(t *testing.T) {
	t.Parallel()

	s := NewStore()
	for _, id := range []int64{30, 10, 20} {
		_, _ = s.Enqueue(Chat{ID: id}, rec("a"))
	}
	got := s.Chats()
	if len(got) != 3 || got[0].ChatID != 10 || got[1].ChatID != 20 || got[2].ChatID != 30 {
		t.Errorf("Chats order = %+v", got)
	}
}

func TestConcurrentEnqueuePreservesCount(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Enqueue(Chat{ID: int64(i % 5)}, rec("x"))
		}()
	}
	wg.Wait()
	total := 0
	for _, c := range s.Chats() {
		total += len(c.Pending)
	}
	if total != 50 {
		t.Errorf("total pending = %d, want 50", total)
	}
}
