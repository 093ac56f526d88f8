package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/chorus/internal/dispatch"
	"github.com/MrWong99/chorus/internal/queue"
)

func TestFeed_FiltersByChat(t *testing.T) {
	t.Parallel()
	f := NewFeed()
	ctx := context.Background()

	one, cancelOne := f.Subscribe(1)
	defer cancelOne()
	all, cancelAll := f.Subscribe(0)
	defer cancelAll()

	f.Notify(ctx, dispatch.Event{Kind: dispatch.EventQueued, Chat: queue.Chat{ID: 2}, Position: 3})
	f.Notify(ctx, dispatch.Event{Kind: dispatch.EventStartFailed, Chat: queue.Chat{ID: 1}, Err: errors.New("boom")})

	if got := <-one; got.ChatID != 1 || got.Kind != "start_failed" || got.Error != "boom" {
		t.Errorf("chat 1 subscriber got %+v", got)
	}
	select {
	case ev := <-one:
		t.Errorf("chat 1 subscriber got extra event %+v", ev)
	default:
	}
	if got := <-all; got.ChatID != 2 || got.Position != 3 {
		t.Errorf("wildcard first event = %+v", got)
	}
	if got := <-all; got.ChatID != 1 {
		t.Errorf("wildcard second event = %+v", got)
	}
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	f := NewFeed()
	_, cancel := f.Subscribe(0)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range feedBuffer * 3 {
			f.Notify(context.Background(), dispatch.Event{Kind: dispatch.EventIdle, Chat: queue.Chat{ID: 1}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
}

func TestFeed_CancelAndClose(t *testing.T) {
	t.Parallel()
	f := NewFeed()

	ch, cancel := f.Subscribe(1)
	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Error("channel open after cancel")
	}
	if f.Subscribers() != 0 {
		t.Errorf("subscribers = %d", f.Subscribers())
	}

	ch2, cancel2 := f.Subscribe(1)
	f.Close()
	cancel2()
	if _, open := <-ch2; open {
		t.Error("channel open after Close")
	}
	ch3, _ := f.Subscribe(1)
	if _, open := <-ch3; open {
		t.Error("subscription after Close is open")
	}
}
