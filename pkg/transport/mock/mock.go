// Package mock provides an in-memory [transport.Transport] for unit tests.
//
// The mock never plays anything. Tests drive completion explicitly with
// [Transport.Finish], which invokes the stored finish callback on the calling
// goroutine.
//
//	tr := &mock.Transport{}
//	_ = d.StreamOrQueue(ctx, chat, rec)
//	tr.Finish(chat.ID, nil) // simulate the end of the song
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chorus/pkg/transport"
)

var _ transport.Transport = (*Transport)(nil)

// Transport is a mock implementation of [transport.Transport].
type Transport struct {
	mu sync.Mutex

	// StartErr, when non-nil, is returned by Start and nothing is recorded as
	// active.
	StartErr error

	// StartErrFor overrides StartErr for specific audio refs.
	StartErrFor map[string]error

	// StopErr is returned by Stop.
	StopErr error

	// FinishOnStop makes Stop invoke the active stream's callback, as a real
	// transport would.
	FinishOnStop bool

	// Starts records every accepted and rejected Start call in order.
	Starts []transport.Stream

	// Stops records the chat IDs passed to Stop.
	Stops []int64

	active map[int64]activeStream
}

type activeStream struct {
	stream   transport.Stream
	onFinish transport.FinishFunc
}

// Start implements [transport.Transport].
func (t *Transport) Start(_ context.Context, s transport.Stream, onFinish transport.FinishFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Starts = append(t.Starts, s)
	if err, ok := t.StartErrFor[s.AudioRef]; ok && err != nil {
		return err
	}
	if t.StartErr != nil {
		return t.StartErr
	}
	if t.active == nil {
		t.active = make(map[int64]activeStream)
	}
	t.active[s.ChatID] = activeStream{stream: s, onFinish: onFinish}
	return nil
}

// Stop implements [transport.Transport].
func (t *Transport) Stop(_ context.Context, chatID int64) error {
	t.mu.Lock()
	t.Stops = append(t.Stops, chatID)
	stopErr := t.StopErr
	finish := t.FinishOnStop
	t.mu.Unlock()
	if stopErr != nil {
		return stopErr
	}
	if finish {
		t.Finish(chatID, nil)
	}
	return nil
}

// Finish ends the chat's active stream and invokes its callback with err.
// It reports false when nothing was active.
func (t *Transport) Finish(chatID int64, err error) bool {
	t.mu.Lock()
	a, ok := t.active[chatID]
	if ok {
		delete(t.active, chatID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if a.onFinish != nil {
		a.onFinish(a.stream, err)
	}
	return true
}

// Active returns the chat's active stream.
func (t *Transport) Active(chatID int64) (transport.Stream, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.active[chatID]
	return a.stream, ok
}

// StartCount returns the number of Start calls so far.
func (t *Transport) StartCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Starts)
}

// LastStart returns the most recent Start call.
func (t *Transport) LastStart() (transport.Stream, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Starts) == 0 {
		return transport.Stream{}, false
	}
	return t.Starts[len(t.Starts)-1], true
}
