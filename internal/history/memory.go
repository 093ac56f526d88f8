package history

import (
	"context"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process [Store] that keeps the last perChat plays of every
// chat.
type Memory struct {
	mu      sync.Mutex
	perChat int
	plays   map[int64][]Play
	closed  bool
}

// NewMemory returns a Memory store. perChat ≤ 0 selects 100.
func NewMemory(perChat int) *Memory {
	if perChat <= 0 {
		perChat = 100
	}
	return &Memory{perChat: perChat, plays: make(map[int64][]Play)}
}

// Record implements [Store].
func (m *Memory) Record(_ context.Context, p Play) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	log := append(m.plays[p.ChatID], p)
	if len(log) > m.perChat {
		log = append(log[:0:0], log[len(log)-m.perChat:]...)
	}
	m.plays[p.ChatID] = log
	return nil
}

// Recent implements [Store].
func (m *Memory) Recent(_ context.Context, chatID int64, limit int) ([]Play, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	log := m.plays[chatID]
	out := make([]Play, 0, min(limit, len(log)))
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}

// Close implements [Store].
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.plays = nil
}
