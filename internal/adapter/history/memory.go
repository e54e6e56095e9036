// Package history keeps recent channel messages in process memory.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/llm-chat-relay/internal/domain"
)

// DefaultCapacity is the number of messages retained per channel.
const DefaultCapacity = 50

// Store is a bounded per-channel message log. It implements both
// domain.HistorySource and domain.HistorySink. Contents are lost on restart.
type Store struct {
	mu       sync.RWMutex
	capacity int
	channels map[string]*ring
}

// ring holds the most recent entries of one channel in insertion order.
type ring struct {
	buf   []domain.HistoryEntry
	start int
	size  int
}

func (r *ring) push(e domain.HistoryEntry) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// newest returns up to n entries, newest first.
func (r *ring) newest(n int) []domain.HistoryEntry {
	if n > r.size {
		n = r.size
	}
	out := make([]domain.HistoryEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.start + r.size - 1 - i) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// NewStore creates a Store retaining capacity messages per channel.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, channels: make(map[string]*ring)}
}

// Append records e in channelID, evicting the oldest entry when full.
// Missing IDs and timestamps are filled in.
func (s *Store) Append(ctx context.Context, channelID string, e domain.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channelID == "" {
		return fmt.Errorf("%w: channel id required", domain.ErrInvalidArgument)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.channels[channelID]
	if !ok {
		r = &ring{buf: make([]domain.HistoryEntry, s.capacity)}
		s.channels[channelID] = r
	}
	r.push(e)
	return nil
}

// Recent returns up to limit entries of channelID, newest first.
func (s *Store) Recent(ctx context.Context, channelID string, limit int) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.HistoryEntry{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.channels[channelID]
	if !ok {
		return []domain.HistoryEntry{}, nil
	}
	return r.newest(limit), nil
}
