package pipeline

import (
	"context"
	"strconv"
	"sync"

	"github.com/emperorhan/fa-indexer/internal/domain/event"
)

// SliceSource serves a fixed list of batches from memory. Batches that were
// read but not acknowledged are handed out again after Rewind. It backs
// replays of captured batches and tests.
type SliceSource struct {
	mu      sync.Mutex
	batches []event.RawBatch
	next    int
	acked   map[string]bool
	order   []string
}

var _ Rewinder = (*SliceSource)(nil)

func NewSliceSource(batches ...event.RawBatch) *SliceSource {
	s := &SliceSource{acked: make(map[string]bool, len(batches))}
	for i, b := range batches {
		b.AckToken = strconv.Itoa(i)
		s.batches = append(s.batches, b)
	}
	return s
}

// Next returns the next batch or ErrSourceExhausted once every batch has been
// handed out.
func (s *SliceSource) Next(ctx context.Context) (event.RawBatch, error) {
	if err := ctx.Err(); err != nil {
		return event.RawBatch{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.next < len(s.batches) {
		b := s.batches[s.next]
		s.next++
		if !s.acked[b.AckToken] {
			return b, nil
		}
	}
	return event.RawBatch{}, ErrSourceExhausted
}

func (s *SliceSource) Ack(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acked[token] {
		s.acked[token] = true
		s.order = append(s.order, token)
	}
	return nil
}

func (s *SliceSource) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}

// Acked returns the ids of acknowledged batches in acknowledgement order.
func (s *SliceSource) Acked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.order))
	for _, token := range s.order {
		i, _ := strconv.Atoi(token)
		ids = append(ids, s.batches[i].ID)
	}
	return ids
}

// Pending reports how many batches have not been acknowledged.
func (s *SliceSource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches) - len(s.order)
}
