package sinks

import (
	"context"
	"sync"

	"github.com/JakeFAU/maxscroll/internal/hit"
)

// MemorySink records every consumed hit for later inspection.
type MemorySink struct {
	mu   sync.RWMutex
	hits []hit.Hit
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Consume appends the batch.
func (s *MemorySink) Consume(_ context.Context, batch []hit.Hit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = append(s.hits, batch...)
	return nil
}

// Hits returns the recorded hits.
func (s *MemorySink) Hits() []hit.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]hit.Hit, len(s.hits))
	copy(out, s.hits)
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *MemorySink) Close(context.Context) error {
	return nil
}
