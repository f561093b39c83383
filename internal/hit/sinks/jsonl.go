package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/maxscroll/internal/hit"
)

// JSONLinesSink writes each hit as one JSON document per line.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesSink returns a sink writing to w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

// Consume encodes the batch in order.
func (s *JSONLinesSink) Consume(_ context.Context, batch []hit.Hit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range batch {
		if err := s.enc.Encode(h); err != nil {
			return fmt.Errorf("encode hit %s: %w", h.ID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *JSONLinesSink) Close(context.Context) error {
	return nil
}
