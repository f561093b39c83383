package hit

import "context"

// Sink consumes batches of hits. Implementations must be safe for repeated
// calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Hit) error
	Close(ctx context.Context) error
}

// Emitter publishes individual hits; Hub satisfies this interface so page
// trackers remain agnostic about how hits are buffered or delivered.
type Emitter interface {
	Emit(h Hit)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Hit)

// Emit calls f(h).
func (f EmitterFunc) Emit(h Hit) { f(h) }
