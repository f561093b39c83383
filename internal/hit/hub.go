package hit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes how the Hub groups hits for its sinks. Zero values take the
// defaults below.
type Config struct {
	// BufferSize is how many accepted hits may wait for the delivery loop.
	BufferSize int
	// MaxBatchHits delivers a batch as soon as it holds this many hits.
	MaxBatchHits int
	// MaxBatchWait bounds how long the oldest hit of a batch waits.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration
	// BaseContext is the parent of every Consume context.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize   = 1024
	defaultMaxBatchHits = 100
	defaultMaxBatchWait = time.Second
	defaultSinkTimeout  = 10 * time.Second
	overflowLogInterval = 5 * time.Second
)

// HubStats counts hits by outcome since the hub was created.
type HubStats struct {
	// Delivered hits were handed to every sink, whether or not a sink failed.
	Delivered int64
	// Dropped hits arrived while the queue was full.
	Dropped int64
	// Rejected hits failed validation.
	Rejected int64
	// Batches is the number of delivery rounds.
	Batches int64
}

// Hub decouples trackers from hit sinks. Emit never blocks; a single delivery
// goroutine groups queued hits into batches and hands each batch to every
// sink in registration order, so a sink sees hits in the order they were
// emitted.
type Hub struct {
	cfg    Config
	sinks  []Sink
	queue  chan Hit
	stop   chan context.Context
	done   chan struct{}
	logger *zap.Logger

	closing   atomic.Bool
	closeOnce sync.Once

	overflowLog rate.Sometimes
	overflowMu  sync.Mutex
	overflow    map[string]int64

	delivered atomic.Int64
	dropped   atomic.Int64
	rejected  atomic.Int64
	batches   atomic.Int64
}

// NewHub starts the delivery loop for sinks. Nil sinks are skipped.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchHits <= 0 {
		cfg.MaxBatchHits = defaultMaxBatchHits
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	h := &Hub{
		cfg:         cfg,
		sinks:       live,
		queue:       make(chan Hit, cfg.BufferSize),
		stop:        make(chan context.Context, 1),
		done:        make(chan struct{}),
		logger:      cfg.Logger,
		overflowLog: rate.Sometimes{Interval: overflowLogInterval},
	}
	go h.run()
	return h
}

// Emit queues hit for delivery. Malformed hits are rejected and hits that
// find the queue full are dropped; neither case blocks the caller. Emit after
// Close is ignored.
func (h *Hub) Emit(hit Hit) {
	if h == nil || h.closing.Load() {
		return
	}
	if err := hit.Validate(); err != nil {
		h.rejected.Add(1)
		h.logger.Debug("rejected malformed hit", zap.String("hit_id", hit.ID), zap.Error(err))
		return
	}
	select {
	case h.queue <- hit:
	default:
		h.recordOverflow(hit.Type)
	}
}

// Stats returns the outcome counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
		Rejected:  h.rejected.Load(),
		Batches:   h.batches.Load(),
	}
}

// Close stops accepting hits, delivers what is queued, closes the sinks with
// ctx and waits for the delivery loop to finish. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closing.Store(true)
		h.stop <- ctx
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hit hub close wait: %w", ctx.Err())
	}
}

// recordOverflow tallies a dropped hit by type and periodically reports the
// tally.
func (h *Hub) recordOverflow(hitType string) {
	h.dropped.Add(1)
	h.overflowMu.Lock()
	if h.overflow == nil {
		h.overflow = map[string]int64{}
	}
	h.overflow[hitType]++
	h.overflowMu.Unlock()

	h.overflowLog.Do(func() {
		h.overflowMu.Lock()
		byType := h.overflow
		h.overflow = nil
		h.overflowMu.Unlock()
		h.logger.Warn("hit queue full, hits discarded",
			zap.Any("dropped_by_type", byType),
			zap.Int("queue_capacity", cap(h.queue)))
	})
}

func (h *Hub) run() {
	defer close(h.done)
	var (
		pending  []Hit
		timer    *time.Timer
		deadline <-chan time.Time
	)
	disarm := func() {
		if timer != nil {
			timer.Stop()
		}
		deadline = nil
	}
	for {
		select {
		case hit := <-h.queue:
			if len(pending) == 0 {
				pending = make([]Hit, 0, h.cfg.MaxBatchHits)
				timer = time.NewTimer(h.cfg.MaxBatchWait)
				deadline = timer.C
			}
			pending = append(pending, hit)
			if len(pending) >= h.cfg.MaxBatchHits {
				disarm()
				h.deliver(pending)
				pending = nil
			}
		case <-deadline:
			deadline = nil
			h.deliver(pending)
			pending = nil
		case ctx := <-h.stop:
			disarm()
			h.shutdown(ctx, pending)
			return
		}
	}
}

// shutdown delivers pending plus whatever is still queued, then closes sinks.
func (h *Hub) shutdown(ctx context.Context, pending []Hit) {
drain:
	for {
		select {
		case hit := <-h.queue:
			pending = append(pending, hit)
			if len(pending) >= h.cfg.MaxBatchHits {
				h.deliver(pending)
				pending = nil
			}
		default:
			break drain
		}
	}
	h.deliver(pending)

	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("hit sink close failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
	}
	stats := h.Stats()
	h.logger.Info("hit delivery stopped",
		zap.Int64("delivered", stats.Delivered),
		zap.Int64("dropped", stats.Dropped),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("batches", stats.Batches))
}

// deliver hands batch to each sink under its own timeout. A failing sink is
// logged and does not stop delivery to the rest.
func (h *Hub) deliver(batch []Hit) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		err := sink.Consume(ctx, batch)
		cancel()
		if err != nil {
			h.logger.Warn("hit sink rejected batch",
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Int("hits", len(batch)),
				zap.Error(err))
		}
	}
	h.delivered.Add(int64(len(batch)))
	h.batches.Add(1)
}
