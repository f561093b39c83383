package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/maxscroll/internal/hit"
)

// PrometheusSink exports hit volume and event values via Prometheus.
type PrometheusSink struct {
	hits        *prometheus.CounterVec
	eventValues *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maxscroll_hits_total",
			Help: "Hits delivered to sinks partitioned by type, category and action.",
		}, []string{"type", "category", "action"}),
		eventValues: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maxscroll_event_value",
			Help:    "Distribution of numeric event values, e.g. max scroll increases in percentage points.",
			Buckets: []float64{1, 5, 10, 20, 30, 50, 75, 100},
		}, []string{"category", "action"}),
	}
	for _, collector := range []prometheus.Collector{s.hits, s.eventValues} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register hit collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []hit.Hit) error {
	for _, h := range batch {
		category, action := h.Category(), h.Action()
		s.hits.WithLabelValues(h.Type, category, action).Inc()
		if v, ok := h.Value(); ok && h.Type == hit.TypeEvent {
			s.eventValues.WithLabelValues(category, action).Observe(v)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
