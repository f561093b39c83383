package maxscroll

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts tracker decisions. A nil *Metrics records nothing.
type Metrics struct {
	scrollsHandled prometheus.Counter
	eventsSent     prometheus.Counter
	belowThreshold prometheus.Counter
	sessionResets  prometheus.Counter
	vetoed         prometheus.Counter
	handlerErrors  prometheus.Counter
	increase       prometheus.Histogram
}

// NewMetrics registers the tracker collectors on reg. One Metrics value is
// meant to be shared by every tracker in a process.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		scrollsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maxscroll_scrolls_handled_total",
			Help: "Debounced scroll signals measured.",
		}),
		eventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maxscroll_events_sent_total",
			Help: "Max scroll events handed to the host.",
		}),
		belowThreshold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maxscroll_increases_below_threshold_total",
			Help: "Increases dropped because they were smaller than the threshold.",
		}),
		sessionResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maxscroll_session_resets_total",
			Help: "Times stored maxima were cleared because the session expired.",
		}),
		vetoed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maxscroll_events_vetoed_total",
			Help: "Events cancelled by a hit filter.",
		}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maxscroll_handler_errors_total",
			Help: "Scroll or page-change handling abandoned because of a store or send failure.",
		}),
		increase: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "maxscroll_increase_percent",
			Help:    "Reported max scroll increases in percentage points.",
			Buckets: []float64{5, 10, 20, 30, 50, 75, 100},
		}),
	}
	for _, c := range []prometheus.Collector{
		m.scrollsHandled,
		m.eventsSent,
		m.belowThreshold,
		m.sessionResets,
		m.vetoed,
		m.handlerErrors,
		m.increase,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register maxscroll collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) scrollHandled() {
	if m != nil {
		m.scrollsHandled.Inc()
	}
}

func (m *Metrics) eventSent(increase int) {
	if m != nil {
		m.eventsSent.Inc()
		m.increase.Observe(float64(increase))
	}
}

func (m *Metrics) droppedBelowThreshold() {
	if m != nil {
		m.belowThreshold.Inc()
	}
}

func (m *Metrics) sessionReset() {
	if m != nil {
		m.sessionResets.Inc()
	}
}

func (m *Metrics) eventVetoed() {
	if m != nil {
		m.vetoed.Inc()
	}
}

func (m *Metrics) handlerError() {
	if m != nil {
		m.handlerErrors.Inc()
	}
}
