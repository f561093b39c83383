package maxscroll

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/clock"
	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/session"
	"github.com/JakeFAU/maxscroll/internal/store"
)

const (
	// DefaultIncreaseThreshold is the minimum increase, in percentage points,
	// reported below 100%.
	DefaultIncreaseThreshold = 5
	// DefaultDebounceWait is the scroll inactivity required before measuring.
	DefaultDebounceWait = 200 * time.Millisecond
)

// HitFilter inspects and may rewrite the outgoing event fields. Returning a
// non-nil error cancels the send.
type HitFilter func(fields hit.Fields, host Host) error

// SessionFactory builds the session collaborator for a tracker.
type SessionFactory func(ctx context.Context, host Host, provider store.Provider, opts Options) (Session, error)

// Options configures a Tracker. Zero values select the defaults.
type Options struct {
	// IncreaseThreshold below 1 uses DefaultIncreaseThreshold; use 1 to
	// report every increase.
	IncreaseThreshold int
	// IgnoreURLQuery drops the query string from page keys. Nil means true.
	IgnoreURLQuery *bool
	// SessionTimeout defaults to session.DefaultTimeout.
	SessionTimeout time.Duration
	// TimeZone is passed to the session so it also expires at midnight.
	TimeZone string
	// MaxScrollMetricIndex, when positive, also reports the increase as
	// custom metric metric<N>.
	MaxScrollMetricIndex int
	// FieldsObj overrides event fields.
	FieldsObj hit.Fields
	// HitFilter runs after FieldsObj is applied.
	HitFilter HitFilter
	// DebounceWait defaults to DefaultDebounceWait.
	DebounceWait time.Duration

	Clock       clock.Clock
	Logger      *zap.Logger
	Metrics     *Metrics
	BaseContext context.Context
	// NewSession overrides how the session collaborator is built.
	NewSession SessionFactory
}

// Bool returns a pointer to b, for IgnoreURLQuery.
func Bool(b bool) *bool {
	return &b
}

func (o Options) withDefaults() Options {
	if o.IncreaseThreshold < 1 {
		o.IncreaseThreshold = DefaultIncreaseThreshold
	}
	if o.IgnoreURLQuery == nil {
		o.IgnoreURLQuery = Bool(true)
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = session.DefaultTimeout
	}
	if o.MaxScrollMetricIndex < 0 {
		o.MaxScrollMetricIndex = 0
	}
	if o.DebounceWait <= 0 {
		o.DebounceWait = DefaultDebounceWait
	}
	if o.Clock == nil {
		o.Clock = clock.NewSystem()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.BaseContext == nil {
		o.BaseContext = context.Background()
	}
	if o.NewSession == nil {
		o.NewSession = newSession
	}
	return o
}

func newSession(ctx context.Context, host Host, provider store.Provider, opts Options) (Session, error) {
	s, err := session.New(ctx, host, provider, session.Config{
		Timeout:     opts.SessionTimeout,
		TimeZone:    opts.TimeZone,
		Clock:       opts.Clock,
		Logger:      opts.Logger.Named("session"),
		BaseContext: opts.BaseContext,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
