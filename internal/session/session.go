// Package session tracks whether the visitor's analytics session is still
// alive. Hit times are persisted so every tracker sharing a store agrees on
// when the session last saw activity.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/clock"
	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/store"
)

// DefaultTimeout is the inactivity window after which a session expires.
const DefaultTimeout = 30 * time.Minute

// Namespace is the store namespace holding session bookkeeping.
const Namespace = "session"

const (
	keyHitTime   = "hitTime"
	keyIsExpired = "isExpired"
)

// Values accepted in the sessionControl field.
const (
	ControlStart = "start"
	ControlEnd   = "end"
)

// Host is the part of the page tracker a Session observes.
type Host interface {
	Get(name string) string
	OnSend(fn func(h hit.Hit)) func()
}

// Config tunes expiry.
type Config struct {
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// TimeZone, when set, also expires the session at midnight in that zone.
	TimeZone string
	Clock    clock.Clock
	Logger   *zap.Logger
	// BaseContext is used for store calls made from hit observers.
	BaseContext context.Context
}

// Session reports expiry from the persisted time of the last hit.
type Session struct {
	store   store.Store
	timeout time.Duration
	loc     *time.Location
	clock   clock.Clock
	logger  *zap.Logger
	ctx     context.Context

	mu          sync.Mutex
	unsubscribe func()
}

// New opens the session store for the host's tracking ID and starts
// recording the time of every hit the host sends.
func New(ctx context.Context, h Host, provider store.Provider, cfg Config) (*Session, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	var loc *time.Location
	if cfg.TimeZone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("session time zone %q: %w", cfg.TimeZone, err)
		}
	}
	st, err := provider.Open(ctx, h.Get(hit.FieldTrackingID), Namespace)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	s := &Session{
		store:   st,
		timeout: cfg.Timeout,
		loc:     loc,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		ctx:     cfg.BaseContext,
	}
	s.unsubscribe = h.OnSend(s.recordHit)
	return s, nil
}

// IsExpired reports whether the session ended explicitly, timed out, or
// crossed midnight in the configured time zone. A session with no recorded
// hit is live. Store failures are logged and reported as live so a flaky
// backend does not wipe scroll state.
func (s *Session) IsExpired() bool {
	data, err := s.store.Get(s.ctx)
	if err != nil {
		s.logger.Warn("session store read failed", zap.Error(err))
		return false
	}
	return s.expired(data, s.clock.Now())
}

func (s *Session) expired(data map[string]int64, now time.Time) bool {
	if data[keyIsExpired] != 0 {
		return true
	}
	ms, ok := data[keyHitTime]
	if !ok {
		return false
	}
	last := time.UnixMilli(ms)
	if now.Sub(last) > s.timeout {
		return true
	}
	if s.loc != nil {
		y1, m1, d1 := now.In(s.loc).Date()
		y2, m2, d2 := last.In(s.loc).Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return true
		}
	}
	return false
}

// recordHit stamps the hit time. A hit sent into an expired session, or one
// carrying sessionControl=start, begins a new session; sessionControl=end
// marks the session expired.
func (s *Session) recordHit(h hit.Hit) {
	data, err := s.store.Get(s.ctx)
	if err != nil {
		s.logger.Warn("session store read failed", zap.Error(err))
		return
	}
	now := s.clock.Now()
	control := h.Fields.String(hit.FieldSessionControl)
	update := map[string]int64{keyHitTime: now.UnixMilli()}
	if control == ControlStart || s.expired(data, now) {
		update[keyIsExpired] = 0
	}
	if control == ControlEnd {
		update[keyIsExpired] = 1
	}
	if err := s.store.Set(s.ctx, update); err != nil {
		s.logger.Warn("session store write failed", zap.Error(err))
	}
}

// Destroy stops observing the host. It is safe to call more than once.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}
