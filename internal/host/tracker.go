// Package host implements the page tracker that plugins such as the max
// scroll tracker attach to. It owns the page fields, notifies observers when
// they change, and turns send calls into hits for the transport.
package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/clock"
	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/id/uuid"
)

// IDGenerator produces hit and client identifiers.
type IDGenerator interface {
	NewID() (string, error)
	NewClientID() (string, error)
}

// Config wires a Tracker to its collaborators.
type Config struct {
	// TrackingID names the property; it scopes plugin storage.
	TrackingID string
	// ClientID identifies the browser; a UUIDv4 is generated when empty.
	ClientID string
	// Fields seeds the tracker fields (e.g. page, location).
	Fields hit.Fields
	// Emitter receives every hit; nil discards hits.
	Emitter hit.Emitter
	IDs     IDGenerator
	Clock   clock.Clock
	Logger  *zap.Logger
}

// Tracker holds page fields and sends hits. It is safe for concurrent use.
// Observers run synchronously on the goroutine that called Set or Send,
// after the tracker lock has been released.
type Tracker struct {
	trackingID string
	clientID   string
	emitter    hit.Emitter
	ids        IDGenerator
	clock      clock.Clock
	logger     *zap.Logger

	mu       sync.Mutex
	fields   hit.Fields
	usage    map[string]struct{}
	nextSub  uint64
	setSubs  []setSubscriber
	sendSubs []sendSubscriber
}

type setSubscriber struct {
	id uint64
	fn func(changed hit.Fields)
}

type sendSubscriber struct {
	id uint64
	fn func(h hit.Hit)
}

// New builds a Tracker.
func New(cfg Config) (*Tracker, error) {
	if cfg.TrackingID == "" {
		return nil, errors.New("tracking id is required")
	}
	if cfg.IDs == nil {
		cfg.IDs = uuid.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = hit.EmitterFunc(func(hit.Hit) {})
	}
	clientID := cfg.ClientID
	if clientID == "" {
		var err error
		clientID, err = cfg.IDs.NewClientID()
		if err != nil {
			return nil, fmt.Errorf("client id: %w", err)
		}
	}
	fields := cfg.Fields.Clone()
	fields[hit.FieldTrackingID] = cfg.TrackingID
	fields[hit.FieldClientID] = clientID
	return &Tracker{
		trackingID: cfg.TrackingID,
		clientID:   clientID,
		emitter:    cfg.Emitter,
		ids:        cfg.IDs,
		clock:      cfg.Clock,
		logger:     cfg.Logger.With(zap.String("client_id", clientID)),
		fields:     fields,
		usage:      make(map[string]struct{}),
	}, nil
}

// ClientID returns the client identifier.
func (t *Tracker) ClientID() string { return t.clientID }

// Get returns the named field formatted as a string, or "" when unset.
func (t *Tracker) Get(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Set merges fields into the tracker and then notifies field observers with
// the fields that were passed in.
func (t *Tracker) Set(fields hit.Fields) {
	if len(fields) == 0 {
		return
	}
	t.mu.Lock()
	t.fields.Merge(fields)
	subs := append([]setSubscriber(nil), t.setSubs...)
	t.mu.Unlock()

	for _, sub := range subs {
		sub.fn(fields.Clone())
	}
}

// SetField is Set for a single field.
func (t *Tracker) SetField(name string, value any) {
	t.Set(hit.Fields{name: value})
}

// Subscribe registers fn to run after every Set. The returned function
// removes the registration and is safe to call more than once.
func (t *Tracker) Subscribe(fn func(changed hit.Fields)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSub++
	id := t.nextSub
	t.setSubs = append(t.setSubs, setSubscriber{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, sub := range t.setSubs {
			if sub.id == id {
				t.setSubs = append(t.setSubs[:i:i], t.setSubs[i+1:]...)
				return
			}
		}
	}
}

// OnSend registers fn to run after every hit handed to the emitter.
func (t *Tracker) OnSend(fn func(h hit.Hit)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSub++
	id := t.nextSub
	t.sendSubs = append(t.sendSubs, sendSubscriber{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, sub := range t.sendSubs {
			if sub.id == id {
				t.sendSubs = append(t.sendSubs[:i:i], t.sendSubs[i+1:]...)
				return
			}
		}
	}
}

// Subscribers reports how many field and send observers are registered.
func (t *Tracker) Subscribers() (set, send int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.setSubs), len(t.sendSubs)
}

// TrackUsage records that plugin was initialised on this tracker.
func (t *Tracker) TrackUsage(plugin string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage[plugin] = struct{}{}
}

// Usage lists the plugins recorded by TrackUsage, sorted.
func (t *Tracker) Usage() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.usage))
	for p := range t.usage {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Send builds a hit from the tracker fields overlaid with fields and hands
// it to the emitter. Delivery is fire-and-forget.
func (t *Tracker) Send(hitType string, fields hit.Fields) error {
	id, err := t.ids.NewID()
	if err != nil {
		return fmt.Errorf("hit id: %w", err)
	}
	t.mu.Lock()
	merged := t.fields.Clone().Merge(fields)
	subs := append([]sendSubscriber(nil), t.sendSubs...)
	t.mu.Unlock()

	h := hit.Hit{
		ID:         id,
		ClientID:   t.clientID,
		TrackingID: t.trackingID,
		Type:       hitType,
		Fields:     merged,
		TS:         t.clock.Now(),
	}
	if err := h.Validate(); err != nil {
		return fmt.Errorf("invalid %s hit: %w", hitType, err)
	}
	t.emitter.Emit(h)
	t.logger.Debug("hit sent", zap.String("type", hitType), zap.String("hit_id", id))

	for _, sub := range subs {
		sub.fn(h)
	}
	return nil
}
