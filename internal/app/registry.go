package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/clock"
	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/host"
	"github.com/JakeFAU/maxscroll/internal/maxscroll"
	"github.com/JakeFAU/maxscroll/internal/metrics"
	"github.com/JakeFAU/maxscroll/internal/page"
	"github.com/JakeFAU/maxscroll/internal/store"
)

// Browser event types accepted by Apply.
const (
	EventNavigate = "navigate"
	EventScroll   = "scroll"
)

var (
	// ErrRegistryClosed is returned by Apply after Close.
	ErrRegistryClosed = errors.New("registry closed")
	// ErrInvalidEvent wraps validation failures of incoming events.
	ErrInvalidEvent = errors.New("invalid browser event")
)

// BrowserEvent is one observation reported by the browser agent.
type BrowserEvent struct {
	Type string `json:"type"`
	// URL is the document location; required for navigate.
	URL string `json:"url,omitempty"`
	// Page overrides the page field, for virtual pageviews.
	Page           string    `json:"page,omitempty"`
	ScrollTop      float64   `json:"scroll_top,omitempty"`
	ViewportHeight float64   `json:"viewport_height,omitempty"`
	DocumentHeight float64   `json:"document_height,omitempty"`
	Timestamp      time.Time `json:"ts,omitempty"`
}

// Validate checks the event shape.
func (e BrowserEvent) Validate() error {
	switch e.Type {
	case EventNavigate:
		if e.URL == "" {
			return fmt.Errorf("%w: navigate requires url", ErrInvalidEvent)
		}
	case EventScroll:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.ScrollTop < 0 || e.ViewportHeight < 0 || e.DocumentHeight < 0 {
		return fmt.Errorf("%w: negative geometry", ErrInvalidEvent)
	}
	return nil
}

// RegistryConfig wires every client to the shared collaborators.
type RegistryConfig struct {
	TrackingID string
	// Tracker is the template for each client's tracker options.
	Tracker  maxscroll.Options
	Provider store.Provider
	Emitter  hit.Emitter
	Metrics  *metrics.Metrics
	// IdleTimeout removes clients that have not sent events for this long.
	IdleTimeout time.Duration
	IDs         host.IDGenerator
	Clock       clock.Clock
	Logger      *zap.Logger
}

// Client is the per-browser runtime: the page, the page tracker and the max
// scroll plugin attached to it.
type Client struct {
	ID       string
	Host     *host.Tracker
	Document *page.Document
	Tracker  *maxscroll.Tracker

	mu       sync.Mutex
	lastSeen time.Time
}

// Registry keeps one Client per client id.
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// NewRegistry validates cfg and returns an empty registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.TrackingID == "" {
		return nil, errors.New("registry: tracking id is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("registry: store provider is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	return &Registry{
		cfg:     cfg,
		logger:  cfg.Logger.Named("registry"),
		clients: make(map[string]*Client),
	}, nil
}

// Apply feeds events to the client's page in order, creating the client on
// first contact.
func (r *Registry) Apply(ctx context.Context, clientID string, events []BrowserEvent) error {
	if clientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidEvent)
	}
	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	c, err := r.client(clientID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = r.cfg.Clock.Now()
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("apply events: %w", err)
		}
		if err := r.applyEvent(c, ev); err != nil {
			return err
		}
		r.cfg.Metrics.ObserveBrowserEvent(ev.Type)
	}
	return nil
}

func (r *Registry) applyEvent(c *Client, ev BrowserEvent) error {
	switch ev.Type {
	case EventNavigate:
		c.Document.Navigate(ev.URL, ev.ViewportHeight, ev.DocumentHeight)
		c.Host.Set(hit.Fields{
			hit.FieldLocation: ev.URL,
			hit.FieldPage:     pageField(ev),
		})
		r.cfg.Metrics.ObserveNavigation(ev.URL)
		if err := c.Host.Send(hit.TypePageview, nil); err != nil {
			return fmt.Errorf("send pageview: %w", err)
		}
	case EventScroll:
		c.Document.Resize(ev.ViewportHeight, ev.DocumentHeight)
		c.Document.ScrollTo(ev.ScrollTop)
	}
	return nil
}

func pageField(ev BrowserEvent) string {
	if ev.Page != "" {
		return ev.Page
	}
	u, err := url.Parse(ev.URL)
	if err != nil {
		return "/"
	}
	return u.RequestURI()
}

func (r *Registry) client(id string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if c, ok := r.clients[id]; ok {
		return c, nil
	}

	logger := r.cfg.Logger.With(zap.String("client_id", id))
	h, err := host.New(host.Config{
		TrackingID: r.cfg.TrackingID,
		ClientID:   id,
		Emitter:    r.cfg.Emitter,
		IDs:        r.cfg.IDs,
		Clock:      r.cfg.Clock,
		Logger:     logger.Named("host"),
	})
	if err != nil {
		return nil, fmt.Errorf("create host tracker: %w", err)
	}
	doc := page.NewDocument("", 0, 0)
	opts := r.cfg.Tracker
	opts.Clock = r.cfg.Clock
	opts.Logger = logger
	tr, err := maxscroll.New(h, doc, store.Scoped(r.cfg.Provider, id), opts)
	if err != nil {
		return nil, fmt.Errorf("create max scroll tracker: %w", err)
	}

	c := &Client{ID: id, Host: h, Document: doc, Tracker: tr, lastSeen: r.cfg.Clock.Now()}
	r.clients[id] = c
	r.cfg.Metrics.SetActiveClients(len(r.clients))
	r.logger.Debug("client created", zap.String("client_id", id))
	return c, nil
}

// Get returns the client for id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Flush runs the client's pending scroll measurement now. It reports
// whether the client exists.
func (r *Registry) Flush(id string) bool {
	c, ok := r.Get(id)
	if !ok {
		return false
	}
	c.Tracker.Flush()
	return true
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Remove tears down one client. It reports whether the client existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
		r.cfg.Metrics.SetActiveClients(len(r.clients))
	}
	r.mu.Unlock()
	if ok {
		c.Tracker.Remove()
	}
	return ok
}

// EvictIdle removes clients whose last event is older than the idle timeout
// and returns how many were removed.
func (r *Registry) EvictIdle() int {
	cutoff := r.cfg.Clock.Now().Add(-r.cfg.IdleTimeout)
	r.mu.Lock()
	var idle []*Client
	for id, c := range r.clients {
		c.mu.Lock()
		seen := c.lastSeen
		c.mu.Unlock()
		if seen.Before(cutoff) {
			idle = append(idle, c)
			delete(r.clients, id)
		}
	}
	r.cfg.Metrics.SetActiveClients(len(r.clients))
	r.mu.Unlock()

	for _, c := range idle {
		c.Tracker.Remove()
	}
	if len(idle) > 0 {
		r.cfg.Metrics.ObserveEviction(len(idle))
		r.logger.Info("evicted idle clients", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run evicts idle clients every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}

// Close removes every client and rejects further events.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.cfg.Metrics.SetActiveClients(0)
	r.mu.Unlock()

	for _, c := range clients {
		c.Tracker.Remove()
	}
}
