package maxscroll

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/debounce"
	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/page"
	"github.com/JakeFAU/maxscroll/internal/pagekey"
	"github.com/JakeFAU/maxscroll/internal/store"
)

const (
	// PluginName is recorded on the host when a tracker is constructed.
	PluginName = "maxScrollTracker"
	// StoreNamespace holds per-page maxima.
	StoreNamespace = "plugins/max-scroll-tracker"

	eventCategory = "Max Scroll"
	eventAction   = "increase"
)

// ErrVetoed marks a send cancelled by a HitFilter.
var ErrVetoed = errors.New("maxscroll: event vetoed by hit filter")

// Host is the page tracker the plugin reads fields from and reports through.
type Host interface {
	Get(name string) string
	Send(hitType string, fields hit.Fields) error
	Subscribe(fn func(changed hit.Fields)) func()
	OnSend(fn func(h hit.Hit)) func()
	TrackUsage(plugin string)
}

// Window supplies scroll geometry and scroll notifications.
type Window interface {
	CanListen() bool
	AddScrollListener(l page.Listener)
	RemoveScrollListener(l page.Listener)
	Geometry() page.Geometry
}

// Session reports whether stored maxima belong to a finished session.
type Session interface {
	IsExpired() bool
	Destroy()
}

// Tracker reports max scroll increases for one page tracker.
type Tracker struct {
	host      Host
	win       Window
	store     store.Store
	session   Session
	opts      Options
	logger    *zap.Logger
	metrics   *Metrics
	ctx       context.Context
	debouncer *debounce.Debouncer
	unsub     func()
	inert     bool

	mu        sync.Mutex
	pagePath  string
	listening bool
	removed   bool
}

// New wires a tracker to host and win. When win cannot deliver scroll
// notifications the returned tracker is inert and every method is a no-op.
func New(host Host, win Window, provider store.Provider, opts Options) (*Tracker, error) {
	if host == nil {
		return nil, errors.New("maxscroll: host is required")
	}
	host.TrackUsage(PluginName)

	opts = opts.withDefaults()
	t := &Tracker{
		host:    host,
		opts:    opts,
		logger:  opts.Logger.Named("maxscroll"),
		metrics: opts.Metrics,
		ctx:     opts.BaseContext,
	}
	if win == nil || !win.CanListen() {
		t.inert = true
		t.logger.Debug("scroll listening unavailable, tracker is inert")
		return t, nil
	}
	if provider == nil {
		return nil, errors.New("maxscroll: store provider is required")
	}

	t.win = win
	t.pagePath = t.resolvePagePath()

	st, err := provider.Open(t.ctx, host.Get(hit.FieldTrackingID), StoreNamespace)
	if err != nil {
		return nil, fmt.Errorf("open max scroll store: %w", err)
	}
	t.store = st

	sess, err := opts.NewSession(t.ctx, host, provider, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	t.session = sess

	t.unsub = host.Subscribe(t.onFieldsChanged)
	t.debouncer = debounce.New(opts.DebounceWait, t.handleScroll)
	t.ListenForMaxScrollChanges()
	return t, nil
}

// ListenForMaxScrollChanges attaches the scroll listener unless the current
// page has already been scrolled to the bottom.
func (t *Tracker) ListenForMaxScrollChanges() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inert || t.removed {
		return
	}
	t.listenLocked()
}

// StopListeningForMaxScrollChanges detaches the scroll listener and drops any
// pending measurement.
func (t *Tracker) StopListeningForMaxScrollChanges() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inert {
		return
	}
	t.stopLocked()
}

// Flush runs a pending debounced measurement immediately.
func (t *Tracker) Flush() {
	if t.inert {
		return
	}
	t.debouncer.Flush()
}

// Remove tears the tracker down. It is safe to call more than once.
func (t *Tracker) Remove() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return
	}
	t.removed = true
	if t.inert {
		return
	}
	t.session.Destroy()
	t.stopLocked()
	t.debouncer.Stop()
	t.unsub()
}

// PagePath returns the cached page key.
func (t *Tracker) PagePath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pagePath
}

// Listening reports whether the scroll listener is attached.
func (t *Tracker) Listening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listening
}

// Inert reports whether the tracker was built without scroll support.
func (t *Tracker) Inert() bool { return t.inert }

func (t *Tracker) listenLocked() {
	stored, err := t.store.GetOr(t.ctx, t.pagePath, 0)
	if err != nil {
		t.metrics.handlerError()
		t.logger.Warn("read max scroll", zap.String("page", t.pagePath), zap.Error(err))
	} else if stored >= 100 {
		return
	}
	t.win.AddScrollListener(t.debouncer)
	t.listening = true
}

func (t *Tracker) stopLocked() {
	t.win.RemoveScrollListener(t.debouncer)
	t.debouncer.Cancel()
	t.listening = false
}

func (t *Tracker) resolvePagePath() string {
	raw := t.host.Get(hit.FieldPage)
	if raw == "" {
		raw = t.host.Get(hit.FieldLocation)
	}
	return pagekey.Resolve(raw, *t.opts.IgnoreURLQuery)
}

func (t *Tracker) onFieldsChanged(changed hit.Fields) {
	if !changed.Has(hit.FieldPage) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inert || t.removed {
		return
	}
	last := t.pagePath
	t.pagePath = t.resolvePagePath()
	if t.pagePath != last {
		t.logger.Debug("page changed", zap.String("from", last), zap.String("to", t.pagePath))
		t.listenLocked()
	}
}

// emission is a max scroll event decided and persisted under t.mu but not
// yet sent.
type emission struct {
	page     string
	increase int
	pct      int
}

func (t *Tracker) handleScroll() {
	em, ok := t.measure()
	if !ok {
		return
	}
	// Sent without t.mu so filters and send observers may update host fields.
	if err := t.sendMaxScrollEvent(em.increase, em.pct); err != nil {
		if errors.Is(err, ErrVetoed) {
			t.metrics.eventVetoed()
			t.logger.Debug("max scroll event vetoed", zap.String("page", em.page), zap.Error(err))
			return
		}
		t.metrics.handlerError()
		t.logger.Warn("max scroll turn abandoned", zap.String("page", em.page), zap.Error(err))
		return
	}
	t.metrics.eventSent(em.increase)
}

func (t *Tracker) measure() (emission, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inert || t.removed {
		return emission{}, false
	}
	em, ok, err := t.measureLocked()
	if err != nil {
		t.metrics.handlerError()
		t.logger.Warn("max scroll turn abandoned", zap.String("page", t.pagePath), zap.Error(err))
		return emission{}, false
	}
	return em, ok
}

func (t *Tracker) measureLocked() (emission, bool, error) {
	t.metrics.scrollHandled()
	pct := Percentage(t.win.Geometry())

	if t.session.IsExpired() {
		if err := t.store.Clear(t.ctx); err != nil {
			return emission{}, false, fmt.Errorf("clear expired session state: %w", err)
		}
		t.metrics.sessionReset()
		t.logger.Debug("session expired, stored maxima cleared")
		return emission{}, false, nil
	}

	stored, err := t.store.GetOr(t.ctx, t.pagePath, 0)
	if err != nil {
		return emission{}, false, fmt.Errorf("read max scroll: %w", err)
	}
	prev := int(stored)
	if pct <= prev {
		return emission{}, false, nil
	}
	if pct == 100 || prev == 100 {
		t.stopLocked()
	}

	increase := pct - prev
	if pct != 100 && increase < t.opts.IncreaseThreshold {
		t.metrics.droppedBelowThreshold()
		return emission{}, false, nil
	}
	if err := t.store.Set(t.ctx, map[string]int64{t.pagePath: int64(pct)}); err != nil {
		return emission{}, false, fmt.Errorf("persist max scroll: %w", err)
	}
	return emission{page: t.pagePath, increase: increase, pct: pct}, true, nil
}

func (t *Tracker) sendMaxScrollEvent(increase, pct int) error {
	fields := hit.Fields{
		hit.FieldTransport:      "beacon",
		hit.FieldEventCategory:  eventCategory,
		hit.FieldEventAction:    eventAction,
		hit.FieldEventValue:     increase,
		hit.FieldEventLabel:     strconv.Itoa(pct),
		hit.FieldNonInteraction: true,
	}
	if t.opts.MaxScrollMetricIndex > 0 {
		fields["metric"+strconv.Itoa(t.opts.MaxScrollMetricIndex)] = increase
	}
	fields = fields.Merge(t.opts.FieldsObj)
	if t.opts.HitFilter != nil {
		if err := t.opts.HitFilter(fields, t.host); err != nil {
			return fmt.Errorf("%w: %v", ErrVetoed, err)
		}
	}
	if err := t.host.Send(hit.TypeEvent, fields); err != nil {
		return fmt.Errorf("send max scroll event: %w", err)
	}
	return nil
}
