package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/maxscroll/internal/clock"
	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/maxscroll"
	"github.com/JakeFAU/maxscroll/internal/store/memory"
)

type hitLog struct {
	mu   sync.Mutex
	hits []hit.Hit
}

func (l *hitLog) Emit(h hit.Hit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits = append(l.hits, h)
}

func (l *hitLog) byType(hitType string) []hit.Hit {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []hit.Hit
	for _, h := range l.hits {
		if h.Type == hitType {
			out = append(out, h)
		}
	}
	return out
}

func newTestRegistry(t *testing.T, clk clock.Clock, wait time.Duration) (*Registry, *hitLog) {
	t.Helper()
	log := &hitLog{}
	r, err := NewRegistry(RegistryConfig{
		TrackingID:  "UA-1",
		Tracker:     maxscroll.Options{DebounceWait: wait},
		Provider:    memory.NewProvider(),
		Emitter:     log,
		IdleTimeout: 30 * time.Minute,
		Clock:       clk,
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, log
}

func navigate(url string) BrowserEvent {
	return BrowserEvent{Type: EventNavigate, URL: url, ViewportHeight: 1000, DocumentHeight: 3000}
}

func scroll(y float64) BrowserEvent {
	return BrowserEvent{Type: EventScroll, ScrollTop: y}
}

func TestRegistryApplyNavigateAndScroll(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	r, log := newTestRegistry(t, clk, time.Hour)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, "c1", []BrowserEvent{navigate("https://example.com/article?ref=x")}))
	pageviews := log.byType(hit.TypePageview)
	require.Len(t, pageviews, 1)
	require.Equal(t, "/article?ref=x", pageviews[0].Fields[hit.FieldPage])
	require.Equal(t, "c1", pageviews[0].ClientID)

	require.NoError(t, r.Apply(ctx, "c1", []BrowserEvent{scroll(400), scroll(1000)}))
	require.Empty(t, log.byType(hit.TypeEvent), "measurement waits for the debounce")
	require.True(t, r.Flush("c1"))

	events := log.byType(hit.TypeEvent)
	require.Len(t, events, 1)
	require.Equal(t, "50", events[0].Fields.String(hit.FieldEventLabel))

	c, ok := r.Get("c1")
	require.True(t, ok)
	require.Equal(t, "/article", c.Tracker.PagePath())
	require.False(t, r.Flush("missing"))
}

func TestRegistryClientsAreIsolated(t *testing.T) {
	t.Parallel()

	r, log := newTestRegistry(t, clock.NewSystem(), time.Hour)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, r.Apply(ctx, id, []BrowserEvent{navigate("https://example.com/article"), scroll(1000)}))
		require.True(t, r.Flush(id))
	}

	events := log.byType(hit.TypeEvent)
	require.Len(t, events, 2, "each client keeps its own maxima")
	require.Equal(t, "a", events[0].ClientID)
	require.Equal(t, "b", events[1].ClientID)
	require.Equal(t, 2, r.Len())
}

func TestRegistryNavigationRearmsFinishedPage(t *testing.T) {
	t.Parallel()

	r, log := newTestRegistry(t, clock.NewSystem(), time.Hour)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, "c1", []BrowserEvent{navigate("https://example.com/a"), scroll(2000)}))
	r.Flush("c1")
	c, _ := r.Get("c1")
	require.False(t, c.Tracker.Listening())

	require.NoError(t, r.Apply(ctx, "c1", []BrowserEvent{navigate("https://example.com/b"), scroll(600)}))
	r.Flush("c1")

	events := log.byType(hit.TypeEvent)
	require.Len(t, events, 2)
	require.Equal(t, "100", events[0].Fields.String(hit.FieldEventLabel))
	require.Equal(t, "/b", events[1].Fields[hit.FieldPage])
	require.Equal(t, "30", events[1].Fields.String(hit.FieldEventLabel))
}

func TestRegistryDebouncesInRealTime(t *testing.T) {
	t.Parallel()

	r, log := newTestRegistry(t, clock.NewSystem(), 10*time.Millisecond)
	require.NoError(t, r.Apply(context.Background(), "c1", []BrowserEvent{
		navigate("https://example.com/a"), scroll(100), scroll(800),
	}))

	require.Eventually(t, func() bool {
		return len(log.byType(hit.TypeEvent)) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "40", log.byType(hit.TypeEvent)[0].Fields.String(hit.FieldEventLabel))
}

func TestRegistryRejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, clock.NewSystem(), time.Hour)
	ctx := context.Background()

	tests := []struct {
		name   string
		client string
		events []BrowserEvent
	}{
		{name: "missing client", client: "", events: []BrowserEvent{scroll(1)}},
		{name: "unknown type", client: "c1", events: []BrowserEvent{{Type: "click"}}},
		{name: "navigate without url", client: "c1", events: []BrowserEvent{{Type: EventNavigate}}},
		{name: "negative geometry", client: "c1", events: []BrowserEvent{{Type: EventScroll, ScrollTop: -1}}},
	}
	for _, tt := range tests {
		err := r.Apply(ctx, tt.client, tt.events)
		require.ErrorIs(t, err, ErrInvalidEvent, tt.name)
	}
	require.Zero(t, r.Len(), "invalid batches do not create clients")
}

func TestRegistryEvictIdle(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	r, _ := newTestRegistry(t, clk, time.Hour)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, "old", []BrowserEvent{navigate("https://example.com/")}))
	clk.Advance(20 * time.Minute)
	require.NoError(t, r.Apply(ctx, "new", []BrowserEvent{navigate("https://example.com/")}))
	clk.Advance(15 * time.Minute)

	require.Equal(t, 1, r.EvictIdle())
	_, ok := r.Get("old")
	require.False(t, ok)
	_, ok = r.Get("new")
	require.True(t, ok)
}

func TestRegistryRemoveAndClose(t *testing.T) {
	t.Parallel()

	r, log := newTestRegistry(t, clock.NewSystem(), time.Hour)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, "c1", []BrowserEvent{navigate("https://example.com/a"), scroll(500)}))
	c, _ := r.Get("c1")
	require.True(t, r.Remove("c1"))
	require.False(t, r.Remove("c1"))
	c.Tracker.Flush()
	require.Empty(t, log.byType(hit.TypeEvent), "removed client reports nothing")

	r.Close()
	require.ErrorIs(t, r.Apply(ctx, "c2", []BrowserEvent{scroll(1)}), ErrRegistryClosed)
}

func TestRegistryRunStopsWithContext(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, clock.NewSystem(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
