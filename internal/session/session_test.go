package session

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/maxscroll/internal/clock"
	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/host"
	"github.com/JakeFAU/maxscroll/internal/store"
	"github.com/JakeFAU/maxscroll/internal/store/memory"
	redisstore "github.com/JakeFAU/maxscroll/internal/store/redis"
)

func newHost(t *testing.T, clk clock.Clock) *host.Tracker {
	t.Helper()
	h, err := host.New(host.Config{TrackingID: "UA-1", ClientID: "c1", Clock: clk})
	require.NoError(t, err)
	return h
}

func sendPageview(t *testing.T, h *host.Tracker, fields hit.Fields) {
	t.Helper()
	require.NoError(t, h.Send(hit.TypePageview, fields))
}

func TestSessionTimesOutAfterInactivity(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	h := newHost(t, clk)
	s, err := New(context.Background(), h, memory.NewProvider(), Config{Timeout: 30 * time.Minute, Clock: clk})
	require.NoError(t, err)
	defer s.Destroy()

	require.False(t, s.IsExpired(), "no hit recorded yet")

	sendPageview(t, h, nil)
	clk.Advance(29 * time.Minute)
	require.False(t, s.IsExpired())

	clk.Advance(2 * time.Minute)
	require.True(t, s.IsExpired())

	sendPageview(t, h, nil)
	require.False(t, s.IsExpired(), "a new hit starts a new session")
}

func TestSessionControlField(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	h := newHost(t, clk)
	s, err := New(context.Background(), h, memory.NewProvider(), Config{Clock: clk})
	require.NoError(t, err)
	defer s.Destroy()

	sendPageview(t, h, hit.Fields{hit.FieldSessionControl: ControlEnd})
	require.True(t, s.IsExpired())

	sendPageview(t, h, hit.Fields{hit.FieldSessionControl: ControlStart})
	require.False(t, s.IsExpired())
}

func TestSessionExpiresAtMidnightInTimeZone(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	clk := clock.NewManual(time.Date(2024, 5, 1, 23, 50, 0, 0, loc))
	h := newHost(t, clk)
	s, err := New(context.Background(), h, memory.NewProvider(), Config{
		Timeout:  time.Hour,
		TimeZone: "America/Los_Angeles",
		Clock:    clk,
	})
	require.NoError(t, err)
	defer s.Destroy()

	sendPageview(t, h, nil)
	clk.Advance(5 * time.Minute)
	require.False(t, s.IsExpired())
	clk.Advance(10 * time.Minute)
	require.True(t, s.IsExpired(), "date changed in the configured zone")
}

func TestSessionRejectsUnknownTimeZone(t *testing.T) {
	t.Parallel()

	h := newHost(t, clock.NewSystem())
	_, err := New(context.Background(), h, memory.NewProvider(), Config{TimeZone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestSessionDestroyStopsRecording(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	h := newHost(t, clk)
	s, err := New(context.Background(), h, memory.NewProvider(), Config{Timeout: time.Minute, Clock: clk})
	require.NoError(t, err)

	sendPageview(t, h, nil)
	s.Destroy()
	s.Destroy()
	_, send := h.Subscribers()
	require.Zero(t, send)

	clk.Advance(2 * time.Minute)
	sendPageview(t, h, nil)
	require.True(t, s.IsExpired(), "hits after Destroy are not recorded")
}

func TestSessionSharedThroughRedis(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	provider := redisstore.NewProvider(client, redisstore.Config{})

	clk := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	tab1 := newHost(t, clk)
	tab2 := newHost(t, clk)
	s1, err := New(context.Background(), tab1, provider, Config{Timeout: 10 * time.Minute, Clock: clk})
	require.NoError(t, err)
	defer s1.Destroy()
	s2, err := New(context.Background(), tab2, provider, Config{Timeout: 10 * time.Minute, Clock: clk})
	require.NoError(t, err)
	defer s2.Destroy()

	sendPageview(t, tab1, nil)
	clk.Advance(8 * time.Minute)
	sendPageview(t, tab2, nil)
	clk.Advance(8 * time.Minute)
	require.False(t, s1.IsExpired(), "activity in another tab keeps the session alive")
}

type failingProvider struct{ openErr error }

func (p failingProvider) Open(context.Context, string, string) (store.Store, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	return failingStore{}, nil
}

type failingStore struct{}

func (failingStore) Get(context.Context) (map[string]int64, error) { return nil, errors.New("down") }
func (failingStore) GetOr(context.Context, string, int64) (int64, error) {
	return 0, errors.New("down")
}
func (failingStore) Set(context.Context, map[string]int64) error { return errors.New("down") }
func (failingStore) Clear(context.Context) error                 { return errors.New("down") }

func TestSessionStoreFailures(t *testing.T) {
	t.Parallel()

	h := newHost(t, clock.NewSystem())
	_, err := New(context.Background(), h, failingProvider{openErr: errors.New("no backend")}, Config{})
	require.ErrorContains(t, err, "no backend")

	s, err := New(context.Background(), h, failingProvider{}, Config{})
	require.NoError(t, err)
	defer s.Destroy()
	sendPageview(t, h, nil)
	require.False(t, s.IsExpired())
}
