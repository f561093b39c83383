package host

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/maxscroll/internal/clock"
	"github.com/JakeFAU/maxscroll/internal/hit"
)

type recordingEmitter struct {
	mu   sync.Mutex
	hits []hit.Hit
}

func (r *recordingEmitter) Emit(h hit.Hit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, h)
}

func (r *recordingEmitter) Hits() []hit.Hit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hit.Hit(nil), r.hits...)
}

type fixedIDs struct {
	next int
	err  error
}

func (f *fixedIDs) NewID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.next++
	return fmt.Sprintf("hit-%d", f.next), nil
}

func (f *fixedIDs) NewClientID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "client-fixed", nil
}

func newTestTracker(t *testing.T, emitter hit.Emitter) *Tracker {
	t.Helper()
	tr, err := New(Config{
		TrackingID: "UA-1",
		Fields:     hit.Fields{hit.FieldPage: "/home", hit.FieldLocation: "https://example.com/home"},
		Emitter:    emitter,
		IDs:        &fixedIDs{},
		Clock:      clock.NewManual(time.Unix(1700000000, 0)),
	})
	require.NoError(t, err)
	return tr
}

func TestNewValidatesAndSeedsFields(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{TrackingID: "UA-1", IDs: &fixedIDs{err: errors.New("entropy")}})
	require.Error(t, err)

	tr := newTestTracker(t, nil)
	require.Equal(t, "client-fixed", tr.ClientID())
	require.Equal(t, "client-fixed", tr.Get(hit.FieldClientID))
	require.Equal(t, "UA-1", tr.Get(hit.FieldTrackingID))
	require.Equal(t, "/home", tr.Get(hit.FieldPage))
	require.Equal(t, "", tr.Get("missing"))
}

func TestSetNotifiesSubscribersAfterUpdate(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, nil)
	var seenPage string
	var changed []hit.Fields
	unsubscribe := tr.Subscribe(func(c hit.Fields) {
		seenPage = tr.Get(hit.FieldPage)
		changed = append(changed, c)
	})

	tr.SetField(hit.FieldPage, "/pricing")
	require.Equal(t, "/pricing", seenPage, "observer must see the updated value")
	require.Equal(t, []hit.Fields{{hit.FieldPage: "/pricing"}}, changed)

	tr.Set(hit.Fields{"dimension1": 3})
	require.Equal(t, "3", tr.Get("dimension1"))
	require.Len(t, changed, 2)

	tr.Set(nil)
	require.Len(t, changed, 2)

	unsubscribe()
	unsubscribe()
	tr.SetField(hit.FieldPage, "/after")
	require.Len(t, changed, 2)
	set, send := tr.Subscribers()
	require.Zero(t, set)
	require.Zero(t, send)
}

func TestSendBuildsHitAndNotifies(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	tr := newTestTracker(t, emitter)
	var observed []hit.Hit
	stop := tr.OnSend(func(h hit.Hit) { observed = append(observed, h) })
	defer stop()

	err := tr.Send(hit.TypeEvent, hit.Fields{
		hit.FieldEventCategory: "Max Scroll",
		hit.FieldEventAction:   "increase",
		hit.FieldPage:          "/override",
	})
	require.NoError(t, err)

	hits := emitter.Hits()
	require.Len(t, hits, 1)
	h := hits[0]
	require.Equal(t, "hit-1", h.ID)
	require.Equal(t, "client-fixed", h.ClientID)
	require.Equal(t, "UA-1", h.TrackingID)
	require.Equal(t, "/override", h.Fields.String(hit.FieldPage), "call fields win over tracker fields")
	require.Equal(t, "https://example.com/home", h.Fields.String(hit.FieldLocation))
	require.Equal(t, time.Unix(1700000000, 0).UTC(), h.TS)
	require.Equal(t, "/home", tr.Get(hit.FieldPage), "send must not mutate tracker fields")
	require.Equal(t, hits, observed)
}

func TestSendRejectsInvalidHit(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	tr := newTestTracker(t, emitter)
	require.Error(t, tr.Send(hit.TypeEvent, hit.Fields{hit.FieldEventAction: "increase"}))
	require.Empty(t, emitter.Hits())
}

func TestTrackUsage(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, nil)
	tr.TrackUsage("maxScrollTracker")
	tr.TrackUsage("maxScrollTracker")
	tr.TrackUsage("cleanUrlTracker")
	require.Equal(t, []string{"cleanUrlTracker", "maxScrollTracker"}, tr.Usage())
}
