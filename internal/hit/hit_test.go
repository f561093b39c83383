package hit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHitValidate(t *testing.T) {
	t.Parallel()

	ok := sampleHit("1")
	require.NoError(t, ok.Validate())

	pageview := Hit{ID: "2", Type: TypePageview, TS: time.Now()}
	require.NoError(t, pageview.Validate())

	cases := map[string]func(*Hit){
		"missing id":       func(h *Hit) { h.ID = "" },
		"missing ts":       func(h *Hit) { h.TS = time.Time{} },
		"unknown type":     func(h *Hit) { h.Type = "social" },
		"missing category": func(h *Hit) { delete(h.Fields, FieldEventCategory) },
		"missing action":   func(h *Hit) { delete(h.Fields, FieldEventAction) },
	}
	for name, mutate := range cases {
		h := sampleHit("x")
		h.Fields = h.Fields.Clone()
		mutate(&h)
		require.Error(t, h.Validate(), name)
	}
}

func TestHitValue(t *testing.T) {
	t.Parallel()

	for _, v := range []any{7, int64(7), 7.0} {
		h := Hit{Fields: Fields{FieldEventValue: v}}
		got, ok := h.Value()
		require.True(t, ok)
		require.InDelta(t, 7.0, got, 1e-9)
	}
	_, ok := Hit{Fields: Fields{FieldEventValue: "7"}}.Value()
	require.False(t, ok)
}

func TestFieldsMergeAndClone(t *testing.T) {
	t.Parallel()

	var f Fields
	f = f.Merge(Fields{"a": 1})
	require.Equal(t, Fields{"a": 1}, f)

	c := f.Clone()
	c["a"] = 2
	require.Equal(t, 1, f["a"])
	require.True(t, c.Has("a"))
	require.False(t, c.Has("b"))
	require.Equal(t, "", c.String("a"))
}

func TestCanonicalName(t *testing.T) {
	t.Parallel()

	require.Equal(t, FieldEventCategory, CanonicalName("eventcategory"))
	require.Equal(t, FieldNonInteraction, CanonicalName("NONINTERACTION"))
	require.Equal(t, "dimension1", CanonicalName("dimension1"))
}
