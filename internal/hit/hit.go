package hit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Hit types understood by the sinks.
const (
	TypePageview = "pageview"
	TypeEvent    = "event"
)

// Well-known field names.
const (
	FieldPage           = "page"
	FieldLocation       = "location"
	FieldTrackingID     = "trackingId"
	FieldClientID       = "clientId"
	FieldTransport      = "transport"
	FieldEventCategory  = "eventCategory"
	FieldEventAction    = "eventAction"
	FieldEventLabel     = "eventLabel"
	FieldEventValue     = "eventValue"
	FieldNonInteraction = "nonInteraction"
	FieldSessionControl = "sessionControl"
)

var canonicalNames = func() map[string]string {
	names := []string{
		FieldPage, FieldLocation, FieldTrackingID, FieldClientID, FieldTransport,
		FieldEventCategory, FieldEventAction, FieldEventLabel, FieldEventValue,
		FieldNonInteraction, FieldSessionControl,
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[strings.ToLower(n)] = n
	}
	return out
}()

// CanonicalName restores the casing of a well-known field name, for input
// sources such as config files that lowercase keys. Unknown names are
// returned unchanged.
func CanonicalName(name string) string {
	if c, ok := canonicalNames[strings.ToLower(name)]; ok {
		return c
	}
	return name
}

// Fields is a set of analytics fields keyed by name.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge copies every entry of src over f, allocating f when nil.
func (f Fields) Merge(src Fields) Fields {
	if f == nil {
		f = make(Fields, len(src))
	}
	for k, v := range src {
		f[k] = v
	}
	return f
}

// String returns the field as a string when it holds one.
func (f Fields) String(name string) string {
	s, _ := f[name].(string)
	return s
}

// Has reports whether name is present.
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Hit is one fully formed analytics hit ready for transport.
type Hit struct {
	// ID uniquely identifies the hit (UUIDv7).
	ID string `json:"id"`
	// ClientID identifies the browser client that produced it.
	ClientID string `json:"client_id"`
	// TrackingID is the property the hit belongs to.
	TrackingID string `json:"tracking_id"`
	// Type is the hit type, e.g. "event".
	Type string `json:"type"`
	// Fields carries the merged tracker and call fields.
	Fields Fields `json:"fields"`
	// TS is the UTC time the hit was sent.
	TS time.Time `json:"ts"`
}

// Category returns the eventCategory field.
func (h Hit) Category() string { return h.Fields.String(FieldEventCategory) }

// Action returns the eventAction field.
func (h Hit) Action() string { return h.Fields.String(FieldEventAction) }

// Value returns the eventValue field as a float when it is numeric.
func (h Hit) Value() (float64, bool) {
	switch v := h.Fields[FieldEventValue].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Validate performs coarse validation on Hit payloads.
func (h Hit) Validate() error {
	if h.ID == "" {
		return errors.New("hit id is required")
	}
	if h.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch h.Type {
	case TypePageview:
	case TypeEvent:
		if h.Category() == "" {
			return errors.New("event hit requires eventCategory")
		}
		if h.Action() == "" {
			return errors.New("event hit requires eventAction")
		}
	default:
		return fmt.Errorf("unknown hit type %q", h.Type)
	}
	return nil
}
