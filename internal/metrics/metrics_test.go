package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestNewRegistersCollectors(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.ObserveBrowserEvent("scroll")
	m.ObserveBrowserEvent("scroll")
	m.ObserveNavigation("https://Example.com/a")
	m.SetActiveClients(3)
	m.ObserveEviction(2)
	m.ObserveEviction(0)

	if val := testutil.ToFloat64(m.browserEventsTotal.WithLabelValues("scroll")); val != 2 {
		t.Errorf("expected 2 scroll events, got %f", val)
	}
	if val := testutil.ToFloat64(m.navigationsTotal.WithLabelValues("example.com")); val != 1 {
		t.Errorf("expected 1 navigation, got %f", val)
	}
	if val := testutil.ToFloat64(m.activeClients); val != 3 {
		t.Errorf("expected 3 active clients, got %f", val)
	}
	if val := testutil.ToFloat64(m.evictedClientsTotal); val != 2 {
		t.Errorf("expected 2 evictions, got %f", val)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveBrowserEvent("scroll")
	m.ObserveNavigation("example.com")
	m.SetActiveClients(1)
	m.ObserveEviction(1)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
