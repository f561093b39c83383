// Package clock exercises the real and manual clocks.
package clock

import (
	"testing"
	"time"
)

// TestSystemNowUTC ensures the clock returns UTC timestamps.
func TestSystemNowUTC(t *testing.T) {
	t.Parallel()

	clk := NewSystem()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestManualMovesForwardOnly checks Set and Advance never rewind the clock.
func TestManualMovesForwardOnly(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := NewManual(start)
	if !clk.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, clk.Now())
	}

	clk.Advance(time.Minute)
	clk.Advance(-time.Hour)
	if want := start.Add(time.Minute); !clk.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, clk.Now())
	}

	clk.Set(start)
	if want := start.Add(time.Minute); !clk.Now().Equal(want) {
		t.Fatalf("expected Set to ignore rewinds, got %v", clk.Now())
	}

	later := start.Add(time.Hour)
	clk.Set(later)
	if !clk.Now().Equal(later) {
		t.Fatalf("expected %v, got %v", later, clk.Now())
	}
}
