package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	clock.Advance(2 * time.Second)
	if got := clock.Since(start); got != 2*time.Second {
		t.Errorf("Since() after Advance = %v, want 2s", got)
	}

	clock.Sleep(33 * time.Millisecond)
	clock.Sleep(33 * time.Millisecond)
	if got := clock.Since(start); got != 2*time.Second+66*time.Millisecond {
		t.Errorf("Since() after Sleep = %v", got)
	}
	if sleeps := clock.Sleeps(); len(sleeps) != 2 || sleeps[0] != 33*time.Millisecond {
		t.Errorf("Sleeps() = %v", sleeps)
	}

	clock.Set(start)
	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() after Set = %v, want %v", got, start)
	}
}
