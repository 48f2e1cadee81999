package vlist

import (
	"testing"
	"time"
)

func TestScrollStateCoalescing(t *testing.T) {
	s := newScrollState()
	s.viewportHeight = 100

	s.queue(10)
	s.queue(20)
	s.queue(-5)
	if s.scrollTop != 0 {
		t.Fatalf("queued deltas must not move the offset before flush, got %d", s.scrollTop)
	}

	if !s.flushPending(1000) {
		t.Fatal("expected flush to apply pending deltas")
	}
	if s.scrollTop != 25 {
		t.Errorf("expected coalesced offset 25, got %d", s.scrollTop)
	}

	if s.flushPending(1000) {
		t.Error("expected second flush to be a no-op")
	}
}

func TestScrollStateClamping(t *testing.T) {
	s := newScrollState()

	s.queue(-50)
	s.flushPending(100)
	if s.scrollTop != 0 {
		t.Errorf("expected clamp at 0, got %d", s.scrollTop)
	}

	s.queue(500)
	s.flushPending(100)
	if s.scrollTop != 100 {
		t.Errorf("expected clamp at max, got %d", s.scrollTop)
	}
}

func TestScrollStateCorrectFloorsAtZero(t *testing.T) {
	s := newScrollState()
	s.scrollTop = 10

	s.correct(-25)
	if s.scrollTop != 0 {
		t.Errorf("expected floor at 0, got %d", s.scrollTop)
	}
}

func TestScrollStateProgrammaticWindow(t *testing.T) {
	s := newScrollState()
	now := time.Now()
	s.now = func() time.Time { return now }

	if s.programmatic() {
		t.Fatal("expected non-programmatic at rest")
	}

	s.beginSmooth(200)
	if !s.programmatic() {
		t.Fatal("expected programmatic during smooth window")
	}

	now = now.Add(time.Second)
	if s.programmatic() {
		t.Error("expected programmatic flag to lapse after the window")
	}
}

func TestEstimateScrollDuration(t *testing.T) {
	if d := estimateScrollDuration(0); d != smoothBaseDuration {
		t.Errorf("zero distance = %v, want base %v", d, smoothBaseDuration)
	}
	if d := estimateScrollDuration(-50); d != estimateScrollDuration(50) {
		t.Error("expected duration to be symmetric in distance")
	}
	if d := estimateScrollDuration(100000); d != smoothMaxDuration {
		t.Errorf("huge distance = %v, want cap %v", d, smoothMaxDuration)
	}
}
