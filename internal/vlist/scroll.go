package vlist

import "time"

// Align selects where a target item lands in the viewport after
// ScrollToIndex.
type Align int

const (
	AlignStart Align = iota
	AlignCenter
	AlignEnd
)

// Behavior selects how a programmatic scroll is applied. Instant scrolls
// clear the programmatic flag synchronously; smooth scrolls keep it set
// for an estimated animation duration so height-change corrections do
// not fight the animation.
type Behavior int

const (
	BehaviorInstant Behavior = iota
	BehaviorSmooth
)

const (
	smoothBaseDuration = 100 * time.Millisecond
	smoothMaxDuration  = 600 * time.Millisecond
)

// scrollState owns the scroll offset, the viewport size, and the flags
// that gate side effects on it. Raw scroll events are coalesced into
// pendingDelta and applied once per frame by Flush.
type scrollState struct {
	scrollTop      int
	viewportHeight int

	pendingDelta int
	hasPending   bool

	inProgrammatic bool
	progUntil      time.Time

	stickToBottom bool

	now func() time.Time
}

func newScrollState() *scrollState {
	return &scrollState{now: time.Now}
}

// queue accumulates a raw scroll delta for the next Flush.
func (s *scrollState) queue(delta int) {
	s.pendingDelta += delta
	s.hasPending = true
}

// cancelPending drops queued raw deltas. Programmatic navigation
// supersedes whatever the user had in flight.
func (s *scrollState) cancelPending() {
	s.pendingDelta = 0
	s.hasPending = false
}

// flushPending applies the coalesced delta. Returns true when the offset
// moved.
func (s *scrollState) flushPending(maxScroll int) bool {
	if !s.hasPending {
		return false
	}
	target := s.scrollTop + s.pendingDelta
	s.cancelPending()
	return s.set(target, maxScroll)
}

// set clamps and stores the offset, reporting whether it changed.
func (s *scrollState) set(target, maxScroll int) bool {
	if target < 0 {
		target = 0
	}
	if target > maxScroll {
		target = maxScroll
	}
	if target == s.scrollTop {
		return false
	}
	s.scrollTop = target
	return true
}

// correct shifts the live offset by delta without clamping to maxScroll;
// the caller recomputes layout (and clamps) right after. Used when an
// item above the viewport resizes so on-screen content keeps its visual
// position.
func (s *scrollState) correct(delta int) {
	s.scrollTop += delta
	if s.scrollTop < 0 {
		s.scrollTop = 0
	}
}

// programmatic reports whether an engine-driven scroll is in progress.
func (s *scrollState) programmatic() bool {
	if s.inProgrammatic {
		return true
	}
	return s.now().Before(s.progUntil)
}

// beginSmooth marks the programmatic window for a smooth scroll covering
// distance.
func (s *scrollState) beginSmooth(distance int) {
	s.progUntil = s.now().Add(estimateScrollDuration(distance))
}

// estimateScrollDuration approximates how long a smooth scroll over
// distance takes, clamped so huge jumps do not pin the programmatic flag.
func estimateScrollDuration(distance int) time.Duration {
	if distance < 0 {
		distance = -distance
	}
	d := smoothBaseDuration + time.Duration(distance)*2*time.Millisecond
	if d > smoothMaxDuration {
		d = smoothMaxDuration
	}
	return d
}
