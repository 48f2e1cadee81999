package vlist

import (
	"sync"
	"time"
)

// stabilityArmDelay gives the renderer one frame plus a scheduler tick to
// emit its initial measurement burst before the quiet window can start.
const stabilityArmDelay = 20 * time.Millisecond

// StabilityWatcher resolves once layout has been quiet for a debounce
// window. Every height change resets the window; the watcher arms only
// after an initial grace period so it cannot fire before the first
// render has reacted to newly mounted items.
type StabilityWatcher struct {
	mu      sync.Mutex
	window  time.Duration
	armTmr  *time.Timer
	quiet   *time.Timer
	armed   bool
	fired   bool
	stopped bool
	done    chan struct{}
}

// NewStabilityWatcher starts a watcher with the given quiet window and
// arming grace.
func NewStabilityWatcher(window, grace time.Duration) *StabilityWatcher {
	w := &StabilityWatcher{
		window: window,
		done:   make(chan struct{}),
	}
	w.armTmr = time.AfterFunc(grace, w.arm)
	return w
}

func (w *StabilityWatcher) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.fired {
		return
	}
	w.armed = true
	w.quiet = time.AfterFunc(w.window, w.fire)
}

func (w *StabilityWatcher) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.fired {
		return
	}
	w.fired = true
	close(w.done)
}

// Touch records layout activity, pushing the quiet window out. Touches
// during the arming grace are absorbed; the window starts fresh when the
// watcher arms.
func (w *StabilityWatcher) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed || w.fired || w.stopped {
		return
	}
	w.quiet.Reset(w.window)
}

// Done returns a channel closed once layout has stayed quiet for the
// window.
func (w *StabilityWatcher) Done() <-chan struct{} {
	return w.done
}

// expired reports whether the watcher no longer needs touches.
func (w *StabilityWatcher) expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired || w.stopped
}

// Stop cancels the watcher. Done never closes after Stop unless it
// already had.
func (w *StabilityWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	w.armTmr.Stop()
	if w.quiet != nil {
		w.quiet.Stop()
	}
}
