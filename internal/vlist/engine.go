// Package vlist implements a virtualized, variable-height list engine for
// transcript views: a measured-height cache, a cumulative position index,
// hysteresis-based render-range selection, and a scroll controller with
// anchoring, stick-to-bottom follow mode, and layout-stability detection.
//
// The engine is unit-agnostic; the TUI feeds it terminal rows. Derived
// layout is recomputed on demand, memoized by input versions, so getters
// are cheap between changes. An Engine is not safe for concurrent use;
// confine it to the loop that renders it.
package vlist

import (
	"fmt"
	"time"
)

// Config holds the engine tuning knobs.
type Config struct {
	// MinItemHeight floors the estimated height for unmeasured items.
	MinItemHeight int
	// EstimatedItemHeight is assumed for items with no measured height.
	EstimatedItemHeight int
	// LoadBuffer extends the viewport window items must enter before
	// they are materialized.
	LoadBuffer int
	// UnloadBuffer is the wider window items must leave before they are
	// dematerialized. Must exceed LoadBuffer.
	UnloadBuffer int
	// NearBottomThreshold is the uniform distance within which IsAtTop
	// and IsAtBottom report true.
	NearBottomThreshold int
	// StabilityWindow is how long layout must stay quiet before a
	// stability watcher fires.
	StabilityWindow time.Duration
}

// DefaultConfig returns the engine defaults, sized for terminal rows.
func DefaultConfig() Config {
	return Config{
		MinItemHeight:       1,
		EstimatedItemHeight: 2,
		LoadBuffer:          40,
		UnloadBuffer:        80,
		NearBottomThreshold: 2,
		StabilityWindow:     150 * time.Millisecond,
	}
}

func (c Config) validate() error {
	if c.MinItemHeight < 1 {
		return fmt.Errorf("min item height must be at least 1, got %d", c.MinItemHeight)
	}
	if c.EstimatedItemHeight < c.MinItemHeight {
		return fmt.Errorf("estimated item height (%d) must be at least the minimum (%d)", c.EstimatedItemHeight, c.MinItemHeight)
	}
	if c.LoadBuffer < 0 {
		return fmt.Errorf("load buffer must not be negative, got %d", c.LoadBuffer)
	}
	if c.UnloadBuffer <= c.LoadBuffer {
		return fmt.Errorf("unload buffer (%d) must exceed load buffer (%d)", c.UnloadBuffer, c.LoadBuffer)
	}
	if c.NearBottomThreshold < 0 {
		return fmt.Errorf("near-bottom threshold must not be negative, got %d", c.NearBottomThreshold)
	}
	if c.StabilityWindow <= 0 {
		return fmt.Errorf("stability window must be positive, got %v", c.StabilityWindow)
	}
	return nil
}

// computedInputs is the memo key for the derived layout.
type computedInputs struct {
	valid     bool
	seqV      uint64
	heightsV  uint64
	scrollTop int
	viewport  int
}

// ScrollState is a snapshot of the controller state.
type ScrollState struct {
	ScrollTop      int
	ViewportHeight int
	TotalHeight    int
	StickToBottom  bool
	Programmatic   bool
}

type subscription struct {
	id int
	fn func()
}

// Engine ties the height cache, position index, render-range calculator,
// and scroll controller together behind one facade.
type Engine struct {
	cfg     Config
	heights *HeightCache
	scroll  *scrollState

	keys         []string
	seqVersion   uint64
	pendingPrune bool

	// prev carries the render range across recomputes; hysteresis is
	// stateful by nature and lives here, not in the memoized layer.
	prev Range

	comp         computedInputs
	positions    []Position
	posByKey     map[string]int
	totalHeight  int
	renderRange  Range
	visibleRange Range
	spacerBefore int
	spacerAfter  int

	watchers []*StabilityWatcher
	subs     []subscription
	nextSub  int
}

// New returns an engine with the given configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("vlist: %w", err)
	}
	return &Engine{
		cfg:     cfg,
		heights: NewHeightCache(),
		scroll:  newScrollState(),
	}, nil
}

// SetKeys replaces the item sequence. Cached heights for keys still
// present survive the replacement; heights for departed keys are pruned
// on the next Flush, not synchronously, so identities that bounce out
// and back between frames keep their measurements.
func (e *Engine) SetKeys(keys []string) {
	e.keys = make([]string, len(keys))
	copy(e.keys, keys)
	e.seqVersion++
	e.pendingPrune = true
	if e.scroll.stickToBottom {
		e.anchorBottom()
	}
	e.notify()
}

// Len returns the current sequence length.
func (e *Engine) Len() int {
	return len(e.keys)
}

// UpdateItemHeight records a measured height for key and reports whether
// it changed cached state. Zero and negative heights are rejected.
//
// When the resized item sits above the current scroll offset and the
// change did not come from a programmatic scroll, the scroll offset
// shifts by exactly the height delta so on-screen content does not jump.
// While stick-to-bottom is enabled the view re-anchors to the end
// instead.
func (e *Engine) UpdateItemHeight(key string, height int) bool {
	change, ok := e.heights.Update(key, height)
	if !ok {
		return false
	}
	if e.scroll.stickToBottom {
		e.anchorBottom()
	} else if !e.scroll.programmatic() {
		if idx, found := e.posByKey[key]; found && idx < len(e.positions) {
			if e.positions[idx].Top < e.scroll.scrollTop {
				old := change.Old
				if !change.Had {
					// The layout previously used the estimate for this
					// item, so that is the delta base.
					old = e.cfg.EstimatedItemHeight
				}
				e.scroll.correct(change.New - old)
			}
		}
	}
	e.touchWatchers()
	e.notify()
	return true
}

// RemoveItemHeight drops the cached height for key.
func (e *Engine) RemoveItemHeight(key string) {
	if e.heights.Remove(key) {
		e.notify()
	}
}

// InvalidateZeroHeights deletes entries cached as exactly 0 and returns
// how many were removed.
func (e *Engine) InvalidateZeroHeights() int {
	removed := e.heights.InvalidateZeroHeights()
	if removed > 0 {
		e.notify()
	}
	return removed
}

// RestoreHeights merges a persisted height snapshot into the cache.
func (e *Engine) RestoreHeights(heights map[string]int) {
	e.heights.Restore(heights)
	e.notify()
}

// SnapshotHeights returns a copy of the cached heights for persistence.
func (e *Engine) SnapshotHeights() map[string]int {
	return e.heights.Snapshot()
}

// ScrollBy queues a raw scroll delta. Raw events are coalesced and
// applied at most once per frame by Flush.
func (e *Engine) ScrollBy(delta int) {
	e.scroll.queue(delta)
}

// Flush applies coalesced scroll input and deferred height pruning.
// Call it once per frame. Returns true when state changed.
func (e *Engine) Flush() bool {
	e.recompute()
	changed := e.scroll.flushPending(e.maxScroll())
	if e.pendingPrune {
		e.pendingPrune = false
		keep := make(map[string]struct{}, len(e.keys))
		for _, k := range e.keys {
			keep[k] = struct{}{}
		}
		if e.heights.Prune(keep) > 0 {
			changed = true
		}
	}
	if changed {
		e.recompute()
		e.notify()
	}
	return changed
}

// SetViewportHeight updates the viewport size.
func (e *Engine) SetViewportHeight(h int) {
	if h == e.scroll.viewportHeight {
		return
	}
	e.scroll.viewportHeight = h
	if e.scroll.stickToBottom {
		e.anchorBottom()
	}
	e.notify()
}

// ScrollToIndex scrolls so item i lands at the given viewport alignment.
func (e *Engine) ScrollToIndex(i int, align Align, behavior Behavior) {
	e.recompute()
	n := len(e.positions)
	if n == 0 {
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	pos := e.positions[i]
	vh := e.scroll.viewportHeight
	var target int
	switch align {
	case AlignCenter:
		target = pos.Top - (vh-pos.Height)/2
	case AlignEnd:
		target = pos.Bottom() - vh
	default:
		target = pos.Top
	}
	e.applyProgrammatic(target, behavior)
	e.notify()
}

// ScrollToTop scrolls to offset 0.
func (e *Engine) ScrollToTop(behavior Behavior) {
	e.recompute()
	e.applyProgrammatic(0, behavior)
	e.notify()
}

// ScrollToBottom scrolls to the end of the content.
func (e *Engine) ScrollToBottom(behavior Behavior) {
	e.recompute()
	e.applyProgrammatic(e.maxScroll(), behavior)
	e.notify()
}

// EnableStickToBottom anchors the view to the end and keeps it there on
// every content or height change until disabled.
func (e *Engine) EnableStickToBottom() {
	e.scroll.stickToBottom = true
	e.anchorBottom()
	e.notify()
}

// DisableStickToBottom stops following the end of the content.
func (e *Engine) DisableStickToBottom() {
	e.scroll.stickToBottom = false
}

// StickToBottom reports whether follow mode is enabled.
func (e *Engine) StickToBottom() bool {
	return e.scroll.stickToBottom
}

// IsAtTop reports whether the view is within the near-edge threshold of
// the top.
func (e *Engine) IsAtTop() bool {
	e.recompute()
	return e.scroll.scrollTop <= e.cfg.NearBottomThreshold
}

// IsAtBottom reports whether the view is within the near-edge threshold
// of the end.
func (e *Engine) IsAtBottom() bool {
	e.recompute()
	return e.scroll.scrollTop >= e.maxScroll()-e.cfg.NearBottomThreshold
}

// ScrollState returns a snapshot of the scroll controller.
func (e *Engine) ScrollState() ScrollState {
	e.recompute()
	return ScrollState{
		ScrollTop:      e.scroll.scrollTop,
		ViewportHeight: e.scroll.viewportHeight,
		TotalHeight:    e.totalHeight,
		StickToBottom:  e.scroll.stickToBottom,
		Programmatic:   e.scroll.programmatic(),
	}
}

// Positions returns the current layout. The returned slice is shared;
// callers must not mutate it.
func (e *Engine) Positions() []Position {
	e.recompute()
	return e.positions
}

// Position returns the layout entry for key.
func (e *Engine) Position(key string) (Position, bool) {
	e.recompute()
	idx, ok := e.posByKey[key]
	if !ok || idx >= len(e.positions) {
		return Position{}, false
	}
	return e.positions[idx], true
}

// TotalHeight returns the summed height of all items.
func (e *Engine) TotalHeight() int {
	e.recompute()
	return e.totalHeight
}

// RenderRange returns the half-open index window to materialize.
func (e *Engine) RenderRange() Range {
	e.recompute()
	return e.renderRange
}

// VisibleRange returns the items actually intersecting the viewport,
// without buffers or hysteresis.
func (e *Engine) VisibleRange() Range {
	e.recompute()
	return e.visibleRange
}

// SpacerBefore returns the height of the content above the render range.
func (e *Engine) SpacerBefore() int {
	e.recompute()
	return e.spacerBefore
}

// SpacerAfter returns the height of the content below the render range.
func (e *Engine) SpacerAfter() int {
	e.recompute()
	return e.spacerAfter
}

// FindIndexAtOffset returns the index of the item containing the given
// content offset. See findIndexAtOffset for the boundary contract.
func (e *Engine) FindIndexAtOffset(target int) int {
	e.recompute()
	return findIndexAtOffset(e.positions, e.totalHeight, target)
}

// WatchStability returns a watcher that resolves once item heights have
// stayed quiet for the configured window. The watcher arms only after a
// short grace so the initial measurement burst cannot satisfy it.
func (e *Engine) WatchStability() *StabilityWatcher {
	w := NewStabilityWatcher(e.cfg.StabilityWindow, stabilityArmDelay)
	e.watchers = append(e.watchers, w)
	return w
}

// OnChange registers fn to run after every engine state change. The
// returned func cancels the subscription. Callbacks must not mutate the
// engine.
func (e *Engine) OnChange(fn func()) func() {
	id := e.nextSub
	e.nextSub++
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	return func() {
		for i := range e.subs {
			if e.subs[i].id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) notify() {
	if len(e.subs) == 0 {
		return
	}
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	for _, s := range subs {
		s.fn()
	}
}

func (e *Engine) touchWatchers() {
	live := e.watchers[:0]
	for _, w := range e.watchers {
		if w.expired() {
			continue
		}
		w.Touch()
		live = append(live, w)
	}
	e.watchers = live
}

func (e *Engine) anchorBottom() {
	e.recompute()
	e.applyProgrammatic(e.maxScroll(), BehaviorInstant)
}

func (e *Engine) applyProgrammatic(target int, behavior Behavior) {
	e.scroll.cancelPending()
	maxS := e.maxScroll()
	switch behavior {
	case BehaviorSmooth:
		e.scroll.beginSmooth(target - e.scroll.scrollTop)
		e.scroll.set(target, maxS)
	default:
		e.scroll.inProgrammatic = true
		e.scroll.set(target, maxS)
		e.scroll.inProgrammatic = false
	}
}

// maxScroll assumes the caller recomputed first.
func (e *Engine) maxScroll() int {
	m := e.totalHeight - e.scroll.viewportHeight
	if m < 0 {
		m = 0
	}
	return m
}

// recompute refreshes the derived layout when any input changed since
// the memoized pass: sequence version, heights version, scroll offset,
// or viewport size.
func (e *Engine) recompute() {
	hv := e.heights.Version()
	if e.comp.valid &&
		e.comp.seqV == e.seqVersion && e.comp.heightsV == hv &&
		e.comp.scrollTop == e.scroll.scrollTop && e.comp.viewport == e.scroll.viewportHeight {
		return
	}
	if !e.comp.valid || e.comp.seqV != e.seqVersion || e.comp.heightsV != hv {
		e.positions, e.totalHeight = computePositions(e.keys, e.heights, e.cfg.EstimatedItemHeight)
		e.posByKey = make(map[string]int, len(e.positions))
		for i := range e.positions {
			e.posByKey[e.positions[i].Key] = i
		}
	}
	n := len(e.keys)
	vh := e.scroll.viewportHeight
	maxS := e.totalHeight - vh
	if maxS < 0 {
		maxS = 0
	}
	if e.scroll.scrollTop > maxS {
		e.scroll.scrollTop = maxS
	}
	st := e.scroll.scrollTop
	if n == 0 || vh <= 0 {
		e.renderRange = Range{}
		e.visibleRange = Range{}
		e.spacerBefore, e.spacerAfter = 0, 0
	} else {
		load := spanRange(e.positions, e.totalHeight, st-e.cfg.LoadBuffer, st+vh+e.cfg.LoadBuffer)
		unload := spanRange(e.positions, e.totalHeight, st-e.cfg.UnloadBuffer, st+vh+e.cfg.UnloadBuffer)
		e.renderRange = applyHysteresis(e.prev, load, unload, n)
		e.prev = e.renderRange
		e.visibleRange = spanRange(e.positions, e.totalHeight, st, st+vh)
		if e.renderRange.Empty() {
			e.spacerBefore, e.spacerAfter = 0, 0
		} else {
			e.spacerBefore = e.positions[e.renderRange.Start].Top
			e.spacerAfter = e.totalHeight - e.positions[e.renderRange.End-1].Bottom()
		}
	}
	e.comp = computedInputs{valid: true, seqV: e.seqVersion, heightsV: hv, scrollTop: st, viewport: vh}
}
