package vlist

// Range is a half-open [Start, End) index interval into the item
// sequence. Invariant: 0 <= Start <= End <= len(items).
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Empty reports whether the range selects no items.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Contains reports whether index i falls inside the range.
func (r Range) Contains(i int) bool {
	return i >= r.Start && i < r.End
}

// spanRange returns the half-open index range of items intersecting the
// offset window [topTarget, bottomTarget].
func spanRange(positions []Position, totalHeight, topTarget, bottomTarget int) Range {
	start := findIndexAtOffset(positions, totalHeight, topTarget)
	if start < 0 {
		return Range{}
	}
	end := findIndexAtOffset(positions, totalHeight, bottomTarget)
	return Range{Start: start, End: end + 1}
}

// applyHysteresis merges the freshly computed load and unload ranges with
// the previous render range. Boundaries expand immediately to the load
// range but shrink only as far as the unload range, so items oscillating
// near a boundary are not mounted and unmounted on every scroll step.
// prev is explicit state owned by the caller and threaded through here
// on every recompute.
func applyHysteresis(prev, load, unload Range, n int) Range {
	if prev.Empty() {
		return clampRange(load, n)
	}
	// Discontinuous jump: nothing from the previous window is inside
	// even the unload window, so there is nothing to keep mounted.
	if prev.End <= unload.Start || prev.Start >= unload.End {
		return clampRange(load, n)
	}
	start := load.Start
	if load.Start > prev.Start {
		// Items left the load window at the top; keep them until they
		// also leave the unload window.
		start = max(prev.Start, unload.Start)
	}
	end := load.End
	if load.End < prev.End {
		end = min(prev.End, unload.End)
	}
	return clampRange(Range{Start: start, End: end}, n)
}

func clampRange(r Range, n int) Range {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.Start > n {
		r.Start = n
	}
	if r.End < r.Start {
		r.End = r.Start
	}
	if r.End > n {
		r.End = n
	}
	return r
}
