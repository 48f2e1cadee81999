package vlist

// Position locates one item in the laid-out sequence. Top is the
// cumulative height of all preceding items.
type Position struct {
	Index  int
	Key    string
	Top    int
	Height int
}

// Bottom returns the offset of the item's lower edge.
func (p Position) Bottom() int {
	return p.Top + p.Height
}

// computePositions derives the cumulative layout for keys, reading
// measured heights from the cache and falling back to estimate for
// unmeasured or zero entries. The returned total equals the bottom of
// the last item, 0 when keys is empty.
func computePositions(keys []string, heights *HeightCache, estimate int) ([]Position, int) {
	positions := make([]Position, len(keys))
	top := 0
	for i, k := range keys {
		h, ok := heights.Get(k)
		if !ok || h <= 0 {
			h = estimate
		}
		positions[i] = Position{Index: i, Key: k, Top: top, Height: h}
		top += h
	}
	return positions, top
}

// findIndexAtOffset returns the index of the item whose span contains
// target, where an item spans (Top, Bottom]. Returns -1 for an empty
// sequence, 0 when target <= 0, and the last index when target >=
// totalHeight. Lower-bound binary search over the monotone bottoms.
func findIndexAtOffset(positions []Position, totalHeight, target int) int {
	n := len(positions)
	if n == 0 {
		return -1
	}
	if target <= 0 {
		return 0
	}
	if target >= totalHeight {
		return n - 1
	}
	lo, hi := 0, n-1
	for lo < hi {
		mid := (lo + hi) / 2
		if positions[mid].Bottom() >= target {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
