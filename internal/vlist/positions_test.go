package vlist

import (
	"strconv"
	"testing"
)

func seqKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = "k" + strconv.Itoa(i)
	}
	return keys
}

func uniformPositions(n, height int) ([]Position, int) {
	return computePositions(seqKeys(n), NewHeightCache(), height)
}

func TestComputePositionsCumulative(t *testing.T) {
	heights := NewHeightCache()
	heights.Update("a", 10)
	heights.Update("c", 30)

	// b is unmeasured and falls back to the estimate.
	positions, total := computePositions([]string{"a", "b", "c"}, heights, 24)
	if len(positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(positions))
	}

	want := []Position{
		{Index: 0, Key: "a", Top: 0, Height: 10},
		{Index: 1, Key: "b", Top: 10, Height: 24},
		{Index: 2, Key: "c", Top: 34, Height: 30},
	}
	for i, w := range want {
		if positions[i] != w {
			t.Errorf("position %d = %+v, want %+v", i, positions[i], w)
		}
	}
	if total != 64 {
		t.Errorf("total = %d, want 64", total)
	}

	// Each item's bottom is the next item's top.
	for i := 0; i < len(positions)-1; i++ {
		if positions[i].Bottom() != positions[i+1].Top {
			t.Errorf("offset invariant broken at %d: bottom %d next top %d",
				i, positions[i].Bottom(), positions[i+1].Top)
		}
	}
	if last := positions[len(positions)-1]; last.Bottom() != total {
		t.Errorf("total %d does not match last bottom %d", total, last.Bottom())
	}
}

func TestComputePositionsEmpty(t *testing.T) {
	positions, total := computePositions(nil, NewHeightCache(), 24)
	if len(positions) != 0 || total != 0 {
		t.Errorf("expected empty layout, got %d positions total %d", len(positions), total)
	}
}

func TestFindIndexAtOffsetBoundaries(t *testing.T) {
	positions, total := uniformPositions(10, 24)

	tests := []struct {
		name   string
		target int
		want   int
	}{
		{"empty handled separately", 0, 0},
		{"negative clamps to first", -5, 0},
		{"zero clamps to first", 0, 0},
		{"inside first span", 1, 0},
		{"exactly first bottom", 24, 0},
		{"just past first bottom", 25, 1},
		{"inside last span", 239, 9},
		{"exactly total", 240, 9},
		{"past total clamps to last", 300, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findIndexAtOffset(positions, total, tt.target); got != tt.want {
				t.Errorf("findIndexAtOffset(%d) = %d, want %d", tt.target, got, tt.want)
			}
		})
	}

	if got := findIndexAtOffset(nil, 0, 10); got != -1 {
		t.Errorf("expected -1 for empty positions, got %d", got)
	}
}

func TestFindIndexAtOffsetContainsTarget(t *testing.T) {
	heights := NewHeightCache()
	keys := seqKeys(50)
	for i, k := range keys {
		// Irregular heights exercise the search away from uniform strides.
		heights.Update(k, 1+(i*7)%13)
	}
	positions, total := computePositions(keys, heights, 5)

	for target := 1; target <= total; target += 3 {
		i := findIndexAtOffset(positions, total, target)
		if i < 0 || i >= len(positions) {
			t.Fatalf("index out of range for target %d: %d", target, i)
		}
		p := positions[i]
		if !(p.Top < target && target <= p.Bottom()) {
			t.Errorf("target %d not inside span (%d, %d] of index %d", target, p.Top, p.Bottom(), i)
		}
	}
}
