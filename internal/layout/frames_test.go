package layout

import (
	"testing"

	"github.com/quiltwm/quilt/internal/platform"
)

func buildTree(t *testing.T, mode Mode, n int) *Tree {
	t.Helper()
	tr := New()
	anchor := platform.WindowID(0)
	for i := 1; i <= n; i++ {
		mustInsert(t, tr, platform.WindowID(i), anchor, mode)
		anchor = platform.WindowID(i)
	}
	return tr
}

func TestComputeFrames_Deterministic(t *testing.T) {
	for _, mode := range []Mode{ModeTiling, ModeBSP} {
		tr := buildTree(t, mode, 5)
		first := tr.ComputeFrames(bounds, Gaps{Inner: 10, Outer: 6})
		second := tr.ComputeFrames(bounds, Gaps{Inner: 10, Outer: 6})
		if len(first) != len(second) {
			t.Fatalf("%v: frame counts differ: %d vs %d", mode, len(first), len(second))
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("%v: frame %d differs between calls: %+v vs %+v", mode, i, first[i], second[i])
			}
		}
	}
}

func TestComputeFrames_TilesBoundsExactly(t *testing.T) {
	// Awkward bounds to force integer remainders.
	awkward := platform.Rect{X: 3, Y: 7, Width: 1117, Height: 793}
	for _, mode := range []Mode{ModeTiling, ModeBSP} {
		for n := 1; n <= 7; n++ {
			tr := buildTree(t, mode, n)
			frames := tr.ComputeFrames(awkward, Gaps{})

			area := 0
			for i, f := range frames {
				if f.Rect.Empty() {
					t.Fatalf("%v n=%d: empty frame for window %d", mode, n, f.ID)
				}
				area += f.Rect.Width * f.Rect.Height
				for j := 0; j < i; j++ {
					if f.Rect.Overlap(frames[j].Rect) != 0 {
						t.Fatalf("%v n=%d: windows %d and %d overlap", mode, n, f.ID, frames[j].ID)
					}
				}
			}
			if want := awkward.Width * awkward.Height; area != want {
				t.Fatalf("%v n=%d: frames cover %d of %d", mode, n, area, want)
			}
		}
	}
}

func TestComputeFrames_GapsRespected(t *testing.T) {
	tr := buildTree(t, ModeTiling, 2)
	frames := tr.ComputeFrames(bounds, Gaps{Inner: 10, Outer: 20})
	a := frameFor(t, frames, 1)
	b := frameFor(t, frames, 2)

	if a.X != 20 || a.Y != 20 {
		t.Fatalf("outer gap not applied: %+v", a)
	}
	if got := b.X - (a.X + a.Width); got != 10 {
		t.Fatalf("inner gap between columns is %d, want 10", got)
	}
	if right := b.X + b.Width; right != bounds.Width-20 {
		t.Fatalf("right edge at %d, want %d", right, bounds.Width-20)
	}
}

func TestComputeFrames_RenormalizesDegenerateWeights(t *testing.T) {
	// A snapshot may round weights down to zero; partitioning must fall back
	// to an even split rather than dropping children.
	spec := &NodeSpec{
		Orientation: "horizontal",
		Weight:      1,
		Children: []*NodeSpec{
			{Weight: 0, Window: 1},
			{Weight: 0, Window: 2},
		},
	}
	tr, err := FromSpec(spec)
	if err != nil {
		t.Fatalf("from spec: %v", err)
	}
	frames := tr.ComputeFrames(bounds, Gaps{})
	a := frameFor(t, frames, 1)
	b := frameFor(t, frames, 2)
	if a.Width != 600 || b.Width != 600 {
		t.Fatalf("expected even renormalized split, got %d/%d", a.Width, b.Width)
	}
}

func TestComputeFrames_VanishingWeightStaysWithinBounds(t *testing.T) {
	// A weight small enough to vanish in float addition rounds its sibling's
	// share up to the whole container; the vanishing window must still get a
	// one-pixel slice inside the bounds, not a pixel past them.
	spec := &NodeSpec{
		Orientation: "horizontal",
		Weight:      1,
		Children: []*NodeSpec{
			{Weight: 1, Window: 1},
			{Weight: 1e-18, Window: 2},
		},
	}
	tr, err := FromSpec(spec)
	if err != nil {
		t.Fatalf("from spec: %v", err)
	}
	frames := tr.ComputeFrames(bounds, Gaps{})
	a := frameFor(t, frames, 1)
	b := frameFor(t, frames, 2)
	if b.Width < 1 {
		t.Fatalf("vanishing-weight window got width %d", b.Width)
	}
	if right := b.X + b.Width; right != bounds.X+bounds.Width {
		t.Fatalf("frames end at %d, want right edge %d", right, bounds.X+bounds.Width)
	}
	if a.Overlap(b) != 0 {
		t.Fatalf("frames overlap: %+v and %+v", a, b)
	}
}

func TestSpec_RoundTrip(t *testing.T) {
	tr := buildTree(t, ModeBSP, 5)
	if err := tr.Resize(2, 0.1, Horizontal); err != nil {
		t.Fatalf("resize: %v", err)
	}

	restored, err := FromSpec(tr.Spec())
	if err != nil {
		t.Fatalf("from spec: %v", err)
	}
	if !tr.Equal(restored) {
		t.Fatal("round-tripped tree differs structurally")
	}

	orig := tr.ComputeFrames(bounds, Gaps{Inner: 5, Outer: 5})
	back := restored.ComputeFrames(bounds, Gaps{Inner: 5, Outer: 5})
	for i := range orig {
		if orig[i] != back[i] {
			t.Fatalf("frame %d differs after round trip: %+v vs %+v", i, orig[i], back[i])
		}
	}
}

func TestFromSpec_RejectsDuplicateWindows(t *testing.T) {
	spec := &NodeSpec{
		Orientation: "vertical",
		Weight:      1,
		Children: []*NodeSpec{
			{Weight: 1, Window: 7},
			{Weight: 1, Window: 7},
		},
	}
	if _, err := FromSpec(spec); err == nil {
		t.Fatal("expected error for duplicate leaf windows")
	}
}
