package layout

import (
	"github.com/quiltwm/quilt/internal/platform"
)

// Gaps configures spacing: Outer between the tree and the workspace bounds,
// Inner between sibling frames.
type Gaps struct {
	Inner int `yaml:"inner" json:"inner"`
	Outer int `yaml:"outer" json:"outer"`
}

// Frame pairs a window with its computed screen rectangle.
type Frame struct {
	ID   platform.WindowID
	Rect platform.Rect
}

// ComputeFrames partitions bounds across all leaves according to each
// container's orientation and its children's relative weights. The result is
// deterministic for a given tree and bounds, and the union of frames tiles
// the gap-adjusted bounds exactly: integer remainders go to the last child of
// each container.
func (t *Tree) ComputeFrames(bounds platform.Rect, gaps Gaps) []Frame {
	if t.root == nil {
		return nil
	}
	inner := platform.Rect{
		X:      bounds.X + gaps.Outer,
		Y:      bounds.Y + gaps.Outer,
		Width:  bounds.Width - 2*gaps.Outer,
		Height: bounds.Height - 2*gaps.Outer,
	}
	if inner.Width < 1 {
		inner.Width = 1
	}
	if inner.Height < 1 {
		inner.Height = 1
	}
	frames := make([]Frame, 0, len(t.leaves))
	partition(t.root, inner, gaps.Inner, &frames)
	return frames
}

// FrameOf computes the frame a single window would occupy. Returns false when
// the window is not in the tree.
func (t *Tree) FrameOf(id platform.WindowID, bounds platform.Rect, gaps Gaps) (platform.Rect, bool) {
	for _, f := range t.ComputeFrames(bounds, gaps) {
		if f.ID == id {
			return f.Rect, true
		}
	}
	return platform.Rect{}, false
}

// frameOf locates the gap-free frame of an arbitrary node, used for BSP
// orientation decisions.
func (t *Tree) frameOf(target *node, bounds platform.Rect) platform.Rect {
	type entry struct {
		n *node
		r platform.Rect
	}
	stack := []entry{{t.root, bounds}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e.n == target {
			return e.r
		}
		if e.n.leaf() {
			continue
		}
		rects := partitionRect(e.r, childShares(e.n), e.n.orient, 0)
		for i, c := range e.n.children {
			stack = append(stack, entry{c, rects[i]})
		}
	}
	return bounds
}

func partition(n *node, r platform.Rect, inner int, out *[]Frame) {
	if n.leaf() {
		*out = append(*out, Frame{ID: n.window, Rect: r})
		return
	}
	rects := partitionRect(r, childShares(n), n.orient, inner)
	for i, c := range n.children {
		partition(c, rects[i], inner, out)
	}
}

// childShares renormalizes child weights into fractions summing to 1. Weights
// that no longer sum usably (serialization rounding, degenerate zeros) are
// renormalized proportionally, or evenly when the sum is not positive.
func childShares(n *node) []float64 {
	shares := make([]float64, len(n.children))
	sum := 0.0
	for _, c := range n.children {
		if c.weight > 0 {
			sum += c.weight
		}
	}
	if sum <= 0 {
		for i := range shares {
			shares[i] = 1 / float64(len(shares))
		}
		return shares
	}
	for i, c := range n.children {
		w := c.weight
		if w < 0 {
			w = 0
		}
		shares[i] = w / sum
	}
	return shares
}

// partitionRect slices r along orient into len(shares) rectangles separated
// by the inner gap. The last slice absorbs the integer remainder so the
// slices tile r exactly.
func partitionRect(r platform.Rect, shares []float64, orient Orientation, inner int) []platform.Rect {
	n := len(shares)
	out := make([]platform.Rect, n)
	if n == 1 {
		out[0] = r
		return out
	}

	length := r.Width
	if orient == Vertical {
		length = r.Height
	}
	avail := length - inner*(n-1)
	if avail < n {
		avail = n
	}

	used := 0
	for i := range shares {
		size := int(float64(avail) * shares[i])
		if size < 1 {
			size = 1
		}
		if i == n-1 {
			size = avail - used
		} else if left := avail - used - (n - 1 - i); size > left {
			// Leave at least one pixel for every remaining sibling so the
			// last slice never underflows past the available length.
			size = left
		}
		offset := used + i*inner
		if orient == Horizontal {
			out[i] = platform.Rect{X: r.X + offset, Y: r.Y, Width: size, Height: r.Height}
		} else {
			out[i] = platform.Rect{X: r.X, Y: r.Y + offset, Width: r.Width, Height: size}
		}
		used += size
	}
	return out
}
