// Package layout implements the tiling/BSP layout engine: a tree of split
// containers and leaves that deterministically maps window identifiers to
// screen frames. The package is pure; it never talks to the window system.
package layout

import (
	"errors"
	"fmt"

	"github.com/quiltwm/quilt/internal/platform"
)

var (
	// ErrInvalidAnchor is returned by Insert when the anchor window is not
	// present in the tree.
	ErrInvalidAnchor = errors.New("layout: anchor window not in tree")
	// ErrNotInTree is returned by operations on windows the tree does not hold.
	ErrNotInTree = errors.New("layout: window not in tree")
	// ErrDuplicateWindow is returned by Insert when the window already has a leaf.
	ErrDuplicateWindow = errors.New("layout: window already in tree")
)

// Orientation is the axis along which a split container partitions its bounds.
type Orientation uint8

const (
	// Horizontal splits place children side by side (partitioning width).
	Horizontal Orientation = iota
	// Vertical splits stack children top to bottom (partitioning height).
	Vertical
)

// Other returns the perpendicular orientation.
func (o Orientation) Other() Orientation {
	if o == Horizontal {
		return Vertical
	}
	return Horizontal
}

func (o Orientation) String() string {
	if o == Horizontal {
		return "horizontal"
	}
	return "vertical"
}

// Mode selects how Insert chooses split orientations.
type Mode uint8

const (
	// ModeTiling alternates split orientation by tree depth and appends new
	// windows into an existing container when the orientation matches.
	ModeTiling Mode = iota
	// ModeBSP always splits the anchor leaf in two, choosing the orientation
	// from the anchor frame's aspect ratio. A square frame splits
	// horizontally; that default is deliberate and fixed.
	ModeBSP
)

func (m Mode) String() string {
	if m == ModeBSP {
		return "bsp"
	}
	return "tiling"
}

// ParseMode converts a config/snapshot string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "tiling", "":
		return ModeTiling, nil
	case "bsp":
		return ModeBSP, nil
	}
	return ModeTiling, fmt.Errorf("layout: unknown mode %q", s)
}

// minShare is the smallest effective fraction of a container a child may be
// resized down to.
const minShare = 0.05

// node is either a split container (children non-nil) or a leaf referencing
// exactly one window. Weights are relative to siblings only.
type node struct {
	parent   *node
	orient   Orientation
	weight   float64
	children []*node
	window   platform.WindowID
}

func (n *node) leaf() bool { return len(n.children) == 0 }

func (n *node) depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Tree is one workspace's arrangement of tiled windows. The zero value is not
// usable; construct with New.
type Tree struct {
	root   *node
	leaves map[platform.WindowID]*node
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{leaves: make(map[platform.WindowID]*node)}
}

// Len returns the number of leaves.
func (t *Tree) Len() int { return len(t.leaves) }

// Empty reports whether the tree holds no windows.
func (t *Tree) Empty() bool { return t.root == nil }

// Contains reports whether the window has a leaf in the tree.
func (t *Tree) Contains(id platform.WindowID) bool {
	_, ok := t.leaves[id]
	return ok
}

// Leaves returns the window ids of all leaves in traversal order.
func (t *Tree) Leaves() []platform.WindowID {
	out := make([]platform.WindowID, 0, len(t.leaves))
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.leaf() {
			out = append(out, n.window)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
	return out
}

// Insert adds a new leaf for id adjacent to anchor. With a zero anchor the
// insertion targets the tree root. In tiling mode the split orientation
// alternates with depth; in BSP mode it follows the anchor frame's aspect
// ratio within bounds. Returns ErrInvalidAnchor when a non-zero anchor is not
// in the tree.
func (t *Tree) Insert(id, anchor platform.WindowID, mode Mode, bounds platform.Rect) error {
	if t.Contains(id) {
		return fmt.Errorf("%w: %d", ErrDuplicateWindow, id)
	}
	if t.root == nil {
		n := &node{window: id, weight: 1}
		t.root = n
		t.leaves[id] = n
		return nil
	}

	target := t.root
	if anchor != 0 {
		n, ok := t.leaves[anchor]
		if !ok {
			return fmt.Errorf("%w: %d", ErrInvalidAnchor, anchor)
		}
		target = n
	} else if !t.root.leaf() {
		// No anchor: append after the last leaf so repeated inserts read
		// left to right.
		target = lastLeaf(t.root)
	}

	orient := t.splitOrientation(target, mode, bounds)

	if mode == ModeTiling && target.parent != nil && target.parent.orient == orient {
		// Same orientation: join the existing container instead of nesting.
		t.insertSibling(target, id)
		return nil
	}

	t.splitLeafward(target, id, orient)
	return nil
}

// splitOrientation picks the orientation a new split of target would use.
func (t *Tree) splitOrientation(target *node, mode Mode, bounds platform.Rect) Orientation {
	switch mode {
	case ModeBSP:
		frame := t.frameOf(target, bounds)
		if frame.Height > frame.Width {
			return Vertical
		}
		return Horizontal
	default:
		if d := target.depth(); d%2 == 1 {
			return Vertical
		}
		return Horizontal
	}
}

// insertSibling places a new leaf for id directly after target inside
// target's parent, inheriting target's weight.
func (t *Tree) insertSibling(target *node, id platform.WindowID) {
	parent := target.parent
	leaf := &node{parent: parent, window: id, weight: target.weight}
	idx := childIndex(parent, target)
	parent.children = append(parent.children, nil)
	copy(parent.children[idx+2:], parent.children[idx+1:])
	parent.children[idx+1] = leaf
	t.leaves[id] = leaf
}

// splitLeafward replaces target with a new split holding target and the new
// leaf as equal-weight children.
func (t *Tree) splitLeafward(target *node, id platform.WindowID, orient Orientation) {
	split := &node{
		parent: target.parent,
		orient: orient,
		weight: target.weight,
	}
	leaf := &node{parent: split, window: id, weight: 1}
	target.weight = 1

	if target.parent == nil {
		t.root = split
	} else {
		parent := target.parent
		parent.children[childIndex(parent, target)] = split
	}
	target.parent = split
	split.children = []*node{target, leaf}
	t.leaves[id] = leaf
}

// Remove deletes the leaf for id. A parent left with a single child collapses
// into that child, so the tree never holds single-child internal nodes.
// Removing the last leaf empties the tree.
func (t *Tree) Remove(id platform.WindowID) error {
	n, ok := t.leaves[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotInTree, id)
	}
	delete(t.leaves, id)

	parent := n.parent
	if parent == nil {
		t.root = nil
		return nil
	}

	idx := childIndex(parent, n)
	parent.children = append(parent.children[:idx], parent.children[idx+1:]...)

	if len(parent.children) == 1 {
		t.collapse(parent)
	}
	return nil
}

// collapse replaces a single-child container with its child.
func (t *Tree) collapse(parent *node) {
	child := parent.children[0]
	child.weight = parent.weight
	child.parent = parent.parent
	if parent.parent == nil {
		t.root = child
		return
	}
	gp := parent.parent
	gp.children[childIndex(gp, parent)] = child
}

// Swap exchanges the windows referenced by two leaves. The split structure
// and all weights are untouched, so both windows simply trade frames.
func (t *Tree) Swap(a, b platform.WindowID) error {
	na, ok := t.leaves[a]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotInTree, a)
	}
	nb, ok := t.leaves[b]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotInTree, b)
	}
	if na == nb {
		return nil
	}
	na.window, nb.window = nb.window, na.window
	t.leaves[a], t.leaves[b] = nb, na
	return nil
}

// Resize grows (positive delta) or shrinks the window's share of the nearest
// ancestor container splitting along axis. Delta is a fraction of the
// container. Every child is clamped to a minimum share; the remainder is
// redistributed proportionally among siblings. Returns ErrNotInTree when the
// window is absent and a plain error when no container splits along axis.
func (t *Tree) Resize(id platform.WindowID, delta float64, axis Orientation) error {
	n, ok := t.leaves[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotInTree, id)
	}

	// Find the ancestor whose parent partitions along axis.
	for n.parent != nil && n.parent.orient != axis {
		n = n.parent
	}
	parent := n.parent
	if parent == nil {
		return fmt.Errorf("layout: window %d has no %s container to resize", id, axis)
	}

	total := 0.0
	for _, c := range parent.children {
		total += c.weight
	}
	if total <= 0 {
		return fmt.Errorf("layout: container weights degenerate")
	}

	share := n.weight/total + delta
	lo, hi := minShare, 1-minShare*float64(len(parent.children)-1)
	if share < lo {
		share = lo
	}
	if share > hi {
		share = hi
	}

	rest := 1 - share
	oldRest := (total - n.weight) / total
	for _, c := range parent.children {
		if c == n {
			c.weight = share
			continue
		}
		if oldRest > 0 {
			c.weight = (c.weight / total) / oldRest * rest
		} else {
			c.weight = rest / float64(len(parent.children)-1)
		}
	}
	return nil
}

func childIndex(parent, child *node) int {
	for i, c := range parent.children {
		if c == child {
			return i
		}
	}
	return -1
}

func lastLeaf(n *node) *node {
	for !n.leaf() {
		n = n.children[len(n.children)-1]
	}
	return n
}
