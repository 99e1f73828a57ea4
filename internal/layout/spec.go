package layout

import (
	"fmt"

	"github.com/quiltwm/quilt/internal/platform"
)

// NodeSpec is the serializable form of a tree node, used by the snapshot
// codec. A node is a leaf when Window is non-zero, otherwise a split.
type NodeSpec struct {
	Orientation string            `json:"orientation,omitempty"`
	Weight      float64           `json:"weight"`
	Window      platform.WindowID `json:"window,omitempty"`
	Children    []*NodeSpec       `json:"children,omitempty"`
}

// Spec returns the serializable form of the tree, or nil for an empty tree.
func (t *Tree) Spec() *NodeSpec {
	return specOf(t.root)
}

func specOf(n *node) *NodeSpec {
	if n == nil {
		return nil
	}
	s := &NodeSpec{Weight: n.weight}
	if n.leaf() {
		s.Window = n.window
		return s
	}
	s.Orientation = n.orient.String()
	s.Children = make([]*NodeSpec, len(n.children))
	for i, c := range n.children {
		s.Children[i] = specOf(c)
	}
	return s
}

// FromSpec reconstructs a tree from its serialized form. A nil spec yields an
// empty tree. Input is validated: leaves must reference distinct windows and
// splits must hold at least two children.
func FromSpec(spec *NodeSpec) (*Tree, error) {
	t := New()
	if spec == nil {
		return t, nil
	}
	root, err := nodeFromSpec(spec, nil, t.leaves)
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

func nodeFromSpec(s *NodeSpec, parent *node, leaves map[platform.WindowID]*node) (*node, error) {
	n := &node{parent: parent, weight: s.Weight}
	if n.weight <= 0 {
		n.weight = 1
	}

	if len(s.Children) == 0 {
		if s.Window == 0 {
			return nil, fmt.Errorf("layout: leaf node without window")
		}
		if _, dup := leaves[s.Window]; dup {
			return nil, fmt.Errorf("layout: window %d appears in two leaves", s.Window)
		}
		n.window = s.Window
		leaves[s.Window] = n
		return n, nil
	}

	if len(s.Children) < 2 {
		return nil, fmt.Errorf("layout: split node with %d children", len(s.Children))
	}
	switch s.Orientation {
	case "horizontal":
		n.orient = Horizontal
	case "vertical":
		n.orient = Vertical
	default:
		return nil, fmt.Errorf("layout: unknown orientation %q", s.Orientation)
	}
	n.children = make([]*node, len(s.Children))
	for i, cs := range s.Children {
		c, err := nodeFromSpec(cs, n, leaves)
		if err != nil {
			return nil, err
		}
		n.children[i] = c
	}
	return n, nil
}

// Equal reports structural equality of two trees: same shape, orientations,
// leaf windows, and weights.
func (t *Tree) Equal(o *Tree) bool {
	return specEqual(t.Spec(), o.Spec())
}

func specEqual(a, b *NodeSpec) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Orientation != b.Orientation || a.Window != b.Window || a.Weight != b.Weight {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !specEqual(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
