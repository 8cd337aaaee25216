package lattice

import (
	"fmt"
	"iter"
	"math"
	"sync"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
)

// NodeID indexes a node in the arena.
type NodeID int

// NoNode is the parent of the root and of detached nodes.
const NoNode NodeID = -1

// Type tags for sequence nodes.
const (
	TypeSequence = "Sequence"
	TypeCavity   = "RfCavity"
)

// positionTolerance is the slack used when matching positions to element
// boundaries.
const positionTolerance = 1e-9

// Component describes a node to add. A nil Element makes a sequence.
type Component struct {
	ID      string
	Type    string
	Element elem.Element
}

type node struct {
	Component
	parent   NodeID
	children []NodeID
	detached bool

	lengthGen uint64
	length    float64
}

func (n *node) isSequence() bool { return n.Element == nil }

// Lattice is the arena. Structural mutation is not safe concurrently with
// propagation; read-only walks from several goroutines are.
type Lattice struct {
	nodes []node
	gen   uint64

	mu sync.Mutex // guards the length memo
}

// New returns a lattice whose root is a sequence named id.
func New(id string) *Lattice {
	l := &Lattice{gen: 1}
	l.nodes = append(l.nodes, node{
		Component: Component{ID: id, Type: TypeSequence},
		parent:    NoNode,
	})
	return l
}

// Root returns the root sequence.
func (l *Lattice) Root() NodeID { return 0 }

// ID returns the root sequence id.
func (l *Lattice) ID() string { return l.nodes[0].ID }

// Generation returns the mutation counter.
func (l *Lattice) Generation() uint64 { return l.gen }

// MarkDirty invalidates cached aggregates after element parameters change
// in place.
func (l *Lattice) MarkDirty() { l.gen++ }

func (l *Lattice) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(l.nodes) && !l.nodes[id].detached
}

func (l *Lattice) get(id NodeID) (*node, error) {
	if !l.valid(id) {
		return nil, fmt.Errorf("%w: node %d", dynamo.ErrNotFound, id)
	}
	return &l.nodes[id], nil
}

// Component returns the description of a node.
func (l *Lattice) Component(id NodeID) (Component, error) {
	n, err := l.get(id)
	if err != nil {
		return Component{}, err
	}
	return n.Component, nil
}

// Element returns the leaf element of id, or nil for a sequence.
func (l *Lattice) Element(id NodeID) elem.Element {
	if !l.valid(id) {
		return nil
	}
	return l.nodes[id].Element
}

// IsSequence reports whether id is an internal node.
func (l *Lattice) IsSequence(id NodeID) bool {
	return l.valid(id) && l.nodes[id].isSequence()
}

// Parent returns the parent of id, NoNode for the root.
func (l *Lattice) Parent(id NodeID) NodeID {
	if !l.valid(id) {
		return NoNode
	}
	return l.nodes[id].parent
}

// AddChild appends c to the parent sequence.
func (l *Lattice) AddChild(parent NodeID, c Component) (NodeID, error) {
	return l.InsertChild(parent, l.ChildCount(parent), c)
}

// AddElement appends a leaf to the parent sequence.
func (l *Lattice) AddElement(parent NodeID, e elem.Element) (NodeID, error) {
	if e == nil {
		return NoNode, fmt.Errorf("%w: nil element", dynamo.ErrInvalidState)
	}
	return l.AddChild(parent, Component{ID: e.ID(), Type: e.Type(), Element: e})
}

// AddSequence appends an empty sub-sequence to parent.
func (l *Lattice) AddSequence(parent NodeID, id, typ string) (NodeID, error) {
	if typ == "" {
		typ = TypeSequence
	}
	return l.AddChild(parent, Component{ID: id, Type: typ})
}

// InsertChild places c at index among the children of parent.
func (l *Lattice) InsertChild(parent NodeID, index int, c Component) (NodeID, error) {
	p, err := l.get(parent)
	if err != nil {
		return NoNode, err
	}
	if !p.isSequence() {
		return NoNode, fmt.Errorf("%w: %s is not a sequence", dynamo.ErrInvalidState, p.ID)
	}
	if index < 0 || index > len(p.children) {
		return NoNode, fmt.Errorf("%w: index %d of %d", dynamo.ErrOutOfRange, index, len(p.children))
	}
	if c.Type == "" && c.Element != nil {
		c.Type = c.Element.Type()
	}

	id := NodeID(len(l.nodes))
	l.nodes = append(l.nodes, node{Component: c, parent: parent})
	p = &l.nodes[parent]
	p.children = append(p.children, 0)
	copy(p.children[index+1:], p.children[index:])
	p.children[index] = id
	l.gen++
	return id, nil
}

// Remove detaches id and its subtree. The root cannot be removed.
func (l *Lattice) Remove(id NodeID) error {
	n, err := l.get(id)
	if err != nil {
		return err
	}
	if n.parent == NoNode {
		return fmt.Errorf("%w: cannot remove root", dynamo.ErrInvalidState)
	}
	p := &l.nodes[n.parent]
	for i, c := range p.children {
		if c == id {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	l.detach(id)
	l.gen++
	return nil
}

func (l *Lattice) detach(id NodeID) {
	n := &l.nodes[id]
	n.detached = true
	n.parent = NoNode
	for _, c := range n.children {
		l.detach(c)
	}
	n.children = nil
}

// Child returns the i-th direct child of parent.
func (l *Lattice) Child(parent NodeID, i int) (NodeID, error) {
	p, err := l.get(parent)
	if err != nil {
		return NoNode, err
	}
	if i < 0 || i >= len(p.children) {
		return NoNode, fmt.Errorf("%w: child %d of %d", dynamo.ErrOutOfRange, i, len(p.children))
	}
	return p.children[i], nil
}

// ChildCount returns the number of direct children of parent.
func (l *Lattice) ChildCount(parent NodeID) int {
	if !l.valid(parent) {
		return 0
	}
	return len(l.nodes[parent].children)
}

// Local yields the direct children of parent in order.
func (l *Lattice) Local(parent NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		if !l.valid(parent) {
			return
		}
		for _, c := range l.nodes[parent].children {
			if !yield(c) {
				return
			}
		}
	}
}

// Global yields from and all of its descendants in pre-order: every node
// comes before its children.
func (l *Lattice) Global(from NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		if l.valid(from) {
			l.walk(from, yield)
		}
	}
}

func (l *Lattice) walk(id NodeID, yield func(NodeID) bool) bool {
	if !yield(id) {
		return false
	}
	for _, c := range l.nodes[id].children {
		if !l.walk(c, yield) {
			return false
		}
	}
	return true
}

// Leaves yields the elements under from in beam order.
func (l *Lattice) Leaves(from NodeID) iter.Seq2[NodeID, elem.Element] {
	return func(yield func(NodeID, elem.Element) bool) {
		for id := range l.Global(from) {
			n := &l.nodes[id]
			if n.isSequence() {
				continue
			}
			if !yield(id, n.Element) {
				return
			}
		}
	}
}

// Find returns the first node in beam order with the given id.
func (l *Lattice) Find(id string) (NodeID, bool) {
	for n := range l.Global(l.Root()) {
		if l.nodes[n].ID == id {
			return n, true
		}
	}
	return NoNode, false
}

// Length returns the summed leaf length under id.
func (l *Lattice) Length(id NodeID) float64 {
	if !l.valid(id) {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.length(id)
}

func (l *Lattice) length(id NodeID) float64 {
	n := &l.nodes[id]
	if !n.isSequence() {
		return n.Element.Length()
	}
	if n.lengthGen == l.gen {
		return n.length
	}
	sum := 0.0
	for _, c := range n.children {
		sum += l.length(c)
	}
	n.length = sum
	n.lengthGen = l.gen
	return sum
}

// Position returns the entrance position of id measured from the root.
func (l *Lattice) Position(id NodeID) (float64, error) {
	if _, err := l.get(id); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := 0.0
	for cur := id; l.nodes[cur].parent != NoNode; cur = l.nodes[cur].parent {
		for _, sib := range l.nodes[l.nodes[cur].parent].children {
			if sib == cur {
				break
			}
			pos += l.length(sib)
		}
	}
	return pos, nil
}

// InsertAt places e with its center at pos. A drift containing pos is
// split into two drifts flanking e; the replaced drift leaves the tree.
// A pos on a boundary between two elements inserts e there unchanged.
func (l *Lattice) InsertAt(pos float64, e elem.Element) (NodeID, error) {
	total := l.Length(l.Root())
	if math.IsNaN(pos) || pos < -positionTolerance || pos > total+positionTolerance {
		return NoNode, fmt.Errorf("%w: position %g outside [0, %g]", dynamo.ErrOutOfRange, pos, total)
	}
	half := e.Length() / 2
	lo, hi := pos-half, pos+half

	s := 0.0
	for id, leaf := range l.Leaves(l.Root()) {
		start, end := s, s+leaf.Length()
		s = end

		if half == 0 && math.Abs(lo-start) <= positionTolerance {
			return l.insertBefore(id, e)
		}
		if hi <= start+positionTolerance || lo >= end-positionTolerance {
			continue
		}
		if leaf.Kind() != elem.KindDrift || lo < start-positionTolerance || hi > end+positionTolerance {
			return NoNode, fmt.Errorf("%w: %s at %g overlaps %s", dynamo.ErrOverlap, e.ID(), pos, leaf.ID())
		}
		return l.splitDrift(id, leaf, math.Max(lo-start, 0), math.Max(end-hi, 0), e)
	}
	if half == 0 {
		return l.AddElement(l.Root(), e)
	}
	return NoNode, fmt.Errorf("%w: %s at %g does not fit", dynamo.ErrOverlap, e.ID(), pos)
}

func (l *Lattice) indexOf(id NodeID) int {
	p := l.nodes[id].parent
	for i, c := range l.nodes[p].children {
		if c == id {
			return i
		}
	}
	return -1
}

func (l *Lattice) insertBefore(id NodeID, e elem.Element) (NodeID, error) {
	return l.InsertChild(l.nodes[id].parent, l.indexOf(id), Component{ID: e.ID(), Type: e.Type(), Element: e})
}

func (l *Lattice) splitDrift(id NodeID, drift elem.Element, up, down float64, e elem.Element) (NodeID, error) {
	parent := l.nodes[id].parent
	index := l.indexOf(id)
	if err := l.Remove(id); err != nil {
		return NoNode, err
	}

	parts := []elem.Element{elem.NewDrift(drift.ID()+"-1", up), e, elem.NewDrift(drift.ID()+"-2", down)}
	nid := NoNode
	for _, part := range parts {
		if part != e && part.Length() <= positionTolerance {
			continue
		}
		id, err := l.InsertChild(parent, index, Component{ID: part.ID(), Type: part.Type(), Element: part})
		if err != nil {
			return NoNode, err
		}
		if part == e {
			nid = id
		}
		index++
	}
	return nid, nil
}

// Visitor is called for each leaf during a walk.
type Visitor func(id NodeID, e elem.Element) error

// Propagate calls fn for each leaf under from in beam order and stops at
// the first error, which is returned unchanged.
func (l *Lattice) Propagate(from NodeID, fn Visitor) error {
	for id, e := range l.Leaves(from) {
		if err := fn(id, e); err != nil {
			return err
		}
	}
	return nil
}

// BackPropagate is Propagate in reverse beam order.
func (l *Lattice) BackPropagate(from NodeID, fn Visitor) error {
	var ids []NodeID
	for id := range l.Leaves(from) {
		ids = append(ids, id)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		if err := fn(ids[i], l.nodes[ids[i]].Element); err != nil {
			return err
		}
	}
	return nil
}

// Elements returns the leaves under from as a slice.
func (l *Lattice) Elements(from NodeID) []elem.Element {
	var out []elem.Element
	for _, e := range l.Leaves(from) {
		out = append(out, e)
	}
	return out
}
