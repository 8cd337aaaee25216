package lattice

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
)

func ids(l *Lattice, seq func(func(NodeID) bool)) []string {
	var out []string
	for id := range seq {
		c, _ := l.Component(id)
		out = append(out, c.ID)
	}
	return out
}

func sample(t *testing.T) (*Lattice, NodeID) {
	t.Helper()
	l := New("LINAC")
	l.AddElement(l.Root(), elem.NewDrift("D1", 1.0))
	cav, err := l.AddSequence(l.Root(), "CAV1", TypeCavity)
	if err != nil {
		t.Fatal(err)
	}
	l.AddElement(cav, elem.NewRfGap("G1", 1e6, 0.05, 0, 402.5e6))
	l.AddElement(cav, elem.NewDrift("D2", 0.1))
	l.AddElement(cav, elem.NewRfGap("G2", 1e6, 0.05, 0, 402.5e6))
	l.AddElement(l.Root(), elem.NewQuadrupole("Q1", 0.2, 5))
	return l, cav
}

func TestGlobalPreOrder(t *testing.T) {
	l, _ := sample(t)

	got := ids(l, l.Global(l.Root()))
	want := []string{"LINAC", "D1", "CAV1", "G1", "D2", "G2", "Q1"}
	if !slices.Equal(got, want) {
		t.Errorf("global order %v, want %v", got, want)
	}

	got = ids(l, l.Local(l.Root()))
	want = []string{"D1", "CAV1", "Q1"}
	if !slices.Equal(got, want) {
		t.Errorf("local order %v, want %v", got, want)
	}
}

func TestLength(t *testing.T) {
	l, cav := sample(t)

	if got := l.Length(l.Root()); math.Abs(got-1.3) > 1e-12 {
		t.Errorf("expected total 1.3, got %f", got)
	}
	if got := l.Length(cav); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("expected cavity 0.1, got %f", got)
	}

	q := l.Element(find(t, l, "Q1")).(*elem.Quadrupole)
	if err := q.SetParam("length", 0.5); err != nil {
		t.Fatal(err)
	}
	l.MarkDirty()
	if got := l.Length(l.Root()); math.Abs(got-1.6) > 1e-12 {
		t.Errorf("expected total 1.6 after resize, got %f", got)
	}
}

func find(t *testing.T, l *Lattice, id string) NodeID {
	t.Helper()
	n, ok := l.Find(id)
	if !ok {
		t.Fatalf("node %s not found", id)
	}
	return n
}

func TestPosition(t *testing.T) {
	l, _ := sample(t)

	tests := []struct {
		id   string
		want float64
	}{
		{"D1", 0},
		{"CAV1", 1.0},
		{"G2", 1.1},
		{"Q1", 1.1},
	}
	for _, tt := range tests {
		got, err := l.Position(find(t, l, tt.id))
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s: position %f, want %f", tt.id, got, tt.want)
		}
	}
}

func TestChildOutOfRange(t *testing.T) {
	l, _ := sample(t)

	if _, err := l.Child(l.Root(), 3); !errors.Is(err, dynamo.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := l.Child(l.Root(), -1); !errors.Is(err, dynamo.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if n, err := l.Child(l.Root(), 2); err != nil || l.Element(n).ID() != "Q1" {
		t.Errorf("expected Q1, got %v %v", n, err)
	}
}

func TestAddChildToElement(t *testing.T) {
	l, _ := sample(t)
	if _, err := l.AddElement(find(t, l, "D1"), elem.NewMarker("M")); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	l, cav := sample(t)

	if err := l.Remove(cav); err != nil {
		t.Fatal(err)
	}
	if l.ChildCount(l.Root()) != 2 {
		t.Errorf("expected 2 children, got %d", l.ChildCount(l.Root()))
	}
	if _, ok := l.Find("G1"); ok {
		t.Error("removed subtree still reachable")
	}
	if got := l.Length(l.Root()); math.Abs(got-1.2) > 1e-12 {
		t.Errorf("expected 1.2, got %f", got)
	}
	if err := l.Remove(l.Root()); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestInsertAtSplitsDrift(t *testing.T) {
	l := New("SEQ")
	l.AddElement(l.Root(), elem.NewDrift("DR", 2.0))
	old := find(t, l, "DR")

	if _, err := l.InsertAt(1.0, elem.NewMarker("BPM")); err != nil {
		t.Fatal(err)
	}

	var lengths []float64
	var got []string
	for _, e := range l.Leaves(l.Root()) {
		got = append(got, e.ID())
		lengths = append(lengths, e.Length())
	}
	if !slices.Equal(got, []string{"DR-1", "BPM", "DR-2"}) {
		t.Errorf("unexpected leaves %v", got)
	}
	if lengths[0] != 1.0 || lengths[2] != 1.0 {
		t.Errorf("expected 1.0 m flanking drifts, got %v", lengths)
	}
	if total := l.Length(l.Root()); math.Abs(total-2.0) > 1e-12 {
		t.Errorf("expected 2.0 m total, got %f", total)
	}
	if l.Element(old) != nil {
		t.Error("replaced drift still in the tree")
	}
}

func TestInsertAtThick(t *testing.T) {
	l := New("SEQ")
	l.AddElement(l.Root(), elem.NewDrift("DR", 2.0))

	if _, err := l.InsertAt(0.5, elem.NewQuadrupole("Q", 0.4, 3)); err != nil {
		t.Fatal(err)
	}
	pos, _ := l.Position(find(t, l, "Q"))
	if math.Abs(pos-0.3) > 1e-12 {
		t.Errorf("expected quad entrance 0.3, got %f", pos)
	}

	if _, err := l.InsertAt(0.5, elem.NewMarker("M")); !errors.Is(err, dynamo.ErrOverlap) {
		t.Errorf("expected ErrOverlap inside a quad, got %v", err)
	}
	if _, err := l.InsertAt(5, elem.NewMarker("M")); !errors.Is(err, dynamo.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestPropagateOrder(t *testing.T) {
	l, _ := sample(t)

	var fwd, back []string
	l.Propagate(l.Root(), func(_ NodeID, e elem.Element) error {
		fwd = append(fwd, e.ID())
		return nil
	})
	l.BackPropagate(l.Root(), func(_ NodeID, e elem.Element) error {
		back = append(back, e.ID())
		return nil
	})
	slices.Reverse(back)
	if !slices.Equal(fwd, back) {
		t.Errorf("backward walk %v is not the reverse of %v", back, fwd)
	}

	stop := errors.New("stop")
	n := 0
	err := l.Propagate(l.Root(), func(NodeID, elem.Element) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	if err != stop || n != 2 {
		t.Errorf("expected walk to stop with the visitor error, got %v after %d", err, n)
	}
}
