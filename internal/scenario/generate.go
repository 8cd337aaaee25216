package scenario

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/lattice"
)

// gapTolerance is the smallest gap between nodes that gets a drift.
const gapTolerance = 1e-9

// Generated is a lattice plus the index from hardware id to element.
// Design holds every parameter of each configurable element as built.
type Generated struct {
	Lattice  *lattice.Lattice
	Elements map[string]elem.Element
	Nodes    map[string]Node
	Design   map[string]map[string]float64
}

// Generate builds the lattice for the nodes of one sequence. Nodes are
// sorted by position and drifts fill the space between them. Gaps that
// share a cavity id are grouped into one sub-sequence. A positive
// seqLength extends the lattice with a closing drift.
func Generate(seqID string, nodes []Node, seqLength float64, m *Mapping) (*Generated, error) {
	if m == nil {
		m = DefaultMapping()
	}
	for _, n := range nodes {
		if math.IsNaN(n.Position) || math.IsInf(n.Position, 0) {
			return nil, fmt.Errorf("%w: node %s position %g", dynamo.ErrParameterBounds, n.ID, n.Position)
		}
		if n.Length < 0 || math.IsNaN(n.Length) || math.IsInf(n.Length, 0) {
			return nil, fmt.Errorf("%w: node %s length %g", dynamo.ErrParameterBounds, n.ID, n.Length)
		}
	}
	sorted := slices.Clone(nodes)
	slices.SortStableFunc(sorted, func(a, b Node) int { return cmp.Compare(a.Position, b.Position) })

	g := &Generated{
		Lattice:  lattice.New(seqID),
		Elements: make(map[string]elem.Element, len(nodes)),
		Nodes:    make(map[string]Node, len(nodes)),
		Design:   make(map[string]map[string]float64, len(nodes)),
	}
	l := g.Lattice

	var (
		cursor   float64
		drifts   int
		prevID   string
		cavityID string
		cavities []lattice.NodeID
	)
	cavity := lattice.NoNode

	addDrift := func(parent lattice.NodeID, length float64) error {
		drifts++
		_, err := l.AddElement(parent, elem.NewDrift(fmt.Sprintf("DR%d", drifts), length))
		return err
	}

	for _, n := range sorted {
		if _, dup := g.Nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %s", dynamo.ErrOverlap, n.ID)
		}
		e, err := m.Convert(n)
		if err != nil {
			return nil, err
		}

		entrance := n.Position - e.Length()/2
		if entrance < cursor-gapTolerance {
			return nil, fmt.Errorf("%w: %s at %g starts before %s ends at %g", dynamo.ErrOverlap, n.ID, entrance, prevID, cursor)
		}

		parent := l.Root()
		switch {
		case n.Cavity != "" && n.Cavity == cavityID:
			parent = cavity
		case n.Cavity != "":
			cavityID = ""
		default:
			cavityID, cavity = "", lattice.NoNode
		}

		if gap := entrance - cursor; gap > gapTolerance {
			if err := addDrift(parent, gap); err != nil {
				return nil, err
			}
		}

		if n.Cavity != "" && n.Cavity != cavityID {
			cavity, err = l.AddSequence(l.Root(), n.Cavity, lattice.TypeCavity)
			if err != nil {
				return nil, err
			}
			cavityID = n.Cavity
			cavities = append(cavities, cavity)
			parent = cavity
		}

		if _, err := l.AddElement(parent, e); err != nil {
			return nil, err
		}
		g.Elements[n.ID] = e
		g.Nodes[n.ID] = n
		if c, ok := e.(elem.Configurable); ok {
			g.Design[n.ID] = maps.Clone(c.GetParams())
		}
		cursor = entrance + e.Length()
		prevID = n.ID
	}

	if seqLength > 0 {
		switch gap := seqLength - cursor; {
		case gap > gapTolerance:
			if err := addDrift(l.Root(), gap); err != nil {
				return nil, err
			}
		case gap < -gapTolerance:
			return nil, fmt.Errorf("%w: %s ends at %g past sequence length %g", dynamo.ErrOverlap, prevID, cursor, seqLength)
		}
	}

	for _, c := range cavities {
		markCells(l, c)
	}
	return g, nil
}

// markCells flags the first and last gap of a cavity.
func markCells(l *lattice.Lattice, cavity lattice.NodeID) {
	var gaps []*elem.RfGap
	for _, e := range l.Leaves(cavity) {
		if g, ok := e.(*elem.RfGap); ok {
			gaps = append(gaps, g)
		}
	}
	for i, g := range gaps {
		g.SetCellPosition(i == 0, i == len(gaps)-1)
	}
}
