package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/lattice"
	"github.com/san-kum/beamline/internal/probe"
	"github.com/san-kum/beamline/internal/tracker"
)

// SyncMode selects where element parameters come from on Resync.
type SyncMode int

const (
	// SyncDesign uses the design values of the hardware description.
	SyncDesign SyncMode = iota
	// SyncLive merges live values over the design values.
	SyncLive
	// SyncRFDesign takes live magnet values but design RF values.
	SyncRFDesign
)

func (m SyncMode) String() string {
	switch m {
	case SyncDesign:
		return "design"
	case SyncLive:
		return "live"
	case SyncRFDesign:
		return "rf-design"
	default:
		return fmt.Sprintf("sync(%d)", int(m))
	}
}

func ParseSyncMode(s string) (SyncMode, error) {
	for _, m := range []SyncMode{SyncDesign, SyncLive, SyncRFDesign} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: sync mode %q", dynamo.ErrParameterBounds, s)
}

// ValueSource supplies measured parameter values by hardware id.
type ValueSource interface {
	Values(hardwareID string) (map[string]float64, bool)
}

// StaticValues is a ValueSource backed by a map.
type StaticValues map[string]map[string]float64

func (s StaticValues) Values(id string) (map[string]float64, bool) {
	v, ok := s[id]
	return v, ok
}

// Observer is notified after each element a probe crosses.
type Observer interface {
	OnElement(p probe.Probe, e elem.Element)
}

// Scenario binds a lattice to a probe and a tracker.
type Scenario struct {
	gen   *Generated
	probe probe.Probe
	alg   tracker.Algorithm

	mode SyncMode
	live ValueSource

	startID     string
	stopID      string
	includeStop bool

	observers []Observer
	log       *slog.Logger
}

// New generates the lattice for nodes and wraps it in a scenario.
func New(seqID string, nodes []Node, seqLength float64, m *Mapping) (*Scenario, error) {
	g, err := Generate(seqID, nodes, seqLength, m)
	if err != nil {
		return nil, err
	}
	return FromGenerated(g), nil
}

func FromGenerated(g *Generated) *Scenario {
	return &Scenario{
		gen:         g,
		includeStop: true,
		log:         slog.Default().With(slog.String("component", "scenario"), slog.String("sequence", g.Lattice.ID())),
	}
}

func (s *Scenario) Lattice() *lattice.Lattice { return s.gen.Lattice }

// Element returns the element built for a hardware id.
func (s *Scenario) Element(id string) (elem.Element, bool) {
	e, ok := s.gen.Elements[id]
	return e, ok
}

func (s *Scenario) Probe() probe.Probe { return s.probe }

func (s *Scenario) Algorithm() tracker.Algorithm { return s.alg }

func (s *Scenario) SetLogger(l *slog.Logger) { s.log = l }

func (s *Scenario) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Bind attaches p and alg. The pairing is validated here, once.
func (s *Scenario) Bind(p probe.Probe, alg tracker.Algorithm) error {
	if p == nil || alg == nil {
		return fmt.Errorf("%w: nil probe or algorithm", dynamo.ErrNotInitialized)
	}
	if err := alg.ValidProbe(p); err != nil {
		return err
	}
	s.probe, s.alg = p, alg
	return nil
}

// SetProbe binds p, keeping the bound algorithm when it accepts p and
// otherwise using the default tracker for its kind.
func (s *Scenario) SetProbe(p probe.Probe) error {
	if p == nil {
		return s.Bind(nil, nil)
	}
	if s.alg != nil && s.alg.ValidProbe(p) == nil {
		s.probe = p
		return nil
	}
	alg, err := tracker.New(p.Kind())
	if err != nil {
		return err
	}
	return s.Bind(p, alg)
}

func (s *Scenario) SetSynchronizationMode(m SyncMode) { s.mode = m }

func (s *Scenario) SynchronizationMode() SyncMode { return s.mode }

func (s *Scenario) SetLiveSource(src ValueSource) { s.live = src }

// Resync reapplies parameter values to the elements in place: the design
// values first, then the node properties, then live values where the
// synchronization mode takes them. It must not run concurrently with Run
// on the same lattice.
func (s *Scenario) Resync() error {
	updated := 0
	for id, e := range s.gen.Elements {
		c, ok := e.(elem.Configurable)
		if !ok {
			continue
		}
		props := maps.Clone(s.gen.Design[id])
		if props == nil {
			props = make(map[string]float64)
		}
		maps.Copy(props, s.gen.Nodes[id].Props)
		if s.useLive(e) {
			if v, ok := s.live.Values(id); ok {
				maps.Copy(props, v)
			}
		}
		if err := elem.Configure(c, props); err != nil {
			return fmt.Errorf("resync %s: %w", id, err)
		}
		updated++
	}
	s.gen.Lattice.MarkDirty()
	s.log.Info("resync", slog.String("mode", s.mode.String()), slog.Int("elements", updated))
	return nil
}

func (s *Scenario) useLive(e elem.Element) bool {
	if s.live == nil {
		return false
	}
	switch s.mode {
	case SyncLive:
		return true
	case SyncRFDesign:
		return e.Kind() != elem.KindRfGap
	default:
		return false
	}
}

// SetStartElementID starts runs at element id. Empty means the beginning.
func (s *Scenario) SetStartElementID(id string) { s.startID = id }

// SetStopElementID ends runs at element id, inclusive when include is set.
func (s *Scenario) SetStopElementID(id string, include bool) {
	s.stopID = id
	s.includeStop = include
}

// Run initializes the bound probe and propagates it through the lattice.
// A failed run leaves the states saved before the failure in the
// probe's trajectory.
func (s *Scenario) Run(ctx context.Context) error {
	if s.probe == nil || s.alg == nil {
		return fmt.Errorf("%w: scenario has no probe bound", dynamo.ErrNotInitialized)
	}
	return s.runner().run(ctx, s.probe, s.alg)
}

func (s *Scenario) runner() runner {
	return runner{
		lattice:     s.gen.Lattice,
		startID:     s.startID,
		stopID:      s.stopID,
		includeStop: s.includeStop,
		observers:   s.observers,
		log:         s.log,
	}
}

// runner holds what one run needs; it shares nothing mutable with other
// runners on the same lattice.
type runner struct {
	lattice     *lattice.Lattice
	startID     string
	stopID      string
	includeStop bool
	observers   []Observer
	log         *slog.Logger
}

type positioned interface {
	InitialPosition() float64
	SetInitialPosition(s float64)
}

// element resolves a start or stop id to a leaf element of the lattice.
func (r runner) element(id, role string) (lattice.NodeID, error) {
	n, ok := r.lattice.Find(id)
	if !ok {
		return lattice.NoNode, fmt.Errorf("%w: %s element %s", dynamo.ErrNotFound, role, id)
	}
	if r.lattice.IsSequence(n) {
		return lattice.NoNode, fmt.Errorf("%w: %s %s is a sequence, not an element", dynamo.ErrNotFound, role, id)
	}
	return n, nil
}

func (r runner) run(ctx context.Context, p probe.Probe, alg tracker.Algorithm) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.stopID != "" {
		if _, err := r.element(r.stopID, "stop"); err != nil {
			return err
		}
	}
	if r.startID != "" {
		id, err := r.element(r.startID, "start")
		if err != nil {
			return err
		}
		// The range start only moves the probe for this run.
		if ps, ok := p.(positioned); ok {
			pos, err := r.lattice.Position(id)
			if err != nil {
				return err
			}
			orig := ps.InitialPosition()
			ps.SetInitialPosition(pos)
			defer ps.SetInitialPosition(orig)
		}
	}

	alg.SetStartElementID(r.startID)
	alg.SetStopElementID(r.stopID, r.includeStop)
	alg.Initialize()
	p.Initialize()
	if err := p.Start(); err != nil {
		return err
	}

	began := time.Now()
	r.log.Info("run started",
		slog.String("probe", p.ID()),
		slog.String("kind", p.Kind().String()),
		slog.String("algorithm", alg.Type()),
	)

	err := r.lattice.Propagate(r.lattice.Root(), func(_ lattice.NodeID, e elem.Element) error {
		if err := alg.Propagate(p, e); err != nil {
			return err
		}
		for _, o := range r.observers {
			o.OnElement(p, e)
		}
		return nil
	})
	if err != nil {
		p.Fail(err)
		r.log.Error("run failed", slog.String("probe", p.ID()), slog.Any("error", err))
		return err
	}
	if err := p.PostProcess(); err != nil {
		return err
	}

	k := p.Kinematics()
	r.log.Info("run finished",
		slog.String("probe", p.ID()),
		slog.Float64("s", k.Position),
		slog.Float64("W", k.KineticEnergy),
		slog.Int("states", p.StateCount()),
		slog.Duration("elapsed", time.Since(began)),
	)
	return nil
}
