package scenario

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/lattice"
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
	"github.com/san-kum/beamline/internal/tracker"
)

type brokenQuad struct {
	*elem.Quadrupole
}

func (brokenQuad) TransferMap(dynamo.Kinematics, float64) (linalg.PhaseMatrix, error) {
	return linalg.PhaseMatrix{}, dynamo.ErrNonFiniteMap
}

func leafIDs(l *lattice.Lattice) []string {
	var out []string
	for _, e := range l.Leaves(l.Root()) {
		out = append(out, e.ID())
	}
	return out
}

var _ = Describe("Generate", func() {
	It("fills gaps with drifts in position order", func() {
		g, err := Generate("SEQ", []Node{
			{ID: "Q2", Type: "QV", Position: 2.1, Length: 0.2, Props: map[string]float64{"gradient": -5}},
			{ID: "Q1", Type: "QH", Position: 1.1, Length: 0.2, Props: map[string]float64{"gradient": 5}},
			{ID: "BPM1", Type: "BPM", Position: 1.5, Length: 0.05},
		}, 3.0, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(leafIDs(g.Lattice)).To(Equal([]string{"DR1", "Q1", "DR2", "BPM1", "DR3", "Q2", "DR4"}))
		Expect(g.Lattice.Length(g.Lattice.Root())).To(BeNumerically("~", 3.0, 1e-12))
		Expect(g.Elements["Q2"].(*elem.Quadrupole).Gradient()).To(Equal(-5.0))
	})

	It("rejects overlapping thick nodes", func() {
		_, err := Generate("SEQ", []Node{
			{ID: "Q1", Type: "QH", Position: 1.0, Length: 0.4},
			{ID: "Q2", Type: "QH", Position: 1.2, Length: 0.4},
		}, 0, nil)
		Expect(err).To(MatchError(dynamo.ErrOverlap))
	})

	It("maps unknown hardware to markers by default", func() {
		g, err := Generate("SEQ", []Node{{ID: "X1", Type: "Mystery", Position: 0.5}}, 1.0, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Elements["X1"].Kind()).To(Equal(elem.KindMarker))
	})

	It("fails on unknown hardware without a default converter", func() {
		m := DefaultMapping()
		m.SetDefault(nil)
		_, err := Generate("SEQ", []Node{{ID: "X1", Type: "Mystery", Position: 0.5}}, 1.0, m)
		Expect(err).To(MatchError(dynamo.ErrUnknownElementType))
	})

	It("fails on malformed fits", func() {
		_, err := Generate("SEQ", []Node{
			{ID: "G1", Type: "RfGap", Position: 0.5, Fits: map[string]string{"ttf": "1, x"}},
		}, 1.0, nil)
		Expect(err).To(MatchError(dynamo.ErrMalformedFit))
	})

	It("rejects nodes with a negative or undefined length", func() {
		for _, length := range []float64{-0.1, math.NaN(), math.Inf(1)} {
			_, err := Generate("SEQ", []Node{
				{ID: "Q1", Type: "QH", Position: 1.0, Length: length},
			}, 0, nil)
			Expect(err).To(MatchError(dynamo.ErrParameterBounds), "length %g", length)
		}
		_, err := Generate("SEQ", []Node{{ID: "M1", Type: "BPM", Position: math.NaN()}}, 0, nil)
		Expect(err).To(MatchError(dynamo.ErrParameterBounds))
	})

	It("records the design parameters of every element", func() {
		g, err := Generate("SEQ", []Node{
			{ID: "Q1", Type: "QH", Position: 1.1, Length: 0.2, Props: map[string]float64{"gradient": 5}},
			{ID: "G1", Type: "RG", Position: 1.5},
		}, 2.0, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Design["Q1"]).To(HaveKeyWithValue("gradient", 5.0))
		Expect(g.Design["Q1"]).To(HaveKeyWithValue("align_x", 0.0))
		Expect(g.Design["G1"]).To(HaveKeyWithValue("amplitude", 1.0))
	})

	It("groups cavity gaps and flags the end cells", func() {
		props := map[string]float64{"e0": 1e6, "cell_length": 0.05, "frequency": 402.5e6}
		g, err := Generate("SEQ", []Node{
			{ID: "G1", Type: "RG", Position: 1.0, Cavity: "CAV1", Props: props},
			{ID: "G2", Type: "RG", Position: 1.1, Cavity: "CAV1", Props: props},
			{ID: "G3", Type: "RG", Position: 1.2, Cavity: "CAV1", Props: props},
			{ID: "Q1", Type: "QH", Position: 1.5, Length: 0.2},
		}, 2.0, nil)
		Expect(err).NotTo(HaveOccurred())

		l := g.Lattice
		cav, ok := l.Find("CAV1")
		Expect(ok).To(BeTrue())
		Expect(l.IsSequence(cav)).To(BeTrue())
		Expect(l.Elements(cav)).To(HaveLen(5))

		Expect(g.Elements["G1"].(*elem.RfGap).IsFirstGap()).To(BeTrue())
		Expect(g.Elements["G2"].(*elem.RfGap).IsFirstGap()).To(BeFalse())
		Expect(g.Elements["G2"].(*elem.RfGap).IsLastGap()).To(BeFalse())
		Expect(g.Elements["G3"].(*elem.RfGap).IsLastGap()).To(BeTrue())

		pos, err := l.Position(cav)
		Expect(err).NotTo(HaveOccurred())
		Expect(pos).To(BeNumerically("~", 1.0, 1e-12))
	})
})

var _ = Describe("Scenario", func() {
	var (
		sc    *Scenario
		quad  *elem.Quadrupole
		nodes []Node
	)

	BeforeEach(func() {
		nodes = []Node{
			{ID: "D1", Type: "Drift", Position: 0.5, Length: 1.0},
			{ID: "Q1", Type: "QH", Position: 1.1, Length: 0.2, Props: map[string]float64{"gradient": 5}},
		}
		var err error
		sc, err = New("SEQ", nodes, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		e, _ := sc.Element("Q1")
		quad = e.(*elem.Quadrupole)
	})

	Context("with a particle probe", func() {
		var p *probe.ParticleProbe

		BeforeEach(func() {
			p = probe.NewParticle("p", probe.Proton, 2.5e6, linalg.NewPhaseVector(0.001, 0, 0, 0, 0, 0))
			Expect(sc.SetProbe(p)).To(Succeed())
		})

		It("propagates through the drift and focusing quad", func() {
			Expect(sc.Run(context.Background())).To(Succeed())

			Expect(p.Status()).To(Equal(probe.StatusCompleted))
			Expect(p.Position()).To(BeNumerically("~", 1.2, 1e-12))
			Expect(p.KineticEnergy()).To(Equal(2.5e6))

			d1, err := p.Trajectory().StateForElement("D1")
			Expect(err).NotTo(HaveOccurred())
			Expect(d1.Coords[linalg.X]).To(Equal(0.001))

			kq := quad.Strength(p.Kinematics())
			z := p.Coordinates()
			Expect(z[linalg.X]).To(BeNumerically("~", 0.001*math.Cos(kq*0.2), 1e-15))
			Expect(z[linalg.XP]).To(BeNumerically("~", -0.001*kq*math.Sin(kq*0.2), 1e-15))
		})

		It("produces a monotonic trajectory", func() {
			Expect(sc.Run(context.Background())).To(Succeed())
			prev := math.Inf(-1)
			for _, s := range p.Trajectory().All() {
				Expect(s.Position()).To(BeNumerically(">=", prev))
				prev = s.Position()
			}
		})

		It("runs a sub-range starting at the start element position", func() {
			sc.SetStartElementID("Q1")
			Expect(sc.Run(context.Background())).To(Succeed())
			Expect(p.StateCount()).To(Equal(1))
			Expect(p.Position()).To(BeNumerically("~", 1.2, 1e-12))
		})

		It("starts a full run at the beginning after a ranged run", func() {
			sc.SetStartElementID("Q1")
			Expect(sc.Run(context.Background())).To(Succeed())
			Expect(p.InitialPosition()).To(Equal(0.0))

			sc.SetStartElementID("")
			Expect(sc.Run(context.Background())).To(Succeed())
			Expect(p.Position()).To(BeNumerically("~", 1.2, 1e-12))
			first, err := p.Trajectory().InitialState()
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ElementID()).To(Equal("D1"))
			Expect(first.Position()).To(BeNumerically("~", 1.0, 1e-12))
			Expect(p.StateCount()).To(Equal(2))
		})

		It("rejects an unknown start element", func() {
			sc.SetStartElementID("NOPE")
			Expect(sc.Run(context.Background())).To(MatchError(dynamo.ErrNotFound))
		})

		It("keeps a configured tracker when the probe is replaced", func() {
			alg := tracker.NewParticleTracker()
			alg.SetPolicy(tracker.UpdateEntranceAndExit)
			Expect(sc.Bind(p, alg)).To(Succeed())

			next := probe.NewParticle("p2", probe.Proton, 2.5e6, linalg.ZeroVector())
			Expect(sc.SetProbe(next)).To(Succeed())
			Expect(sc.Algorithm()).To(BeIdenticalTo(alg))
			Expect(sc.Probe()).To(BeIdenticalTo(next))
		})

		It("can be run again after completion", func() {
			Expect(sc.Run(context.Background())).To(Succeed())
			first := p.Coordinates()
			Expect(sc.Run(context.Background())).To(Succeed())
			Expect(p.Coordinates()).To(Equal(first))
			Expect(p.StateCount()).To(Equal(2))
		})

		It("does not start with a cancelled context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(sc.Run(ctx)).To(MatchError(context.Canceled))
			Expect(p.Status()).To(Equal(probe.StatusUninitialized))
		})
	})

	It("rejects a mismatched probe and tracker at binding", func() {
		p := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.ZeroVector())
		Expect(sc.Bind(p, tracker.NewEnvelopeTracker())).To(MatchError(dynamo.ErrUnsupportedProbe))
		Expect(sc.Run(context.Background())).To(MatchError(dynamo.ErrNotInitialized))
	})

	It("fails the probe and reports the element on numeric errors", func() {
		m := DefaultMapping()
		m.Register(func(n Node) (elem.Element, error) {
			return brokenQuad{elem.NewQuadrupole(n.ID, n.Length, 1)}, nil
		}, "BROKEN")
		bad, err := New("SEQ", []Node{
			{ID: "D1", Type: "Drift", Position: 0.5, Length: 1.0},
			{ID: "B1", Type: "BROKEN", Position: 1.1, Length: 0.2},
		}, 0, m)
		Expect(err).NotTo(HaveOccurred())

		p := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.ZeroVector())
		Expect(bad.SetProbe(p)).To(Succeed())

		err = bad.Run(context.Background())
		var me *dynamo.ModelError
		Expect(errors.As(err, &me)).To(BeTrue())
		Expect(me.ElementID).To(Equal("B1"))
		Expect(me.Position).To(BeNumerically("~", 1.0, 1e-12))
		Expect(err).To(MatchError(dynamo.ErrNonFiniteMap))

		Expect(p.Status()).To(Equal(probe.StatusFailed))
		Expect(p.StateCount()).To(Equal(1))
	})

	Describe("Resync", func() {
		It("applies live values over design values", func() {
			sc.SetLiveSource(StaticValues{"Q1": {"gradient": 7.5}})

			sc.SetSynchronizationMode(SyncDesign)
			Expect(sc.Resync()).To(Succeed())
			Expect(quad.Gradient()).To(Equal(5.0))

			sc.SetSynchronizationMode(SyncLive)
			Expect(sc.Resync()).To(Succeed())
			Expect(quad.Gradient()).To(Equal(7.5))

			sc.SetSynchronizationMode(SyncDesign)
			Expect(sc.Resync()).To(Succeed())
			Expect(quad.Gradient()).To(Equal(5.0))
		})

		It("restores design values for parameters the node does not list", func() {
			g, err := New("SEQ", []Node{
				{ID: "G1", Type: "RG", Position: 0.1, Props: map[string]float64{"phase": -0.5}},
				{ID: "Q1", Type: "QH", Position: 0.5, Length: 0.2, Props: map[string]float64{"gradient": 5}},
			}, 1.0, nil)
			Expect(err).NotTo(HaveOccurred())
			gap, _ := g.Element("G1")
			q, _ := g.Element("Q1")
			rf, quad := gap.(*elem.RfGap), q.(*elem.Quadrupole)

			g.SetLiveSource(StaticValues{
				"G1": {"amplitude": 0.5, "phase": 0.2},
				"Q1": {"align_x": 0.001},
			})
			g.SetSynchronizationMode(SyncLive)
			Expect(g.Resync()).To(Succeed())
			Expect(rf.Amplitude()).To(Equal(0.5))
			Expect(rf.Phase()).To(Equal(0.2))
			Expect(quad.AlignX).To(Equal(0.001))

			g.SetSynchronizationMode(SyncDesign)
			Expect(g.Resync()).To(Succeed())
			Expect(rf.Amplitude()).To(Equal(1.0))
			Expect(rf.Phase()).To(Equal(-0.5))
			Expect(quad.AlignX).To(Equal(0.0))
			Expect(quad.Gradient()).To(Equal(5.0))
		})

		It("keeps design RF in rf-design mode", func() {
			g, err := New("SEQ", []Node{
				{ID: "G1", Type: "RG", Position: 0.1, Props: map[string]float64{"phase": -0.5}},
				{ID: "Q1", Type: "QH", Position: 0.5, Length: 0.2, Props: map[string]float64{"gradient": 5}},
			}, 1.0, nil)
			Expect(err).NotTo(HaveOccurred())
			g.SetLiveSource(StaticValues{"G1": {"phase": 0.3}, "Q1": {"gradient": 2}})
			g.SetSynchronizationMode(SyncRFDesign)
			Expect(g.Resync()).To(Succeed())

			gap, _ := g.Element("G1")
			q, _ := g.Element("Q1")
			Expect(gap.(*elem.RfGap).Phase()).To(Equal(-0.5))
			Expect(q.(*elem.Quadrupole).Gradient()).To(Equal(2.0))
		})
	})

	Describe("ranges on sequences", func() {
		var cav *Scenario

		BeforeEach(func() {
			var err error
			cav, err = New("SEQ", []Node{
				{ID: "G1", Type: "RG", Position: 1.0, Cavity: "CAV1"},
				{ID: "G2", Type: "RG", Position: 1.1, Cavity: "CAV1"},
				{ID: "Q1", Type: "QH", Position: 1.5, Length: 0.2, Props: map[string]float64{"gradient": 5}},
			}, 2.0, nil)
			Expect(err).NotTo(HaveOccurred())
			p := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.ZeroVector())
			Expect(cav.SetProbe(p)).To(Succeed())
		})

		It("rejects a cavity id as start element", func() {
			cav.SetStartElementID("CAV1")
			Expect(cav.Run(context.Background())).To(MatchError(dynamo.ErrNotFound))
			Expect(cav.Probe().StateCount()).To(Equal(0))
		})

		It("rejects a sequence id as stop element", func() {
			cav.SetStopElementID("CAV1", true)
			Expect(cav.Run(context.Background())).To(MatchError(dynamo.ErrNotFound))
		})

		It("accepts a gap inside the cavity as start element", func() {
			cav.SetStartElementID("G2")
			Expect(cav.Run(context.Background())).To(Succeed())
			Expect(cav.Probe().Kinematics().Position).To(BeNumerically("~", 2.0, 1e-12))
		})
	})

	Describe("Ensemble", func() {
		It("runs independent probes on one lattice", func() {
			ens := NewEnsemble(sc)
			var probes []*probe.ParticleProbe
			for i := 0; i < 4; i++ {
				p := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.NewPhaseVector(0.001*float64(i+1), 0, 0, 0, 0, 0))
				probes = append(probes, p)
				Expect(ens.Add(p, nil)).To(Succeed())
			}
			Expect(ens.Run(context.Background())).To(Succeed())

			for i, p := range probes {
				Expect(p.Status()).To(Equal(probe.StatusCompleted))
				Expect(p.Coordinates()[linalg.X]).To(BeNumerically("~", float64(i+1)*probes[0].Coordinates()[linalg.X], 1e-15))
			}
		})

		It("refuses to share a probe between jobs", func() {
			ens := NewEnsemble(sc)
			p := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.ZeroVector())
			Expect(ens.Add(p, nil)).To(Succeed())
			Expect(ens.Add(p, nil)).NotTo(Succeed())
		})
	})
})
