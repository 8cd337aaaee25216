package tracker

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
)

func beamline() []elem.Element {
	return []elem.Element{
		elem.NewDrift("D1", 1.0),
		elem.NewQuadrupole("Q1", 0.2, 5.0),
		elem.NewDrift("D2", 0.5),
		elem.NewQuadrupole("Q2", 0.2, -5.0),
	}
}

func run(t *testing.T, alg Algorithm, p probe.Probe, elems []elem.Element) {
	t.Helper()
	if err := alg.ValidProbe(p); err != nil {
		t.Fatal(err)
	}
	alg.Initialize()
	p.Initialize()
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	for _, e := range elems {
		if err := alg.Propagate(p, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.PostProcess(); err != nil {
		t.Fatal(err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind probe.Kind
		typ  string
	}{
		{probe.KindParticle, TypeParticleTracker},
		{probe.KindEnvelope, TypeEnvelopeTracker},
		{probe.KindTransferMap, TypeTransferMapTracker},
	}
	for _, tt := range tests {
		alg, err := New(tt.kind)
		if err != nil {
			t.Fatal(err)
		}
		if alg.Type() != tt.typ {
			t.Errorf("%s: got %s, want %s", tt.kind, alg.Type(), tt.typ)
		}
	}
}

func TestValidProbe(t *testing.T) {
	env, _ := probe.NewEnvelope("e", probe.Proton, 2.5e6, linalg.Twiss3D{{Beta: 1}, {Beta: 1}, {Beta: 1}}, 0, 0)
	particle := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.ZeroVector())

	if err := NewParticleTracker().ValidProbe(env); !errors.Is(err, dynamo.ErrUnsupportedProbe) {
		t.Errorf("expected ErrUnsupportedProbe, got %v", err)
	}
	if err := NewEnvelopeTracker().ValidProbe(particle); !errors.Is(err, dynamo.ErrUnsupportedProbe) {
		t.Errorf("expected ErrUnsupportedProbe, got %v", err)
	}
	if err := NewTransferMapTracker().ValidProbe(particle); !errors.Is(err, dynamo.ErrUnsupportedProbe) {
		t.Errorf("expected ErrUnsupportedProbe, got %v", err)
	}

	et := NewEnvelopeTracker()
	et.StepSize = 0
	if err := et.ValidProbe(env); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func TestParticleDriftQuad(t *testing.T) {
	p := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.NewPhaseVector(0.001, 0, 0, 0, 0, 0))
	q := elem.NewQuadrupole("Q1", 0.2, 5.0)
	run(t, NewParticleTracker(), p, []elem.Element{elem.NewDrift("D1", 1.0), q})

	if math.Abs(p.Position()-1.2) > 1e-12 {
		t.Errorf("expected s = 1.2, got %f", p.Position())
	}
	if p.KineticEnergy() != 2.5e6 {
		t.Errorf("energy changed: %f", p.KineticEnergy())
	}

	kq := q.Strength(p.Kinematics())
	c, s := math.Cos(kq*0.2), math.Sin(kq*0.2)
	z := p.Coordinates()
	if math.Abs(z[linalg.X]-0.001*c) > 1e-15 {
		t.Errorf("x = %g, want %g", z[linalg.X], 0.001*c)
	}
	if math.Abs(z[linalg.XP]+0.001*kq*s) > 1e-15 {
		t.Errorf("x' = %g, want %g", z[linalg.XP], -0.001*kq*s)
	}

	d1, err := p.Trajectory().StateForElement("D1")
	if err != nil {
		t.Fatal(err)
	}
	if d1.Coords[linalg.X] != 0.001 {
		t.Errorf("x changed through drift with x' = 0: %g", d1.Coords[linalg.X])
	}
}

func TestParticleRoundTrip(t *testing.T) {
	z0 := linalg.NewPhaseVector(0.001, -0.0005, 0.002, 0.0003, 0.0001, 0.001)
	p := probe.NewParticle("p", probe.Proton, 2.5e6, z0)
	alg := NewParticleTracker()
	elems := beamline()
	run(t, alg, p, elems)
	saved := p.StateCount()

	alg.Initialize()
	for i := len(elems) - 1; i >= 0; i-- {
		if err := alg.BackPropagate(p, elems[i]); err != nil {
			t.Fatal(err)
		}
	}
	if p.StateCount() != saved {
		t.Errorf("back propagation saved states: %d, want %d", p.StateCount(), saved)
	}
	if d := p.Coordinates().Minus(z0).Norm2(); d > 1e-12 {
		t.Errorf("round trip drift %g: %v", d, p.Coordinates())
	}
	if math.Abs(p.Position()) > 1e-12 || math.Abs(p.Time()) > 1e-18 {
		t.Errorf("round trip left s=%g t=%g", p.Position(), p.Time())
	}
	if math.Abs(p.KineticEnergy()-2.5e6) > 1e-9 {
		t.Errorf("round trip energy %f", p.KineticEnergy())
	}
}

func TestTransferMapComposition(t *testing.T) {
	p := probe.NewTransferMap("m", probe.Proton, 2.5e6)
	elems := beamline()
	run(t, NewTransferMapTracker(), p, elems)

	k := dynamo.Kinematics{KineticEnergy: 2.5e6, Charge: 1, RestEnergy: dynamo.ProtonRestEnergy}
	want := linalg.Identity()
	for _, e := range elems {
		phi, _ := e.TransferMap(k, e.Length())
		want = linalg.Compose(phi, want)
	}
	if !p.TransferMap().ApproxEqual(want, 1e-12) {
		t.Errorf("accumulated map mismatch:\n%v\n%v", p.TransferMap(), want)
	}

	m, err := p.TransferMatrixBetween("D1", "D2")
	if err != nil {
		t.Fatal(err)
	}
	q1, _ := elems[1].TransferMap(k, 0.2)
	d2, _ := elems[2].TransferMap(k, 0.5)
	if !m.ApproxEqual(linalg.Compose(d2, q1), 1e-12) {
		t.Errorf("transfer matrix D1->D2 is not D2*Q1:\n%v", m)
	}
}

func TestUpdatePolicy(t *testing.T) {
	tests := []struct {
		policy UpdatePolicy
		want   int
	}{
		{UpdateCustom, 0},
		{UpdateExit, 4},
		{UpdateEntrance, 4},
		{UpdateEntranceAndExit, 8},
		{UpdateAlways, 4},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			alg := NewParticleTracker()
			alg.SetPolicy(tt.policy)
			p := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.ZeroVector())
			run(t, alg, p, beamline())
			if p.StateCount() != tt.want {
				t.Errorf("expected %d states, got %d", tt.want, p.StateCount())
			}
		})
	}
}

func TestStartStopRange(t *testing.T) {
	tests := []struct {
		name        string
		start, stop string
		include     bool
		want        float64
	}{
		{"full", "", "", true, 1.9},
		{"from Q1", "Q1", "", true, 0.9},
		{"to D2 inclusive", "", "D2", true, 1.7},
		{"to D2 exclusive", "", "D2", false, 1.2},
		{"Q1 only", "Q1", "Q1", true, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alg := NewParticleTracker()
			alg.SetStartElementID(tt.start)
			alg.SetStopElementID(tt.stop, tt.include)
			p := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.ZeroVector())
			run(t, alg, p, beamline())
			if math.Abs(p.Position()-tt.want) > 1e-12 {
				t.Errorf("expected %f m covered, got %f", tt.want, p.Position())
			}
		})
	}
}

type brokenElement struct {
	*elem.Drift
}

func (b brokenElement) TransferMap(dynamo.Kinematics, float64) (linalg.PhaseMatrix, error) {
	return linalg.PhaseMatrix{}, dynamo.ErrNonFiniteMap
}

func TestErrorCarriesElement(t *testing.T) {
	p := probe.NewParticle("p", probe.Proton, 2.5e6, linalg.ZeroVector())
	alg := NewParticleTracker()
	alg.Initialize()
	p.Initialize()
	p.Start()

	alg.Propagate(p, elem.NewDrift("D0", 0.5))
	err := alg.Propagate(p, brokenElement{elem.NewDrift("BAD", 1.0)})

	var me *dynamo.ModelError
	if !errors.As(err, &me) {
		t.Fatalf("expected ModelError, got %v", err)
	}
	if me.ElementID != "BAD" || me.Position != 0.5 {
		t.Errorf("unexpected context %s at %f", me.ElementID, me.Position)
	}
	if !errors.Is(err, dynamo.ErrNonFiniteMap) {
		t.Errorf("expected ErrNonFiniteMap in chain, got %v", err)
	}
}

func testEnvelope(t *testing.T, current float64) *probe.EnvelopeProbe {
	t.Helper()
	twiss := linalg.Twiss3D{
		{Alpha: -1.0, Beta: 0.5, Emittance: 2e-6},
		{Alpha: 1.0, Beta: 0.5, Emittance: 2e-6},
		{Alpha: 0, Beta: 1.0, Emittance: 3e-6},
	}
	p, err := probe.NewEnvelope("e", probe.Proton, 2.5e6, twiss, current, 402.5e6)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEnvelopeStepCount(t *testing.T) {
	et := NewEnvelopeTracker()
	et.StepSize = 0.25
	tests := []struct {
		l    float64
		sc   bool
		want int
	}{
		{1.0, true, 4},
		{0.3, true, 2},
		{0, true, 1},
		{1.0, false, 1},
	}
	for _, tt := range tests {
		et.UseSpaceCharge = tt.sc
		if got := et.StepCount(tt.l); got != tt.want {
			t.Errorf("StepCount(%g, sc=%v) = %d, want %d", tt.l, tt.sc, got, tt.want)
		}
	}
}

func TestEnvelopeNoSpaceChargeMatchesMap(t *testing.T) {
	p := testEnvelope(t, 0)
	et := NewEnvelopeTracker()
	et.UseSpaceCharge = false
	elems := beamline()
	run(t, et, p, elems)

	k := dynamo.Kinematics{KineticEnergy: 2.5e6, Charge: 1, RestEnergy: dynamo.ProtonRestEnergy}
	want := testEnvelope(t, 0)
	want.Initialize()
	cov := want.Covariance()
	for _, e := range elems {
		phi, _ := e.TransferMap(k, e.Length())
		cov = cov.Propagate(phi)
	}
	if !p.Covariance().ApproxEqual(cov.PhaseMatrix, 1e-15) {
		t.Errorf("covariance mismatch:\n%v\n%v", p.Covariance(), cov)
	}
	if !p.Covariance().IsSymmetric(1e-18) {
		t.Error("covariance lost symmetry")
	}
}

func TestEnvelopeSubStepsKeepDipoleEdges(t *testing.T) {
	bend := elem.NewSectorDipole("B", 1.0, 0.3)
	if err := elem.Configure(bend, map[string]float64{"entr_angle": 0.15, "exit_angle": 0.1}); err != nil {
		t.Fatal(err)
	}

	p := testEnvelope(t, 0)
	et := NewEnvelopeTracker()
	et.UseSpaceCharge = true
	et.StepSize = 0.1
	if n := et.StepCount(bend.Length()); n != 10 {
		t.Fatalf("expected 10 sub-steps, got %d", n)
	}
	run(t, et, p, []elem.Element{bend})

	k := dynamo.Kinematics{KineticEnergy: 2.5e6, Charge: 1, RestEnergy: dynamo.ProtonRestEnergy}
	phi, err := bend.TransferMap(k, bend.Length())
	if err != nil {
		t.Fatal(err)
	}
	want := testEnvelope(t, 0)
	want.Initialize()
	cov := want.Covariance().Propagate(phi)
	if !p.Covariance().ApproxEqual(cov.PhaseMatrix, 1e-15) {
		t.Errorf("sub-stepped covariance differs from full map:\n%v\n%v", p.Covariance(), cov)
	}
	if !p.Response().ApproxEqual(phi, 1e-12) {
		t.Errorf("response differs from full map:\n%v\n%v", p.Response(), phi)
	}
}

func TestEnvelopeSpaceChargeDefocuses(t *testing.T) {
	drift := []elem.Element{elem.NewDrift("D", 1.0)}

	cold := testEnvelope(t, 0)
	run(t, NewEnvelopeTracker(), cold, drift)
	hot := testEnvelope(t, 0.05)
	run(t, NewEnvelopeTracker(), hot, drift)

	if hot.Covariance().CentralXX() <= cold.Covariance().CentralXX() {
		t.Errorf("space charge should grow x size: %g <= %g", hot.Covariance().CentralXX(), cold.Covariance().CentralXX())
	}
	if hot.Covariance().CentralYY() <= cold.Covariance().CentralYY() {
		t.Errorf("space charge should grow y size: %g <= %g", hot.Covariance().CentralYY(), cold.Covariance().CentralYY())
	}
	if math.Abs(hot.Position()-1.0) > 1e-12 {
		t.Errorf("expected s = 1.0 after sub-stepping, got %f", hot.Position())
	}
}

func TestEnvelopeAlwaysSavesSubSteps(t *testing.T) {
	p := testEnvelope(t, 0.01)
	et := NewEnvelopeTracker()
	et.StepSize = 0.25
	et.SetPolicy(UpdateAlways)
	run(t, et, p, []elem.Element{elem.NewDrift("D", 1.0)})

	if p.StateCount() != 4 {
		t.Errorf("expected 4 sub-step states, got %d", p.StateCount())
	}
}

func TestDefocusConstantsSymmetric(t *testing.T) {
	kx, ky, _ := DefocusConstants(1.0, 1e-6, 1e-6, 4e-6)
	if math.Abs(kx-ky) > 1e-9*kx {
		t.Errorf("round beam should give kx == ky: %g %g", kx, ky)
	}
	if kx <= 0 {
		t.Errorf("expected positive defocusing, got %g", kx)
	}
}

func TestBackPropagateEveryPolicy(t *testing.T) {
	for _, policy := range []UpdatePolicy{UpdateAlways, UpdateExit, UpdateEntrance, UpdateEntranceAndExit} {
		t.Run(policy.String(), func(t *testing.T) {
			z0 := linalg.NewPhaseVector(0.001, 0.0002, -0.001, 0, 0, 0)
			p := probe.NewParticle("p", probe.Proton, 2.5e6, z0)
			alg := NewParticleTracker()
			alg.SetPolicy(policy)
			elems := beamline()
			run(t, alg, p, elems)
			saved := p.StateCount()

			alg.Initialize()
			for i := len(elems) - 1; i >= 0; i-- {
				if err := alg.BackPropagate(p, elems[i]); err != nil {
					t.Fatalf("%s: %v", elems[i].ID(), err)
				}
			}
			if p.StateCount() != saved {
				t.Errorf("states = %d, want %d", p.StateCount(), saved)
			}
			if d := p.Coordinates().Minus(z0).Norm2(); d > 1e-12 {
				t.Errorf("round trip drift %g", d)
			}
		})
	}
}
