package elem

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/linalg"
)

func proton(w float64) dynamo.Kinematics {
	return dynamo.Kinematics{KineticEnergy: w, Charge: 1, RestEnergy: dynamo.ProtonRestEnergy}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindMarker, "marker"},
		{KindDrift, "drift"},
		{KindQuadrupole, "quadrupole"},
		{KindDipole, "dipole"},
		{KindRfGap, "rfgap"},
		{KindThinLens, "thinlens"},
		{Kind(42), "kind(42)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}

func TestDriftAdditive(t *testing.T) {
	k := proton(2.5e6)
	d := NewDrift("D1", 3.0)

	whole, err := d.TransferMap(k, 3.0)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := d.TransferMap(k, 1.0)
	b, _ := d.TransferMap(k, 2.0)

	if got := linalg.Compose(b, a); !got.ApproxEqual(whole, 1e-12) {
		t.Errorf("drift(1)*drift(2) != drift(3):\n%v\n%v", got, whole)
	}
	if whole[linalg.X][linalg.XP] != 3.0 {
		t.Errorf("expected x shear 3.0, got %f", whole[linalg.X][linalg.XP])
	}
}

func TestDriftElapsedTime(t *testing.T) {
	k := proton(2.5e6)
	d := NewDrift("D1", 1.0)

	want := 1.0 / k.Velocity()
	if got := d.ElapsedTime(k, 1.0); math.Abs(got-want) > 1e-18 {
		t.Errorf("expected %g s, got %g s", want, got)
	}
	if d.EnergyGain(k, 1.0) != 0 {
		t.Error("drift should not change energy")
	}
}

func TestInvalidLength(t *testing.T) {
	k := proton(2.5e6)
	elems := []Element{
		NewDrift("D", 1.0),
		NewQuadrupole("Q", 0.2, 5.0),
		NewSectorDipole("B", 1.0, 0.1),
	}
	for _, e := range elems {
		for _, l := range []float64{-0.1, math.NaN(), 10.0} {
			if _, err := e.TransferMap(k, l); !errors.Is(err, dynamo.ErrInvalidLength) {
				t.Errorf("%s length %g: expected ErrInvalidLength, got %v", e.ID(), l, err)
			}
		}
	}
}

func TestQuadrupoleSymplectic(t *testing.T) {
	tests := []struct {
		name     string
		gradient float64
		charge   float64
	}{
		{"focusing", 5.0, 1},
		{"defocusing", -5.0, 1},
		{"negative charge", 5.0, -1},
		{"strong", 40.0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := proton(2.5e6)
			k.Charge = tt.charge
			q := NewQuadrupole("Q", 0.2, tt.gradient)

			phi, err := q.TransferMap(k, 0.2)
			if err != nil {
				t.Fatal(err)
			}
			for _, p := range []int{linalg.PlaneX, linalg.PlaneY, linalg.PlaneZ} {
				if det := phi.PlaneDet(2 * p); math.Abs(det-1) > 1e-10 {
					t.Errorf("plane %d determinant = %.12f", p, det)
				}
			}
		})
	}
}

func TestQuadrupoleFocusingPlane(t *testing.T) {
	k := proton(2.5e6)
	q := NewQuadrupole("Q", 0.2, 5.0)

	phi, _ := q.TransferMap(k, 0.2)
	kq := q.Strength(k)
	c := math.Cos(kq * 0.2)
	if math.Abs(phi[linalg.X][linalg.X]-c) > 1e-12 {
		t.Errorf("expected R11 = cos(kL) = %f, got %f", c, phi[linalg.X][linalg.X])
	}
	if phi[linalg.Y][linalg.Y] <= 1 {
		t.Errorf("expected defocusing R33 > 1, got %f", phi[linalg.Y][linalg.Y])
	}
}

func TestQuadrupoleZeroGradientIsDrift(t *testing.T) {
	k := proton(2.5e6)
	q := NewQuadrupole("Q", 0.5, 0)
	d := NewDrift("D", 0.5)

	qm, err := q.TransferMap(k, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	dm, _ := d.TransferMap(k, 0.5)
	if !qm.ApproxEqual(dm, 1e-15) {
		t.Errorf("zero-gradient quad should equal drift:\n%v\n%v", qm, dm)
	}
}

func TestDipoleDeterminant(t *testing.T) {
	k := proton(2.5e6)
	b := NewSectorDipole("B", 1.0, math.Pi/8)

	phi, err := b.TransferMap(k, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if det := phi.PlaneDet(linalg.X); math.Abs(det-1) > 1e-12 {
		t.Errorf("horizontal determinant = %f", det)
	}
	if err := b.SetParam("angle", 7.0); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func TestDipoleEdges(t *testing.T) {
	k := proton(2.5e6)
	const l, theta = 1.0, math.Pi / 8
	b := NewSectorDipole("B", l, theta)
	if err := Configure(b, map[string]float64{"entr_angle": theta / 2, "exit_angle": theta / 2}); err != nil {
		t.Fatal(err)
	}

	phi, err := b.TransferMap(k, l)
	if err != nil {
		t.Fatal(err)
	}
	for _, plane := range []int{linalg.X, linalg.Y} {
		if det := phi.PlaneDet(plane); math.Abs(det-1) > 1e-12 {
			t.Errorf("plane %d determinant = %.15f", plane, det)
		}
	}

	rho := l / theta
	h := math.Tan(theta/2) / rho
	s, c := math.Sincos(theta)
	wantX := [2][2]float64{
		{c + rho*s*h, rho * s},
		{h*(c+rho*s*h) - s/rho + c*h, h*rho*s + c},
	}
	wantY := [2][2]float64{
		{1 - l*h, l},
		{-h*(1-l*h) - h, 1 - h*l},
	}
	gotX, gotY := phi.Block(linalg.X, linalg.X), phi.Block(linalg.Y, linalg.Y)
	for i := range 2 {
		for j := range 2 {
			if math.Abs(gotX[i][j]-wantX[i][j]) > 1e-12 {
				t.Errorf("x[%d][%d] = %.15f, want %.15f", i, j, gotX[i][j], wantX[i][j])
			}
			if math.Abs(gotY[i][j]-wantY[i][j]) > 1e-12 {
				t.Errorf("y[%d][%d] = %.15f, want %.15f", i, j, gotY[i][j], wantY[i][j])
			}
		}
	}

	// a partial length is the body alone
	half, err := b.TransferMap(k, l/2)
	if err != nil {
		t.Fatal(err)
	}
	bare := NewSectorDipole("B0", l, theta)
	want, err := bare.TransferMap(k, l/2)
	if err != nil {
		t.Fatal(err)
	}
	if !half.ApproxEqual(want, 1e-15) {
		t.Errorf("partial map includes edges:\n%v\n%v", half, want)
	}

	got := linalg.Compose(b.ExitMap(k), linalg.Compose(half, linalg.Compose(half, b.EntranceMap(k))))
	if !got.ApproxEqual(phi, 1e-12) {
		t.Errorf("edges around two halves differ from full map:\n%v\n%v", got, phi)
	}

	for _, name := range []string{"entr_angle", "exit_angle"} {
		if err := b.SetParam(name, math.Pi/2); !errors.Is(err, dynamo.ErrParameterBounds) {
			t.Errorf("%s: expected ErrParameterBounds, got %v", name, err)
		}
	}
}

func TestThinLens(t *testing.T) {
	l := NewThinLens("F", 2.0)
	phi, err := l.TransferMap(proton(1e6), 0)
	if err != nil {
		t.Fatal(err)
	}
	v := phi.TimesVector(linalg.NewPhaseVector(0.01, 0, 0.01, 0, 0, 0))
	if math.Abs(v[linalg.XP]+0.02) > 1e-15 {
		t.Errorf("expected x' = -0.02, got %f", v[linalg.XP])
	}
	if math.Abs(v[linalg.YP]-0.02) > 1e-15 {
		t.Errorf("expected y' = 0.02, got %f", v[linalg.YP])
	}
}

func TestMarkerIgnoresLength(t *testing.T) {
	m := NewMarker("BPM01")
	if err := m.SetParam("length", 0.3); err != nil {
		t.Fatal(err)
	}
	if m.Length() != 0 {
		t.Errorf("marker length should stay 0, got %f", m.Length())
	}
	phi, err := m.TransferMap(proton(1e6), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !phi.ApproxEqual(linalg.Identity(), 0) {
		t.Error("marker map should be identity")
	}
}

func TestAlignment(t *testing.T) {
	k := proton(2.5e6)
	q := NewQuadrupole("Q", 0.2, 5.0)
	q.AlignX = 0.001

	phi, err := q.TransferMap(k, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	// A particle on the displaced magnetic axis stays on it.
	v := phi.TimesVector(linalg.NewPhaseVector(0.001, 0, 0, 0, 0, 0))
	if math.Abs(v[linalg.X]-0.001) > 1e-15 || math.Abs(v[linalg.XP]) > 1e-15 {
		t.Errorf("on-axis particle deflected: %v", v)
	}
}

func TestConfigure(t *testing.T) {
	q := NewQuadrupole("Q", 0.2, 0)
	err := Configure(q, map[string]float64{"gradient": 3.5, "length": 0.25, "voltage": 9})
	if err != nil {
		t.Fatal(err)
	}
	if q.Gradient() != 3.5 || q.Length() != 0.25 {
		t.Errorf("unexpected params: %v", q.GetParams())
	}

	if err := q.SetParam("voltage", 1); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("expected ErrUnknownParam, got %v", err)
	}
	if err := q.SetParam("length", -1); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func newTestGap(t *testing.T) *RfGap {
	t.Helper()
	g := NewRfGap("G1", 2.0e6, 0.05, -math.Pi/6, 402.5e6)
	err := g.ConfigureFits(map[string]string{
		"ttf":  "0.1, 1.2, -0.8",
		"ttfp": "0.5, -0.2",
		"stf":  "0.01",
		"stfp": "0.02, 0.01",
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestRfGapTransitTimeFactor(t *testing.T) {
	g := newTestGap(t)
	want := 0.1 + 1.2*0.5 - 0.8*0.25
	if got := g.TransitTimeFactor(0.5); math.Abs(got-want) > 1e-15 {
		t.Errorf("T(0.5) = %f, want %f", got, want)
	}
}

func TestRfGapEnergyGain(t *testing.T) {
	g := newTestGap(t)
	k := proton(2.5e6)
	b := k.Beta()

	tt := 0.1 + 1.2*b - 0.8*b*b
	phi := -math.Pi / 6
	want := 2.0e6 * 0.05 * (tt*math.Cos(phi) - 0.01*math.Sin(phi))
	if got := g.EnergyGain(k, 0); math.Abs(got-want) > 1e-6 {
		t.Errorf("energy gain = %f eV, want %f eV", got, want)
	}
	if g.GammaFinal(k) <= k.Gamma() {
		t.Error("accelerating gap should raise gamma")
	}
}

func TestRfGapTransferMap(t *testing.T) {
	g := newTestGap(t)
	k := proton(2.5e6)

	phi, err := g.TransferMap(k, 0)
	if err != nil {
		t.Fatal(err)
	}
	ratio := k.BetaGamma() / g.exit(k).BetaGamma()
	if math.Abs(phi[linalg.XP][linalg.XP]-ratio) > 1e-12 {
		t.Errorf("expected adiabatic damping %f, got %f", ratio, phi[linalg.XP][linalg.XP])
	}
	// bunching phase defocuses transversely
	if phi[linalg.XP][linalg.X] <= 0 {
		t.Errorf("expected defocusing kick for phi < 0, got %f", phi[linalg.XP][linalg.X])
	}
	if phi[linalg.ZP][linalg.Z] >= 0 {
		t.Errorf("expected longitudinal focusing, got %f", phi[linalg.ZP][linalg.Z])
	}
}

func TestRfGapEndFits(t *testing.T) {
	g := newTestGap(t)
	err := g.ConfigureFits(map[string]string{
		"start_ttf": "0.3",
		"end_ttf":   "0.7",
	})
	if err != nil {
		t.Fatal(err)
	}

	g.SetCellPosition(true, false)
	if got := g.TransitTimeFactor(0.1); got != 0.3 {
		t.Errorf("first gap T = %f, want 0.3", got)
	}
	g.SetCellPosition(false, true)
	if got := g.TransitTimeFactor(0.1); got != 0.7 {
		t.Errorf("last gap T = %f, want 0.7", got)
	}
	g.SetCellPosition(false, false)
	if got := g.TransitTimeFactor(0.0); got != 0.1 {
		t.Errorf("body gap T = %f, want 0.1", got)
	}
}

func TestRfGapMalformedFit(t *testing.T) {
	g := NewRfGap("G", 1e6, 0.05, 0, 402.5e6)
	if err := g.ConfigureFits(map[string]string{"ttf": "0.1, abc"}); !errors.Is(err, dynamo.ErrMalformedFit) {
		t.Errorf("expected ErrMalformedFit, got %v", err)
	}
	if err := g.ConfigureFits(map[string]string{"xyz": "1"}); !errors.Is(err, dynamo.ErrMalformedFit) {
		t.Errorf("expected ErrMalformedFit, got %v", err)
	}
}
