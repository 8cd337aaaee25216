package tracker

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
)

const (
	TypeEnvelopeTracker = "EnvelopeTracker"

	// DefaultStepSize is the maximum sub-step length with space charge (m).
	DefaultStepSize = 0.004
)

// uniformBeam is 5^(3/2), the rms-to-edge factor of a uniform ellipsoid.
var uniformBeam = math.Pow(5, 1.5)

// EnvelopeTracker propagates the covariance matrix. With space charge on,
// thick elements are cut into sub-steps no longer than StepSize and each
// sub-step map is wrapped in two half-length space-charge kicks.
type EnvelopeTracker struct {
	Tracker
	StepSize       float64
	UseSpaceCharge bool
}

func NewEnvelopeTracker() *EnvelopeTracker {
	return &EnvelopeTracker{
		Tracker:        newTracker(TypeEnvelopeTracker),
		StepSize:       DefaultStepSize,
		UseSpaceCharge: true,
	}
}

func (t *EnvelopeTracker) ValidProbe(p probe.Probe) error {
	if _, ok := p.(*probe.EnvelopeProbe); !ok {
		return unsupported(t.typ, p)
	}
	if t.UseSpaceCharge && !(t.StepSize > 0) {
		return fmt.Errorf("%w: step size %g", dynamo.ErrParameterBounds, t.StepSize)
	}
	return nil
}

func (t *EnvelopeTracker) Propagate(p probe.Probe, e elem.Element) error {
	return t.propagate(p, e, t.step, false)
}

func (t *EnvelopeTracker) BackPropagate(p probe.Probe, e elem.Element) error {
	return t.propagate(p, e, t.backStep, true)
}

// StepCount returns the number of sub-steps used for an element of length l.
func (t *EnvelopeTracker) StepCount(l float64) int {
	if !t.UseSpaceCharge || l <= 0 || !(t.StepSize > 0) {
		return 1
	}
	return max(int(math.Ceil(l/t.StepSize)), 1)
}

func (t *EnvelopeTracker) step(p probe.Probe, e elem.Element) error {
	ep, ok := p.(*probe.EnvelopeProbe)
	if !ok {
		return unsupported(t.typ, p)
	}
	l := e.Length()
	n := t.StepCount(l)
	h := l / float64(n)

	for i := 0; i < n; i++ {
		k := ep.Kinematics()
		phi, err := e.TransferMap(k, h)
		if err != nil {
			return err
		}
		if t.UseSpaceCharge && h > 0 {
			sc := SpaceChargeMap(ep, h/2)
			phi = linalg.Compose(sc, linalg.Compose(phi, sc))
		}
		if ef, ok := e.(elem.EdgeFocuser); ok && n > 1 {
			if i == 0 {
				phi = linalg.Compose(phi, ef.EntranceMap(k))
			}
			if i == n-1 {
				phi = linalg.Compose(ef.ExitMap(k), phi)
			}
		}
		if !phi.IsFinite() {
			return dynamo.ErrNonFiniteMap
		}

		ep.SetCovariance(ep.Covariance().Propagate(phi))
		ep.SetResponse(linalg.Compose(phi, ep.Response()))

		m := forwardMotion(k, e, h)
		if i > 0 {
			m.dphi = 0
		}
		apply(ep, m)
		if err := t.stepDone(ep, h); err != nil {
			return err
		}
	}
	return nil
}

// backStep inverts the bare element map. Space charge is not reversed.
func (t *EnvelopeTracker) backStep(p probe.Probe, e elem.Element) error {
	ep, ok := p.(*probe.EnvelopeProbe)
	if !ok {
		return unsupported(t.typ, p)
	}
	l := e.Length()
	in := entryKinematics(ep.Kinematics(), e)

	phi, err := e.TransferMap(in, l)
	if err != nil {
		return err
	}
	inv, err := phi.Inverse()
	if err != nil {
		return err
	}
	ep.SetCovariance(ep.Covariance().Propagate(inv))
	ep.SetResponse(linalg.Compose(inv, ep.Response()))
	reverse(ep, forwardMotion(in, e, l))
	return t.stepDone(ep, l)
}

// SpaceChargeMap returns the linear space-charge kick over length h for
// the current moments of ep. The beam is treated as an upright uniform
// ellipsoid; the longitudinal size is taken in the beam frame.
func SpaceChargeMap(ep *probe.EnvelopeProbe, h float64) linalg.PhaseMatrix {
	phi := linalg.Identity()
	kp := ep.Perveance()
	if kp == 0 || h == 0 {
		return phi
	}

	k := ep.Kinematics()
	g := k.Gamma()
	cov := ep.Covariance()
	a2, b2, c2 := cov.CentralXX(), cov.CentralYY(), g*g*cov.CentralZZ()
	if !(a2 > 0 && b2 > 0 && c2 > 0) {
		return phi
	}

	kx, ky, kz := DefocusConstants(g, a2, b2, c2)
	s := h * kp
	phi[linalg.XP][linalg.X] = s * kx
	phi[linalg.YP][linalg.Y] = s * ky
	phi[linalg.ZP][linalg.Z] = s * kz
	return phi
}

// DefocusConstants returns the space-charge defocusing constants of a
// uniform ellipsoid with second moments a2, b2, c2 (beam frame).
func DefocusConstants(gamma, a2, b2, c2 float64) (kx, ky, kz float64) {
	kx = gamma * mathext.EllipticRD(b2, c2, a2) / uniformBeam
	ky = gamma * mathext.EllipticRD(c2, a2, b2) / uniformBeam
	kz = gamma * mathext.EllipticRD(a2, b2, c2) / uniformBeam
	return kx, ky, kz
}
