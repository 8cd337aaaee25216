package tracker

import (
	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/probe"
)

const TypeParticleTracker = "ParticleTracker"

// ParticleTracker moves a particle through each element in one step.
type ParticleTracker struct {
	Tracker
}

func NewParticleTracker() *ParticleTracker {
	return &ParticleTracker{Tracker: newTracker(TypeParticleTracker)}
}

func (t *ParticleTracker) ValidProbe(p probe.Probe) error {
	if _, ok := p.(*probe.ParticleProbe); !ok {
		return unsupported(t.typ, p)
	}
	return nil
}

func (t *ParticleTracker) Propagate(p probe.Probe, e elem.Element) error {
	return t.propagate(p, e, t.step, false)
}

func (t *ParticleTracker) BackPropagate(p probe.Probe, e elem.Element) error {
	return t.propagate(p, e, t.backStep, true)
}

func (t *ParticleTracker) step(p probe.Probe, e elem.Element) error {
	pp, ok := p.(*probe.ParticleProbe)
	if !ok {
		return unsupported(t.typ, p)
	}
	k := pp.Kinematics()
	l := e.Length()

	phi, err := e.TransferMap(k, l)
	if err != nil {
		return err
	}
	z := phi.TimesVector(pp.Coordinates())
	if !z.IsFinite() {
		return dynamo.ErrInvalidState
	}

	pp.SetCoordinates(z)
	apply(pp, forwardMotion(k, e, l))
	return t.stepDone(pp, l)
}

func (t *ParticleTracker) backStep(p probe.Probe, e elem.Element) error {
	pp, ok := p.(*probe.ParticleProbe)
	if !ok {
		return unsupported(t.typ, p)
	}
	l := e.Length()
	in := entryKinematics(pp.Kinematics(), e)

	phi, err := e.TransferMap(in, l)
	if err != nil {
		return err
	}
	inv, err := phi.Inverse()
	if err != nil {
		return err
	}

	pp.SetCoordinates(inv.TimesVector(pp.Coordinates()))
	reverse(pp, forwardMotion(in, e, l))
	return t.stepDone(pp, l)
}
