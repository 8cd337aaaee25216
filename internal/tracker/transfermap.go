package tracker

import (
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
)

const TypeTransferMapTracker = "TransferMapTracker"

// TransferMapTracker left-composes each element map onto the probe's
// accumulated map.
type TransferMapTracker struct {
	Tracker
}

func NewTransferMapTracker() *TransferMapTracker {
	return &TransferMapTracker{Tracker: newTracker(TypeTransferMapTracker)}
}

func (t *TransferMapTracker) ValidProbe(p probe.Probe) error {
	if _, ok := p.(*probe.TransferMapProbe); !ok {
		return unsupported(t.typ, p)
	}
	return nil
}

func (t *TransferMapTracker) Propagate(p probe.Probe, e elem.Element) error {
	return t.propagate(p, e, t.step, false)
}

func (t *TransferMapTracker) BackPropagate(p probe.Probe, e elem.Element) error {
	return t.propagate(p, e, t.backStep, true)
}

func (t *TransferMapTracker) step(p probe.Probe, e elem.Element) error {
	mp, ok := p.(*probe.TransferMapProbe)
	if !ok {
		return unsupported(t.typ, p)
	}
	k := mp.Kinematics()
	l := e.Length()

	phi, err := e.TransferMap(k, l)
	if err != nil {
		return err
	}
	mp.SetTransferMap(linalg.Compose(phi, mp.TransferMap()))
	mp.SetCoordinates(phi.TimesVector(mp.Coordinates()))
	apply(mp, forwardMotion(k, e, l))
	return t.stepDone(mp, l)
}

func (t *TransferMapTracker) backStep(p probe.Probe, e elem.Element) error {
	mp, ok := p.(*probe.TransferMapProbe)
	if !ok {
		return unsupported(t.typ, p)
	}
	l := e.Length()
	in := entryKinematics(mp.Kinematics(), e)

	phi, err := e.TransferMap(in, l)
	if err != nil {
		return err
	}
	inv, err := phi.Inverse()
	if err != nil {
		return err
	}
	mp.SetTransferMap(linalg.Compose(inv, mp.TransferMap()))
	mp.SetCoordinates(inv.TimesVector(mp.Coordinates()))
	reverse(mp, forwardMotion(in, e, l))
	return t.stepDone(mp, l)
}
