package probe

import "github.com/san-kum/beamline/internal/traj"

// State is the kind-independent view of a snapshot.
type State interface {
	traj.State
	Saver
	Time() float64
	KineticEnergy() float64
	Phase() float64
	Gamma() float64
	Beta() float64
}

// History returns the recorded states of p in beam order.
func History(p Probe) []State {
	switch t := p.(type) {
	case *ParticleProbe:
		return upcast(t.traj.States())
	case *EnvelopeProbe:
		return upcast(t.traj.States())
	case *TransferMapProbe:
		return upcast(t.traj.States())
	}
	return nil
}

func upcast[S State](in []S) []State {
	out := make([]State, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// NewState returns an empty snapshot of kind k for loading.
func NewState(k Kind) State {
	switch k {
	case KindEnvelope:
		return &EnvelopeState{}
	case KindTransferMap:
		return &TransferMapState{}
	default:
		return &ParticleState{}
	}
}
