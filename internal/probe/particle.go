package probe

import (
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/traj"
)

// ParticleProbe follows one particle's phase coordinates.
type ParticleProbe struct {
	Base
	initCoords linalg.PhaseVector
	coords     linalg.PhaseVector
	traj       *traj.Trajectory[*ParticleState]
}

func NewParticle(id string, sp Species, w float64, coords linalg.PhaseVector) *ParticleProbe {
	coords[linalg.HOM] = 1
	return &ParticleProbe{
		Base:       newBase(id, sp, w),
		initCoords: coords,
		coords:     coords,
		traj:       traj.New[*ParticleState](),
	}
}

func (p *ParticleProbe) Kind() Kind { return KindParticle }

func (p *ParticleProbe) Coordinates() linalg.PhaseVector { return p.coords }

func (p *ParticleProbe) SetCoordinates(v linalg.PhaseVector) { p.coords = v }

// SetInitialCoordinates sets the phase coordinates applied by Initialize.
func (p *ParticleProbe) SetInitialCoordinates(v linalg.PhaseVector) {
	v[linalg.HOM] = 1
	p.initCoords = v
}

func (p *ParticleProbe) Initialize() {
	p.reset()
	p.coords = p.initCoords
	p.traj = traj.New[*ParticleState]()
}

func (p *ParticleProbe) CreateState() *ParticleState {
	return &ParticleState{StateBase: p.stateBase(), Coords: p.coords}
}

// ApplyState restores the probe from a snapshot.
func (p *ParticleProbe) ApplyState(s *ParticleState) {
	p.applyStateBase(s.StateBase)
	p.coords = s.Coords
}

func (p *ParticleProbe) Update() error { return p.traj.SaveState(p.CreateState()) }

func (p *ParticleProbe) StateCount() int { return p.traj.Len() }

func (p *ParticleProbe) Trajectory() *traj.Trajectory[*ParticleState] { return p.traj }
