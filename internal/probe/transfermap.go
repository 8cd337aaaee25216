package probe

import (
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/traj"
)

// TransferMapProbe accumulates the transfer map from the start of the run.
// A scratch phase vector is carried along for orbit queries.
type TransferMapProbe struct {
	Base
	phi        linalg.PhaseMatrix
	initCoords linalg.PhaseVector
	coords     linalg.PhaseVector
	traj       *traj.Trajectory[*TransferMapState]
}

func NewTransferMap(id string, sp Species, w float64) *TransferMapProbe {
	return &TransferMapProbe{
		Base:       newBase(id, sp, w),
		phi:        linalg.Identity(),
		initCoords: linalg.ZeroVector(),
		coords:     linalg.ZeroVector(),
		traj:       traj.New[*TransferMapState](),
	}
}

func (p *TransferMapProbe) Kind() Kind { return KindTransferMap }

func (p *TransferMapProbe) TransferMap() linalg.PhaseMatrix { return p.phi }

func (p *TransferMapProbe) SetTransferMap(m linalg.PhaseMatrix) { p.phi = m }

func (p *TransferMapProbe) Coordinates() linalg.PhaseVector { return p.coords }

func (p *TransferMapProbe) SetCoordinates(v linalg.PhaseVector) { p.coords = v }

func (p *TransferMapProbe) SetInitialCoordinates(v linalg.PhaseVector) {
	v[linalg.HOM] = 1
	p.initCoords = v
}

func (p *TransferMapProbe) Initialize() {
	p.reset()
	p.phi = linalg.Identity()
	p.coords = p.initCoords
	p.traj = traj.New[*TransferMapState]()
}

func (p *TransferMapProbe) CreateState() *TransferMapState {
	return &TransferMapState{StateBase: p.stateBase(), Map: p.phi, Coords: p.coords}
}

func (p *TransferMapProbe) ApplyState(s *TransferMapState) {
	p.applyStateBase(s.StateBase)
	p.phi = s.Map
	p.coords = s.Coords
}

func (p *TransferMapProbe) Update() error { return p.traj.SaveState(p.CreateState()) }

func (p *TransferMapProbe) StateCount() int { return p.traj.Len() }

func (p *TransferMapProbe) Trajectory() *traj.Trajectory[*TransferMapState] { return p.traj }

// TransferMatrixBetween returns the map from element from to element to
// using the first state saved at each.
func (p *TransferMapProbe) TransferMatrixBetween(from, to string) (linalg.PhaseMatrix, error) {
	s1, err := p.traj.StateForElement(from)
	if err != nil {
		return linalg.PhaseMatrix{}, err
	}
	s2, err := p.traj.StateForElement(to)
	if err != nil {
		return linalg.PhaseMatrix{}, err
	}
	return TransferMatrix(s1, s2)
}
