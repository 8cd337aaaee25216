package probe

import (
	"fmt"

	"github.com/san-kum/beamline/internal/dynamo"
)

type Kind int

const (
	KindParticle Kind = iota
	KindEnvelope
	KindTransferMap
)

func (k Kind) String() string {
	switch k {
	case KindParticle:
		return "particle"
	case KindEnvelope:
		return "envelope"
	case KindTransferMap:
		return "transfermap"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a probe name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "particle":
		return KindParticle, nil
	case "envelope":
		return KindEnvelope, nil
	case "transfermap", "transfer-map":
		return KindTransferMap, nil
	}
	return 0, fmt.Errorf("%w: unknown probe kind %q", dynamo.ErrUnsupportedProbe, s)
}

type Status int

const (
	StatusUninitialized Status = iota
	StatusInitialized
	StatusPropagating
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitialized:
		return "initialized"
	case StatusPropagating:
		return "propagating"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Species identifies the particle type carried by a probe.
type Species struct {
	Name       string  `json:"name" yaml:"name"`
	Charge     float64 `json:"charge" yaml:"charge"`           // units of e
	RestEnergy float64 `json:"rest_energy" yaml:"rest_energy"` // eV
}

var (
	Proton   = Species{Name: "proton", Charge: 1, RestEnergy: dynamo.ProtonRestEnergy}
	HMinus   = Species{Name: "h-", Charge: -1, RestEnergy: 939.294e6}
	Electron = Species{Name: "electron", Charge: -1, RestEnergy: dynamo.ElectronRestEnergy}
)

// LookupSpecies returns a predefined species by name.
func LookupSpecies(name string) (Species, error) {
	for _, s := range []Species{Proton, HMinus, Electron} {
		if s.Name == name {
			return s, nil
		}
	}
	return Species{}, fmt.Errorf("%w: species %q", dynamo.ErrNotFound, name)
}

// Probe is the view a tracker has of any probe kind.
type Probe interface {
	ID() string
	Kind() Kind
	Species() Species
	Kinematics() dynamo.Kinematics
	Phase() float64
	Status() Status
	Err() error
	CurrentElement() string

	// Initialize restores the initial condition and opens a new trajectory.
	Initialize()
	// Start moves an initialized probe to Propagating.
	Start() error
	SetCurrentElement(id, typ string)
	// Advance moves the reference particle by length, dt, dw and dphase.
	Advance(length, dt, dw, dphase float64)
	// Update saves a snapshot of the current state to the trajectory.
	Update() error
	PostProcess() error
	Fail(err error)
	StateCount() int
}

// Base carries the kinematics and lifecycle shared by all probe kinds.
type Base struct {
	id      string
	species Species

	initPos, initTime, initEnergy, initPhase float64

	kin      dynamo.Kinematics
	phase    float64
	elemID   string
	elemType string
	status   Status
	err      error
}

func newBase(id string, sp Species, w float64) Base {
	return Base{id: id, species: sp, initEnergy: w}
}

func (b *Base) ID() string        { return b.id }
func (b *Base) Species() Species  { return b.species }
func (b *Base) Status() Status    { return b.status }
func (b *Base) Err() error        { return b.err }
func (b *Base) Phase() float64    { return b.phase }
func (b *Base) Position() float64 { return b.kin.Position }
func (b *Base) Time() float64     { return b.kin.Time }

func (b *Base) CurrentElement() string { return b.elemID }

func (b *Base) KineticEnergy() float64 { return b.kin.KineticEnergy }
func (b *Base) Gamma() float64         { return b.kin.Gamma() }
func (b *Base) Beta() float64          { return b.kin.Beta() }

func (b *Base) Kinematics() dynamo.Kinematics { return b.kin }

// SetInitialPosition sets the starting lattice position (m).
func (b *Base) SetInitialPosition(s float64) { b.initPos = s }

func (b *Base) InitialPosition() float64 { return b.initPos }

// SetInitialTime sets the starting time (s).
func (b *Base) SetInitialTime(t float64) { b.initTime = t }

// SetInitialEnergy sets the starting kinetic energy (eV).
func (b *Base) SetInitialEnergy(w float64) { b.initEnergy = w }

// SetInitialPhase sets the starting longitudinal phase (rad).
func (b *Base) SetInitialPhase(phi float64) { b.initPhase = phi }

func (b *Base) InitialEnergy() float64 { return b.initEnergy }

func (b *Base) reset() {
	b.kin = dynamo.Kinematics{
		Position:      b.initPos,
		Time:          b.initTime,
		KineticEnergy: b.initEnergy,
		Charge:        b.species.Charge,
		RestEnergy:    b.species.RestEnergy,
	}
	b.phase = b.initPhase
	b.elemID, b.elemType = "", ""
	b.status = StatusInitialized
	b.err = nil
}

func (b *Base) Start() error {
	if b.status != StatusInitialized {
		return fmt.Errorf("%w: probe %s is %s", dynamo.ErrNotInitialized, b.id, b.status)
	}
	if !b.kin.IsValid() {
		return fmt.Errorf("%w: probe %s kinematics", dynamo.ErrInvalidState, b.id)
	}
	b.status = StatusPropagating
	return nil
}

func (b *Base) SetCurrentElement(id, typ string) {
	b.elemID, b.elemType = id, typ
}

func (b *Base) Advance(length, dt, dw, dphase float64) {
	b.kin.Position += length
	b.kin.Time += dt
	b.kin.KineticEnergy += dw
	b.phase += dphase
}

// PostProcess closes a successful run.
func (b *Base) PostProcess() error {
	if b.status != StatusPropagating {
		return fmt.Errorf("%w: probe %s is %s", dynamo.ErrInvalidState, b.id, b.status)
	}
	b.status = StatusCompleted
	return nil
}

func (b *Base) Fail(err error) {
	b.status = StatusFailed
	b.err = err
}

func (b *Base) stateBase() StateBase {
	return StateBase{
		Element:  b.elemID,
		ElemType: b.elemType,
		S:        b.kin.Position,
		T:        b.kin.Time,
		W:        b.kin.KineticEnergy,
		Phi:      b.phase,
		Species:  b.species,
	}
}

// applyStateBase restores kinematics from a snapshot without touching the
// lifecycle status.
func (b *Base) applyStateBase(s StateBase) {
	b.kin = s.Kinematics()
	b.phase = s.Phi
	b.elemID, b.elemType = s.Element, s.ElemType
}
