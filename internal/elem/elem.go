package elem

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/linalg"
)

// ErrUnknownParam is returned by SetParam for a name the element does not own.
var ErrUnknownParam = errors.New("elem: unknown parameter")

// lengthTolerance absorbs round-off when a tracker sums sub-steps.
const lengthTolerance = 1e-12

type Kind int

const (
	KindMarker Kind = iota
	KindDrift
	KindQuadrupole
	KindDipole
	KindRfGap
	KindThinLens
)

func (k Kind) String() string {
	switch k {
	case KindMarker:
		return "marker"
	case KindDrift:
		return "drift"
	case KindQuadrupole:
		return "quadrupole"
	case KindDipole:
		return "dipole"
	case KindRfGap:
		return "rfgap"
	case KindThinLens:
		return "thinlens"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Element is one atomic modeling unit of the beamline.
type Element interface {
	ID() string
	Type() string
	Kind() Kind
	Length() float64
	// TransferMap returns the map over length starting from kinematics k.
	TransferMap(k dynamo.Kinematics, length float64) (linalg.PhaseMatrix, error)
	// ElapsedTime returns the time (s) needed to cross length.
	ElapsedTime(k dynamo.Kinematics, length float64) float64
	// EnergyGain returns the kinetic-energy change (eV) over length.
	EnergyGain(k dynamo.Kinematics, length float64) float64
}

// EdgeFocuser is implemented by elements with thin focusing at their
// faces. Their TransferMap includes the faces only over the full length,
// so sub-stepping trackers add EntranceMap before the first step and
// ExitMap after the last.
type EdgeFocuser interface {
	EntranceMap(k dynamo.Kinematics) linalg.PhaseMatrix
	ExitMap(k dynamo.Kinematics) linalg.PhaseMatrix
}

// PhaseShifter is implemented by elements that shift the longitudinal
// phase of the probe relative to the RF.
type PhaseShifter interface {
	PhaseSlip(k dynamo.Kinematics) float64
}

// Configurable elements expose their parameters by name so hardware
// properties and live values can be applied without knowing the kind.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Configure applies props to e, skipping names the element does not own.
func Configure(e Configurable, props map[string]float64) error {
	for name, v := range props {
		err := e.SetParam(name, v)
		if errors.Is(err, ErrUnknownParam) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Base carries identity, length and alignment shared by every kind.
type Base struct {
	id         string
	typ        string
	hardwareID string
	length     float64

	AlignX, AlignY, AlignZ float64
}

func newBase(typ, id string, length float64) Base {
	return Base{id: id, typ: typ, hardwareID: id, length: length}
}

func (b *Base) ID() string         { return b.id }
func (b *Base) Type() string       { return b.typ }
func (b *Base) Length() float64    { return b.length }
func (b *Base) HardwareID() string { return b.hardwareID }

func (b *Base) SetHardwareID(id string) { b.hardwareID = id }

// SetType overrides the type tag, e.g. with the hardware type it came from.
func (b *Base) SetType(typ string) { b.typ = typ }

func (b *Base) baseParams(params map[string]float64) map[string]float64 {
	params["length"] = b.length
	params["align_x"] = b.AlignX
	params["align_y"] = b.AlignY
	params["align_z"] = b.AlignZ
	return params
}

func (b *Base) setBaseParam(name string, value float64) error {
	switch name {
	case "length":
		if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: length=%g", dynamo.ErrParameterBounds, value)
		}
		b.length = value
	case "align_x":
		b.AlignX = value
	case "align_y":
		b.AlignY = value
	case "align_z":
		b.AlignZ = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return nil
}

// checkLength enforces 0 <= length <= Length().
func (b *Base) checkLength(length float64) error {
	if math.IsNaN(length) || length < 0 || length > b.length+lengthTolerance*math.Max(1, b.length) {
		return fmt.Errorf("%w: %g (element length %g)", dynamo.ErrInvalidLength, length, b.length)
	}
	return nil
}

// applyAlign conjugates phi with the misalignment translation.
func (b *Base) applyAlign(phi linalg.PhaseMatrix) linalg.PhaseMatrix {
	if b.AlignX == 0 && b.AlignY == 0 && b.AlignZ == 0 {
		return phi
	}
	d := linalg.NewPhaseVector(b.AlignX, 0, b.AlignY, 0, b.AlignZ, 0)
	return linalg.Translation(d).Times(phi).Times(linalg.Translation(d.Negate()))
}

func driftTime(k dynamo.Kinematics, length float64) float64 {
	return length / k.Velocity()
}

// finite wraps a map that contains NaN or Inf.
func finite(phi linalg.PhaseMatrix) (linalg.PhaseMatrix, error) {
	if !phi.IsFinite() {
		return linalg.PhaseMatrix{}, dynamo.ErrNonFiniteMap
	}
	return phi, nil
}

// driftMatrix is free-space propagation over length at relativistic factor gamma.
func driftMatrix(length, gamma float64) linalg.PhaseMatrix {
	phi := linalg.Identity()
	phi[linalg.X][linalg.XP] = length
	phi[linalg.Y][linalg.YP] = length
	phi[linalg.Z][linalg.ZP] = length / (gamma * gamma)
	return phi
}
