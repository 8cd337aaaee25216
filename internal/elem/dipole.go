package elem

import (
	"fmt"
	"math"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/linalg"
)

const TypeDipole = "SectorDipole"

// SectorDipole is a horizontal sector bend. Non-zero pole-face angles add
// thin edge focusing at the entrance and exit faces; zero angles give a
// pure sector magnet.
type SectorDipole struct {
	Base
	angle     float64 // total bend angle (rad)
	entrAngle float64 // entrance pole-face rotation (rad)
	exitAngle float64 // exit pole-face rotation (rad)
}

func NewSectorDipole(id string, length, angle float64) *SectorDipole {
	return &SectorDipole{Base: newBase(TypeDipole, id, length), angle: angle}
}

func (d *SectorDipole) Kind() Kind { return KindDipole }

func (d *SectorDipole) Angle() float64 { return d.angle }

func (d *SectorDipole) EntranceAngle() float64 { return d.entrAngle }
func (d *SectorDipole) ExitAngle() float64     { return d.exitAngle }

// Radius returns the bending radius, infinite for a straight magnet.
func (d *SectorDipole) Radius() float64 {
	if d.angle == 0 {
		return math.Inf(1)
	}
	return d.length / d.angle
}

// TransferMap returns the body map over length. Over the full length the
// entrance and exit edges are included; partial lengths get the body only
// and the caller adds the faces with EntranceMap and ExitMap.
func (d *SectorDipole) TransferMap(k dynamo.Kinematics, length float64) (linalg.PhaseMatrix, error) {
	if err := d.checkLength(length); err != nil {
		return linalg.PhaseMatrix{}, err
	}
	phi := d.body(k, length)
	if length >= d.length-lengthTolerance*math.Max(1, d.length) {
		phi = linalg.Compose(d.edge(d.exitAngle), linalg.Compose(phi, d.edge(d.entrAngle)))
	}
	return finite(d.applyAlign(phi))
}

// EntranceMap is the thin focusing of the entrance pole face.
func (d *SectorDipole) EntranceMap(dynamo.Kinematics) linalg.PhaseMatrix {
	return d.applyAlign(d.edge(d.entrAngle))
}

// ExitMap is the thin focusing of the exit pole face.
func (d *SectorDipole) ExitMap(dynamo.Kinematics) linalg.PhaseMatrix {
	return d.applyAlign(d.edge(d.exitAngle))
}

// edge is the hard-edge pole-face kick for face rotation psi: horizontal
// strength tan(psi)/rho and the opposite sign vertically.
func (d *SectorDipole) edge(psi float64) linalg.PhaseMatrix {
	phi := linalg.Identity()
	if psi == 0 || d.angle == 0 || d.length == 0 {
		return phi
	}
	h := math.Tan(psi) / d.Radius()
	phi[linalg.XP][linalg.X] = h
	phi[linalg.YP][linalg.Y] = -h
	return phi
}

func (d *SectorDipole) body(k dynamo.Kinematics, length float64) linalg.PhaseMatrix {
	g := k.Gamma()
	if d.angle == 0 || d.length == 0 {
		return driftMatrix(length, g)
	}

	rho := d.Radius()
	theta := length / rho
	s, c := math.Sincos(theta)

	phi := driftMatrix(length, g)
	phi.SetBlock(linalg.X, linalg.X, [2][2]float64{
		{c, rho * s},
		{-s / rho, c},
	})
	phi[linalg.X][linalg.ZP] = rho * (1 - c)
	phi[linalg.XP][linalg.ZP] = s
	phi[linalg.Z][linalg.X] = -s
	phi[linalg.Z][linalg.XP] = -rho * (1 - c)
	phi[linalg.Z][linalg.ZP] = length/(g*g) - (length - rho*s)
	return phi
}

func (d *SectorDipole) ElapsedTime(k dynamo.Kinematics, length float64) float64 {
	return driftTime(k, length)
}

func (d *SectorDipole) EnergyGain(dynamo.Kinematics, float64) float64 { return 0 }

func (d *SectorDipole) GetParams() map[string]float64 {
	return d.baseParams(map[string]float64{
		"angle":      d.angle,
		"entr_angle": d.entrAngle,
		"exit_angle": d.exitAngle,
	})
}

func (d *SectorDipole) SetParam(name string, value float64) error {
	switch name {
	case "angle":
		if math.IsNaN(value) || math.Abs(value) >= 2*math.Pi {
			return fmt.Errorf("%w: angle=%g", dynamo.ErrParameterBounds, value)
		}
		d.angle = value
	case "entr_angle", "exit_angle":
		// a face at +-90 degrees has no finite edge kick
		if math.IsNaN(value) || math.Abs(value) >= math.Pi/2 {
			return fmt.Errorf("%w: %s=%g", dynamo.ErrParameterBounds, name, value)
		}
		if name == "entr_angle" {
			d.entrAngle = value
		} else {
			d.exitAngle = value
		}
	default:
		return d.setBaseParam(name, value)
	}
	return nil
}
