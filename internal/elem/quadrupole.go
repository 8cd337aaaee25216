package elem

import (
	"fmt"
	"math"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/linalg"
)

const TypeQuadrupole = "Quadrupole"

// Quadrupole is a thick magnetic quadrupole. A positive field gradient
// focuses positive charges horizontally.
type Quadrupole struct {
	Base
	gradient float64 // T/m
}

func NewQuadrupole(id string, length, gradient float64) *Quadrupole {
	return &Quadrupole{Base: newBase(TypeQuadrupole, id, length), gradient: gradient}
}

func (q *Quadrupole) Kind() Kind { return KindQuadrupole }

func (q *Quadrupole) Gradient() float64 { return q.gradient }

// Strength returns the focusing wavenumber k = sqrt(|G| / (B*rho)) in 1/m.
func (q *Quadrupole) Strength(k dynamo.Kinematics) float64 {
	return math.Sqrt(math.Abs(q.gradient) / k.Rigidity())
}

// FocusesX reports whether the horizontal plane is the focusing plane.
func (q *Quadrupole) FocusesX(k dynamo.Kinematics) bool {
	return k.Charge*q.gradient > 0
}

func (q *Quadrupole) TransferMap(k dynamo.Kinematics, length float64) (linalg.PhaseMatrix, error) {
	if err := q.checkLength(length); err != nil {
		return linalg.PhaseMatrix{}, err
	}

	kq := q.Strength(k)
	// A vanishing field or a neutral species sees a drift.
	if q.gradient == 0 || kq == 0 {
		return finite(q.applyAlign(driftMatrix(length, k.Gamma())))
	}

	foc := focusingPlane(kq, length)
	def := defocusingPlane(kq, length)

	phi := linalg.Identity()
	if q.FocusesX(k) {
		phi.SetBlock(linalg.X, linalg.X, foc)
		phi.SetBlock(linalg.Y, linalg.Y, def)
	} else {
		phi.SetBlock(linalg.X, linalg.X, def)
		phi.SetBlock(linalg.Y, linalg.Y, foc)
	}
	g := k.Gamma()
	phi[linalg.Z][linalg.ZP] = length / (g * g)

	return finite(q.applyAlign(phi))
}

func focusingPlane(k, l float64) [2][2]float64 {
	s, c := math.Sincos(k * l)
	return [2][2]float64{
		{c, s / k},
		{-k * s, c},
	}
}

func defocusingPlane(k, l float64) [2][2]float64 {
	sh, ch := math.Sinh(k*l), math.Cosh(k*l)
	return [2][2]float64{
		{ch, sh / k},
		{k * sh, ch},
	}
}

func (q *Quadrupole) ElapsedTime(k dynamo.Kinematics, length float64) float64 {
	return driftTime(k, length)
}

func (q *Quadrupole) EnergyGain(dynamo.Kinematics, float64) float64 { return 0 }

func (q *Quadrupole) GetParams() map[string]float64 {
	return q.baseParams(map[string]float64{"gradient": q.gradient})
}

func (q *Quadrupole) SetParam(name string, value float64) error {
	if name == "gradient" {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: gradient=%g", dynamo.ErrParameterBounds, value)
		}
		q.gradient = value
		return nil
	}
	return q.setBaseParam(name, value)
}
