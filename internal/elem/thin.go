package elem

import (
	"fmt"
	"math"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/linalg"
)

const (
	TypeMarker   = "Marker"
	TypeThinLens = "ThinLens"
)

// Marker is a zero-length pass-through, used for diagnostics and for
// hardware the model does not simulate.
type Marker struct {
	Base
}

func NewMarker(id string) *Marker {
	return &Marker{Base: newBase(TypeMarker, id, 0)}
}

func (m *Marker) Kind() Kind { return KindMarker }

func (m *Marker) TransferMap(_ dynamo.Kinematics, length float64) (linalg.PhaseMatrix, error) {
	if err := m.checkLength(length); err != nil {
		return linalg.PhaseMatrix{}, err
	}
	return linalg.Identity(), nil
}

func (m *Marker) ElapsedTime(dynamo.Kinematics, float64) float64 { return 0 }
func (m *Marker) EnergyGain(dynamo.Kinematics, float64) float64  { return 0 }

func (m *Marker) GetParams() map[string]float64 {
	return m.baseParams(map[string]float64{})
}

func (m *Marker) SetParam(name string, value float64) error {
	if name == "length" {
		// markers are always thin; the hardware extent becomes drift space
		return nil
	}
	return m.setBaseParam(name, value)
}

// ThinLens is a zero-length quadrupole kick of integrated strength 1/f.
// Positive strength focuses horizontally and defocuses vertically.
type ThinLens struct {
	Base
	focalInverse float64 // 1/m
}

func NewThinLens(id string, focalInverse float64) *ThinLens {
	return &ThinLens{Base: newBase(TypeThinLens, id, 0), focalInverse: focalInverse}
}

func (t *ThinLens) Kind() Kind { return KindThinLens }

func (t *ThinLens) FocalInverse() float64 { return t.focalInverse }

func (t *ThinLens) TransferMap(_ dynamo.Kinematics, length float64) (linalg.PhaseMatrix, error) {
	if err := t.checkLength(length); err != nil {
		return linalg.PhaseMatrix{}, err
	}
	phi := linalg.Identity()
	phi[linalg.XP][linalg.X] = -t.focalInverse
	phi[linalg.YP][linalg.Y] = t.focalInverse
	return finite(t.applyAlign(phi))
}

func (t *ThinLens) ElapsedTime(dynamo.Kinematics, float64) float64 { return 0 }
func (t *ThinLens) EnergyGain(dynamo.Kinematics, float64) float64  { return 0 }

func (t *ThinLens) GetParams() map[string]float64 {
	return t.baseParams(map[string]float64{"focal_inverse": t.focalInverse})
}

func (t *ThinLens) SetParam(name string, value float64) error {
	switch name {
	case "focal_inverse":
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: focal_inverse=%g", dynamo.ErrParameterBounds, value)
		}
		t.focalInverse = value
		return nil
	case "length":
		return nil
	}
	return t.setBaseParam(name, value)
}
