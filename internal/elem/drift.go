package elem

import (
	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/linalg"
)

const TypeDrift = "Drift"

// Drift is a field-free region.
type Drift struct {
	Base
}

func NewDrift(id string, length float64) *Drift {
	return &Drift{Base: newBase(TypeDrift, id, length)}
}

func (d *Drift) Kind() Kind { return KindDrift }

func (d *Drift) TransferMap(k dynamo.Kinematics, length float64) (linalg.PhaseMatrix, error) {
	if err := d.checkLength(length); err != nil {
		return linalg.PhaseMatrix{}, err
	}
	return finite(d.applyAlign(driftMatrix(length, k.Gamma())))
}

func (d *Drift) ElapsedTime(k dynamo.Kinematics, length float64) float64 {
	return driftTime(k, length)
}

func (d *Drift) EnergyGain(dynamo.Kinematics, float64) float64 { return 0 }

func (d *Drift) GetParams() map[string]float64 {
	return d.baseParams(map[string]float64{})
}

func (d *Drift) SetParam(name string, value float64) error {
	return d.setBaseParam(name, value)
}
