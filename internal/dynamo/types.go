package dynamo

import "math"

// Physical constants shared by the whole model.
const (
	// LightSpeed is the speed of light in vacuum (m/s).
	LightSpeed = 2.99792458e8

	// ElementaryCharge is the unit charge (C).
	ElementaryCharge = 1.602176634e-19

	// Permittivity is the electric permittivity of free space (F/m).
	Permittivity = 8.8541878128e-12

	// ProtonRestEnergy is the proton rest energy (eV).
	ProtonRestEnergy = 938.272088e6

	// ElectronRestEnergy is the electron rest energy (eV).
	ElectronRestEnergy = 0.51099895e6
)

// Kinematics is the dynamic state shared by all probe kinds. Elements read
// it to compute transfer maps; trackers advance it.
type Kinematics struct {
	Position      float64 // lattice position (m)
	Time          float64 // elapsed time (s)
	KineticEnergy float64 // eV
	Charge        float64 // species charge (e)
	RestEnergy    float64 // species rest energy (eV)
}

// Gamma returns the relativistic factor KE/Er + 1.
func (k Kinematics) Gamma() float64 {
	return k.KineticEnergy/k.RestEnergy + 1.0
}

// Beta returns v/c.
func (k Kinematics) Beta() float64 {
	g := k.Gamma()
	return math.Sqrt(1.0 - 1.0/(g*g))
}

// BetaGamma returns the normalized momentum.
func (k Kinematics) BetaGamma() float64 {
	return k.Beta() * k.Gamma()
}

// Rigidity returns the magnetic rigidity B*rho in T*m. Neutral species
// have infinite rigidity.
func (k Kinematics) Rigidity() float64 {
	q := math.Abs(k.Charge)
	if q == 0 {
		return math.Inf(1)
	}
	return k.RestEnergy * k.BetaGamma() / (LightSpeed * q)
}

// Velocity returns the particle speed (m/s).
func (k Kinematics) Velocity() float64 {
	return k.Beta() * LightSpeed
}

// IsValid reports whether every field is finite and the rest energy is positive.
func (k Kinematics) IsValid() bool {
	for _, v := range []float64{k.Position, k.Time, k.KineticEnergy, k.Charge, k.RestEnergy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return k.RestEnergy > 0 && k.KineticEnergy >= 0
}

// BetaFromEnergies returns v/c for kinetic energy w and rest energy er.
func BetaFromEnergies(w, er float64) float64 {
	g := w/er + 1.0
	return math.Sqrt(1.0 - 1.0/(g*g))
}

// GammaFromEnergies returns the relativistic factor for kinetic energy w and rest energy er.
func GammaFromEnergies(w, er float64) float64 {
	return w/er + 1.0
}
