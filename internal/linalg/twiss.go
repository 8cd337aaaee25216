package linalg

import (
	"fmt"
	"math"

	"github.com/san-kum/beamline/internal/dynamo"
)

// Twiss holds the Courant-Snyder parameters of one phase plane.
type Twiss struct {
	Alpha     float64 `json:"alpha" yaml:"alpha"`
	Beta      float64 `json:"beta" yaml:"beta"`           // m
	Emittance float64 `json:"emittance" yaml:"emittance"` // m*rad
}

// Gamma returns (1 + alpha^2) / beta.
func (t Twiss) Gamma() float64 {
	return (1.0 + t.Alpha*t.Alpha) / t.Beta
}

// Validate enforces beta > 0 and emittance >= 0.
func (t Twiss) Validate() error {
	if !(t.Beta > 0) || math.IsInf(t.Beta, 0) {
		return fmt.Errorf("%w: beta=%g", dynamo.ErrInvalidTwiss, t.Beta)
	}
	if !(t.Emittance >= 0) || math.IsInf(t.Emittance, 0) || math.IsNaN(t.Alpha) {
		return fmt.Errorf("%w: emittance=%g alpha=%g", dynamo.ErrInvalidTwiss, t.Emittance, t.Alpha)
	}
	return nil
}

// EnvelopeRadius returns the rms beam size sqrt(beta*emittance).
func (t Twiss) EnvelopeRadius() float64 {
	return math.Sqrt(t.Beta * t.Emittance)
}

// Block returns the 2x2 central second-moment block of the plane.
func (t Twiss) Block() [2][2]float64 {
	e := t.Emittance
	return [2][2]float64{
		{t.Beta * e, -t.Alpha * e},
		{-t.Alpha * e, t.Gamma() * e},
	}
}

// TwissFromMoments builds Twiss parameters from central moments <uu>, <uu'>, <u'u'>.
func TwissFromMoments(uu, uup, upup float64) Twiss {
	e2 := uu*upup - uup*uup
	if e2 <= 0 {
		return Twiss{Beta: 1, Emittance: 0}
	}
	e := math.Sqrt(e2)
	return Twiss{Alpha: -uup / e, Beta: uu / e, Emittance: e}
}

// Twiss3D bundles the X, Y and Z plane parameters.
type Twiss3D [3]Twiss

// Plane indices into a Twiss3D.
const (
	PlaneX = 0
	PlaneY = 1
	PlaneZ = 2
)

func (t Twiss3D) Validate() error {
	for i, tw := range t {
		if err := tw.Validate(); err != nil {
			return fmt.Errorf("plane %d: %w", i, err)
		}
	}
	return nil
}
