package metrics

import (
	"math"

	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
)

// DefaultAperture is the transverse radius used by Standard (m).
const DefaultAperture = 0.02

func coords(st probe.State) (linalg.PhaseVector, bool) {
	switch s := st.(type) {
	case *probe.ParticleState:
		return s.Coords, true
	case *probe.TransferMapState:
		return s.Coords, true
	}
	return linalg.PhaseVector{}, false
}

// MaxOffset is the largest centroid excursion in one transverse plane (m).
type MaxOffset struct {
	name  string
	index int
	max   float64
}

func NewMaxOffset(plane int) *MaxOffset {
	return &MaxOffset{name: "max_offset_" + planeName(plane), index: 2 * plane}
}

func (m *MaxOffset) Name() string { return m.name }

func (m *MaxOffset) Observe(st probe.State) {
	v, ok := coords(st)
	if !ok {
		return
	}
	m.max = math.Max(m.max, math.Abs(v[m.index]))
}

func (m *MaxOffset) Value() float64 { return m.max }

func (m *MaxOffset) Reset() { m.max = 0 }

// Transmission is the fraction of observed states whose transverse
// position lies inside a circular aperture.
type Transmission struct {
	name       string
	aperture   float64
	violations int
	samples    int
}

func NewTransmission(aperture float64) *Transmission {
	return &Transmission{name: "transmission", aperture: aperture}
}

func (t *Transmission) Name() string { return t.name }

func (t *Transmission) Observe(st probe.State) {
	v, ok := coords(st)
	if !ok {
		return
	}
	t.samples++
	if math.Hypot(v[linalg.X], v[linalg.Y]) > t.aperture {
		t.violations++
	}
}

func (t *Transmission) Value() float64 {
	if t.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(t.violations)/float64(t.samples)
}

func (t *Transmission) Reset() {
	t.violations = 0
	t.samples = 0
}
