package metrics

import (
	"math"

	"github.com/san-kum/beamline/internal/probe"
)

// EnergyGain is the kinetic energy change between the first and last
// observed state, in eV.
type EnergyGain struct {
	name    string
	initial float64
	current float64
	samples int
}

func NewEnergyGain() *EnergyGain {
	return &EnergyGain{name: "energy_gain"}
}

func (e *EnergyGain) Name() string { return e.name }

func (e *EnergyGain) Observe(st probe.State) {
	if e.samples == 0 {
		e.initial = st.KineticEnergy()
	}
	e.current = st.KineticEnergy()
	e.samples++
}

func (e *EnergyGain) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.current - e.initial
}

func (e *EnergyGain) Reset() {
	e.initial = 0
	e.current = 0
	e.samples = 0
}

// PhaseAdvance is the total RF phase accumulated by the probe.
type PhaseAdvance struct {
	name    string
	initial float64
	current float64
	samples int
}

func NewPhaseAdvance() *PhaseAdvance {
	return &PhaseAdvance{name: "phase_advance"}
}

func (p *PhaseAdvance) Name() string { return p.name }

func (p *PhaseAdvance) Observe(st probe.State) {
	if p.samples == 0 {
		p.initial = st.Phase()
	}
	p.current = st.Phase()
	p.samples++
}

func (p *PhaseAdvance) Value() float64 {
	return p.current - p.initial
}

func (p *PhaseAdvance) Reset() {
	p.initial = 0
	p.current = 0
	p.samples = 0
}

// MaxEnvelope is the largest RMS beam size seen in one plane (m).
type MaxEnvelope struct {
	name  string
	plane int
	max   float64
}

func NewMaxEnvelope(plane int) *MaxEnvelope {
	return &MaxEnvelope{name: "max_rms_" + planeName(plane), plane: plane}
}

func (m *MaxEnvelope) Name() string { return m.name }

func (m *MaxEnvelope) Observe(st probe.State) {
	es, ok := st.(*probe.EnvelopeState)
	if !ok {
		return
	}
	m.max = math.Max(m.max, es.Cov.RMSEnvelopes()[m.plane])
}

func (m *MaxEnvelope) Value() float64 { return m.max }

func (m *MaxEnvelope) Reset() { m.max = 0 }

// EmittanceGrowth is the ratio of final to initial RMS emittance in one
// plane. Linear optics without space charge keep it at 1.
type EmittanceGrowth struct {
	name    string
	plane   int
	initial float64
	current float64
}

func NewEmittanceGrowth(plane int) *EmittanceGrowth {
	return &EmittanceGrowth{name: "emittance_growth_" + planeName(plane), plane: plane}
}

func (e *EmittanceGrowth) Name() string { return e.name }

func (e *EmittanceGrowth) Observe(st probe.State) {
	es, ok := st.(*probe.EnvelopeState)
	if !ok {
		return
	}
	emit := es.Twiss()[e.plane].Emittance
	if e.initial == 0 {
		e.initial = emit
	}
	e.current = emit
}

func (e *EmittanceGrowth) Value() float64 {
	if e.initial == 0 {
		return 1.0
	}
	return e.current / e.initial
}

func (e *EmittanceGrowth) Reset() {
	e.initial = 0
	e.current = 0
}

func planeName(p int) string {
	switch p {
	case 0:
		return "x"
	case 1:
		return "y"
	default:
		return "z"
	}
}
