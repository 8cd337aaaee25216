package metrics

import "github.com/san-kum/beamline/internal/probe"

// Metric accumulates a scalar figure of merit over a trajectory.
type Metric interface {
	Name() string
	Observe(st probe.State)
	Value() float64
	Reset()
}

// Evaluate feeds states through each metric in order and returns the
// values keyed by name. Metrics are reset first.
func Evaluate(states []probe.State, ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for _, st := range states {
			m.Observe(st)
		}
		out[m.Name()] = m.Value()
	}
	return out
}

// Standard returns the metrics that apply to states of kind k.
func Standard(k probe.Kind) []Metric {
	ms := []Metric{NewEnergyGain(), NewPhaseAdvance()}
	switch k {
	case probe.KindEnvelope:
		for p := range 3 {
			ms = append(ms, NewMaxEnvelope(p), NewEmittanceGrowth(p))
		}
	default:
		ms = append(ms, NewMaxOffset(0), NewMaxOffset(1), NewTransmission(DefaultAperture))
	}
	return ms
}
