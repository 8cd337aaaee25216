package metrics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
)

func particle(s, w, x, y float64) probe.State {
	return &probe.ParticleState{
		StateBase: probe.StateBase{S: s, W: w, Phi: s, Species: probe.Proton},
		Coords:    linalg.NewPhaseVector(x, 0, y, 0, 0, 0),
	}
}

func envelope(s float64, beta, emit float64) probe.State {
	tw := linalg.Twiss3D{
		{Beta: beta, Emittance: emit},
		{Beta: 1, Emittance: 1e-6},
		{Beta: 1, Emittance: 1e-6},
	}
	return &probe.EnvelopeState{
		StateBase: probe.StateBase{S: s, W: 2.5e6, Species: probe.Proton},
		Cov:       linalg.NewCovariance(tw, linalg.ZeroVector()),
	}
}

func TestEnergyGain(t *testing.T) {
	m := NewEnergyGain()
	if m.Value() != 0 {
		t.Errorf("expected 0 before samples, got %f", m.Value())
	}

	m.Observe(particle(0, 2.5e6, 0, 0))
	m.Observe(particle(1, 2.7e6, 0, 0))
	if math.Abs(m.Value()-2e5) > 1e-6 {
		t.Errorf("expected gain 2e5, got %f", m.Value())
	}

	m.Reset()
	m.Observe(particle(0, 3e6, 0, 0))
	if m.Value() != 0 {
		t.Errorf("expected 0 after reset, got %f", m.Value())
	}
}

func TestMaxEnvelope(t *testing.T) {
	m := NewMaxEnvelope(linalg.PlaneX)
	m.Observe(envelope(0, 1, 1e-6))
	m.Observe(envelope(1, 4, 1e-6))
	m.Observe(envelope(2, 2, 1e-6))
	m.Observe(particle(3, 2.5e6, 1, 1))

	if math.Abs(m.Value()-2e-3) > 1e-12 {
		t.Errorf("expected max rms 2e-3, got %g", m.Value())
	}
	if m.Name() != "max_rms_x" {
		t.Errorf("unexpected name %s", m.Name())
	}
}

func TestEmittanceGrowth(t *testing.T) {
	m := NewEmittanceGrowth(linalg.PlaneX)
	if m.Value() != 1.0 {
		t.Errorf("expected 1.0 before samples, got %f", m.Value())
	}
	m.Observe(envelope(0, 1, 1e-6))
	m.Observe(envelope(1, 3, 1.5e-6))
	if math.Abs(m.Value()-1.5) > 1e-9 {
		t.Errorf("expected growth 1.5, got %f", m.Value())
	}
}

func TestTransmission(t *testing.T) {
	m := NewTransmission(0.01)
	if m.Value() != 1.0 {
		t.Errorf("expected 1.0 before samples, got %f", m.Value())
	}

	m.Observe(particle(0, 1, 0.001, 0))
	m.Observe(particle(1, 1, 0.008, 0.008))
	m.Observe(particle(2, 1, 0, 0.002))
	m.Observe(particle(3, 1, 0, 0.003))

	if math.Abs(m.Value()-0.75) > 1e-12 {
		t.Errorf("expected transmission 0.75, got %f", m.Value())
	}
}

func TestMaxOffset(t *testing.T) {
	m := NewMaxOffset(linalg.PlaneY)
	m.Observe(particle(0, 1, 0.5, -0.003))
	m.Observe(particle(1, 1, 0.5, 0.002))
	if m.Value() != 0.003 {
		t.Errorf("expected 0.003, got %f", m.Value())
	}
}

func TestEvaluateStandard(t *testing.T) {
	states := []probe.State{envelope(0, 1, 1e-6), envelope(1, 2, 1e-6)}
	got := Evaluate(states, Standard(probe.KindEnvelope)...)

	for _, name := range []string{"energy_gain", "phase_advance", "max_rms_x", "emittance_growth_z"} {
		if _, ok := got[name]; !ok {
			t.Errorf("missing metric %s", name)
		}
	}
	if _, ok := got["transmission"]; ok {
		t.Error("transmission does not apply to envelopes")
	}
	if got["emittance_growth_x"] != 1.0 {
		t.Errorf("expected no growth, got %f", got["emittance_growth_x"])
	}
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	tw := linalg.Twiss3D{{Beta: 1, Emittance: 1e-6}, {Beta: 1, Emittance: 1e-6}, {Beta: 1, Emittance: 1e-6}}
	p, err := probe.NewEnvelope("env", probe.Proton, 2.5e6, tw, 0, 402.5e6)
	if err != nil {
		t.Fatal(err)
	}
	p.Initialize()
	p.Advance(0.5, 1e-8, 0, 0)

	r.OnElement(p, elem.NewDrift("D1", 0.5))
	r.OnElement(p, elem.NewDrift("D2", 0.5))

	if got := testutil.ToFloat64(r.elements.WithLabelValues("env", "drift")); got != 2 {
		t.Errorf("expected 2 drifts counted, got %f", got)
	}
	if got := testutil.ToFloat64(r.position.WithLabelValues("env")); got != 0.5 {
		t.Errorf("expected position 0.5, got %f", got)
	}
	if got := testutil.ToFloat64(r.envelope.WithLabelValues("env", "x")); math.Abs(got-1e-3) > 1e-12 {
		t.Errorf("expected rms x 1e-3, got %g", got)
	}

	r.ObserveRun(p, time.Now(), nil)
	r.ObserveRun(p, time.Now(), errors.New("boom"))
	if got := testutil.ToFloat64(r.runs.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed run, got %f", got)
	}
}
