package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/probe"
)

// Recorder exports live propagation progress as Prometheus series. It
// satisfies scenario.Observer.
type Recorder struct {
	elements *prometheus.CounterVec
	position *prometheus.GaugeVec
	energy   *prometheus.GaugeVec
	envelope *prometheus.GaugeVec
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder registers the beamline series with reg. A nil reg uses the
// default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		elements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "beamline_elements_total",
			Help: "Elements crossed by probes, by element type",
		}, []string{"probe", "type"}),
		position: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamline_probe_position_meters",
			Help: "Current probe position along the sequence",
		}, []string{"probe"}),
		energy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamline_probe_energy_ev",
			Help: "Current probe kinetic energy",
		}, []string{"probe"}),
		envelope: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamline_probe_rms_size_meters",
			Help: "Current RMS beam size of envelope probes",
		}, []string{"probe", "plane"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "beamline_runs_total",
			Help: "Completed propagation runs by outcome",
		}, []string{"status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beamline_run_duration_seconds",
			Help:    "Wall time of propagation runs",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"probe"}),
	}
}

func (r *Recorder) OnElement(p probe.Probe, e elem.Element) {
	k := p.Kinematics()
	r.elements.WithLabelValues(p.ID(), e.Kind().String()).Inc()
	r.position.WithLabelValues(p.ID()).Set(k.Position)
	r.energy.WithLabelValues(p.ID()).Set(k.KineticEnergy)

	if ep, ok := p.(*probe.EnvelopeProbe); ok {
		env := ep.Covariance().RMSEnvelopes()
		for i, v := range env {
			r.envelope.WithLabelValues(p.ID(), planeName(i)).Set(v)
		}
	}
}

// ObserveRun records the outcome of one run started at start.
func (r *Recorder) ObserveRun(p probe.Probe, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	r.runs.WithLabelValues(status).Inc()
	r.duration.WithLabelValues(p.Kind().String()).Observe(time.Since(start).Seconds())
}
