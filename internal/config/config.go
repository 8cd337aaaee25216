package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/probe"
	"github.com/san-kum/beamline/internal/scenario"
	"github.com/san-kum/beamline/internal/tracker"
)

const (
	DefaultProbe     = "particle"
	DefaultSpecies   = "proton"
	DefaultEnergy    = 2.5e6
	DefaultBeta      = 1.0
	DefaultEmittance = 1e-6
	DefaultBunchFreq = 402.5e6
	DefaultPolicy    = "exit"
	DefaultSync      = "design"
)

type Config struct {
	Lattice     string                        `yaml:"lattice"`
	Probe       string                        `yaml:"probe"`
	Species     string                        `yaml:"species"`
	Energy      float64                       `yaml:"energy"`
	Coords      []float64                     `yaml:"coords"`
	Twiss       TwissConfig                   `yaml:"twiss"`
	Current     float64                       `yaml:"current"`
	BunchFreq   float64                       `yaml:"bunch_freq"`
	Tracker     TrackerConfig                 `yaml:"tracker"`
	Start       string                        `yaml:"start"`
	Stop        string                        `yaml:"stop"`
	IncludeStop bool                          `yaml:"include_stop"`
	Sync        string                        `yaml:"sync"`
	Live        map[string]map[string]float64 `yaml:"live,omitempty"`
}

type TwissConfig struct {
	X PlaneConfig `yaml:"x"`
	Y PlaneConfig `yaml:"y"`
	Z PlaneConfig `yaml:"z"`
}

type PlaneConfig struct {
	Alpha     float64 `yaml:"alpha"`
	Beta      float64 `yaml:"beta"`
	Emittance float64 `yaml:"emittance"`
}

type TrackerConfig struct {
	StepSize    float64 `yaml:"step_size"`
	SpaceCharge bool    `yaml:"space_charge"`
	Policy      string  `yaml:"policy"`
	Debug       bool    `yaml:"debug"`
}

func defaultPlane() PlaneConfig {
	return PlaneConfig{Beta: DefaultBeta, Emittance: DefaultEmittance}
}

func DefaultConfig() *Config {
	return &Config{
		Probe:       DefaultProbe,
		Species:     DefaultSpecies,
		Energy:      DefaultEnergy,
		Coords:      make([]float64, 6),
		Twiss:       TwissConfig{X: defaultPlane(), Y: defaultPlane(), Z: defaultPlane()},
		BunchFreq:   DefaultBunchFreq,
		IncludeStop: true,
		Sync:        DefaultSync,
		Tracker: TrackerConfig{
			StepSize:    tracker.DefaultStepSize,
			SpaceCharge: true,
			Policy:      DefaultPolicy,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// InitialCoords returns the configured phase coordinates; missing
// trailing components are zero.
func (c *Config) InitialCoords() linalg.PhaseVector {
	v := linalg.ZeroVector()
	for i := 0; i < len(c.Coords) && i < linalg.HOM; i++ {
		v[i] = c.Coords[i]
	}
	return v
}

func (c *Config) Twiss3D() linalg.Twiss3D {
	plane := func(p PlaneConfig) linalg.Twiss {
		return linalg.Twiss{Alpha: p.Alpha, Beta: p.Beta, Emittance: p.Emittance}
	}
	return linalg.Twiss3D{plane(c.Twiss.X), plane(c.Twiss.Y), plane(c.Twiss.Z)}
}

// NewProbe builds the configured probe.
func (c *Config) NewProbe(id string) (probe.Probe, error) {
	kind, err := probe.ParseKind(c.Probe)
	if err != nil {
		return nil, err
	}
	sp, err := probe.LookupSpecies(c.Species)
	if err != nil {
		return nil, err
	}
	if !(c.Energy > 0) {
		return nil, fmt.Errorf("energy must be positive, got %g", c.Energy)
	}

	switch kind {
	case probe.KindEnvelope:
		return probe.NewEnvelope(id, sp, c.Energy, c.Twiss3D(), c.Current, c.BunchFreq)
	case probe.KindTransferMap:
		p := probe.NewTransferMap(id, sp, c.Energy)
		p.SetInitialCoordinates(c.InitialCoords())
		return p, nil
	default:
		return probe.NewParticle(id, sp, c.Energy, c.InitialCoords()), nil
	}
}

// NewTracker builds the tracker for probe p with the configured options.
func (c *Config) NewTracker(p probe.Probe) (tracker.Algorithm, error) {
	policy, err := tracker.ParsePolicy(c.Tracker.Policy)
	if err != nil {
		return nil, err
	}
	alg, err := tracker.New(p.Kind())
	if err != nil {
		return nil, err
	}

	type tunable interface {
		SetPolicy(tracker.UpdatePolicy)
		SetDebug(bool)
	}
	if t, ok := alg.(tunable); ok {
		t.SetPolicy(policy)
		t.SetDebug(c.Tracker.Debug)
	}
	if et, ok := alg.(*tracker.EnvelopeTracker); ok {
		et.StepSize = c.Tracker.StepSize
		et.UseSpaceCharge = c.Tracker.SpaceCharge
	}
	return alg, nil
}

// Apply binds the configured probe and tracker to sc and sets its range
// and synchronization.
func (c *Config) Apply(sc *scenario.Scenario, probeID string) (probe.Probe, error) {
	p, err := c.NewProbe(probeID)
	if err != nil {
		return nil, err
	}
	alg, err := c.NewTracker(p)
	if err != nil {
		return nil, err
	}
	if err := sc.Bind(p, alg); err != nil {
		return nil, err
	}

	mode, err := scenario.ParseSyncMode(c.Sync)
	if err != nil {
		return nil, err
	}
	sc.SetSynchronizationMode(mode)
	if len(c.Live) > 0 {
		sc.SetLiveSource(scenario.StaticValues(c.Live))
	}
	sc.SetStartElementID(c.Start)
	sc.SetStopElementID(c.Stop, c.IncludeStop)
	return p, nil
}
