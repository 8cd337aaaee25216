package config

import "slices"

var Presets = map[string]map[string]*Config{
	"particle": {
		"on-axis": {
			Probe: "particle", Species: "proton", Energy: 2.5e6,
			Coords: []float64{0, 0, 0, 0, 0, 0},
		},
		"offset": {
			Probe: "particle", Species: "proton", Energy: 2.5e6,
			Coords: []float64{0.001, 0, 0.001, 0, 0, 0},
		},
		"h-minus": {
			Probe: "particle", Species: "h-", Energy: 2.5e6,
			Coords: []float64{0.001, 0.0005, -0.001, 0, 0, 0},
		},
	},
	"envelope": {
		"cold": {
			Probe: "envelope", Species: "proton", Energy: 2.5e6, BunchFreq: 402.5e6,
			Twiss: TwissConfig{
				X: PlaneConfig{Alpha: -1.2, Beta: 0.2, Emittance: 2.2e-6},
				Y: PlaneConfig{Alpha: 1.5, Beta: 0.3, Emittance: 2.2e-6},
				Z: PlaneConfig{Alpha: 0, Beta: 0.5, Emittance: 3.5e-6},
			},
			Tracker: TrackerConfig{StepSize: 0.004, SpaceCharge: false, Policy: "exit"},
		},
		"space-charge": {
			Probe: "envelope", Species: "h-", Energy: 2.5e6, Current: 0.038, BunchFreq: 402.5e6,
			Twiss: TwissConfig{
				X: PlaneConfig{Alpha: -1.2, Beta: 0.2, Emittance: 2.2e-6},
				Y: PlaneConfig{Alpha: 1.5, Beta: 0.3, Emittance: 2.2e-6},
				Z: PlaneConfig{Alpha: 0, Beta: 0.5, Emittance: 3.5e-6},
			},
			Tracker: TrackerConfig{StepSize: 0.004, SpaceCharge: true, Policy: "always"},
		},
	},
	"transfermap": {
		"design": {
			Probe: "transfermap", Species: "proton", Energy: 2.5e6,
			Tracker: TrackerConfig{Policy: "entrance+exit"},
		},
	},
}

// GetPreset returns a copy of a preset merged over the defaults, or nil.
func GetPreset(probeKind, preset string) *Config {
	kindPresets, ok := Presets[probeKind]
	if !ok {
		return nil
	}
	p, ok := kindPresets[preset]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Probe, cfg.Species, cfg.Energy = p.Probe, p.Species, p.Energy
	if p.Coords != nil {
		cfg.Coords = slices.Clone(p.Coords)
	}
	if p.Twiss != (TwissConfig{}) {
		cfg.Twiss = p.Twiss
	}
	cfg.Current = p.Current
	if p.BunchFreq > 0 {
		cfg.BunchFreq = p.BunchFreq
	}
	if p.Tracker.Policy != "" {
		cfg.Tracker = p.Tracker
	}
	return cfg
}

func ListPresets(probeKind string) []string {
	kindPresets, ok := Presets[probeKind]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(kindPresets))
	for name := range kindPresets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
