package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/beamline/internal/scenario"
)

// LatticeFile is the YAML hardware description of one sequence.
type LatticeFile struct {
	Sequence string          `yaml:"sequence"`
	Length   float64         `yaml:"length"`
	Nodes    []scenario.Node `yaml:"nodes"`
}

func LoadLattice(path string) (*LatticeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseLattice(data)
}

func ParseLattice(data []byte) (*LatticeFile, error) {
	var lf LatticeFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, err
	}
	if lf.Sequence == "" {
		return nil, fmt.Errorf("lattice: missing sequence name")
	}
	for i, n := range lf.Nodes {
		if n.ID == "" || n.Type == "" {
			return nil, fmt.Errorf("lattice: node %d needs id and type", i)
		}
	}
	return &lf, nil
}

func SaveLattice(path string, lf *LatticeFile) error {
	data, err := yaml.Marshal(lf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Scenario generates the lattice of lf with the default mapping.
func (lf *LatticeFile) Scenario() (*scenario.Scenario, error) {
	return scenario.New(lf.Sequence, lf.Nodes, lf.Length, scenario.DefaultMapping())
}

// DemoLattice is a short matching section: a FODO doublet, a three-gap
// cavity and diagnostics.
func DemoLattice() *LatticeFile {
	gap := func(id string, pos float64) scenario.Node {
		return scenario.Node{
			ID: id, Type: "RG", Position: pos, Cavity: "CAV01",
			Props: map[string]float64{"e0": 2.5e6, "cell_length": 0.07, "phase": -0.5236, "frequency": 402.5e6},
			Fits:  map[string]string{"ttf": "0.2, 1.5, -1.8", "stf": "0", "ttfp": "1.5, -3.6", "stfp": "0"},
		}
	}
	return &LatticeFile{
		Sequence: "MEBT",
		Length:   3.0,
		Nodes: []scenario.Node{
			{ID: "QH01", Type: "QH", Position: 0.30, Length: 0.10, Props: map[string]float64{"gradient": 12}},
			{ID: "QV02", Type: "QV", Position: 0.60, Length: 0.10, Props: map[string]float64{"gradient": -12}},
			{ID: "BPM01", Type: "BPM", Position: 0.80},
			gap("RG01", 1.10),
			gap("RG02", 1.17),
			gap("RG03", 1.24),
			{ID: "QH03", Type: "QH", Position: 1.60, Length: 0.10, Props: map[string]float64{"gradient": 10}},
			{ID: "QV04", Type: "QV", Position: 1.90, Length: 0.10, Props: map[string]float64{"gradient": -10}},
			{ID: "DH01", Type: "DH", Position: 2.40, Length: 0.40, Props: map[string]float64{"angle": 0.1745}},
			{ID: "WS01", Type: "WS", Position: 2.85},
		},
	}
}
