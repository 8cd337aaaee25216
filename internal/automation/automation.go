package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/beamline/internal/config"
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/metrics"
	"github.com/san-kum/beamline/internal/probe"
	"github.com/san-kum/beamline/internal/scenario"
	"github.com/san-kum/beamline/internal/storage"
)

// Script defines a scripted sequence of propagation runs.
type Script struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Lattice     string `yaml:"lattice"`
	Steps       []Step `yaml:"steps"`
}

// Step is one run, or a Monte Carlo ensemble of particle runs when
// Samples is above 1.
type Step struct {
	Name    string        `yaml:"name"`
	Lattice string        `yaml:"lattice"`
	Config  config.Config `yaml:"config"`
	Samples int           `yaml:"samples"`
	Jitter  []float64     `yaml:"jitter"` // rms spread per phase coordinate
	Seed    uint64        `yaml:"seed"`
	Save    bool          `yaml:"save"`
}

// UnmarshalYAML decodes a step over the default run configuration.
func (s *Step) UnmarshalYAML(n *yaml.Node) error {
	type plain Step
	p := plain{Config: *config.DefaultConfig(), Samples: 1}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*s = Step(p)
	return nil
}

// StepResult summarizes one step. Ensemble metrics are sample means.
type StepResult struct {
	Name      string
	Runs      int
	Failed    int
	RunIDs    []string
	Metrics   map[string]float64
	FirstFail error
}

// Survival is the fraction of runs that completed.
func (r StepResult) Survival() float64 {
	if r.Runs == 0 {
		return 0
	}
	return float64(r.Runs-r.Failed) / float64(r.Runs)
}

// LoadScript loads a script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, err
	}
	for i, st := range script.Steps {
		if st.Samples > 1 && st.Config.Probe != "particle" {
			return nil, fmt.Errorf("step %d: ensembles need particle probes, got %s", i+1, st.Config.Probe)
		}
	}
	return &script, nil
}

// Runner executes scripts. Store may be nil, in which case nothing is saved.
type Runner struct {
	Store *storage.Store
	Log   *slog.Logger
}

// RunScript executes all steps in order and stops at the first step that
// cannot be set up. Propagation failures are counted, not returned.
func (r *Runner) RunScript(ctx context.Context, script *Script) ([]StepResult, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "automation"), slog.String("script", script.Name))

	results := make([]StepResult, 0, len(script.Steps))
	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step%d", i+1)
		}
		log.Info("step", slog.Int("index", i+1), slog.String("name", name), slog.Int("samples", step.Samples))

		lf, err := r.lattice(step.Lattice, script.Lattice)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		res, err := r.runStep(ctx, name, lf, step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) lattice(paths ...string) (*config.LatticeFile, error) {
	for _, p := range paths {
		if p != "" {
			return config.LoadLattice(p)
		}
	}
	return config.DemoLattice(), nil
}

func (r *Runner) runStep(ctx context.Context, name string, lf *config.LatticeFile, step Step) (StepResult, error) {
	res := StepResult{Name: name}
	sc, err := lf.Scenario()
	if err != nil {
		return res, err
	}
	cfg := step.Config
	if _, err := cfg.Apply(sc, name); err != nil {
		return res, err
	}
	if err := sc.Resync(); err != nil {
		return res, err
	}

	probes, err := r.probes(name, &cfg, step)
	if err != nil {
		return res, err
	}

	ens := scenario.NewEnsemble(sc)
	for _, p := range probes {
		alg, err := cfg.NewTracker(p)
		if err != nil {
			return res, err
		}
		if err := ens.Add(p, alg); err != nil {
			return res, err
		}
	}
	runErr := ens.Run(ctx)

	all := make([]map[string]float64, 0, len(probes))
	for _, p := range probes {
		res.Runs++
		if p.Status() == probe.StatusFailed || p.Err() != nil {
			res.Failed++
			if res.FirstFail == nil {
				res.FirstFail = p.Err()
			}
		}
		states := probe.History(p)
		m := metrics.Evaluate(states, metrics.Standard(p.Kind())...)
		all = append(all, m)

		if step.Save && r.Store != nil {
			id, err := r.Store.Save(storage.RunMetadata{
				Sequence: lf.Sequence,
				Probe:    cfg.Probe,
				Species:  cfg.Species,
				Tracker:  sc.Algorithm().Type(),
				Policy:   cfg.Tracker.Policy,
				Sync:     cfg.Sync,
				Status:   p.Status().String(),
				Metrics:  m,
			}, states)
			if err != nil {
				return res, err
			}
			res.RunIDs = append(res.RunIDs, id)
		}
	}
	res.Metrics = mean(all)
	if res.FirstFail == nil && runErr != nil && !errors.Is(runErr, ctx.Err()) {
		res.FirstFail = runErr
	}
	return res, nil
}

// probes builds the step's probes. Ensemble samples draw their initial
// coordinates from a normal distribution around the configured ones.
func (r *Runner) probes(name string, cfg *config.Config, step Step) ([]probe.Probe, error) {
	n := max(step.Samples, 1)
	rng := rand.New(rand.NewPCG(step.Seed, step.Seed^0x9e3779b97f4a7c15))
	base := slices.Clone(cfg.Coords)

	out := make([]probe.Probe, 0, n)
	for i := range n {
		c := *cfg
		if n > 1 {
			c.Coords = jitter(base, step.Jitter, rng)
		}
		p, err := c.NewProbe(fmt.Sprintf("%s-%03d", name, i))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func jitter(base, rms []float64, rng *rand.Rand) []float64 {
	out := make([]float64, linalg.HOM)
	copy(out, base)
	for i := 0; i < len(rms) && i < linalg.HOM; i++ {
		out[i] += rms[i] * rng.NormFloat64()
	}
	return out
}

func mean(ms []map[string]float64) map[string]float64 {
	if len(ms) == 0 {
		return nil
	}
	out := make(map[string]float64)
	for _, m := range ms {
		for k, v := range m {
			out[k] += v
		}
	}
	for k := range out {
		out[k] /= float64(len(ms))
	}
	return out
}
