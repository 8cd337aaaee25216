package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/san-kum/beamline/internal/probe"
	"github.com/san-kum/beamline/internal/tracker"
)

// Job is one probe and its own tracker.
type Job struct {
	Probe     probe.Probe
	Algorithm tracker.Algorithm
}

// Ensemble runs independent probes concurrently on the scenario's
// lattice. Every job needs its own probe and tracker instance.
type Ensemble struct {
	base *Scenario
	jobs []Job
}

func NewEnsemble(s *Scenario) *Ensemble {
	return &Ensemble{base: s}
}

// Add validates the pairing and queues a job.
func (e *Ensemble) Add(p probe.Probe, alg tracker.Algorithm) error {
	if alg == nil {
		var err error
		if alg, err = tracker.New(p.Kind()); err != nil {
			return err
		}
	}
	if err := alg.ValidProbe(p); err != nil {
		return err
	}
	for _, j := range e.jobs {
		if j.Probe == p || j.Algorithm == alg {
			return fmt.Errorf("probe %s: ensemble jobs cannot share a probe or tracker", p.ID())
		}
	}
	e.jobs = append(e.jobs, Job{Probe: p, Algorithm: alg})
	return nil
}

func (e *Ensemble) Jobs() []Job { return e.jobs }

// Run propagates every job and returns the per-job errors joined.
func (e *Ensemble) Run(ctx context.Context) error {
	errs := make([]error, len(e.jobs))

	var wg sync.WaitGroup
	for i, j := range e.jobs {
		wg.Add(1)
		go func(idx int, j Job) {
			defer wg.Done()

			if err := e.base.runner().run(ctx, j.Probe, j.Algorithm); err != nil {
				errs[idx] = fmt.Errorf("probe %s: %w", j.Probe.ID(), err)
			}
		}(i, j)
	}

	wg.Wait()
	return errors.Join(errs...)
}
