package optim

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/metrics"
	"github.com/san-kum/beamline/internal/probe"
	"github.com/san-kum/beamline/internal/scenario"
)

// Matcher tunes element parameters of a scenario to minimise a metric.
// Parameters are named "<element>.<param>", e.g. "QH01.gradient".
type Matcher struct {
	sc       *scenario.Scenario
	newProbe func() (probe.Probe, error)
	metric   string
}

func NewMatcher(sc *scenario.Scenario, newProbe func() (probe.Probe, error), metric string) *Matcher {
	return &Matcher{sc: sc, newProbe: newProbe, metric: metric}
}

func (m *Matcher) param(name string) (elem.Configurable, string, error) {
	id, key, ok := strings.Cut(name, ".")
	if !ok {
		return nil, "", fmt.Errorf("parameter %q: want element.param", name)
	}
	e, found := m.sc.Element(id)
	if !found {
		return nil, "", fmt.Errorf("%w: element %s", dynamo.ErrNotFound, id)
	}
	c, ok := e.(elem.Configurable)
	if !ok {
		return nil, "", fmt.Errorf("%w: element %s has no parameters", dynamo.ErrParameterBounds, id)
	}
	if _, ok := c.GetParams()[key]; !ok {
		return nil, "", fmt.Errorf("%w: %s", elem.ErrUnknownParam, name)
	}
	return c, key, nil
}

// Objective applies params, runs a fresh probe and returns the metric.
func (m *Matcher) Objective(ctx context.Context, params map[string]float64) (float64, error) {
	for name, v := range params {
		c, key, err := m.param(name)
		if err != nil {
			return 0, err
		}
		if err := c.SetParam(key, v); err != nil {
			return 0, err
		}
	}
	m.sc.Lattice().MarkDirty()

	p, err := m.newProbe()
	if err != nil {
		return 0, err
	}
	if err := m.sc.SetProbe(p); err != nil {
		return 0, err
	}
	if err := m.sc.Run(ctx); err != nil {
		return 0, err
	}

	vals := metrics.Evaluate(probe.History(p), metrics.Standard(p.Kind())...)
	v, ok := vals[m.metric]
	if !ok {
		return math.NaN(), fmt.Errorf("%w: metric %s for %s probes", dynamo.ErrNotFound, m.metric, p.Kind())
	}
	return v, nil
}

// Match grid-searches the named parameters and leaves the best values
// applied to the lattice.
func (m *Matcher) Match(ctx context.Context, names []string, ranges [][]float64) (map[string]float64, float64, error) {
	orig := make(map[string]float64, len(names))
	for _, name := range names {
		c, key, err := m.param(name)
		if err != nil {
			return nil, 0, err
		}
		orig[name] = c.GetParams()[key]
	}

	best, score, err := NewGridSearch(names, ranges).Search(ctx, m.Objective)
	apply := best
	if err != nil {
		apply = orig
	}
	for name, v := range apply {
		c, key, _ := m.param(name)
		_ = c.SetParam(key, v)
	}
	m.sc.Lattice().MarkDirty()
	return best, score, err
}
