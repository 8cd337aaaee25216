package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/elem"
	"github.com/san-kum/beamline/internal/probe"
	"github.com/san-kum/beamline/internal/scenario"
)

// ScanPoint is one setting of a scanned parameter and the measured value.
type ScanPoint struct {
	Param float64
	Value float64
	Err   error
}

// Measure reduces a run's trajectory to a number.
type Measure func(states []probe.State) float64

// Scan sweeps parameter name of element elemID over [lo, hi] in steps
// points, running sc with a fresh probe from newProbe each time. Failed
// runs are recorded in their point and do not stop the sweep. The
// element's original value is restored afterwards.
func Scan(
	ctx context.Context,
	sc *scenario.Scenario,
	newProbe func() (probe.Probe, error),
	elemID, name string,
	lo, hi float64,
	steps int,
	measure Measure,
) ([]ScanPoint, error) {
	e, ok := sc.Element(elemID)
	if !ok {
		return nil, fmt.Errorf("%w: element %s", dynamo.ErrNotFound, elemID)
	}
	tunable, ok := e.(elem.Configurable)
	if !ok {
		return nil, fmt.Errorf("%w: element %s has no parameters", dynamo.ErrParameterBounds, elemID)
	}
	orig, ok := tunable.GetParams()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", elem.ErrUnknownParam, elemID, name)
	}
	defer func() {
		_ = tunable.SetParam(name, orig)
		sc.Lattice().MarkDirty()
	}()

	if steps <= 1 {
		steps = 2
	}
	step := (hi - lo) / float64(steps-1)

	results := make([]ScanPoint, 0, steps)
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		param := lo + float64(i)*step
		pt := ScanPoint{Param: param}

		if err := tunable.SetParam(name, param); err != nil {
			pt.Err = err
			results = append(results, pt)
			continue
		}
		sc.Lattice().MarkDirty()

		p, err := newProbe()
		if err != nil {
			return results, err
		}
		if err := sc.SetProbe(p); err != nil {
			return results, err
		}
		if err := sc.Run(ctx); err != nil {
			pt.Err = err
		} else {
			pt.Value = measure(probe.History(p))
		}
		results = append(results, pt)
	}
	return results, nil
}

// ScanToASCII plots the successful points of a scan.
func ScanToASCII(data []ScanPoint, width, height int) string {
	pts := make([]Point, 0, len(data))
	for _, p := range data {
		if p.Err == nil {
			pts = append(pts, Point{X: p.Param, Y: p.Value})
		}
	}
	if len(pts) == 0 {
		return ""
	}
	return PointsToASCII(pts, width, height)
}

// ScanTable renders a scan as aligned text columns.
func ScanTable(data []ScanPoint) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%14s  %14s\n", "param", "value")
	for _, p := range data {
		if p.Err != nil {
			fmt.Fprintf(&sb, "%14.6g  %14s\n", p.Param, "failed")
			continue
		}
		fmt.Fprintf(&sb, "%14.6g  %14.6g\n", p.Param, p.Value)
	}
	return sb.String()
}
