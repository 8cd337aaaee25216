package main

import (
	"context"
	"fmt"
	"maps"
	"math"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/beamline/internal/analysis"
	"github.com/san-kum/beamline/internal/automation"
	"github.com/san-kum/beamline/internal/export"
	"github.com/san-kum/beamline/internal/linalg"
	"github.com/san-kum/beamline/internal/optim"
	"github.com/san-kum/beamline/internal/probe"
	"github.com/san-kum/beamline/internal/storage"
)

func printMetrics(m map[string]float64) {
	fmt.Println("\n" + title.Render("metrics"))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		fmt.Printf("  %-22s %.6g\n", name, m[name])
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	var runs []storage.RunMetadata
	var err error
	if dbPath != "" {
		db, err := storage.OpenDB(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		runs, err = db.Runs(context.Background(), "")
		if err != nil {
			return err
		}
	} else {
		runs, err = storage.New(dataDir).List()
		if err != nil {
			return err
		}
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEQUENCE\tPROBE\tTIME\tSTATES\tW OUT (MeV)\tSTATUS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.4f\t%s\n",
			run.ID,
			run.Sequence,
			run.Probe,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.States,
			run.FinalEnergy/1e6,
			run.Status,
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, []probe.State, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	states, err := st.LoadStates(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, states, nil
}

func showRun(cmd *cobra.Command, args []string) error {
	meta, states, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Println(title.Render("run " + meta.ID))
	fmt.Printf("sequence: %s  probe: %s (%s)  tracker: %s  policy: %s\n",
		meta.Sequence, meta.Probe, meta.Species, meta.Tracker, meta.Policy)
	fmt.Printf("energy: %.6f -> %.6f MeV over %.4f m\n", meta.InitialEnergy/1e6, meta.FinalEnergy/1e6, meta.Length)
	if meta.Error != "" {
		fmt.Println(bad.Render("error: ") + meta.Error)
	}
	printMetrics(meta.Metrics)

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "S (m)\tELEMENT\tTYPE\tW (MeV)\tPHASE")
	for _, st := range states {
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%.6f\t%.4f\n",
			st.Position(), st.ElementID(), st.ElementType(), st.KineticEnergy()/1e6, st.Phase())
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, states, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}
	kind, err := meta.Kind()
	if err != nil {
		return err
	}

	if plotWhat == "phase" && kind != probe.KindEnvelope {
		return plotPortrait(states)
	}
	if plotOut != "" {
		return writePlot(meta, kind, states)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("sequence: %s\n", meta.Sequence)
	fmt.Printf("samples: %d\n\n", len(states))

	type series struct {
		caption string
		value   func(probe.State) float64
	}
	var all []series
	if kind == probe.KindEnvelope {
		for i, plane := range []string{"x", "y", "z"} {
			all = append(all, series{plane + " rms (mm)", func(st probe.State) float64 {
				return st.(*probe.EnvelopeState).Cov.RMSEnvelopes()[i] * 1e3
			}})
		}
	} else {
		for _, c := range []struct {
			name string
			idx  int
		}{{"x (mm)", linalg.X}, {"y (mm)", linalg.Y}, {"z (mm)", linalg.Z}} {
			all = append(all, series{c.name, func(st probe.State) float64 {
				return coordsOf(st)[c.idx] * 1e3
			}})
		}
	}
	all = append(all, series{"W (MeV)", func(st probe.State) float64 { return st.KineticEnergy() / 1e6 }})

	for _, s := range all {
		data := make([]float64, len(states))
		for i, st := range states {
			data[i] = s.value(st)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(s.caption+" vs element"),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

// writePlot renders the selected plot to plotOut, or to stdout as svg
// when plotOut is "-".
func writePlot(meta *storage.RunMetadata, kind probe.Kind, states []probe.State) error {
	name := fmt.Sprintf("%s %s", meta.Sequence, meta.Probe)

	var plt *plot.Plot
	var err error
	switch {
	case plotWhat == "energy":
		plt, err = export.EnergyPlot(name, states)
	case plotWhat == "phase":
		es, ok := states[len(states)-1].(*probe.EnvelopeState)
		if !ok {
			return fmt.Errorf("no envelope state at the end of run %s", meta.ID)
		}
		plt, err = export.PhaseSpacePlot(name+" at "+es.ElementID(), es)
	case kind == probe.KindEnvelope:
		plt, err = export.EnvelopePlot(name, states)
	default:
		plt, err = export.OrbitPlot(name, states)
	}
	if err != nil {
		return err
	}

	if plotOut == "-" {
		return export.Write(os.Stdout, plt, "svg", 8*vg.Inch, 4*vg.Inch)
	}
	if err := export.Save(plt, plotOut, 8*vg.Inch, 4*vg.Inch); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", plotOut)
	return nil
}

// plotPortrait draws the x-x' centroid path of a particle or transfer map
// run, as text or as a bare svg polyline.
func plotPortrait(states []probe.State) error {
	pts := analysis.PhasePortrait(states, linalg.X, linalg.XP)
	if len(pts) < 2 {
		return fmt.Errorf("need at least 2 states with coordinates, got %d", len(pts))
	}
	if plotOut == "" {
		fmt.Println(title.Render("x - x' centroid"))
		fmt.Print(analysis.PointsToASCII(pts, 60, 20))
		return nil
	}

	svg := export.PathToSVG(pts, 600, 600, "#1f77b4")
	if plotOut == "-" {
		_, err := fmt.Print(svg)
		return err
	}
	if export.FormatOf(plotOut) != "svg" {
		return fmt.Errorf("phase portraits are written as svg, got %s", plotOut)
	}
	if err := os.WriteFile(plotOut, []byte(svg), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", plotOut)
	return nil
}

func coordsOf(st probe.State) linalg.PhaseVector {
	switch s := st.(type) {
	case *probe.ParticleState:
		return s.Coords
	case *probe.TransferMapState:
		return s.Coords
	}
	return linalg.ZeroVector()
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, states, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(states) < 2 {
		return fmt.Errorf("need at least 2 states, got %d", len(states))
	}
	kind, err := meta.Kind()
	if err != nil {
		return err
	}

	fmt.Println(title.Render("analysis: " + meta.ID))

	if tm, ok := states[len(states)-1].(*probe.TransferMapState); ok {
		first := states[0].(*probe.TransferMapState)
		m, err := probe.TransferMatrix(first, tm)
		if err != nil {
			return err
		}
		fmt.Printf("\nmap %s -> %s as one period:\n", first.ElementID(), tm.ElementID())
		for i, sol := range analysis.PeriodicSolution(m) {
			plane := []string{"x", "y", "z"}[i]
			if !sol.Stable {
				fmt.Printf("  %s: %s (trace %.4f)\n", plane, bad.Render("unstable"), sol.Trace)
				continue
			}
			fmt.Printf("  %s: mu=%.2f deg  beta=%.4f m  alpha=%.4f\n",
				plane, sol.PhaseAdvance*180/math.Pi, sol.Beta, sol.Alpha)
		}
		fmt.Printf("  growth rate: %.6f\n", analysis.GrowthRate(m))
	}

	if kind == probe.KindEnvelope {
		return nil
	}

	orbit := analysis.OrbitSpectrum(states, linalg.X, 256)
	if orbit.Power == nil {
		return nil
	}
	plotData := orbit.Power[:len(orbit.Power)/4]
	fmt.Println()
	fmt.Println(asciigraph.Plot(plotData,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption("orbit power spectrum (x)"),
	))

	peak := orbit.Peak()
	if k := orbit.Wavenumber(peak); k > 0 {
		fmt.Printf("\ndominant wavenumber: %.4f 1/m\n", k)
		fmt.Printf("wavelength: %.4f m\n", 1/k)
	}
	return nil
}

func scanParameter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	lf, err := loadLattice(args)
	if err != nil {
		return err
	}
	sc, err := lf.Scenario()
	if err != nil {
		return err
	}
	if _, err := cfg.Apply(sc, "scan"); err != nil {
		return err
	}
	if err := sc.Resync(); err != nil {
		return err
	}

	newProbe := func() (probe.Probe, error) { return cfg.NewProbe("scan") }
	measure := func(states []probe.State) float64 {
		if len(states) == 0 {
			return math.NaN()
		}
		last := states[len(states)-1]
		if es, ok := last.(*probe.EnvelopeState); ok {
			return es.Cov.RMSEnvelopes()[linalg.PlaneX] * 1e3
		}
		return coordsOf(last)[linalg.X] * 1e3
	}

	pts, err := analysis.Scan(cmd.Context(), sc, newProbe, scanElem, scanParam, scanFrom, scanTo, scanSteps, measure)
	if err != nil {
		return err
	}

	fmt.Println(title.Render(fmt.Sprintf("scan %s.%s, final x (mm)", scanElem, scanParam)))
	fmt.Print(analysis.ScanTable(pts))
	fmt.Println()
	fmt.Print(analysis.ScanToASCII(pts, 60, 15))
	return nil
}

func matchParameters(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	lf, err := loadLattice(args)
	if err != nil {
		return err
	}
	sc, err := lf.Scenario()
	if err != nil {
		return err
	}
	if _, err := cfg.Apply(sc, "match"); err != nil {
		return err
	}
	if err := sc.Resync(); err != nil {
		return err
	}

	names := make([]string, 0, len(varies))
	ranges := make([][]float64, 0, len(varies))
	for _, v := range varies {
		name, vals, err := optim.ParseRange(v)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}

	m := optim.NewMatcher(sc, func() (probe.Probe, error) { return cfg.NewProbe("match") }, matchMetric)
	fmt.Printf("matching %s over %d points...\n", matchMetric, optim.NewGridSearch(names, ranges).Points())
	best, score, err := m.Match(cmd.Context(), names, ranges)
	if err != nil {
		return err
	}

	fmt.Println(title.Render(fmt.Sprintf("best %s = %.6g", matchMetric, score)))
	for _, name := range names {
		fmt.Printf("  %-24s %.6g\n", name, best[name])
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	script, err := automation.LoadScript(args[0])
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Println(title.Render("script " + script.Name))
	if script.Description != "" {
		fmt.Println(dim.Render(script.Description))
	}
	r := &automation.Runner{Store: st}
	results, err := r.RunScript(cmd.Context(), script)
	for _, res := range results {
		status := good.Render("ok")
		if res.Failed > 0 {
			status = bad.Render(fmt.Sprintf("%d/%d failed", res.Failed, res.Runs))
		}
		fmt.Printf("\n%s  runs=%d  %s\n", title.Render(res.Name), res.Runs, status)
		for _, id := range res.RunIDs {
			fmt.Printf("  saved %s\n", id)
		}
		printMetrics(res.Metrics)
	}
	return err
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, states, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to export")
	}
	return storage.WriteCSV(os.Stdout, states)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, states, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, *meta, states)
}
