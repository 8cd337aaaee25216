package main

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/san-kum/beamline/internal/config"
	"github.com/san-kum/beamline/internal/elem"
)

var (
	dataDir string
	dbPath  string
	verbose bool

	configFile  string
	preset      string
	probeKind   string
	species     string
	energy      float64
	start       string
	stop        string
	policy      string
	stepSize    float64
	noSC        bool
	metricsAddr string

	plotOut  string
	plotWhat string

	scanElem  string
	scanParam string
	scanFrom  float64
	scanTo    float64
	scanSteps int

	varies      []string
	matchMetric string
)

var (
	title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dim   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	good  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	bad   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "beamline",
		Short: "linear beam dynamics propagation",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".beamline", "data directory")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "also catalogue runs in this sqlite file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [lattice.yaml]",
		Short: "propagate a probe through a lattice",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPropagation,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().StringVar(&probeKind, "probe", config.DefaultProbe, "probe kind: particle, envelope, transfermap")
	runCmd.Flags().StringVar(&species, "species", config.DefaultSpecies, "particle species")
	runCmd.Flags().Float64Var(&energy, "energy", config.DefaultEnergy, "initial kinetic energy (eV)")
	runCmd.Flags().StringVar(&start, "start", "", "start element id")
	runCmd.Flags().StringVar(&stop, "stop", "", "stop element id (inclusive)")
	runCmd.Flags().StringVar(&policy, "policy", config.DefaultPolicy, "state saving: custom, always, exit, entrance, entrance+exit")
	runCmd.Flags().Float64Var(&stepSize, "step", 0.004, "envelope sub-step length (m)")
	runCmd.Flags().BoolVar(&noSC, "no-sc", false, "disable space charge")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address after the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show run metadata and states",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVarP(&plotOut, "out", "o", "", "write a png/svg/pdf plot instead of drawing in the terminal, - for svg on stdout")
	plotCmd.Flags().StringVar(&plotWhat, "what", "auto", "auto, energy or phase")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "orbit spectrum and map stability",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	scanCmd := &cobra.Command{
		Use:   "scan [lattice.yaml]",
		Short: "sweep one element parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  scanParameter,
	}
	scanCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	scanCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	scanCmd.Flags().StringVar(&scanElem, "elem", "", "element id")
	scanCmd.Flags().StringVar(&scanParam, "param", "gradient", "parameter name")
	scanCmd.Flags().Float64Var(&scanFrom, "from", 0, "first value")
	scanCmd.Flags().Float64Var(&scanTo, "to", 1, "last value")
	scanCmd.Flags().IntVar(&scanSteps, "steps", 11, "number of values")
	_ = scanCmd.MarkFlagRequired("elem")

	matchCmd := &cobra.Command{
		Use:   "match [lattice.yaml]",
		Short: "grid-search element parameters to minimise a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  matchParameters,
	}
	matchCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	matchCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	matchCmd.Flags().StringArrayVar(&varies, "vary", nil, "parameter range elem.param=lo:hi:n (repeatable)")
	matchCmd.Flags().StringVar(&matchMetric, "metric", "max_offset_x", "metric to minimise")
	_ = matchCmd.MarkFlagRequired("vary")

	batchCmd := &cobra.Command{
		Use:   "batch [script.yaml]",
		Short: "run a scripted sequence of runs and ensembles",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run states to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [probe]",
		Short: "list available presets for a probe kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for probe: %s\n", args[0])
				return nil
			}
			fmt.Println(title.Render("presets for " + args[0]))
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	elementsCmd := &cobra.Command{
		Use:   "elements [lattice.yaml]",
		Short: "list the generated lattice",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listElements,
	}

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, analyzeCmd, scanCmd, matchCmd, batchCmd, exportCSVCmd, exportJSONCmd, presetsCmd, elementsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, bad.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func loadLattice(args []string) (*config.LatticeFile, error) {
	if len(args) == 0 {
		return config.DemoLattice(), nil
	}
	return config.LoadLattice(args[0])
}

// loadConfig layers the preset, then the config file, then changed flags
// over the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		kind := probeKind
		if kind == "" {
			kind = config.DefaultProbe
		}
		cfg = config.GetPreset(kind, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(kind))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("probe") && preset == "" {
		cfg.Probe = probeKind
	}
	if flags.Changed("species") {
		cfg.Species = species
	}
	if flags.Changed("energy") {
		cfg.Energy = energy
	}
	if flags.Changed("start") {
		cfg.Start = start
	}
	if flags.Changed("stop") {
		cfg.Stop, cfg.IncludeStop = stop, true
	}
	if flags.Changed("policy") {
		cfg.Tracker.Policy = policy
	}
	if flags.Changed("step") {
		cfg.Tracker.StepSize = stepSize
	}
	if noSC {
		cfg.Tracker.SpaceCharge = false
	}
	cfg.Tracker.Debug = cfg.Tracker.Debug || verbose
	return cfg, nil
}

func listElements(cmd *cobra.Command, args []string) error {
	lf, err := loadLattice(args)
	if err != nil {
		return err
	}
	sc, err := lf.Scenario()
	if err != nil {
		return err
	}
	l := sc.Lattice()

	fmt.Println(title.Render(fmt.Sprintf("%s  (%.4f m)", lf.Sequence, l.Length(l.Root()))))
	for id, e := range l.Leaves(l.Root()) {
		s, err := l.Position(id)
		if err != nil {
			return err
		}
		fmt.Printf("  %9.4f  %-12s %-12s %s\n", s, e.ID(), e.Kind(), dim.Render(params(e)))
	}
	return nil
}

func params(e elem.Element) string {
	c, ok := e.(elem.Configurable)
	if !ok {
		return ""
	}
	ps := c.GetParams()
	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(ps)) {
		if k == "length" {
			continue
		}
		fmt.Fprintf(&sb, "%s=%g ", k, ps[k])
	}
	return sb.String()
}
