package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/san-kum/beamline/internal/metrics"
	"github.com/san-kum/beamline/internal/probe"
	"github.com/san-kum/beamline/internal/storage"
)

func runPropagation(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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
	p, err := cfg.Apply(sc, lf.Sequence+"-"+cfg.Probe)
	if err != nil {
		return err
	}
	if err := sc.Resync(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	sc.AddObserver(rec)

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("propagating %s probe through %s...\n", cfg.Probe, lf.Sequence)
	began := time.Now()
	runErr := sc.Run(ctx)
	elapsed := time.Since(began)
	rec.ObserveRun(p, began, runErr)

	states := probe.History(p)
	meta := storage.RunMetadata{
		Sequence: lf.Sequence,
		Probe:    cfg.Probe,
		Species:  cfg.Species,
		Tracker:  sc.Algorithm().Type(),
		Policy:   cfg.Tracker.Policy,
		Sync:     cfg.Sync,
		Status:   p.Status().String(),
		Metrics:  metrics.Evaluate(states, metrics.Standard(p.Kind())...),
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}

	runID, err := st.Save(meta, states)
	if err != nil {
		return err
	}
	if dbPath != "" {
		if err := catalogue(ctx, runID, meta, states); err != nil {
			return err
		}
	}

	if runErr != nil {
		fmt.Println(bad.Render("failed: ") + runErr.Error())
	} else {
		fmt.Println(good.Render(fmt.Sprintf("completed in %v", elapsed)))
	}
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("states: %d\n", len(states))
	printMetrics(meta.Metrics)

	if metricsAddr != "" {
		return serveMetrics(ctx, reg)
	}
	return runErr
}

func catalogue(ctx context.Context, runID string, meta storage.RunMetadata, states []probe.State) error {
	db, err := storage.OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	meta.ID = runID
	_, err = db.SaveRun(ctx, meta, states)
	return err
}

func serveMetrics(ctx context.Context, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	slog.Info("serving metrics", slog.String("addr", metricsAddr))
	fmt.Println(dim.Render("serving metrics on " + metricsAddr + "/metrics, ctrl-c to stop"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
