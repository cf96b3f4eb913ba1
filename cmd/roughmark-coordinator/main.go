package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/roughmark/roughmark/internal/api"
	"github.com/roughmark/roughmark/internal/config"
	"github.com/roughmark/roughmark/internal/dispatch"
	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/internal/input"
	"github.com/roughmark/roughmark/internal/metrics"
	"github.com/roughmark/roughmark/internal/pool"
	"github.com/roughmark/roughmark/internal/report"
	"github.com/roughmark/roughmark/internal/status"
	"github.com/roughmark/roughmark/internal/transport"
	"github.com/roughmark/roughmark/internal/ws"
	"github.com/roughmark/roughmark/pkg/types"
)

// runRetention is how long finished runs stay visible on the status surface.
const runRetention = time.Hour

type flags struct {
	configPath string
	local      int
	watch      bool
	input      string
	output     string
	workers    int
}

func main() {
	level := config.InstallLogger(os.Stdout)

	var f flags
	fs := flag.NewFlagSet("roughmark-coordinator", flag.ExitOnError)
	fs.StringVar(&f.configPath, "config", "", "path to config file (defaults apply when empty)")
	fs.IntVar(&f.local, "local", 0, "run an in-process pool of N processes in total, coordinator included (N >= 2)")
	fs.BoolVar(&f.watch, "watch", false, "re-grade whenever the input file changes (requires -local)")
	fs.StringVar(&f.input, "input", "", "override coordinator.input")
	fs.StringVar(&f.output, "output", "", "override coordinator.output")
	fs.IntVar(&f.workers, "workers", -1, "override coordinator.workers")

	// Every flag can also be set as ROUGHMARK_<FLAG>, e.g. ROUGHMARK_LOCAL=4.
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("ROUGHMARK")); err != nil {
		slog.Error("roughmark-coordinator: bad flags", "err", err)
		os.Exit(fault.ExitFailure)
	}

	err := run(f, level)
	if err != nil {
		slog.Error("roughmark-coordinator failed", "err", err, "exit_code", fault.ExitCode(err))
	}
	os.Exit(fault.ExitCode(err))
}

func run(f flags, level *slog.LevelVar) error {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cc := &cfg.Coordinator
	if f.input != "" {
		cc.Input = f.input
	}
	if f.output != "" {
		cc.Output = f.output
	}
	if f.workers >= 0 {
		cc.Workers = f.workers
	}

	level.Set(cfg.Log.SlogLevel())

	slog.Info("roughmark-coordinator starting",
		"config", f.configPath,
		"input", cc.Input,
		"output", cc.Output,
		"row_width", cc.RowWidth,
		"local", f.local,
		"workers", cc.Workers,
		"watch", f.watch,
	)

	if f.watch && f.local == 0 {
		return errors.New("-watch requires -local: remote workers terminate after one run")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := status.New(runRetention)
	go st.Run(ctx)

	// With the status surface up, the hub observes runs and records them in
	// st; otherwise st observes directly.
	var observer dispatch.Observer = st
	if cc.HTTPPort > 0 {
		hub, stop := serveStatus(ctx, st, cc)
		defer stop()
		observer = hub
	}

	g := &grader{cfg: cc, local: f.local, store: st, observer: observer}

	if f.watch {
		err := input.Watch(ctx, cc.Input, cc.RowWidth, func(items []types.WorkItem) {
			if err := g.grade(ctx, items); err != nil {
				slog.Error("run failed, waiting for next change", "err", err)
			}
		})
		slog.Info("roughmark-coordinator shutting down")
		return err
	}

	items, err := input.Load(cc.Input, cc.RowWidth)
	if err != nil {
		return err
	}
	return g.grade(ctx, items)
}

// grader runs one grading pass per call and writes its artefacts.
type grader struct {
	cfg      *config.CoordinatorConfig
	local    int
	store    *status.Store
	observer dispatch.Observer
}

func (g *grader) grade(ctx context.Context, items []types.WorkItem) error {
	var (
		byID, byBand []types.Result
		stats        dispatch.Stats
		err          error
	)
	if g.local > 0 {
		byID, byBand, stats, err = g.gradeLocal(ctx, items)
	} else {
		byID, byBand, stats, err = g.gradeRemote(ctx, items)
	}
	if stats.RunID != "" {
		g.store.RecordStats(stats)
		if g.cfg.MetricsPath != "" {
			if merr := metrics.WriteFile(g.cfg.MetricsPath, stats, byBand); merr != nil {
				slog.Warn("metrics file not written", "err", merr)
			}
		}
	}
	if err != nil {
		return err
	}

	if err := report.WriteFile(g.cfg.Output, byID, byBand); err != nil {
		return err
	}
	slog.Info("run complete",
		"run_id", stats.RunID,
		"students", len(byID),
		"messages", stats.Messages(),
		"duration", stats.Duration(),
	)
	return nil
}

func (g *grader) gradeLocal(ctx context.Context, items []types.WorkItem) ([]types.Result, []types.Result, dispatch.Stats, error) {
	out, err := pool.RunLocal(ctx, items, pool.Options{
		Size:        g.local,
		RowWidth:    g.cfg.RowWidth,
		Coordinator: []dispatch.Option{dispatch.WithObserver(g.observer)},
	})
	if err != nil {
		var stats dispatch.Stats
		if out != nil {
			stats = out.Stats
		}
		return nil, nil, stats, err
	}
	return out.ByID, out.ByBand, out.Stats, nil
}

func (g *grader) gradeRemote(ctx context.Context, items []types.WorkItem) ([]types.Result, []types.Result, dispatch.Stats, error) {
	if g.cfg.Workers < 1 {
		return nil, nil, dispatch.Stats{}, fmt.Errorf("coordinator.workers = %d: %w", g.cfg.Workers, fault.ErrInsufficientWorkers)
	}

	srv, err := transport.Listen(g.cfg.Listen, g.cfg.Workers)
	if err != nil {
		return nil, nil, dispatch.Stats{}, err
	}
	defer srv.Close()

	attachCtx, cancelAttach := context.WithTimeout(ctx, g.cfg.AttachTimeout)
	err = srv.Wait(attachCtx)
	cancelAttach()
	if err != nil {
		return nil, nil, dispatch.Stats{}, err
	}
	slog.Info("all workers attached", "workers", srv.Attached())

	coord := dispatch.New(srv, dispatch.WithObserver(g.observer))
	byID, byBand, err := coord.Run(ctx, items)
	return byID, byBand, coord.Stats(), err
}

// serveStatus starts the status surface. It returns the progress hub, which
// must observe every run, and a func that shuts the server down.
func serveStatus(ctx context.Context, st *status.Store, cc *config.CoordinatorConfig) (*ws.Hub, func()) {
	hub := ws.New(st, cc.ProgressInterval)
	go hub.Run(ctx)

	handler := api.New(st)
	mux := http.NewServeMux()
	mux.Handle("/api/", handler)
	mux.Handle("/metrics", handler)
	mux.Handle("/ws/progress", hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cc.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("status server listening", "port", cc.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server stopped", "err", err)
		}
	}()

	return hub, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}
}
