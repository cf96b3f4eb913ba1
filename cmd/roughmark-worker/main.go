package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3"

	"github.com/roughmark/roughmark/internal/config"
	"github.com/roughmark/roughmark/internal/fault"
	"github.com/roughmark/roughmark/internal/transport"
	"github.com/roughmark/roughmark/internal/worker"
)

func main() {
	level := config.InstallLogger(os.Stdout)

	fs := flag.NewFlagSet("roughmark-worker", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (defaults apply when empty)")
	endpoint := fs.String("coordinator", "", "override worker.coordinator_endpoint")

	// Flags can also be set as ROUGHMARK_WORKER_<FLAG>.
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("ROUGHMARK_WORKER")); err != nil {
		slog.Error("roughmark-worker: bad flags", "err", err)
		os.Exit(fault.ExitFailure)
	}

	err := run(*configPath, *endpoint, level)
	if err != nil {
		slog.Error("roughmark-worker failed", "err", err, "exit_code", fault.ExitCode(err))
	}
	os.Exit(fault.ExitCode(err))
}

func run(configPath, endpoint string, level *slog.LevelVar) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	wc := cfg.Worker
	if endpoint != "" {
		wc.CoordinatorEndpoint = endpoint
	}

	level.Set(cfg.Log.SlogLevel())

	slog.Info("roughmark-worker starting",
		"config", configPath,
		"coordinator_endpoint", wc.CoordinatorEndpoint,
		"row_width", wc.RowWidth,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, cancelDial := context.WithTimeout(ctx, wc.DialTimeout)
	ep, err := transport.Dial(dialCtx, wc.CoordinatorEndpoint)
	cancelDial()
	if err != nil {
		return err
	}
	defer ep.Close()

	stats, err := worker.Run(ctx, ep, worker.Options{RowWidth: wc.RowWidth})
	if err != nil {
		return err
	}
	slog.Info("roughmark-worker done", "rank", stats.Rank, "computed", stats.Computed)
	return nil
}
