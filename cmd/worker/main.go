package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/efebarandurmaz/docrag/internal/app"
	"github.com/efebarandurmaz/docrag/internal/config"
	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/server"
	"github.com/efebarandurmaz/docrag/internal/temporal"
)

func main() {
	configPath := flag.String("config", "", "Config file path (YAML)")
	healthAddr := flag.String("health-addr", ":8081", "Health probe listen address, empty to disable")
	flag.Parse()

	if err := run(*configPath, *healthAddr); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, healthAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(os.Stderr, observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	comps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	c, err := app.DialTemporal(cfg, logger)
	if err != nil {
		_ = comps.Close(ctx)
		return err
	}

	w, err := temporal.StartWorker(c, cfg.Temporal.TaskQueue,
		&temporal.Workflows{Steps: app.StepOptions(cfg)},
		comps.Activities(),
	)
	if err != nil {
		c.Close()
		_ = comps.Close(ctx)
		return err
	}
	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "namespace", cfg.Temporal.Namespace)

	gs := server.NewGracefulServer(
		&server.HealthConfig{Version: app.Version},
		&server.ShutdownConfig{
			Timeout: cfg.Server.ShutdownTimeout,
			Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
			Logger:  logger,
		},
	)
	comps.RegisterHealth(gs.Health, c)
	gs.Shutdown.AddHook(server.TemporalWorkerShutdownHook(func() {
		w.Stop()
		c.Close()
	}))
	gs.Shutdown.AddHook(server.VectorStoreShutdownHook(comps.Store.Close))
	gs.Shutdown.AddHook(server.TracingShutdownHook(comps.Tracer.Shutdown))

	if healthAddr != "" {
		if err := gs.Start(healthAddr, nil); err != nil {
			return fmt.Errorf("health listener %s: %w", healthAddr, err)
		}
	} else {
		gs.Shutdown.Start()
	}

	gs.Wait()
	logger.Info("worker stopped")
	return nil
}
