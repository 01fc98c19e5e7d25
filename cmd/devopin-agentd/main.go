package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/devopin/agent/internal/buildinfo"
	"github.com/devopin/agent/pkg/agent"
	"github.com/devopin/agent/pkg/checkpoint"
	"github.com/devopin/agent/pkg/config"
	"github.com/devopin/agent/pkg/control"
	"github.com/devopin/agent/pkg/ingest"
	"github.com/devopin/agent/pkg/servicectl"
	"github.com/devopin/agent/pkg/sysmetrics"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("devopin-agentd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(config.Resolve(*configPath))
	if err != nil {
		logger.Error("cannot load config", "err", err)
		os.Exit(1)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("config validation", "err", e)
		}
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	manager := servicectl.NewManager(logger)
	store := checkpoint.NewStore(cfg.CheckpointFile, logger)
	engine := ingest.New(store, logger)

	var backend *agent.BackendClient
	if cfg.BackendURL != "" {
		backend = agent.NewBackendClient(cfg.BackendURL)
	}

	mon := agent.New(agent.Options{
		Engine:   engine,
		Metrics:  sysmetrics.New(logger),
		Services: manager,
		Backend:  backend,
		Fallback: agent.NewLocalStore(cfg.FallbackDir),
		Projects: cfg.Projects,
		Watched:  cfg.Services,
		Logger:   logger,
	})
	go mon.Run(ctx, cfg.PollInterval())

	srv := control.NewServer(cfg.SocketPath, cfg.FileMode(), manager, logger)
	defer srv.Stop()

	logger.Info("starting devopin-agentd",
		"version", buildinfo.Version,
		"socket", cfg.SocketPath,
		"interval", cfg.PollInterval(),
		"projects", len(cfg.Projects))

	if err := srv.Start(ctx); err != nil {
		logger.Error("control server error", "err", err)
		os.Exit(1)
	}
}
