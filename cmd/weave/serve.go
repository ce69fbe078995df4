package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/weaverun/weave"
	"github.com/weaverun/weave/config"
	"github.com/weaverun/weave/internal/metrics"
	"github.com/weaverun/weave/internal/server"
	"github.com/weaverun/weave/internal/telemetry"
)

// runServe wires the runtime and serves the operational endpoints until a
// termination signal or a listener failure.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting weave",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := weave.New(ctx, cfg,
		weave.WithLogger(logger),
		weave.WithCollector(metrics.NewCollector("weave", logger)),
	)
	if err != nil {
		logger.Fatal("runtime init failed", zap.Error(err))
	}
	defer rt.Close()

	rt.StartHealthSweeps(ctx)

	srv := server.NewManager(rt.OpsHandler(server.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
	}), serverConfig(cfg.Server), logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("ops server start failed", zap.Error(err))
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srv.Errors():
		logger.Error("ops server failed", zap.Error(err))
	}
	stop()

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("ops server shutdown failed", zap.Error(err))
	}
	if err := rt.Close(); err != nil {
		logger.Error("runtime shutdown failed", zap.Error(err))
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}

	logger.Info("weave stopped")
}

// serverConfig maps the config section onto the ops server, keeping the
// server package's defaults for anything unset.
func serverConfig(cfg config.ServerConfig) server.Config {
	sc := server.DefaultConfig()
	if cfg.Addr != "" {
		sc.Addr = cfg.Addr
	}
	if cfg.ReadTimeout > 0 {
		sc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		sc.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.IdleTimeout > 0 {
		sc.IdleTimeout = cfg.IdleTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return sc
}
