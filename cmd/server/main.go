package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nexus-iot/server/internal/broadcast"
	"github.com/nexus-iot/server/internal/config"
	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	httpapi "github.com/nexus-iot/server/internal/http"
	"github.com/nexus-iot/server/internal/http/handlers"
	"github.com/nexus-iot/server/internal/logging"
	"github.com/nexus-iot/server/internal/poller"
	"github.com/nexus-iot/server/internal/registry"
	"github.com/nexus-iot/server/internal/seed"
	devicesvc "github.com/nexus-iot/server/internal/services/device"
	"github.com/nexus-iot/server/internal/simulator"
	"github.com/nexus-iot/server/internal/storage"
	"github.com/nexus-iot/server/internal/telemetry"
	"github.com/nexus-iot/server/internal/tools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	reg := registry.New(repo, logger)
	store := telemetry.NewStore(cfg.TelemetryHistoryCap)
	hub := broadcast.NewHub(logger)

	generator := simulator.NewGenerator(nil)
	generator.SetEnvironment(cfg.BaseTemperature, cfg.BaseHumidity)
	sim := simulator.New(reg, store, hub, generator, cfg.SimulatorInterval, logger)

	devices := devicesvc.New(reg, sim, hub, cfg.SimulatorInterval, logger)
	toolset := tools.New(devices, store, logger)
	ticker := poller.New(store, hub, cfg.BroadcastInterval, logger)

	if cfg.SeedDevices {
		if err := applySeed(ctx, cfg.SeedFile, devices, logger); err != nil {
			logger.Error("failed to seed devices", "err", err)
			os.Exit(1)
		}
	}

	go ticker.Run(ctx)

	api := handlers.New(devices, store, toolset, hub, ticker, logger, cfg.FrontendDist)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting",
		"addr", httpServer.Addr,
		"registry", cfg.RegistryBackend,
		"simulations", len(sim.Active()),
	)
	runErr := httpapi.RunServer(ctx, httpServer)

	stopped := sim.StopAll()
	hub.Close()
	logger.Info("server stopped", "simulations_stopped", stopped)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("server terminated with error", "err", runErr)
		os.Exit(1)
	}
}

func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (devicedomain.Repository, error) {
	if cfg.RegistryBackend == config.BackendMemory {
		return storage.NewMemory(), nil
	}
	if cfg.DBPath != storage.MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, err
		}
	}
	return storage.NewSQLite(ctx, cfg.DBPath, logger)
}

func applySeed(ctx context.Context, path string, devices devicedomain.Service, logger *slog.Logger) error {
	var (
		file *seed.File
		err  error
	)
	if path == "" {
		file, err = seed.LoadEmbedded()
	} else {
		file, err = seed.LoadFile(path)
	}
	if err != nil {
		return err
	}
	_, err = file.Apply(ctx, devices, logger)
	return err
}
