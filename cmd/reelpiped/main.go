package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"reelpipe/internal/config"
	"reelpipe/internal/daemon"
	"reelpipe/internal/hosting"
	"reelpipe/internal/jobs"
	"reelpipe/internal/logging"
	"reelpipe/internal/notifications"
	"reelpipe/internal/preflight"
	"reelpipe/internal/ratelimit"
	"reelpipe/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	for _, check := range preflight.Run(ctx, cfg) {
		if !check.OK() {
			logger.Warn("preflight check failed",
				logging.String("check", check.Name), logging.Error(check.Err))
		}
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return
	}

	workerAdapter := worker.NewHTTPAdapter(cfg.Worker,
		ratelimit.NewService(cfg.Worker.SubmitsPerSec, cfg.Worker.SubmitBurst))
	hostingService := hosting.NewHTTPService(cfg.Hosting,
		ratelimit.NewService(cfg.Hosting.CallsPerSec, cfg.Hosting.CallBurst))
	notifier := notifications.NewService(cfg)

	d, err := daemon.New(cfg, store, workerAdapter, hostingService, notifier, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("reelpiped shutting down")
}
