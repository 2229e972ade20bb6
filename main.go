package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nexus_server/config"
	"nexus_server/internal/bootstrap"
	"nexus_server/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "nexus",
	})

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	mode := flag.String("mode", "all", "Run mode: api, scheduler, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config: %v", err)
	}

	switch *mode {
	case "api":
		runAPI(cfg, cfg.SchedulerEnabled)
	case "scheduler":
		runScheduler(cfg)
	case "all":
		runAPI(cfg, true)
	default:
		logger.Fatal("unknown mode: %s", *mode)
	}
}

func runAPI(cfg *config.Config, withScheduler bool) {
	app, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		logger.Fatal("failed to initialize API: %v", err)
	}
	defer cleanup()

	if withScheduler {
		scheduler, schedulerCleanup, err := bootstrap.NewScheduler(cfg)
		if err != nil {
			logger.Fatal("failed to initialize scheduler: %v", err)
		}
		defer schedulerCleanup()
		scheduler.Start()
		defer scheduler.Stop()
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down API server (timeout: %v)", shutdownTimeout)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- app.Shutdown()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Error("error shutting down: %v", err)
			} else {
				logger.Info("API server shut down gracefully")
			}
		case <-ctx.Done():
			logger.Warn("API shutdown timed out, forcing exit")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("failed to start server: %v", err)
	}
}

func runScheduler(cfg *config.Config) {
	scheduler, cleanup, err := bootstrap.NewScheduler(cfg)
	if err != nil {
		logger.Fatal("failed to initialize scheduler: %v", err)
	}
	defer cleanup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("starting briefing scheduler")
	scheduler.Start()

	<-sigChan
	logger.Info("shutting down scheduler")
	scheduler.Stop()
}
