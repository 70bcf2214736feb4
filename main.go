package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dzakarias/orderbook-replayer/config"
	"github.com/dzakarias/orderbook-replayer/internal/archive/s3"
	"github.com/dzakarias/orderbook-replayer/internal/metrics"
	"github.com/dzakarias/orderbook-replayer/internal/recorder"
	"github.com/dzakarias/orderbook-replayer/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting recorder")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var uploader recorder.Uploader
	if cfg.Storage.S3.Enabled {
		store, err := s3.NewStore(ctx, cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("failed to create S3 store")
			os.Exit(1)
		}
		uploader = store
	} else {
		log.WithComponent("main").Info("S3 storage disabled; archives stay local")
	}

	publisher, err := metrics.NewPublisher(ctx, cfg.Metrics.CloudWatch)
	if err != nil {
		log.WithError(err).Error("failed to create CloudWatch publisher")
		os.Exit(1)
	}
	publisher.Start(ctx)

	rec, err := recorder.NewRecorder(cfg, uploader)
	if err != nil {
		log.WithError(err).Error("failed to create recorder")
		os.Exit(1)
	}
	if err := rec.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start recorder")
		os.Exit(1)
	}
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()
	rec.Stop()
	publisher.Stop()

	log.Info("recorder stopped")
}
