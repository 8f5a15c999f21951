// Package main runs the HCC MVI risk HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hcc-mvi-risk-server/internal/api"
	"github.com/hcc-mvi-risk-server/internal/app"
	"github.com/hcc-mvi-risk-server/internal/config"
	"github.com/hcc-mvi-risk-server/internal/logging"
)

func main() {
	configFile := flag.String("config", "", "path to config file (default: search ./, ./config, /etc/mvi-risk-server)")
	flag.Parse()

	configManager, err := config.NewManagerWithFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := logging.FromConfig(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	server := api.NewServer(cfg.Server, logger, api.Services{
		Predictor:   application.Predictor,
		Assessments: application.Assessments,
		Calibration: application.Calibration,
		Store:       application.Store,
		Importer:    application.Importer,
		Ping:        application.Ping,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	logger.WithFields(logrus.Fields{
		"host":     cfg.Server.Host,
		"port":     cfg.Server.Port,
		"storage":  cfg.Storage.Driver,
		"strategy": application.Predictor.Summary().Strategy,
	}).Info("Starting HCC MVI risk server")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("Server failed")
		application.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
