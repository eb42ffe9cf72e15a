package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cadenza/internal/auth"
	"cadenza/internal/catalog"
	"cadenza/internal/config"
	"cadenza/internal/ngrok"
	"cadenza/internal/server"
	"cadenza/internal/storage"
	"cadenza/internal/telegram"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load .env before the config layer reads the environment
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logger.WithError(err).Warn("Could not load .env file")
		}
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	applyLogging(logger, cfg)

	// Initialize storage
	store, err := storage.Open(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing storage")
	}
	defer store.Close()

	// Telegram client is optional; without a token the catalog serves
	// whatever storage already holds and the file relay reports 502
	var tgClient *telegram.Client
	var updateSource catalog.UpdateSource
	if cfg.Telegram.BotToken != "" {
		tgClient, err = telegram.New(cfg.Telegram.BotToken)
		if err != nil {
			logger.WithError(err).Fatal("Error creating telegram client")
		}
		updateSource = tgClient
	} else {
		logger.Warn("No bot token configured, webhook ingestion and file relay are disabled")
	}

	synchronizer := catalog.NewSynchronizer(store, logger)
	query := catalog.NewQuery(store, updateSource, cfg.Telegram.BackfillLimit, logger)
	authMgr := auth.NewManager(store, cfg.Admin.Secret, cfg.SessionTTL(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start ngrok tunnel if enabled
	tunnel, err := ngrok.NewService(&cfg.Ngrok)
	if err != nil {
		logger.WithError(err).Fatal("Error creating ngrok service")
	}
	if tunnel != nil {
		if err := tunnel.StartTunnel(ctx, "http://"+cfg.GetAddress()); err != nil {
			logger.WithError(err).Fatal("Error starting ngrok tunnel")
		}
		defer tunnel.Stop()
	}

	srv := server.New(cfg, logger, store, synchronizer, query, authMgr, tgClient)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if err := srv.Start(ctx, tunnel); err != nil {
		logger.WithError(err).Fatal("Server error")
	}
}

func applyLogging(logger *logrus.Logger, cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}
