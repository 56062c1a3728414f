package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_referral_bot/internal/config"
	"tg_referral_bot/internal/logging"
	"tg_referral_bot/internal/notify"
	"tg_referral_bot/internal/store"
	"tg_referral_bot/internal/webhook"
)

const serverShutdownTimeout = 10 * time.Second

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"data_dir": cfg.DataDir,
	}).Info("configuration loaded")

	manager, err := store.NewManager(cfg.DataDir, logger)
	if err != nil {
		logger.WithError(err).Error("store setup error")
		fmt.Fprintf(os.Stderr, "store setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "store_ready").Info("data directory ready")

	notifier, err := notify.NewAdminNotifier(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("notifier setup error")
		fmt.Fprintf(os.Stderr, "notifier setup error: %v\n", err)
		os.Exit(1)
	}

	server, err := webhook.NewServer(cfg, manager, notifier, logger)
	if err != nil {
		logger.WithError(err).Error("webhook server setup error")
		fmt.Fprintf(os.Stderr, "webhook server setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "webhook_ready").Info("webhook server initialized")

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- server.ListenAndServe()
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping webhook server")
	case err := <-serverDone:
		if err != nil {
			logger.WithError(err).Error("webhook server error")
			fmt.Fprintf(os.Stderr, "webhook server error: %v\n", err)
			os.Exit(1)
		}
		logger.WithField("event", "server_stopped_early").Warn("webhook server stopped before shutdown signal")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), serverShutdownTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("webhook server shutdown error")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
