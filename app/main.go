package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-bulletin/app/api"
	"github.com/lysyi3m/rss-bulletin/app/cfg"
	"github.com/lysyi3m/rss-bulletin/app/database"
	"github.com/lysyi3m/rss-bulletin/app/feed"
	"github.com/lysyi3m/rss-bulletin/app/tasks"
	"github.com/lysyi3m/rss-bulletin/app/telegram"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	setupLogging(appConfig.Debug)

	if err := run(appConfig); err != nil {
		slog.Error("RSS Bulletin failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appConfig *cfg.Cfg) error {
	slog.Info("Starting RSS Bulletin", "version", appConfig.Version, "dry_run", appConfig.DryRun, "serve", appConfig.Serve)

	digestConfig, err := feed.NewConfigLoader(appConfig.DigestConfig).Run()
	if err != nil {
		return fmt.Errorf("failed to load bulletin configuration: %w", err)
	}
	slog.Info("Bulletin configuration loaded", "path", appConfig.DigestConfig, "categories", len(digestConfig.Categories))

	store, err := database.Open(appConfig.StateDriver, appConfig.StateFile, appConfig.StateLimit)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	var sender tasks.Sender
	if !appConfig.DryRun {
		telegramSender, err := telegram.NewSender(telegram.Settings{
			Token:   appConfig.BotToken,
			ChatID:  appConfig.ChatID,
			URL:     appConfig.TelegramAPIURL,
			Timeout: appConfig.FetchTimeout,
		})
		if err != nil {
			return err
		}
		sender = telegramSender
	}

	httpClient := &http.Client{}
	parser := feed.NewParser()
	settings := tasks.DigestSettings{
		Options:      appConfig.Options(),
		Location:     appConfig.Location,
		WakeHour:     appConfig.WakeHour,
		QuietHour:    appConfig.QuietHour,
		UserAgent:    appConfig.UserAgent,
		FetchTimeout: appConfig.FetchTimeout,
		DryRun:       appConfig.DryRun,
		Output:       os.Stdout,
	}

	newTask := func() tasks.TaskInterface {
		return tasks.NewDigestTask(digestConfig, settings, httpClient, parser, store, sender)
	}

	if !appConfig.Serve {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return newTask().Execute(ctx)
	}

	return serve(appConfig, digestConfig, store, newTask)
}

func serve(appConfig *cfg.Cfg, digestConfig *feed.Config, store database.SeenStore, newTask func() tasks.TaskInterface) error {
	scheduler, err := tasks.NewScheduler(appConfig.Schedule, appConfig.Location, newTask)
	if err != nil {
		return err
	}

	slog.Info("Starting scheduler", "schedule", appConfig.Schedule, "timezone", appConfig.Location.String())
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(digestConfig, store, scheduler, appConfig.Location, appConfig.Version)
	server := api.NewServer(apiHandler, appConfig.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case serveErr = <-serverErrChan:
		slog.Error("Server error", "error", serveErr)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer and waits for an in-flight run
	return serveErr
}
