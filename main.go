// ABOUTME: Entry point for the habitly server and CLI
// ABOUTME: Routes to serve, sync, adduser, or init based on arguments
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"habitly/cli"
	"habitly/config"
	"habitly/db"
	"habitly/models"
	"habitly/sync"
	"habitly/web"
)

const version = "0.1.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("habitly version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "serve":
		if err := serve(database, cfg, logger); err != nil {
			log.Fatalf("Server failed: %v", err)
		}

	case "sync":
		providers := buildRegistry(cfg)
		tokens := sync.NewTokenManager(database, providers, logger)
		orch := sync.NewOrchestrator(database, providers, tokens, logger)
		if err := cli.SyncCommand(database, orch, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "adduser":
		if err := cli.AddUserCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "init":
		// OpenDatabase already ran the schema.
		fmt.Printf("Database initialized at %s\n", cfg.DBPath)

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// serve runs the HTTP API and the periodic sync scheduler until interrupted.
func serve(database *sql.DB, cfg *config.Config, logger *slog.Logger) error {
	providers := buildRegistry(cfg)
	tokens := sync.NewTokenManager(database, providers, logger)
	orch := sync.NewOrchestrator(database, providers, tokens, logger)
	importer := sync.NewImporter(database, providers, tokens, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := sync.NewScheduler(orch, func(ctx context.Context) ([]int64, error) {
		return db.ListLinkedUserIDs(database)
	}, logger, cfg.SyncSpec)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	server := web.NewServer(database, cfg, providers, orch, importer, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	}
}

// buildRegistry registers an adapter for each provider with credentials.
func buildRegistry(cfg *config.Config) sync.Registry {
	registry := make(sync.Registry)
	if cfg.Google.Configured() {
		registry[models.ProviderGoogle] = sync.NewGoogleProvider(
			cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI)
	}
	if cfg.Microsoft.Configured() {
		registry[models.ProviderMicrosoft] = sync.NewMicrosoftProvider(
			cfg.Microsoft.ClientID, cfg.Microsoft.ClientSecret, cfg.Microsoft.RedirectURI)
	}
	return registry
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func printUsage() {
	fmt.Println(`habitly - habit and task tracker with calendar sync

Usage:
  habitly serve                      Start the API server and sync scheduler
  habitly sync [-user ID]            Run one sync pass now
  habitly adduser -username X -email Y   Create a user account
  habitly init                       Initialize the database and exit
  habitly -version                   Show version

Configuration comes from the environment (or a .env file):
  PORT, DB_PATH, JWT_SECRET, SYNC_CRON, SYNC_TIMEOUT, LOG_LEVEL,
  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_REDIRECT_URI,
  MICROSOFT_CLIENT_ID, MICROSOFT_CLIENT_SECRET, MICROSOFT_REDIRECT_URI`)
}
