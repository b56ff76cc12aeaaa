// Package main contains the entrypoint for the WeLiao server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weliao/weliao/internal/botreply"
	"github.com/weliao/weliao/internal/completion"
	"github.com/weliao/weliao/internal/config"
	"github.com/weliao/weliao/internal/database"
	"github.com/weliao/weliao/internal/logger"
	"github.com/weliao/weliao/internal/scheduler"
	"github.com/weliao/weliao/internal/server"
	"github.com/weliao/weliao/internal/server/handlers"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// completion client, dispatcher, scheduler, HTTP server), handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db) // Ensure DB is closed on function exit
	store := database.NewStore(db, log)

	complClient, err := completion.NewClient(ctx, cfg.Completion, log)
	if err != nil {
		log.Error("Failed to initialize completion client", "backend", cfg.Completion.Backend, "error", err)
		return 1
	}

	orchestrator := botreply.NewOrchestrator(store, complClient, log, cfg.BotReply.HistoryLimit)
	dispatcher := botreply.NewDispatcher(
		orchestrator,
		store,
		log,
		cfg.BotReply.QueueSize,
		cfg.BotReply.MaxChainDepth,
		cfg.BotReply.RunTimeout,
	)

	hDeps := handlers.HandlerDeps{
		Logger:     log,
		Store:      store,
		Completion: complClient,
		Dispatcher: dispatcher,
		Config:     cfg,
	}
	tDeps := scheduler.TaskDeps{
		Logger: log,
		Store:  store,
	}

	sched, err := scheduler.NewScheduler(log, &cfg.Scheduler, scheduler.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := server.NewServer(log, cfg, hDeps, dispatcher, sched)

	log.Info("Starting WeLiao server...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Server run loop finished. Initiating shutdown...")

	// Check if the error is significant (not just context cancellation)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Server stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Server stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
