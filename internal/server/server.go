// Package server wires the HTTP API, the bot reply dispatcher, and the
// task scheduler into a single supervised lifecycle for the WeLiao server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/weliao/weliao/internal/botreply"
	"github.com/weliao/weliao/internal/config"
	"github.com/weliao/weliao/internal/scheduler"
	"github.com/weliao/weliao/internal/server/handlers"
)

// Server represents the main application and manages its components' lifecycle.
type Server struct {
	logger     *slog.Logger
	cfg        *config.Config
	dispatcher *botreply.Dispatcher
	scheduler  *scheduler.Scheduler
	httpServer *http.Server
}

// NewServer creates the server with all required dependencies and builds the
// API router from them.
func NewServer(
	logger *slog.Logger,
	cfg *config.Config,
	deps handlers.HandlerDeps,
	dispatcher *botreply.Dispatcher,
	sched *scheduler.Scheduler,
) *Server {
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		logger:     logger.With("component", "server"),
		cfg:        cfg,
		dispatcher: dispatcher,
		scheduler:  sched,
		httpServer: httpServer,
	}
}

// Run starts all components and handles graceful shutdown on context
// cancellation. It returns an error if any component fails during startup or
// execution.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting server...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting HTTP listener...", "addr", s.httpServer.Addr)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP listener failed", "error", err)
			return fmt.Errorf("http listener failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.logger.Info("Shutdown signal received, stopping HTTP listener...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Error stopping HTTP listener", "error", err)
			return fmt.Errorf("http shutdown failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.logger.Info("Starting bot reply dispatcher...")
		return s.dispatcher.Run(gCtx)
	})

	g.Go(func() error {
		s.logger.Info("Starting scheduler...")
		if err := s.scheduler.Start(); err != nil {
			s.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		s.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := s.scheduler.Stop(); err != nil {
			s.logger.Error("Error stopping scheduler", "error", err)
		}

		return nil
	})

	s.logger.Info("Server running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Server stopped due to error", "error", err)
		return err
	}

	s.logger.Info("Server stopped gracefully.")
	return nil
}
