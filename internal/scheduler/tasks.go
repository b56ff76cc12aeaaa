package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weliao/weliao/internal/database"
)

// How long a bot share request may stay pending before it is expired.
const shareRequestMaxAge = 14 * 24 * time.Hour

// TaskFunc defines the standard signature for all scheduled tasks. The
// context provided by the scheduler should be respected for cancellation.
type TaskFunc func(ctx context.Context) error

// TaskDeps contains the dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
}

// RegisterAllTasks initializes and returns a map of all registered scheduled
// tasks. The keys match the task names used in the scheduler config section.
func RegisterAllTasks(deps TaskDeps) map[string]TaskFunc {
	tasks := make(map[string]TaskFunc)

	tasks["sql_maintenance"] = newSQLMaintenanceTask(deps)
	tasks["session_cleanup"] = newSessionCleanupTask(deps)
	tasks["share_request_expiry"] = newShareRequestExpiryTask(deps)

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}

// newSQLMaintenanceTask creates the scheduled task for database maintenance.
func newSQLMaintenanceTask(deps TaskDeps) TaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting SQL maintenance task")
		startTime := time.Now()

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "SQL maintenance task failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "SQL maintenance task completed", "duration", time.Since(startTime))
		return nil
	}
}

// newSessionCleanupTask creates the scheduled task for purging expired sessions.
func newSessionCleanupTask(deps TaskDeps) TaskFunc {
	log := deps.Logger.With("task", "session_cleanup")

	return func(ctx context.Context) error {
		deleted, err := deps.Store.DeleteExpiredSessions(ctx, time.Now().UTC())
		if err != nil {
			log.ErrorContext(ctx, "Session cleanup failed", "error", err)
			return fmt.Errorf("session cleanup failed: %w", err)
		}
		log.InfoContext(ctx, "Session cleanup completed", "deleted", deleted)
		return nil
	}
}

// newShareRequestExpiryTask creates the scheduled task that expires bot share
// requests left pending too long.
func newShareRequestExpiryTask(deps TaskDeps) TaskFunc {
	log := deps.Logger.With("task", "share_request_expiry")

	return func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-shareRequestMaxAge)
		expired, err := deps.Store.ExpireStaleBotShareRequests(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Share request expiry failed", "error", err)
			return fmt.Errorf("share request expiry failed: %w", err)
		}
		log.InfoContext(ctx, "Share request expiry completed", "expired", expired)
		return nil
	}
}
