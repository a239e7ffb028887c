package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/influencer-crm/internal/config"
)

// StartScheduler creates and starts an Asynq Scheduler for periodic tasks.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Parse timezone from config
	location, err := time.LoadLocation(cfg.FollowUpTimezone)
	if err != nil {
		slog.Warn("Invalid timezone, using UTC", "timezone", cfg.FollowUpTimezone, "error", err)
		location = time.UTC
	}

	logger := slog.Default()

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: location,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	// Prevent duplicate if scheduler runs twice
	entryID, err := scheduler.Register(cfg.FollowUpSchedule, newFollowUpScanTask(), asynq.Unique(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("failed to register follow-up schedule: %w", err)
	}

	// Start scheduler (non-blocking)
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info(
		"Scheduler started",
		"schedule", cfg.FollowUpSchedule,
		"timezone", cfg.FollowUpTimezone,
		"entry_id", entryID,
	)

	return func() { scheduler.Shutdown() }, nil
}
