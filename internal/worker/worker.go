package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/influencer-crm/internal/config"
	"github.com/jimdaga/influencer-crm/internal/engagements"
	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// scanBatchSize bounds the engagements reminded per scan
const scanBatchSize = 500

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

// Implement asynq.Logger interface methods
func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, db *gorm.DB) error {
	srv, mux, enqueuer, err := newServer(cfg, db)
	if err != nil {
		return err
	}
	defer enqueuer.Close()

	// Note: Scheduler is started separately in main.go worker mode
	// and deferred there for shutdown coordination.
	// Run blocks and handles its own signal interception
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, db *gorm.DB) (stop func(), err error) {
	srv, mux, enqueuer, err := newServer(cfg, db)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		enqueuer.Close()
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() {
		srv.Shutdown()
		enqueuer.Close()
	}, nil
}

func newServer(cfg *config.Config, db *gorm.DB) (*asynq.Server, *asynq.ServeMux, *asynq.Client, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := slog.Default()

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     5,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	// The scan fans out reminder tasks through its own client.
	enqueuer := asynq.NewClient(redisOpt)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskFollowUpScan, handleFollowUpScan(logger, engagements.NewStore(db), enqueuer, time.Now))
	mux.HandleFunc(TaskFollowUpRemind, handleFollowUpRemind(logger, db))

	logger.Info("Worker starting", "concurrency", 5, "redis", cfg.RedisURL)
	return srv, mux, enqueuer, nil
}

// handleFollowUpScan enqueues one reminder per engagement whose follow-up
// date has passed.
func handleFollowUpScan(logger *slog.Logger, store *engagements.Store, enqueuer Enqueuer, now func() time.Time) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		due, err := store.DueFollowUps(ctx, now().UTC(), scanBatchSize)
		if err != nil {
			// Database error - retryable
			return err
		}

		enqueued := 0
		for _, d := range due {
			reminder, err := newFollowUpReminderTask(reminderPayload{
				EngagementID: d.EngagementID,
				BrandID:      d.BrandID,
				InfluencerID: d.InfluencerID,
				DueAt:        d.NextFollowUpDate.UTC(),
			})
			if err != nil {
				return fmt.Errorf("failed to build reminder: %w", asynq.SkipRetry)
			}

			if _, err := enqueuer.EnqueueContext(ctx, reminder); err != nil {
				if errors.Is(err, asynq.ErrDuplicateTask) {
					continue
				}
				return fmt.Errorf("failed to enqueue reminder for engagement %d: %w", d.EngagementID, err)
			}
			enqueued++
		}

		logger.Info("Follow-up scan completed", "due", len(due), "enqueued", enqueued)
		return nil
	}
}

// handleFollowUpRemind writes a follow_up_due activity for an engagement
// that is still due on the date in the payload.
func handleFollowUpRemind(logger *slog.Logger, db *gorm.DB) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload reminderPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		var e models.Engagement
		err := db.WithContext(ctx).
			Select("id", "campaign_name", "negotiation_status", "next_follow_up_date").
			First(&e, payload.EngagementID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Error("Engagement not found", "engagement_id", payload.EngagementID)
				return fmt.Errorf("engagement not found: %w", asynq.SkipRetry)
			}
			return fmt.Errorf("failed to fetch engagement: %w", err)
		}

		// Rescheduled or closed since the scan
		if e.NextFollowUpDate == nil || !e.NextFollowUpDate.Equal(payload.DueAt) ||
			negotiation.Status(e.NegotiationStatus).Terminal() {
			logger.Info("Follow-up no longer due", "engagement_id", payload.EngagementID)
			return nil
		}

		activity := models.Activity{
			EngagementID: payload.EngagementID,
			BrandID:      payload.BrandID,
			InfluencerID: payload.InfluencerID,
			Type:         models.ActivityFollowUpDue,
			Description:  reminderText(e.CampaignName, payload.DueAt),
			Actor:        "system",
			SourceKey:    fmt.Sprintf("followup:%d:%d", payload.EngagementID, payload.DueAt.Unix()),
		}
		if err := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_key"}}, DoNothing: true}).
			Create(&activity).Error; err != nil {
			return fmt.Errorf("failed to write reminder activity: %w", err)
		}

		logger.Info("Follow-up reminder written", "engagement_id", payload.EngagementID, "due_at", payload.DueAt)
		return nil
	}
}

func reminderText(campaign string, due time.Time) string {
	if campaign == "" {
		return fmt.Sprintf("Follow-up due since %s", due.Format("Jan 2, 2006"))
	}
	return fmt.Sprintf("Follow-up for %s due since %s", campaign, due.Format("Jan 2, 2006"))
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		// Check if this is the final failure (task will move to dead letter queue)
		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
