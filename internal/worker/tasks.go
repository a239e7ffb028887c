package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskFollowUpScan   = "followup:scan"
	TaskFollowUpRemind = "followup:remind"
)

// Enqueuer is the part of asynq.Client the task handlers need
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Package-level Asynq client (singleton)
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any EnqueueX functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// EnqueueFollowUpScan asks the worker for an immediate follow-up scan,
// outside the periodic schedule.
func EnqueueFollowUpScan(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("task client not initialized")
	}
	_, err := client.EnqueueContext(ctx, newFollowUpScanTask())
	return err
}

// reminderPayload identifies one due follow-up of an engagement
type reminderPayload struct {
	EngagementID uint      `json:"engagement_id"`
	BrandID      uint      `json:"brand_id"`
	InfluencerID uint      `json:"influencer_id"`
	DueAt        time.Time `json:"due_at"`
}

func newFollowUpScanTask() *asynq.Task {
	return asynq.NewTask(
		TaskFollowUpScan,
		nil, // Empty payload - handler queries all due engagements
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
	)
}

// newFollowUpReminderTask builds the reminder task for a due follow-up.
// The payload carries the due date, so each scheduled date is reminded once
// within the uniqueness window.
func newFollowUpReminderTask(p reminderPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskFollowUpRemind,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(24*time.Hour),
	), nil
}
