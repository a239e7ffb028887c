package engagements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"gorm.io/gorm"
)

// Task title and description limits
const (
	MaxTaskTitleLength       = 200
	MaxTaskDescriptionLength = 1000
)

// DeliverableInput describes a new deliverable
type DeliverableInput struct {
	Platform    string     `json:"platform"`
	ContentType string     `json:"content_type"`
	Title       string     `json:"title"`
	DueAt       *time.Time `json:"due_at"`
}

// MetricsInput is a performance snapshot reported for a deliverable
type MetricsInput struct {
	Views          int64      `json:"views"`
	Clicks         int64      `json:"clicks"`
	EngagementRate float64    `json:"engagement_rate"`
	RevenueCents   int64      `json:"revenue_cents"`
	IsFinal        bool       `json:"is_final"`
	RecordedAt     *time.Time `json:"recorded_at"`
}

// TaskInput describes a new task
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	DueAt       *time.Time `json:"due_at"`
	Assignee    string     `json:"assignee"`
}

// CreateDeliverable adds a deliverable to an engagement.
func (s *Store) CreateDeliverable(ctx context.Context, engagementID uint, in DeliverableInput) (*models.Deliverable, error) {
	if strings.TrimSpace(in.Platform) == "" {
		return nil, negotiation.NewValidationError("platform", "is required")
	}
	if strings.TrimSpace(in.ContentType) == "" {
		return nil, negotiation.NewValidationError("content_type", "is required")
	}

	db := s.db.WithContext(ctx)
	if err := exists(db, &models.Engagement{}, engagementID); err != nil {
		return nil, err
	}

	d := models.Deliverable{
		EngagementID: engagementID,
		Platform:     strings.ToLower(strings.TrimSpace(in.Platform)),
		ContentType:  strings.ToLower(strings.TrimSpace(in.ContentType)),
		Title:        in.Title,
		DueAt:        in.DueAt,
	}
	if err := db.Create(&d).Error; err != nil {
		return nil, fmt.Errorf("failed to create deliverable: %w", err)
	}
	return &d, nil
}

// ApproveDeliverable marks a deliverable as approved. Approving twice keeps
// the first approval.
func (s *Store) ApproveDeliverable(ctx context.Context, id uint, actor string) (*models.Deliverable, error) {
	db := s.db.WithContext(ctx)

	var d models.Deliverable
	if err := db.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, negotiation.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load deliverable %d: %w", id, err)
	}

	if d.Approved {
		return &d, nil
	}

	now := time.Now().UTC()
	if err := db.Model(&d).Updates(map[string]interface{}{
		"approved":    true,
		"approved_at": now,
		"approved_by": actor,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to approve deliverable %d: %w", id, err)
	}
	d.Approved = true
	d.ApprovedAt = &now
	d.ApprovedBy = actor
	return &d, nil
}

// RecordMetrics stores a metrics snapshot for a deliverable.
func (s *Store) RecordMetrics(ctx context.Context, deliverableID uint, in MetricsInput) (*models.DeliverableMetric, error) {
	switch {
	case in.Views < 0:
		return nil, negotiation.NewValidationError("views", "must not be negative")
	case in.Clicks < 0:
		return nil, negotiation.NewValidationError("clicks", "must not be negative")
	case in.RevenueCents < 0:
		return nil, negotiation.NewValidationError("revenue_cents", "must not be negative")
	case in.EngagementRate < 0:
		return nil, negotiation.NewValidationError("engagement_rate", "must not be negative")
	}

	db := s.db.WithContext(ctx)
	if err := exists(db, &models.Deliverable{}, deliverableID); err != nil {
		return nil, err
	}

	recordedAt := time.Now().UTC()
	if in.RecordedAt != nil {
		recordedAt = in.RecordedAt.UTC()
	}

	m := models.DeliverableMetric{
		DeliverableID:  deliverableID,
		Views:          in.Views,
		Clicks:         in.Clicks,
		EngagementRate: in.EngagementRate,
		RevenueCents:   in.RevenueCents,
		IsFinal:        in.IsFinal,
		RecordedAt:     recordedAt,
	}
	if err := db.Create(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to record metrics: %w", err)
	}
	return &m, nil
}

// CreateTask adds an action item to an engagement.
func (s *Store) CreateTask(ctx context.Context, engagementID uint, in TaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, negotiation.NewValidationError("title", "is required")
	}
	if utf8.RuneCountInString(title) > MaxTaskTitleLength {
		return nil, negotiation.NewValidationError("title", fmt.Sprintf("must be at most %d characters", MaxTaskTitleLength))
	}
	if utf8.RuneCountInString(in.Description) > MaxTaskDescriptionLength {
		return nil, negotiation.NewValidationError("description", fmt.Sprintf("must be at most %d characters", MaxTaskDescriptionLength))
	}

	taskType := in.Type
	if taskType == "" {
		taskType = models.TaskTypeFollowUp
	}
	switch taskType {
	case models.TaskTypeFollowUp, models.TaskTypeInternalReview, models.TaskTypeSendOffer, models.TaskTypeSendContract:
	default:
		return nil, negotiation.NewValidationError("type", "must be one of follow_up, internal_review, send_offer, send_contract")
	}

	db := s.db.WithContext(ctx)
	if err := exists(db, &models.Engagement{}, engagementID); err != nil {
		return nil, err
	}

	task := models.Task{
		EngagementID: engagementID,
		Title:        title,
		Description:  in.Description,
		Type:         taskType,
		DueAt:        in.DueAt,
		Assignee:     in.Assignee,
	}
	if err := db.Create(&task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &task, nil
}

// CompleteTask marks a task done. Completing a finished task is a no-op.
func (s *Store) CompleteTask(ctx context.Context, id uint, actor string) (*models.Task, error) {
	db := s.db.WithContext(ctx)

	var task models.Task
	if err := db.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, negotiation.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load task %d: %w", id, err)
	}

	if task.CompletedAt != nil {
		return &task, nil
	}

	now := time.Now().UTC()
	if err := db.Model(&task).Updates(map[string]interface{}{
		"completed_at": now,
		"completed_by": actor,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to complete task %d: %w", id, err)
	}
	task.CompletedAt = &now
	task.CompletedBy = actor
	return &task, nil
}

// ListOpenTasks returns the pending tasks of an engagement, soonest due
// first; tasks without a due date come last.
func (s *Store) ListOpenTasks(ctx context.Context, engagementID uint) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.WithContext(ctx).
		Where("engagement_id = ? AND completed_at IS NULL", engagementID).
		Order("CASE WHEN due_at IS NULL THEN 1 ELSE 0 END, due_at ASC, id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}
