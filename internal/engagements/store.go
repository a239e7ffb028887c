// Package engagements persists engagements and their deliverables and tasks,
// and exposes the negotiation operations over HTTP.
package engagements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store is the gorm implementation of negotiation.Store
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store on db
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Load fetches an engagement by id.
func (s *Store) Load(ctx context.Context, id uint) (*negotiation.Record, error) {
	var e models.Engagement
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, negotiation.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load engagement %d: %w", id, err)
	}
	return toRecord(&e), nil
}

// Create inserts a new engagement. Brand and influencer must exist.
func (s *Store) Create(ctx context.Context, rec *negotiation.Record) error {
	db := s.db.WithContext(ctx)

	if err := exists(db, &models.Brand{}, rec.BrandID); err != nil {
		return missing(err, "brand", rec.BrandID)
	}
	if err := exists(db, &models.Influencer{}, rec.InfluencerID); err != nil {
		return missing(err, "influencer", rec.InfluencerID)
	}

	e := models.Engagement{
		BrandID:             rec.BrandID,
		InfluencerID:        rec.InfluencerID,
		CampaignName:        rec.CampaignName,
		PeriodLabel:         rec.PeriodLabel,
		Status:              string(rec.Status),
		NegotiationStatus:   string(rec.NegotiationStatus),
		NegotiationPriority: string(rec.Priority),
		NegotiationData:     datatypes.NewJSONType(rec.Data),
		AgreedTotalCents:    rec.AgreedTotalCents,
		AgreedCurrency:      rec.AgreedCurrency,
		BudgetCents:         rec.BudgetCents,
		ActualCostCents:     rec.ActualCostCents,
		TargetViews:         rec.TargetViews,
		LastContactDate:     rec.LastContactDate,
		NextFollowUpDate:    rec.NextFollowUpDate,
		Version:             1,
	}
	if err := db.Omit("Brand", "Influencer").Create(&e).Error; err != nil {
		return fmt.Errorf("failed to create engagement: %w", err)
	}

	rec.EngagementID = e.ID
	rec.Version = e.Version
	rec.CreatedAt = e.CreatedAt
	rec.UpdatedAt = e.UpdatedAt
	return nil
}

// Save writes every negotiation field of rec in one UPDATE guarded by the
// version it was loaded at, then bumps rec.Version.
func (s *Store) Save(ctx context.Context, rec *negotiation.Record) error {
	db := s.db.WithContext(ctx)

	result := db.Model(&models.Engagement{}).
		Where("id = ? AND version = ?", rec.EngagementID, rec.Version).
		Updates(map[string]interface{}{
			"status":               string(rec.Status),
			"negotiation_status":   string(rec.NegotiationStatus),
			"negotiation_priority": string(rec.Priority),
			"negotiation_data":     datatypes.NewJSONType(rec.Data),
			"agreed_total_cents":   rec.AgreedTotalCents,
			"agreed_currency":      rec.AgreedCurrency,
			"budget_cents":         rec.BudgetCents,
			"actual_cost_cents":    rec.ActualCostCents,
			"target_views":         rec.TargetViews,
			"last_contact_date":    rec.LastContactDate,
			"next_follow_up_date":  rec.NextFollowUpDate,
			"version":              rec.Version + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update engagement %d: %w", rec.EngagementID, result.Error)
	}

	if result.RowsAffected == 0 {
		if err := exists(db, &models.Engagement{}, rec.EngagementID); err != nil {
			return err
		}
		return negotiation.ErrConflict
	}

	rec.Version++
	return nil
}

// Totals sums the final metric snapshots of an engagement's deliverables.
func (s *Store) Totals(ctx context.Context, id uint) (negotiation.Totals, error) {
	var row struct {
		Views             int64
		Clicks            int64
		RevenueCents      int64
		Snapshots         int
		AvgEngagementRate float64
	}

	err := s.db.WithContext(ctx).Model(&models.DeliverableMetric{}).
		Select(`COALESCE(SUM(deliverable_metrics.views), 0) AS views,
			COALESCE(SUM(deliverable_metrics.clicks), 0) AS clicks,
			COALESCE(SUM(deliverable_metrics.revenue_cents), 0) AS revenue_cents,
			COUNT(deliverable_metrics.id) AS snapshots,
			COALESCE(AVG(deliverable_metrics.engagement_rate), 0) AS avg_engagement_rate`).
		Joins("JOIN deliverables ON deliverables.id = deliverable_metrics.deliverable_id AND deliverables.deleted_at IS NULL").
		Where("deliverables.engagement_id = ? AND deliverable_metrics.is_final = ?", id, true).
		Scan(&row).Error
	if err != nil {
		return negotiation.Totals{}, fmt.Errorf("failed to sum metrics for engagement %d: %w", id, err)
	}

	return negotiation.Totals{
		Views:             row.Views,
		Clicks:            row.Clicks,
		RevenueCents:      row.RevenueCents,
		Snapshots:         row.Snapshots,
		AvgEngagementRate: row.AvgEngagementRate,
	}, nil
}

// DueFollowUp is an engagement whose follow-up date has passed
type DueFollowUp struct {
	EngagementID     uint
	BrandID          uint
	InfluencerID     uint
	NextFollowUpDate time.Time
}

// DueFollowUps lists open negotiations whose next follow-up is at or before now.
func (s *Store) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]DueFollowUp, error) {
	var rows []models.Engagement
	err := s.db.WithContext(ctx).
		Select("id", "brand_id", "influencer_id", "next_follow_up_date").
		Where("next_follow_up_date IS NOT NULL AND next_follow_up_date <= ?", now).
		Where("negotiation_status NOT IN ?", []string{string(negotiation.StatusAgreed), string(negotiation.StatusDeclined)}).
		Order("next_follow_up_date ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due follow-ups: %w", err)
	}

	due := make([]DueFollowUp, 0, len(rows))
	for _, e := range rows {
		due = append(due, DueFollowUp{
			EngagementID:     e.ID,
			BrandID:          e.BrandID,
			InfluencerID:     e.InfluencerID,
			NextFollowUpDate: *e.NextFollowUpDate,
		})
	}
	return due, nil
}

// Parties returns the brand and influencer of an engagement.
func (s *Store) Parties(ctx context.Context, id uint) (*models.Brand, *models.Influencer, error) {
	var e models.Engagement
	err := s.db.WithContext(ctx).Preload("Brand").Preload("Influencer").First(&e, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, negotiation.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to load engagement %d: %w", id, err)
	}
	return &e.Brand, &e.Influencer, nil
}

func exists(db *gorm.DB, model interface{}, id uint) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check existence: %w", err)
	}
	if count == 0 {
		return negotiation.ErrNotFound
	}
	return nil
}

// missing names the resource when err is a plain not-found.
func missing(err error, resource string, id uint) error {
	if errors.Is(err, negotiation.ErrNotFound) {
		return negotiation.NewNotFoundError(resource, id)
	}
	return err
}

func toRecord(e *models.Engagement) *negotiation.Record {
	return &negotiation.Record{
		EngagementID:      e.ID,
		BrandID:           e.BrandID,
		InfluencerID:      e.InfluencerID,
		CampaignName:      e.CampaignName,
		PeriodLabel:       e.PeriodLabel,
		Status:            negotiation.LifecycleStatus(e.Status),
		NegotiationStatus: negotiation.Status(e.NegotiationStatus),
		Priority:          negotiation.Priority(e.NegotiationPriority),
		Data:              e.NegotiationData.Data(),
		AgreedTotalCents:  e.AgreedTotalCents,
		AgreedCurrency:    e.AgreedCurrency,
		BudgetCents:       e.BudgetCents,
		ActualCostCents:   e.ActualCostCents,
		TargetViews:       e.TargetViews,
		LastContactDate:   e.LastContactDate,
		NextFollowUpDate:  e.NextFollowUpDate,
		Version:           e.Version,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}
