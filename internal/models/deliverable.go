package models

import (
	"time"

	"gorm.io/gorm"
)

// Deliverable is a content unit owed as part of an engagement
type Deliverable struct {
	gorm.Model
	EngagementID uint   `gorm:"not null;index"`
	Platform     string `gorm:"not null"` // e.g., "instagram", "tiktok", "youtube"
	ContentType  string `gorm:"not null"` // e.g., "reel", "story", "post"
	Title        string
	DueAt        *time.Time
	Approved     bool `gorm:"not null;default:false"`
	ApprovedAt   *time.Time
	ApprovedBy   string
	PublishedURL string

	Metrics []DeliverableMetric `gorm:"constraint:OnDelete:CASCADE;"`
}

// DeliverableMetric is a performance snapshot of a deliverable. Only final
// snapshots count towards engagement metrics.
type DeliverableMetric struct {
	gorm.Model
	DeliverableID  uint  `gorm:"not null;index"`
	Views          int64 `gorm:"not null;default:0"`
	Clicks         int64 `gorm:"not null;default:0"`
	EngagementRate float64
	RevenueCents   int64     `gorm:"not null;default:0"`
	IsFinal        bool      `gorm:"not null;default:false;index"`
	RecordedAt     time.Time `gorm:"not null"`
}
