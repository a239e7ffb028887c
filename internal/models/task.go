package models

import (
	"time"

	"gorm.io/gorm"
)

// Task type constants
const (
	TaskTypeFollowUp       = "follow_up"
	TaskTypeInternalReview = "internal_review"
	TaskTypeSendOffer      = "send_offer"
	TaskTypeSendContract   = "send_contract"
)

// Task is an action item tied to an engagement. It is pending until CompletedAt is set.
type Task struct {
	gorm.Model
	EngagementID uint       `gorm:"not null;index"`
	Title        string     `gorm:"not null"`
	Description  string     `gorm:"type:text"`
	Type         string     `gorm:"not null;default:'follow_up'"`
	DueAt        *time.Time `gorm:"index"`
	Assignee     string
	CompletedAt  *time.Time
	CompletedBy  string
}
