package models

import (
	"time"

	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Engagement is one collaboration between a brand and an influencer. The
// negotiation state lives in the NegotiationData document; Version guards it
// against concurrent writers.
type Engagement struct {
	gorm.Model
	BrandID             uint       `gorm:"not null;index"`
	Brand               Brand      `gorm:"constraint:OnDelete:RESTRICT;"`
	InfluencerID        uint       `gorm:"not null;index"`
	Influencer          Influencer `gorm:"constraint:OnDelete:RESTRICT;"`
	CampaignName        string
	PeriodLabel         string
	Status              string                               `gorm:"not null;default:'negotiating';index"`
	NegotiationStatus   string                               `gorm:"not null;default:'pending_outreach';index"`
	NegotiationPriority string                               `gorm:"not null;default:'medium'"`
	NegotiationData     datatypes.JSONType[negotiation.Data] `gorm:"column:negotiation_data"`
	AgreedTotalCents    *int64
	AgreedCurrency      string `gorm:"size:3"`
	BudgetCents         *int64
	ActualCostCents     *int64
	TargetViews         *int64
	LastContactDate     *time.Time
	NextFollowUpDate    *time.Time `gorm:"index"`
	Version             int64      `gorm:"not null;default:1"`

	// Associations
	Deliverables []Deliverable `gorm:"constraint:OnDelete:CASCADE;"`
	Tasks        []Task        `gorm:"constraint:OnDelete:CASCADE;"`
}
