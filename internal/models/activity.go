package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Activity type constants
const (
	ActivityNegotiationOffer         = "negotiation_offer"
	ActivityNegotiationCommunication = "negotiation_communication"
	ActivityNegotiationStatusChange  = "negotiation_status_change"
	ActivityNegotiationFollowUp      = "negotiation_follow_up"
	ActivityNegotiationNote          = "negotiation_note"
	ActivityNegotiationAgreed        = "negotiation_agreed"
	ActivityFollowUpDue              = "follow_up_due"
)

// Activity is an entry of the CRM-wide activity feed
type Activity struct {
	gorm.Model
	EngagementID uint   `gorm:"not null;index"`
	BrandID      uint   `gorm:"index"`
	InfluencerID uint   `gorm:"index"`
	Type         string `gorm:"not null;index"`
	Description  string `gorm:"type:text"`
	Actor        string
	// SourceKey identifies the event an activity was derived from, so
	// redelivered events do not produce duplicates.
	SourceKey string `gorm:"uniqueIndex;not null"`
	Metadata  datatypes.JSON
}
