// Package negotiation holds the negotiation core of an engagement: the status
// machine, the offer and communication ledger, the timeline and the metrics
// derived from delivery counters.
package negotiation

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the negotiation_status of an engagement
type Status string

// Negotiation status constants
const (
	StatusPendingOutreach  Status = "pending_outreach"
	StatusOutreachSent     Status = "outreach_sent"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusNegotiating      Status = "negotiating"
	StatusAgreed           Status = "agreed"
	StatusDeclined         Status = "declined"
	StatusOnHold           Status = "on_hold"
)

// Statuses lists every negotiation status in pipeline order.
var Statuses = []Status{
	StatusPendingOutreach,
	StatusOutreachSent,
	StatusAwaitingResponse,
	StatusNegotiating,
	StatusAgreed,
	StatusDeclined,
	StatusOnHold,
}

// Valid reports whether s is a member of the status enum.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the negotiation is closed in this status.
func (s Status) Terminal() bool {
	return s == StatusAgreed || s == StatusDeclined
}

// Label renders the status for humans, e.g. "Pending Outreach".
func (s Status) Label() string {
	// Casers are stateful and must not be shared between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}

// Priority is the negotiation_priority of an engagement
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// LifecycleStatus is the general status of an engagement. It moves
// independently from the negotiation status.
type LifecycleStatus string

const (
	LifecycleNegotiating LifecycleStatus = "negotiating"
	LifecycleAgreed      LifecycleStatus = "agreed"
	LifecycleActive      LifecycleStatus = "active"
	LifecycleCompleted   LifecycleStatus = "completed"
	LifecycleCancelled   LifecycleStatus = "cancelled"
	LifecyclePaused      LifecycleStatus = "paused"
)

func (l LifecycleStatus) Valid() bool {
	switch l {
	case LifecycleNegotiating, LifecycleAgreed, LifecycleActive,
		LifecycleCompleted, LifecycleCancelled, LifecyclePaused:
		return true
	}
	return false
}

// OfferType distinguishes opening, counter and closing offers
type OfferType string

const (
	OfferInitial OfferType = "initial"
	OfferCounter OfferType = "counter"
	OfferFinal   OfferType = "final"
)

func (t OfferType) Valid() bool {
	return t == OfferInitial || t == OfferCounter || t == OfferFinal
}

// Party is the side of the deal that made an offer
type Party string

const (
	PartyBrand      Party = "brand"
	PartyInfluencer Party = "influencer"
)

func (p Party) Valid() bool {
	return p == PartyBrand || p == PartyInfluencer
}

// CommunicationType is the channel a contact event happened on
type CommunicationType string

const (
	ChannelEmail   CommunicationType = "email"
	ChannelPhone   CommunicationType = "phone"
	ChannelMessage CommunicationType = "message"
	ChannelMeeting CommunicationType = "meeting"
	ChannelOther   CommunicationType = "other"
)

func (c CommunicationType) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPhone, ChannelMessage, ChannelMeeting, ChannelOther:
		return true
	}
	return false
}

// Direction tells whether a communication was received or sent
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// Offer is a monetary proposal recorded during a negotiation.
// Amounts are integer minor currency units (cents).
type Offer struct {
	ID          string    `json:"id"`
	OfferType   OfferType `json:"offer_type"`
	OfferedBy   Party     `json:"offered_by"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// CommunicationMetadata carries optional tracking details of a contact event
type CommunicationMetadata struct {
	TemplateUsed      string   `json:"template_used,omitempty"`
	EmailOpened       *bool    `json:"email_opened,omitempty"`
	EmailClicked      *bool    `json:"email_clicked,omitempty"`
	ResponseTimeHours *float64 `json:"response_time_hours,omitempty"`
}

// Communication is one logged contact with the influencer
type Communication struct {
	ID        string                 `json:"id"`
	Type      CommunicationType      `json:"type"`
	Direction Direction              `json:"direction"`
	Subject   string                 `json:"subject,omitempty"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
	CreatedBy string                 `json:"created_by,omitempty"`
	Metadata  *CommunicationMetadata `json:"metadata,omitempty"`
}

// Strategy is the optional structured approach noted for a negotiation
type Strategy struct {
	Approach            string   `json:"approach"`
	KeyPoints           []string `json:"key_points"`
	ObjectionsAddressed []string `json:"objections_addressed"`
}

// Data is the negotiation_data document embedded in an engagement row.
// Timeline is the write-time log of every sub-event; it is only ever
// appended to alongside the offer, communication or status change it mirrors.
type Data struct {
	Offers         []Offer         `json:"offers"`
	Communications []Communication `json:"communications"`
	Timeline       []TimelineEntry `json:"timeline"`
	CurrentStage   string          `json:"current_stage"`
	Notes          string          `json:"notes"`
	TemplatesUsed  []string        `json:"templates_used"`
	FollowUpCount  int             `json:"follow_up_count"`
	Strategy       *Strategy       `json:"strategy,omitempty"`
}

// Stage labels used for current_stage
const (
	StageInitialContact  = "initial_contact"
	StageInterestShown   = "interest_shown"
	StageDiscussingTerms = "discussing_terms"
	StageFinalizing      = "finalizing_details"
	StageContractReview  = "contract_review"
	StageCompleted       = "completed"
)

// NewData returns an empty document for a freshly started negotiation.
func NewData() Data {
	return Data{
		Offers:         []Offer{},
		Communications: []Communication{},
		Timeline:       []TimelineEntry{},
		CurrentStage:   StageInitialContact,
		TemplatesUsed:  []string{},
	}
}

// normalize replaces nil slices so the stored JSON always carries arrays.
func (d *Data) normalize() {
	if d.Offers == nil {
		d.Offers = []Offer{}
	}
	if d.Communications == nil {
		d.Communications = []Communication{}
	}
	if d.Timeline == nil {
		d.Timeline = []TimelineEntry{}
	}
	if d.TemplatesUsed == nil {
		d.TemplatesUsed = []string{}
	}
}

// Record is the persisted state of one engagement as seen by the negotiation core.
type Record struct {
	EngagementID      uint
	BrandID           uint
	InfluencerID      uint
	CampaignName      string
	PeriodLabel       string
	Status            LifecycleStatus
	NegotiationStatus Status
	Priority          Priority
	Data              Data
	AgreedTotalCents  *int64
	AgreedCurrency    string
	BudgetCents       *int64
	ActualCostCents   *int64
	TargetViews       *int64
	LastContactDate   *time.Time
	NextFollowUpDate  *time.Time
	// Version is bumped by the store on every successful save.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Totals are the summed final metric snapshots of an engagement's deliverables
type Totals struct {
	Views             int64
	Clicks            int64
	RevenueCents      int64
	Snapshots         int
	AvgEngagementRate float64
}
