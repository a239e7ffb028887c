package outreach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"github.com/jimdaga/influencer-crm/internal/templates"
)

// PartyLookup resolves the brand and influencer of an engagement
type PartyLookup interface {
	Parties(ctx context.Context, engagementID uint) (*models.Brand, *models.Influencer, error)
}

// Result describes a sent template
type Result struct {
	Communication negotiation.Communication `json:"communication"`
	Receipt       *Receipt                  `json:"receipt"`
	StatusChanged bool                      `json:"status_changed"`
}

// Sender renders a template for an engagement, delivers it and logs it as an
// outbound email communication.
type Sender struct {
	registry *templates.Registry
	parties  PartyLookup
	svc      *negotiation.Service
	client   *Client
	now      func() time.Time
}

// NewSender creates a Sender
func NewSender(registry *templates.Registry, parties PartyLookup, svc *negotiation.Service, client *Client) *Sender {
	return &Sender{
		registry: registry,
		parties:  parties,
		svc:      svc,
		client:   client,
		now:      time.Now,
	}
}

// Send delivers templateName to the engagement's influencer. A negotiation
// still in pending_outreach moves to outreach_sent afterwards.
func (s *Sender) Send(ctx context.Context, engagementID uint, templateName string) (*Result, error) {
	tmpl, ok := s.registry.Get(templateName)
	if !ok {
		return nil, negotiation.NewValidationError("template", fmt.Sprintf("unknown template %q", templateName))
	}

	rec, err := s.svc.Get(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	brand, influencer, err := s.parties.Parties(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	rendered, err := templates.Render(tmpl, templates.Context{
		InfluencerName:  influencer.Name,
		BrandName:       brand.Name,
		InstagramHandle: influencer.InstagramHandle,
		CampaignName:    rec.CampaignName,
		PeriodLabel:     rec.PeriodLabel,
		Now:             s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	input := negotiation.CommunicationInput{
		Type:      negotiation.ChannelEmail,
		Direction: negotiation.DirectionOutbound,
		Subject:   rendered.Subject,
		Content:   rendered.Body,
		Metadata:  &negotiation.CommunicationMetadata{TemplateUsed: tmpl.Name},
	}
	// Reject before delivery so nothing is sent that cannot be recorded.
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if influencer.Email == "" && !s.client.StubMode() {
		return nil, negotiation.NewValidationError("influencer", "has no email address")
	}

	receipt, err := s.client.Deliver(ctx, Message{
		EngagementID: engagementID,
		Template:     tmpl.Name,
		To:           influencer.Email,
		ToName:       influencer.Name,
		Subject:      rendered.Subject,
		Body:         rendered.Body,
		Format:       tmpl.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deliver outreach: %w", err)
	}

	comm, err := s.svc.AddCommunication(ctx, engagementID, input)
	if err != nil {
		slog.Error("Outreach delivered but not recorded",
			"engagement_id", engagementID,
			"template", tmpl.Name,
			"message_id", receipt.MessageID,
			"error", err,
		)
		return nil, err
	}

	result := &Result{Communication: comm, Receipt: receipt}
	if rec.NegotiationStatus == negotiation.StatusPendingOutreach {
		note := fmt.Sprintf("Sent template %s", tmpl.Name)
		if err := s.svc.UpdateStatus(ctx, engagementID, negotiation.StatusOutreachSent, note); err != nil {
			return result, err
		}
		result.StatusChanged = true
	}

	slog.Info("Outreach sent",
		"engagement_id", engagementID,
		"template", tmpl.Name,
		"message_id", receipt.MessageID,
	)
	return result, nil
}
