package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"gorm.io/gorm"
)

const devUserEmail = "dev@influencer-crm.local"

// SeedDevData populates the database with development test data. The
// engagement goes through svc, so ctx must carry an actor.
// Idempotent: skips if data already exists.
func SeedDevData(ctx context.Context, db *gorm.DB, svc *negotiation.Service) error {
	// Check if seed data already exists
	var existing models.User
	result := db.WithContext(ctx).Where("email = ?", devUserEmail).First(&existing)
	if result.Error == nil {
		slog.Info("Seed data already exists, skipping")
		return nil
	}

	now := time.Now().UTC()
	user := models.User{
		Email:       devUserEmail,
		Name:        "Dev User",
		Role:        models.RoleAdmin,
		LastLoginAt: &now,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("failed to seed user: %w", err)
	}

	identity := models.AuthIdentity{
		UserID:         user.ID,
		Provider:       "google",
		ProviderUserID: "dev-google-id-12345",
		LastSeenAt:     &now,
	}
	if err := db.WithContext(ctx).Create(&identity).Error; err != nil {
		return fmt.Errorf("failed to seed auth identity: %w", err)
	}

	brand := models.Brand{
		Name:         "Glow Labs",
		Website:      "https://glowlabs.example.com",
		ContactName:  "Mara Jensen",
		ContactEmail: "mara@glowlabs.example.com",
	}
	influencer := models.Influencer{
		Name:            "Ana Creates",
		Email:           "ana@creates.example.com",
		InstagramHandle: "@ana.creates",
		FollowerCount:   184000,
	}
	if err := db.WithContext(ctx).Create(&brand).Error; err != nil {
		return fmt.Errorf("failed to seed brand: %w", err)
	}
	if err := db.WithContext(ctx).Create(&influencer).Error; err != nil {
		return fmt.Errorf("failed to seed influencer: %w", err)
	}

	budget := int64(400000)
	target := int64(250000)
	rec, err := svc.StartEngagement(ctx, negotiation.NewEngagement{
		BrandID:      brand.ID,
		InfluencerID: influencer.ID,
		CampaignName: "Summer Glow",
		PeriodLabel:  now.Format("January 2006"),
		Priority:     negotiation.PriorityHigh,
		BudgetCents:  &budget,
		TargetViews:  &target,
	})
	if err != nil {
		return fmt.Errorf("failed to seed engagement: %w", err)
	}

	if _, err := svc.AddOffer(ctx, rec.EngagementID, negotiation.OfferInput{
		OfferType:   negotiation.OfferInitial,
		OfferedBy:   negotiation.PartyBrand,
		AmountCents: 250000,
		Notes:       "Two reels and three stories",
	}); err != nil {
		return fmt.Errorf("failed to seed offer: %w", err)
	}

	if _, err := svc.AddCommunication(ctx, rec.EngagementID, negotiation.CommunicationInput{
		Type:      negotiation.ChannelEmail,
		Direction: negotiation.DirectionInbound,
		Subject:   "Re: Summer Glow",
		Content:   "Love the brand! My rate for that package is a bit higher, can we talk?",
	}); err != nil {
		return fmt.Errorf("failed to seed communication: %w", err)
	}

	if err := svc.UpdateStatus(ctx, rec.EngagementID, negotiation.StatusNegotiating, "Counter expected"); err != nil {
		return fmt.Errorf("failed to seed status: %w", err)
	}

	slog.Info("Seeded dev data", "user", user.Email, "brand", brand.Name, "influencer", influencer.Name, "engagement_id", rec.EngagementID)
	return nil
}
