package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HandleNegotiationEvent returns a handler that writes the activity feed
// entries of an event. Activities are keyed by timeline entry id, so a
// redelivered event inserts nothing new.
func HandleNegotiationEvent(db *gorm.DB) EventHandler {
	return func(ctx context.Context, messageID string, ev negotiation.Event) error {
		brandName := ""
		if ev.BrandID != 0 && agrees(ev) {
			var brand models.Brand
			err := db.WithContext(ctx).Select("name").First(&brand, ev.BrandID).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load brand %d: %w", ev.BrandID, err)
			}
			brandName = brand.Name
		}

		activities := BuildActivities(ev, brandName)
		if len(activities) == 0 {
			return nil
		}

		result := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_key"}}, DoNothing: true}).
			Create(&activities)
		if result.Error != nil {
			return fmt.Errorf("failed to write activities: %w", result.Error)
		}

		slog.Debug("Activities written",
			"engagement_id", ev.EngagementID,
			"message_id", messageID,
			"count", result.RowsAffected,
		)
		return nil
	}
}

// BuildActivities maps the timeline entries of an event to activity rows.
// A status change into agreed also yields a summary of the agreed terms.
func BuildActivities(ev negotiation.Event, brandName string) []models.Activity {
	var out []models.Activity
	for _, entry := range ev.Entries {
		activityType, ok := activityTypes[entry.Type]
		if !ok {
			continue
		}

		description := entry.Title
		if entry.Description != "" && entry.Type != negotiation.EntryCommunication {
			description = fmt.Sprintf("%s: %s", entry.Title, entry.Description)
		}

		meta, _ := json.Marshal(entry)
		out = append(out, models.Activity{
			EngagementID: ev.EngagementID,
			BrandID:      ev.BrandID,
			InfluencerID: ev.InfluencerID,
			Type:         activityType,
			Description:  description,
			Actor:        ev.Actor,
			SourceKey:    "entry:" + entry.ID,
			Metadata:     datatypes.JSON(meta),
		})

		if sc, ok := entry.Detail.(negotiation.StatusChange); ok && sc.To == negotiation.StatusAgreed {
			out = append(out, models.Activity{
				EngagementID: ev.EngagementID,
				BrandID:      ev.BrandID,
				InfluencerID: ev.InfluencerID,
				Type:         models.ActivityNegotiationAgreed,
				Description:  agreedSummary(ev, brandName),
				Actor:        ev.Actor,
				SourceKey:    "agreed:" + entry.ID,
			})
		}
	}
	return out
}

var activityTypes = map[negotiation.EntryType]string{
	negotiation.EntryOffer:         models.ActivityNegotiationOffer,
	negotiation.EntryCommunication: models.ActivityNegotiationCommunication,
	negotiation.EntryStatusChange:  models.ActivityNegotiationStatusChange,
	negotiation.EntryTask:          models.ActivityNegotiationFollowUp,
	negotiation.EntryNote:          models.ActivityNegotiationNote,
}

func agrees(ev negotiation.Event) bool {
	for _, entry := range ev.Entries {
		if sc, ok := entry.Detail.(negotiation.StatusChange); ok && sc.To == negotiation.StatusAgreed {
			return true
		}
	}
	return false
}

func agreedSummary(ev negotiation.Event, brandName string) string {
	if brandName == "" {
		brandName = "the brand"
	}
	if ev.AgreedTotalCents == nil {
		return fmt.Sprintf("Agreed with %s", brandName)
	}
	code := ev.AgreedCurrency
	if code == "" {
		code = negotiation.DefaultCurrency
	}
	return fmt.Sprintf("Agreed on %s with %s", negotiation.FormatAmount(*ev.AgreedTotalCents, code), brandName)
}
