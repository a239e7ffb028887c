package engagements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
)

func seedRecord(t *testing.T, store *Store, brandID, influencerID uint) *negotiation.Record {
	t.Helper()
	rec := &negotiation.Record{
		BrandID:           brandID,
		InfluencerID:      influencerID,
		CampaignName:      "Summer Glow",
		Status:            negotiation.LifecycleNegotiating,
		NegotiationStatus: negotiation.StatusPendingOutreach,
		Priority:          negotiation.PriorityMedium,
		Data:              negotiation.Data{CurrentStage: negotiation.StageInitialContact},
	}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("failed to create engagement: %v", err)
	}
	return rec
}

func seedParties(t *testing.T, store *Store) (models.Brand, models.Influencer) {
	t.Helper()
	brand := models.Brand{Name: "Glow Labs"}
	influencer := models.Influencer{Name: "Ana"}
	store.db.Create(&brand)
	store.db.Create(&influencer)
	return brand, influencer
}

func TestStoreSaveRoundTrip(t *testing.T) {
	store := NewStore(newTestDB(t))
	brand, influencer := seedParties(t, store)
	rec := seedRecord(t, store, brand.ID, influencer.ID)
	ctx := context.Background()

	if rec.Version != 1 {
		t.Fatalf("expected version 1, got %d", rec.Version)
	}

	rec.NegotiationStatus = negotiation.StatusNegotiating
	rec.Data.Notes = "prefers reels"
	rec.Data.FollowUpCount = 2
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Version != 2 {
		t.Errorf("expected version 2 after save, got %d", rec.Version)
	}

	loaded, err := store.Load(ctx, rec.EngagementID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.NegotiationStatus != negotiation.StatusNegotiating || loaded.Version != 2 {
		t.Errorf("unexpected loaded record %+v", loaded)
	}
	if loaded.Data.Notes != "prefers reels" || loaded.Data.FollowUpCount != 2 {
		t.Errorf("expected document to round-trip, got %+v", loaded.Data)
	}
}

func TestStoreSaveConflict(t *testing.T) {
	store := NewStore(newTestDB(t))
	brand, influencer := seedParties(t, store)
	rec := seedRecord(t, store, brand.ID, influencer.ID)

	// another writer commits first
	store.db.Model(&models.Engagement{}).Where("id = ?", rec.EngagementID).Update("version", 2)

	rec.NegotiationStatus = negotiation.StatusDeclined
	if err := store.Save(context.Background(), rec); !errors.Is(err, negotiation.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	loaded, _ := store.Load(context.Background(), rec.EngagementID)
	if loaded.NegotiationStatus != negotiation.StatusPendingOutreach {
		t.Errorf("expected stored status unchanged, got %s", loaded.NegotiationStatus)
	}
}

func TestStoreNotFound(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	if _, err := store.Load(ctx, 42); !errors.Is(err, negotiation.ErrNotFound) {
		t.Errorf("expected not found on load, got %v", err)
	}
	if err := store.Save(ctx, &negotiation.Record{EngagementID: 42, Version: 1}); !errors.Is(err, negotiation.ErrNotFound) {
		t.Errorf("expected not found on save, got %v", err)
	}
	if err := store.Create(ctx, &negotiation.Record{BrandID: 1, InfluencerID: 1}); !errors.Is(err, negotiation.ErrNotFound) {
		t.Errorf("expected not found for missing brand, got %v", err)
	}
}

func TestStoreTotalsUseFinalSnapshots(t *testing.T) {
	store := NewStore(newTestDB(t))
	brand, influencer := seedParties(t, store)
	rec := seedRecord(t, store, brand.ID, influencer.ID)
	ctx := context.Background()

	d, err := store.CreateDeliverable(ctx, rec.EngagementID, DeliverableInput{Platform: "tiktok", ContentType: "video"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.RecordMetrics(ctx, d.ID, MetricsInput{Views: 100, Clicks: 1})
	store.RecordMetrics(ctx, d.ID, MetricsInput{Views: 1000, Clicks: 30, RevenueCents: 5000, EngagementRate: 4.5, IsFinal: true})

	totals, err := store.Totals(ctx, rec.EngagementID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Views != 1000 || totals.Clicks != 30 || totals.RevenueCents != 5000 || totals.Snapshots != 1 {
		t.Errorf("expected only the final snapshot, got %+v", totals)
	}

	if _, err := store.RecordMetrics(ctx, d.ID, MetricsInput{Views: -1}); !errors.Is(err, negotiation.ErrValidation) {
		t.Errorf("expected validation error for negative views, got %v", err)
	}
}

func TestStoreTasks(t *testing.T) {
	store := NewStore(newTestDB(t))
	brand, influencer := seedParties(t, store)
	rec := seedRecord(t, store, brand.ID, influencer.ID)
	ctx := context.Background()

	later := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	sooner := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	store.CreateTask(ctx, rec.EngagementID, TaskInput{Title: "No date"})
	store.CreateTask(ctx, rec.EngagementID, TaskInput{Title: "Later", DueAt: &later})
	first, _ := store.CreateTask(ctx, rec.EngagementID, TaskInput{Title: "Sooner", DueAt: &sooner, Type: "send_offer"})

	tasks, err := store.ListOpenTasks(ctx, rec.EngagementID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 3 || tasks[0].Title != "Sooner" || tasks[2].Title != "No date" {
		t.Errorf("unexpected task order %v", tasks)
	}
	if tasks[2].Type != models.TaskTypeFollowUp {
		t.Errorf("expected default type follow_up, got %s", tasks[2].Type)
	}

	done, err := store.CompleteTask(ctx, first.ID, "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, _ := store.CompleteTask(ctx, first.ID, "8")
	if !again.CompletedAt.Equal(*done.CompletedAt) || again.CompletedBy != "7" {
		t.Errorf("expected completing twice to keep the first completion")
	}

	if _, err := store.CreateTask(ctx, rec.EngagementID, TaskInput{Title: "x", Type: "party"}); !errors.Is(err, negotiation.ErrValidation) {
		t.Errorf("expected validation error for unknown type, got %v", err)
	}
	if _, err := store.CompleteTask(ctx, 999, "7"); !errors.Is(err, negotiation.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestStoreDueFollowUpsAndParties(t *testing.T) {
	store := NewStore(newTestDB(t))
	brand, influencer := seedParties(t, store)
	rec := seedRecord(t, store, brand.ID, influencer.ID)
	ctx := context.Background()

	past := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rec.NextFollowUpDate = &past
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	due, err := store.DueFollowUps(ctx, past.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 || due[0].EngagementID != rec.EngagementID {
		t.Errorf("expected one due follow-up, got %v", due)
	}

	b, i, err := store.Parties(ctx, rec.EngagementID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name != "Glow Labs" || i.Name != "Ana" {
		t.Errorf("unexpected parties %s, %s", b.Name, i.Name)
	}
}
