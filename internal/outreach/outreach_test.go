package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/jimdaga/influencer-crm/internal/engagements"
	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"github.com/jimdaga/influencer-crm/internal/templates"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixedActor string

func (a fixedActor) ActorID(context.Context) (string, error) { return string(a), nil }

func TestClientStubMode(t *testing.T) {
	c := NewClient("", "", true)
	receipt, err := c.Deliver(context.Background(), Message{Subject: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(receipt.MessageID, "stub-") || receipt.Status != "stubbed" {
		t.Errorf("unexpected stub receipt %+v", receipt)
	}
}

func TestClientDeliver(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("expected path /send, got %s", r.URL.Path)
		}
		if r.Header.Get("X-Outreach-Secret") != "s3cret" {
			t.Errorf("expected secret header, got %q", r.Header.Get("X-Outreach-Secret"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message_id":"m-1","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "s3cret", false)
	receipt, err := c.Deliver(context.Background(), Message{To: "ana@example.com", Subject: "Hello", Body: "Body"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.MessageID != "m-1" {
		t.Errorf("expected message id m-1, got %s", receipt.MessageID)
	}
	if got.To != "ana@example.com" || got.Subject != "Hello" {
		t.Errorf("unexpected request body %+v", got)
	}
}

func TestClientDeliverErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relay down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", false)
	if _, err := c.Deliver(context.Background(), Message{To: "a@b.c"}); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
	if _, err := c.Deliver(context.Background(), Message{}); err == nil {
		t.Error("expected error for missing recipient")
	}
}

func setupSender(t *testing.T, stub bool, webhookURL string) (*Sender, *negotiation.Service, uint) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(&models.Brand{}, &models.Influencer{}, &models.Engagement{}, &models.Deliverable{}, &models.DeliverableMetric{}, &models.Task{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	brand := models.Brand{Name: "Glow Labs"}
	influencer := models.Influencer{Name: "Ana", Email: "ana@example.com", InstagramHandle: "@ana.creates"}
	db.Create(&brand)
	db.Create(&influencer)

	store := engagements.NewStore(db)
	svc := negotiation.NewService(store, fixedActor("7"), nil, negotiation.Options{})
	rec, err := svc.StartEngagement(context.Background(), negotiation.NewEngagement{
		BrandID:      brand.ID,
		InfluencerID: influencer.ID,
		CampaignName: "Summer Glow",
		PeriodLabel:  "July 2024",
	})
	if err != nil {
		t.Fatalf("failed to start engagement: %v", err)
	}

	registry := templates.NewRegistry()
	manifest, err := templates.ParseManifest([]byte("name: intro\ntype: initial_outreach\nsubject: \"{{brand_name}} x {{instagram_handle}}\"\nbody: \"Hi {{influencer_name}}, join {{campaign_name}} ({{period}})\"\n"))
	if err != nil {
		t.Fatalf("failed to parse manifest: %v", err)
	}
	registry.Register(manifest)

	sender := NewSender(registry, store, svc, NewClient(webhookURL, "", stub))
	sender.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return sender, svc, rec.EngagementID
}

func TestSenderSend(t *testing.T) {
	sender, svc, id := setupSender(t, true, "")
	ctx := context.Background()

	result, err := sender.Send(ctx, id, "intro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.StatusChanged {
		t.Error("expected status change from pending_outreach")
	}
	if result.Communication.Subject != "Glow Labs x @ana.creates" {
		t.Errorf("unexpected subject %q", result.Communication.Subject)
	}
	if result.Communication.Content != "Hi Ana, join Summer Glow (July 2024)" {
		t.Errorf("unexpected content %q", result.Communication.Content)
	}

	rec, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.NegotiationStatus != negotiation.StatusOutreachSent {
		t.Errorf("expected outreach_sent, got %s", rec.NegotiationStatus)
	}
	if len(rec.Data.Communications) != 1 || len(rec.Data.Timeline) != 2 {
		t.Errorf("expected 1 communication and 2 timeline entries, got %d and %d", len(rec.Data.Communications), len(rec.Data.Timeline))
	}
	if len(rec.Data.TemplatesUsed) != 1 || rec.Data.TemplatesUsed[0] != "intro" {
		t.Errorf("expected templates_used [intro], got %v", rec.Data.TemplatesUsed)
	}
	if rec.LastContactDate == nil {
		t.Error("expected last contact date")
	}

	// a second send is logged but does not change the status again
	result, err = sender.Send(ctx, id, "intro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusChanged {
		t.Error("expected no second status change")
	}
}

func TestSenderUnknownTemplate(t *testing.T) {
	sender, _, id := setupSender(t, true, "")
	if _, err := sender.Send(context.Background(), id, "missing"); !errors.Is(err, negotiation.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSenderUnknownEngagement(t *testing.T) {
	sender, _, _ := setupSender(t, true, "")
	if _, err := sender.Send(context.Background(), 999, "intro"); !errors.Is(err, negotiation.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSenderDeliveryFailureRecordsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender, svc, id := setupSender(t, false, srv.URL)
	if _, err := sender.Send(context.Background(), id, "intro"); err == nil {
		t.Fatal("expected delivery error")
	}

	rec, _ := svc.Get(context.Background(), id)
	if len(rec.Data.Communications) != 0 || rec.NegotiationStatus != negotiation.StatusPendingOutreach {
		t.Errorf("expected nothing recorded after failed delivery")
	}
}

func TestSendHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sender, _, id := setupSender(t, true, "")
	router := gin.New()
	sender.Register(router.Group("/api"))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/engagements/%d/outreach", id), bytes.NewBufferString(`{"template":"intro"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var result Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !result.StatusChanged || result.Receipt == nil {
		t.Errorf("unexpected result %+v", result)
	}

	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/engagements/%d/outreach", id), bytes.NewBufferString(`{"template":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422 for unknown template, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/templates?type=initial_outreach", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"name":"intro"`) {
		t.Errorf("expected intro template listed, got %d: %s", w.Code, w.Body.String())
	}
}
