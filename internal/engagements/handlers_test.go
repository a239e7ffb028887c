package engagements

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/jimdaga/influencer-crm/internal/auth"
	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(
		&models.Brand{}, &models.Influencer{}, &models.Engagement{},
		&models.Deliverable{}, &models.DeliverableMetric{}, &models.Task{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type testAPI struct {
	db     *gorm.DB
	router *gin.Engine
	brand  models.Brand
	infl   models.Influencer
}

// newTestAPI mounts the handlers behind a middleware that authenticates
// every request as user 7, unless the request carries X-Anonymous.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := newTestDB(t)

	brand := models.Brand{Name: "Glow Labs"}
	influencer := models.Influencer{Name: "Ana", Email: "ana@example.com"}
	db.Create(&brand)
	db.Create(&influencer)

	store := NewStore(db)
	svc := negotiation.NewService(store, auth.ContextIdentity{}, nil, negotiation.Options{})

	router := gin.New()
	api := router.Group("/api", func(c *gin.Context) {
		if c.GetHeader("X-Anonymous") == "" {
			c.Set("user_id", "7")
			c.Request = c.Request.WithContext(auth.WithActor(c.Request.Context(), "7"))
		}
		c.Next()
	})
	NewHandlers(svc, store).Register(api)

	return &testAPI{db: db, router: router, brand: brand, infl: influencer}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) createEngagement(t *testing.T) uint {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/engagements", map[string]interface{}{
		"brand_id":      a.brand.ID,
		"influencer_id": a.infl.ID,
		"campaign_name": "Summer Glow",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp engagementResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.ID
}

func TestCreateAndGetEngagement(t *testing.T) {
	api := newTestAPI(t)
	id := api.createEngagement(t)

	w := api.do(t, http.MethodGet, fmt.Sprintf("/api/engagements/%d", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["negotiation_status"] != "pending_outreach" {
		t.Errorf("expected pending_outreach, got %v", body["negotiation_status"])
	}
	if body["negotiation_status_label"] != "Pending Outreach" {
		t.Errorf("expected label Pending Outreach, got %v", body["negotiation_status_label"])
	}
	data, ok := body["negotiation_data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected negotiation_data object, got %T", body["negotiation_data"])
	}
	if data["current_stage"] != "initial_contact" {
		t.Errorf("expected initial_contact, got %v", data["current_stage"])
	}
}

func TestCreateEngagementUnknownBrand(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodPost, "/api/engagements", map[string]interface{}{
		"brand_id":      999,
		"influencer_id": api.infl.ID,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "brand 999 not found") {
		t.Errorf("expected brand named in error, got %s", w.Body.String())
	}

	w = api.do(t, http.MethodPost, "/api/engagements", map[string]interface{}{
		"brand_id":      api.brand.ID,
		"influencer_id": 998,
	})
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "influencer 998 not found") {
		t.Errorf("expected influencer 998 not found, got %d: %s", w.Code, w.Body.String())
	}
}

func TestNegotiationFlow(t *testing.T) {
	api := newTestAPI(t)
	id := api.createEngagement(t)
	base := fmt.Sprintf("/api/engagements/%d", id)

	w := api.do(t, http.MethodPost, base+"/offers", map[string]interface{}{
		"offer_type":   "initial",
		"offered_by":   "brand",
		"amount_cents": 500000,
		"currency":     "USD",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201 for offer, got %d: %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodPost, base+"/communications", map[string]interface{}{
		"type":      "email",
		"direction": "inbound",
		"subject":   "Re: collab",
		"content":   "Sounds great, let's talk rates.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201 for communication, got %d: %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodPut, base+"/status", map[string]interface{}{"status": "agreed", "notes": "signed"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for status change, got %d: %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodGet, base+"/timeline?order=asc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for timeline, got %d", w.Code)
	}
	var timeline struct {
		Entries []map[string]interface{} `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &timeline); err != nil {
		t.Fatalf("failed to decode timeline: %v", err)
	}
	if len(timeline.Entries) != 3 {
		t.Fatalf("expected 3 timeline entries, got %d", len(timeline.Entries))
	}
	wantTypes := []string{"offer", "communication", "status_change"}
	for i, want := range wantTypes {
		if timeline.Entries[i]["type"] != want {
			t.Errorf("entry %d: expected type %s, got %v", i, want, timeline.Entries[i]["type"])
		}
	}

	w = api.do(t, http.MethodGet, base+"/timeline?types=offer&limit=5", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &timeline); err != nil {
		t.Fatalf("failed to decode timeline: %v", err)
	}
	if len(timeline.Entries) != 1 {
		t.Errorf("expected 1 offer entry, got %d", len(timeline.Entries))
	}
}

func TestValidationErrors(t *testing.T) {
	api := newTestAPI(t)
	id := api.createEngagement(t)
	base := fmt.Sprintf("/api/engagements/%d", id)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"negative offer", http.MethodPost, base + "/offers", map[string]interface{}{"offer_type": "initial", "offered_by": "brand", "amount_cents": -1}},
		{"unknown status", http.MethodPut, base + "/status", map[string]interface{}{"status": "ghosted"}},
		{"empty body", http.MethodPost, base + "/notes", nil},
		{"malformed json", http.MethodPost, base + "/notes", "{"},
		{"bad order", http.MethodGet, base + "/timeline?order=sideways", nil},
		{"bad type filter", http.MethodGet, base + "/timeline?types=offer,gossip", nil},
		{"missing follow-up date", http.MethodPut, base + "/follow-up", map[string]interface{}{"notes": "ping"}},
		{"bad priority", http.MethodPut, base + "/priority", map[string]interface{}{"priority": "urgent"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(t, tc.method, tc.path, tc.body)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("expected status 422, got %d: %s", w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestNotFoundAndUnauthenticated(t *testing.T) {
	api := newTestAPI(t)
	id := api.createEngagement(t)

	if w := api.do(t, http.MethodGet, "/api/engagements/4242", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown engagement, got %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/api/engagements/abc", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for malformed id, got %d", w.Code)
	}

	w := api.do(t, http.MethodPost, fmt.Sprintf("/api/engagements/%d/notes", id), map[string]string{"content": "hi"}, "X-Anonymous", "1")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestLifecyclePriorityAndNotes(t *testing.T) {
	api := newTestAPI(t)
	id := api.createEngagement(t)
	base := fmt.Sprintf("/api/engagements/%d", id)

	if w := api.do(t, http.MethodPut, base+"/priority", map[string]string{"priority": "high"}); w.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for priority, got %d", w.Code)
	}
	if w := api.do(t, http.MethodPut, base+"/lifecycle", map[string]string{"status": "paused"}); w.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for lifecycle, got %d", w.Code)
	}
	if w := api.do(t, http.MethodPost, base+"/notes", map[string]string{"content": "Prefers reels"}); w.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for note, got %d", w.Code)
	}
	if w := api.do(t, http.MethodPut, base+"/follow-up", map[string]string{"date": "2024-07-01T09:00:00Z", "notes": "check in"}); w.Code != http.StatusOK {
		t.Errorf("expected status 200 for follow-up, got %d", w.Code)
	}

	var e models.Engagement
	api.db.First(&e, id)
	if e.NegotiationPriority != "high" || e.Status != "paused" {
		t.Errorf("expected high/paused, got %s/%s", e.NegotiationPriority, e.Status)
	}
	if e.NextFollowUpDate == nil {
		t.Error("expected next follow-up date")
	}
	if got := e.NegotiationData.Data().FollowUpCount; got != 1 {
		t.Errorf("expected follow_up_count 1, got %d", got)
	}
}

func TestTransitions(t *testing.T) {
	api := newTestAPI(t)
	id := api.createEngagement(t)

	w := api.do(t, http.MethodGet, fmt.Sprintf("/api/engagements/%d/transitions", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body struct {
		From    string   `json:"from"`
		Allowed []string `json:"allowed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.From != "pending_outreach" || len(body.Allowed) == 0 {
		t.Errorf("unexpected transitions %+v", body)
	}
}

func TestDeliverablesTasksAndMetrics(t *testing.T) {
	api := newTestAPI(t)
	id := api.createEngagement(t)
	base := fmt.Sprintf("/api/engagements/%d", id)

	api.db.Model(&models.Engagement{}).Where("id = ?", id).Update("agreed_total_cents", 100000)

	w := api.do(t, http.MethodPost, base+"/deliverables", map[string]string{"platform": "Instagram", "content_type": "Reel"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201 for deliverable, got %d: %s", w.Code, w.Body.String())
	}
	var d models.Deliverable
	json.Unmarshal(w.Body.Bytes(), &d)
	if d.Platform != "instagram" {
		t.Errorf("expected normalized platform, got %s", d.Platform)
	}

	w = api.do(t, http.MethodPost, fmt.Sprintf("/api/deliverables/%d/approve", d.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for approve, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &d)
	if !d.Approved || d.ApprovedBy != "7" {
		t.Errorf("expected approval by 7, got %+v", d)
	}

	w = api.do(t, http.MethodPost, fmt.Sprintf("/api/deliverables/%d/metrics", d.ID), map[string]interface{}{
		"views": 20000, "clicks": 400, "revenue_cents": 150000, "is_final": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201 for metrics, got %d: %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodGet, base+"/metrics", nil)
	var m map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &m)
	if m["roas"] != 1.5 {
		t.Errorf("expected roas 1.5, got %v", m["roas"])
	}
	if m["ctr"] != 2.0 {
		t.Errorf("expected ctr 2, got %v", m["ctr"])
	}
	if m["budget_utilization"] != nil {
		t.Errorf("expected budget utilization null without a budget, got %v", m["budget_utilization"])
	}

	w = api.do(t, http.MethodPost, base+"/tasks", map[string]string{"title": "Send contract", "type": "send_contract"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201 for task, got %d: %s", w.Code, w.Body.String())
	}
	var task models.Task
	json.Unmarshal(w.Body.Bytes(), &task)

	w = api.do(t, http.MethodPost, fmt.Sprintf("/api/tasks/%d/complete", task.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for complete, got %d", w.Code)
	}

	w = api.do(t, http.MethodGet, base+"/tasks", nil)
	var open struct {
		Tasks []models.Task `json:"tasks"`
	}
	json.Unmarshal(w.Body.Bytes(), &open)
	if len(open.Tasks) != 0 {
		t.Errorf("expected no open tasks, got %d", len(open.Tasks))
	}
}
