package engagements

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
)

// Handlers exposes the negotiation operations and the engagement's
// deliverables and tasks as a JSON API
type Handlers struct {
	svc   *negotiation.Service
	store *Store
}

// NewHandlers creates the engagement API handlers
func NewHandlers(svc *negotiation.Service, store *Store) *Handlers {
	return &Handlers{svc: svc, store: store}
}

// Register mounts the API on g, typically the authenticated /api group.
func (h *Handlers) Register(g *gin.RouterGroup) {
	e := g.Group("/engagements")
	e.POST("", h.Create)
	e.GET("/:id", h.Get)
	e.PUT("/:id/status", h.UpdateStatus)
	e.POST("/:id/offers", h.AddOffer)
	e.POST("/:id/communications", h.AddCommunication)
	e.PUT("/:id/follow-up", h.SetFollowUp)
	e.POST("/:id/notes", h.AddNote)
	e.PUT("/:id/priority", h.SetPriority)
	e.PUT("/:id/lifecycle", h.SetLifecycleStatus)
	e.GET("/:id/timeline", h.Timeline)
	e.GET("/:id/metrics", h.Metrics)
	e.GET("/:id/transitions", h.Transitions)
	e.POST("/:id/deliverables", h.CreateDeliverable)
	e.GET("/:id/tasks", h.ListOpenTasks)
	e.POST("/:id/tasks", h.CreateTask)

	g.POST("/deliverables/:id/approve", h.ApproveDeliverable)
	g.POST("/deliverables/:id/metrics", h.RecordMetrics)
	g.POST("/tasks/:id/complete", h.CompleteTask)
}

// engagementResponse is the API shape of a negotiation.Record
type engagementResponse struct {
	ID                uint                        `json:"id"`
	BrandID           uint                        `json:"brand_id"`
	InfluencerID      uint                        `json:"influencer_id"`
	CampaignName      string                      `json:"campaign_name"`
	PeriodLabel       string                      `json:"period_label"`
	Status            negotiation.LifecycleStatus `json:"status"`
	NegotiationStatus negotiation.Status          `json:"negotiation_status"`
	StatusLabel       string                      `json:"negotiation_status_label"`
	Priority          negotiation.Priority        `json:"negotiation_priority"`
	NegotiationData   negotiation.Data            `json:"negotiation_data"`
	AgreedTotalCents  *int64                      `json:"agreed_total_cents"`
	AgreedTotal       string                      `json:"agreed_total,omitempty"`
	AgreedCurrency    string                      `json:"agreed_currency"`
	BudgetCents       *int64                      `json:"budget_cents"`
	ActualCostCents   *int64                      `json:"actual_cost_cents"`
	TargetViews       *int64                      `json:"target_views"`
	LastContactDate   *time.Time                  `json:"last_contact_date"`
	NextFollowUpDate  *time.Time                  `json:"next_follow_up_date"`
	Version           int64                       `json:"version"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

func toResponse(rec *negotiation.Record) engagementResponse {
	resp := engagementResponse{
		ID:                rec.EngagementID,
		BrandID:           rec.BrandID,
		InfluencerID:      rec.InfluencerID,
		CampaignName:      rec.CampaignName,
		PeriodLabel:       rec.PeriodLabel,
		Status:            rec.Status,
		NegotiationStatus: rec.NegotiationStatus,
		StatusLabel:       rec.NegotiationStatus.Label(),
		Priority:          rec.Priority,
		NegotiationData:   rec.Data,
		AgreedTotalCents:  rec.AgreedTotalCents,
		AgreedCurrency:    rec.AgreedCurrency,
		BudgetCents:       rec.BudgetCents,
		ActualCostCents:   rec.ActualCostCents,
		TargetViews:       rec.TargetViews,
		LastContactDate:   rec.LastContactDate,
		NextFollowUpDate:  rec.NextFollowUpDate,
		Version:           rec.Version,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
	if rec.AgreedTotalCents != nil && rec.AgreedCurrency != "" {
		resp.AgreedTotal = negotiation.FormatAmount(*rec.AgreedTotalCents, rec.AgreedCurrency)
	}
	return resp
}

// createRequest accepts the kickoff fields plus an optional legacy document
type createRequest struct {
	negotiation.NewEngagement
	NegotiationData json.RawMessage `json:"negotiation_data"`
}

// Create starts a new engagement
func (h *Handlers) Create(c *gin.Context) {
	var req createRequest
	if !bindJSON(c, &req) {
		return
	}
	in := req.NewEngagement
	if len(req.NegotiationData) > 0 && string(req.NegotiationData) != "null" {
		in.NegotiationData = req.NegotiationData
	}

	rec, err := h.svc.StartEngagement(c.Request.Context(), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(rec))
}

// Get returns an engagement with its negotiation document
func (h *Handlers) Get(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(rec))
}

// UpdateStatus moves the negotiation to a new status
func (h *Handlers) UpdateStatus(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var req struct {
		Status negotiation.Status `json:"status"`
		Notes  string             `json:"notes"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.UpdateStatus(c.Request.Context(), id, req.Status, req.Notes); err != nil {
		RespondError(c, err)
		return
	}
	h.Get(c)
}

// AddOffer records an offer
func (h *Handlers) AddOffer(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var in negotiation.OfferInput
	if !bindJSON(c, &in) {
		return
	}
	offer, err := h.svc.AddOffer(c.Request.Context(), id, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

// AddCommunication records a contact event
func (h *Handlers) AddCommunication(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var in negotiation.CommunicationInput
	if !bindJSON(c, &in) {
		return
	}
	comm, err := h.svc.AddCommunication(c.Request.Context(), id, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comm)
}

// SetFollowUp schedules the next follow-up
func (h *Handlers) SetFollowUp(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var req struct {
		Date  *time.Time `json:"date"`
		Notes string     `json:"notes"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.Date == nil {
		RespondError(c, negotiation.NewValidationError("date", "is required"))
		return
	}
	if err := h.svc.SetFollowUp(c.Request.Context(), id, *req.Date, req.Notes); err != nil {
		RespondError(c, err)
		return
	}
	h.Get(c)
}

// AddNote appends a free-text note to the timeline
func (h *Handlers) AddNote(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.AddNote(c.Request.Context(), id, req.Content); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetPriority changes the negotiation priority
func (h *Handlers) SetPriority(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var req struct {
		Priority negotiation.Priority `json:"priority"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.SetPriority(c.Request.Context(), id, req.Priority); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetLifecycleStatus changes the general engagement status
func (h *Handlers) SetLifecycleStatus(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var req struct {
		Status negotiation.LifecycleStatus `json:"status"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.SetLifecycleStatus(c.Request.Context(), id, req.Status); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Timeline returns the timeline, newest first unless order=asc. The types
// parameter is a comma separated list of entry types.
func (h *Handlers) Timeline(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var q negotiation.TimelineQuery
	switch c.DefaultQuery("order", "desc") {
	case "desc":
		q.Order = negotiation.NewestFirst
	case "asc":
		q.Order = negotiation.OldestFirst
	default:
		RespondError(c, negotiation.NewValidationError("order", "must be asc or desc"))
		return
	}

	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			et := negotiation.EntryType(strings.TrimSpace(t))
			if !et.Valid() {
				RespondError(c, negotiation.NewValidationError("types", "unknown entry type "+string(et)))
				return
			}
			q.Types = append(q.Types, et)
		}
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			RespondError(c, negotiation.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		q.Limit = limit
	}

	entries, err := h.svc.GetTimeline(c.Request.Context(), id, q)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Metrics returns the derived performance metrics
func (h *Handlers) Metrics(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	m, err := h.svc.GetMetrics(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Transitions lists the statuses the negotiation may move to next
func (h *Handlers) Transitions(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":    rec.NegotiationStatus,
		"allowed": h.svc.Machine().Allowed(rec.Data, rec.NegotiationStatus),
	})
}

// CreateDeliverable adds a deliverable
func (h *Handlers) CreateDeliverable(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var in DeliverableInput
	if !bindJSON(c, &in) {
		return
	}
	d, err := h.store.CreateDeliverable(c.Request.Context(), id, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// ApproveDeliverable approves a deliverable as the acting user
func (h *Handlers) ApproveDeliverable(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}
	d, err := h.store.ApproveDeliverable(c.Request.Context(), id, actor)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// RecordMetrics stores a metrics snapshot for a deliverable
func (h *Handlers) RecordMetrics(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var in MetricsInput
	if !bindJSON(c, &in) {
		return
	}
	m, err := h.store.RecordMetrics(c.Request.Context(), id, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// CreateTask adds a task to an engagement
func (h *Handlers) CreateTask(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	var in TaskInput
	if !bindJSON(c, &in) {
		return
	}
	task, err := h.store.CreateTask(c.Request.Context(), id, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// CompleteTask marks a task done as the acting user
func (h *Handlers) CompleteTask(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	actor, ok := actorID(c)
	if !ok {
		return
	}
	task, err := h.store.CompleteTask(c.Request.Context(), id, actor)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListOpenTasks lists the pending tasks of an engagement
func (h *Handlers) ListOpenTasks(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	tasks, err := h.store.ListOpenTasks(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// ParseID reads the :id path parameter. It writes a 404 and returns false
// when the parameter is not a positive integer.
func ParseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return uint(id), true
}

// RespondError writes err as a JSON error with the status code of its kind.
func RespondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, negotiation.ErrValidation):
		status, message = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, negotiation.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, negotiation.ErrUnauthenticated):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, negotiation.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	default:
		slog.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		if errors.Is(err, io.EOF) {
			RespondError(c, negotiation.NewValidationError("body", "is required"))
		} else {
			RespondError(c, negotiation.NewValidationError("body", "invalid JSON: "+err.Error()))
		}
		return false
	}
	return true
}

// actorID reads the user id set by the auth middleware.
func actorID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if actor, ok := v.(string); ok && actor != "" {
			return actor, true
		}
	}
	RespondError(c, negotiation.ErrUnauthenticated)
	return "", false
}
