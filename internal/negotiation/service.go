package negotiation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// publishTimeout bounds event publication after a commit.
const publishTimeout = 2 * time.Second

// Store is the persistence layer the negotiation core reads from and writes to.
//
// Load and Save return an error matching ErrNotFound for unknown ids. Save
// must persist the whole record in one atomic write and reject it with an
// error matching ErrConflict when the stored Version differs from rec.Version;
// on success it bumps rec.Version.
type Store interface {
	Load(ctx context.Context, engagementID uint) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	Save(ctx context.Context, rec *Record) error
	Totals(ctx context.Context, engagementID uint) (Totals, error)
}

// Identity resolves the acting user of a request.
type Identity interface {
	ActorID(ctx context.Context) (string, error)
}

// Event is published after a negotiation mutation has been committed
type Event struct {
	EngagementID      uint            `json:"engagement_id"`
	BrandID           uint            `json:"brand_id"`
	InfluencerID      uint            `json:"influencer_id"`
	NegotiationStatus Status          `json:"negotiation_status"`
	AgreedTotalCents  *int64          `json:"agreed_total_cents,omitempty"`
	AgreedCurrency    string          `json:"agreed_currency,omitempty"`
	Actor             string          `json:"actor"`
	Entries           []TimelineEntry `json:"entries"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

// EventPublisher receives committed events. Publication is best effort.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// NewEngagement describes an engagement to start
type NewEngagement struct {
	BrandID          uint     `json:"brand_id"`
	InfluencerID     uint     `json:"influencer_id"`
	CampaignName     string   `json:"campaign_name"`
	PeriodLabel      string   `json:"period_label"`
	Priority         Priority `json:"priority"`
	AgreedTotalCents *int64   `json:"agreed_total_cents"`
	AgreedCurrency   string   `json:"agreed_currency"`
	BudgetCents      *int64   `json:"budget_cents"`
	TargetViews      *int64   `json:"target_views"`
	// NegotiationData optionally seeds the document, e.g. from the legacy system.
	NegotiationData []byte `json:"-"`
}

// Service exposes the negotiation operations over an engagement id. Every
// call loads fresh state from the Store; nothing is cached between calls.
type Service struct {
	store    Store
	identity Identity
	events   EventPublisher
	ledger   *Ledger
	opts     Options
	logger   *slog.Logger
}

// NewService creates a Service. events may be nil.
func NewService(store Store, identity Identity, events EventPublisher, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		store:    store,
		identity: identity,
		events:   events,
		ledger:   NewLedger(opts),
		opts:     opts,
		logger:   slog.Default(),
	}
}

// Machine returns the transition rules the service enforces.
func (s *Service) Machine() Machine {
	return s.ledger.machine
}

// StartEngagement inserts a new engagement for one brand and one influencer.
func (s *Service) StartEngagement(ctx context.Context, in NewEngagement) (*Record, error) {
	if in.BrandID == 0 {
		return nil, invalid("brand_id", "is required")
	}
	if in.InfluencerID == 0 {
		return nil, invalid("influencer_id", "is required")
	}
	if in.AgreedTotalCents != nil && *in.AgreedTotalCents < 0 {
		return nil, invalid("agreed_total_cents", "must not be negative")
	}
	if in.BudgetCents != nil && *in.BudgetCents < 0 {
		return nil, invalid("budget_cents", "must not be negative")
	}
	if in.TargetViews != nil && *in.TargetViews < 0 {
		return nil, invalid("target_views", "must not be negative")
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, invalid("priority", "must be low, medium or high")
	}
	currencyCode := ""
	if in.AgreedCurrency != "" {
		unit, err := parseCurrency(in.AgreedCurrency)
		if err != nil {
			return nil, err
		}
		currencyCode = unit.String()
	}

	data := NewData()
	if len(in.NegotiationData) > 0 {
		imported, err := ValidateDocument(in.NegotiationData)
		if err != nil {
			return nil, err
		}
		s.ledger.Reconcile(&imported)
		if err := CheckMirrors(imported); err != nil {
			return nil, invalid("negotiation_data", "%v", err)
		}
		if imported.CurrentStage == "" {
			imported.CurrentStage = StageInitialContact
		}
		data = imported
	}

	if _, err := s.actor(ctx); err != nil {
		return nil, err
	}

	rec := &Record{
		BrandID:           in.BrandID,
		InfluencerID:      in.InfluencerID,
		CampaignName:      in.CampaignName,
		PeriodLabel:       in.PeriodLabel,
		Status:            LifecycleNegotiating,
		NegotiationStatus: StatusPendingOutreach,
		Priority:          in.Priority,
		Data:              data,
		AgreedTotalCents:  in.AgreedTotalCents,
		AgreedCurrency:    currencyCode,
		BudgetCents:       in.BudgetCents,
		TargetViews:       in.TargetViews,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, s.storeErr("create engagement", err)
	}
	return rec, nil
}

// Get returns the current record of an engagement.
func (s *Service) Get(ctx context.Context, engagementID uint) (*Record, error) {
	return s.load(ctx, engagementID)
}

// UpdateStatus moves the negotiation to status and records the transition.
func (s *Service) UpdateStatus(ctx context.Context, engagementID uint, status Status, notes string) error {
	if !status.Valid() {
		return invalid("status", "unknown negotiation status %q", status)
	}
	_, err := s.mutate(ctx, engagementID, func(rec *Record, actor string) ([]TimelineEntry, error) {
		entry, err := s.ledger.ChangeStatus(rec, status, notes, actor)
		if err != nil {
			return nil, err
		}
		return []TimelineEntry{entry}, nil
	})
	return err
}

// AddOffer records an offer and its mirrored timeline entry in one write.
func (s *Service) AddOffer(ctx context.Context, engagementID uint, in OfferInput) (Offer, error) {
	if err := in.Validate(s.opts.MaxOfferCents); err != nil {
		return Offer{}, err
	}
	var offer Offer
	_, err := s.mutate(ctx, engagementID, func(rec *Record, actor string) ([]TimelineEntry, error) {
		o, entry, err := s.ledger.AddOffer(rec, in, actor)
		if err != nil {
			return nil, err
		}
		offer = o
		return []TimelineEntry{entry}, nil
	})
	if err != nil {
		return Offer{}, err
	}
	return offer, nil
}

// AddCommunication records a communication and its mirrored timeline entry in one write.
func (s *Service) AddCommunication(ctx context.Context, engagementID uint, in CommunicationInput) (Communication, error) {
	if err := in.Validate(); err != nil {
		return Communication{}, err
	}
	var comm Communication
	_, err := s.mutate(ctx, engagementID, func(rec *Record, actor string) ([]TimelineEntry, error) {
		c, entry, err := s.ledger.AddCommunication(rec, in, actor)
		if err != nil {
			return nil, err
		}
		comm = c
		return []TimelineEntry{entry}, nil
	})
	if err != nil {
		return Communication{}, err
	}
	return comm, nil
}

// SetFollowUp schedules the next follow-up date. The published event always
// carries the follow-up entry, even when it is not kept on the timeline.
func (s *Service) SetFollowUp(ctx context.Context, engagementID uint, due time.Time, notes string) error {
	if due.IsZero() {
		return invalid("date", "is required")
	}
	_, err := s.mutate(ctx, engagementID, func(rec *Record, actor string) ([]TimelineEntry, error) {
		entry, _, err := s.ledger.SetFollowUp(rec, due, notes, actor)
		if err != nil {
			return nil, err
		}
		return []TimelineEntry{entry}, nil
	})
	return err
}

// AddNote appends a note to the timeline.
func (s *Service) AddNote(ctx context.Context, engagementID uint, content string) error {
	_, err := s.mutate(ctx, engagementID, func(rec *Record, actor string) ([]TimelineEntry, error) {
		entry, err := s.ledger.AddNote(rec, content, actor)
		if err != nil {
			return nil, err
		}
		return []TimelineEntry{entry}, nil
	})
	return err
}

// SetPriority changes the negotiation priority.
func (s *Service) SetPriority(ctx context.Context, engagementID uint, p Priority) error {
	if !p.Valid() {
		return invalid("priority", "must be low, medium or high")
	}
	_, err := s.mutate(ctx, engagementID, func(rec *Record, actor string) ([]TimelineEntry, error) {
		entry, err := s.ledger.SetPriority(rec, p, actor)
		if err != nil {
			return nil, err
		}
		return []TimelineEntry{entry}, nil
	})
	return err
}

// SetLifecycleStatus changes the general engagement status. The negotiation
// document is left untouched.
func (s *Service) SetLifecycleStatus(ctx context.Context, engagementID uint, status LifecycleStatus) error {
	if !status.Valid() {
		return invalid("status", "unknown engagement status %q", status)
	}
	_, err := s.mutate(ctx, engagementID, func(rec *Record, actor string) ([]TimelineEntry, error) {
		rec.Status = status
		return nil, nil
	})
	return err
}

// GetTimeline returns the engagement's timeline in display order.
func (s *Service) GetTimeline(ctx context.Context, engagementID uint, q TimelineQuery) ([]TimelineEntry, error) {
	rec, err := s.load(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	return BuildTimeline(rec.Data, q), nil
}

// GetMetrics derives TKP, ROAS, CTR and target utilization for an engagement.
func (s *Service) GetMetrics(ctx context.Context, engagementID uint) (Metrics, error) {
	rec, err := s.load(ctx, engagementID)
	if err != nil {
		return Metrics{}, err
	}
	totals, err := s.store.Totals(ctx, engagementID)
	if err != nil {
		return Metrics{}, s.storeErr("load metric totals", err)
	}
	return ComputeMetrics(*rec, totals), nil
}

// mutate runs one read-modify-write cycle: resolve the actor, load the
// record, apply, then save it in a single write. Nothing is persisted when
// any step fails.
func (s *Service) mutate(ctx context.Context, engagementID uint, apply func(rec *Record, actor string) ([]TimelineEntry, error)) (*Record, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := s.load(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	entries, err := apply(rec, actor)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, s.storeErr("save engagement", err)
	}

	s.publish(ctx, rec, actor, entries)
	return rec, nil
}

func (s *Service) actor(ctx context.Context) (string, error) {
	if s.identity == nil {
		return "", ErrUnauthenticated
	}
	actor, err := s.identity.ActorID(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return "", err
		}
		return "", errors.Join(ErrUnauthenticated, err)
	}
	if actor == "" {
		return "", ErrUnauthenticated
	}
	return actor, nil
}

func (s *Service) load(ctx context.Context, engagementID uint) (*Record, error) {
	if engagementID == 0 {
		return nil, ErrNotFound
	}
	rec, err := s.store.Load(ctx, engagementID)
	if err != nil {
		return nil, s.storeErr("load engagement", err)
	}
	rec.Data.normalize()
	return rec, nil
}

// storeErr keeps not-found and conflict errors recognizable and wraps
// everything else as a persistence failure.
func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func (s *Service) publish(ctx context.Context, rec *Record, actor string, entries []TimelineEntry) {
	if s.events == nil || len(entries) == 0 {
		return
	}
	ev := Event{
		EngagementID:      rec.EngagementID,
		BrandID:           rec.BrandID,
		InfluencerID:      rec.InfluencerID,
		NegotiationStatus: rec.NegotiationStatus,
		AgreedTotalCents:  rec.AgreedTotalCents,
		AgreedCurrency:    rec.AgreedCurrency,
		Actor:             actor,
		Entries:           entries,
		OccurredAt:        s.opts.Now(),
	}
	// The write is committed; a cancelled request must not drop the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.PublishEvent(pubCtx, ev); err != nil {
		s.logger.Warn("Failed to publish negotiation event",
			"engagement_id", rec.EngagementID,
			"error", err,
		)
	}
}
