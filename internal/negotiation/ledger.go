package negotiation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

// Input limits
const (
	DefaultMaxOfferCents = 100_000_000 // $1,000,000
	MaxContentLength     = 5000
	MaxSubjectLength     = 200
	MaxNotesLength       = 1000
	DefaultCurrency      = "USD"
)

// Options configures a Ledger (and through it a Service)
type Options struct {
	// StrictTransitions enables the adjacency check on status changes.
	StrictTransitions bool
	MaxOfferCents     int64
	DefaultCurrency   string
	Now               func() time.Time
	NewID             func() string
}

func (o Options) withDefaults() Options {
	if o.MaxOfferCents <= 0 {
		o.MaxOfferCents = DefaultMaxOfferCents
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = DefaultCurrency
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = newEntryID
	}
	return o
}

// newEntryID returns a time-ordered UUID (v7), falling back to v4.
func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// OfferInput is a new offer before it is recorded
type OfferInput struct {
	OfferType   OfferType `json:"offer_type"`
	OfferedBy   Party     `json:"offered_by"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Notes       string    `json:"notes"`
}

// Validate checks the offer against the amount ceiling. Currency may be
// empty; it is defaulted when the offer is recorded.
func (in OfferInput) Validate(maxCents int64) error {
	if !in.OfferType.Valid() {
		return invalid("offer_type", "must be one of initial, counter, final")
	}
	if !in.OfferedBy.Valid() {
		return invalid("offered_by", "must be brand or influencer")
	}
	if in.AmountCents <= 0 {
		return invalid("amount_cents", "must be a positive number of cents")
	}
	if in.AmountCents > maxCents {
		return invalid("amount_cents", "exceeds maximum of %d cents", maxCents)
	}
	if in.Currency != "" {
		if _, err := parseCurrency(in.Currency); err != nil {
			return err
		}
	}
	if utf8.RuneCountInString(in.Notes) > MaxNotesLength {
		return invalid("notes", "must be at most %d characters", MaxNotesLength)
	}
	return nil
}

// CommunicationInput is a contact event before it is recorded
type CommunicationInput struct {
	Type      CommunicationType      `json:"type"`
	Direction Direction              `json:"direction"`
	Subject   string                 `json:"subject"`
	Content   string                 `json:"content"`
	Metadata  *CommunicationMetadata `json:"metadata"`
}

func (in CommunicationInput) Validate() error {
	if !in.Type.Valid() {
		return invalid("type", "must be one of email, phone, message, meeting, other")
	}
	if !in.Direction.Valid() {
		return invalid("direction", "must be inbound or outbound")
	}
	if strings.TrimSpace(in.Content) == "" {
		return invalid("content", "is required")
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return invalid("content", "must be at most %d characters", MaxContentLength)
	}
	if utf8.RuneCountInString(in.Subject) > MaxSubjectLength {
		return invalid("subject", "must be at most %d characters", MaxSubjectLength)
	}
	return nil
}

func parseCurrency(code string) (currency.Unit, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return currency.Unit{}, invalid("currency", "%q is not an ISO 4217 currency code", code)
	}
	return unit, nil
}

// Ledger applies negotiation mutations to an in-memory Record. Every method
// validates first and only touches the record once validation passed, so a
// rejected call leaves the record as it was.
type Ledger struct {
	opts    Options
	machine Machine
}

// NewLedger creates a Ledger, filling unset options with defaults.
func NewLedger(opts Options) *Ledger {
	opts = opts.withDefaults()
	return &Ledger{opts: opts, machine: Machine{Strict: opts.StrictTransitions}}
}

func (l *Ledger) newEntry(detail EntryDetail, title, description, actor string, at time.Time) TimelineEntry {
	return TimelineEntry{
		ID:          l.opts.NewID(),
		Type:        detail.entryType(),
		Title:       title,
		Description: description,
		CreatedAt:   at,
		CreatedBy:   actor,
		Detail:      detail,
	}
}

// ChangeStatus moves the negotiation to status and appends the status_change entry.
func (l *Ledger) ChangeStatus(rec *Record, to Status, notes, actor string) (TimelineEntry, error) {
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return TimelineEntry{}, invalid("notes", "must be at most %d characters", MaxNotesLength)
	}
	from := rec.NegotiationStatus
	if err := l.machine.Check(rec.Data, from, to); err != nil {
		return TimelineEntry{}, err
	}

	entry := l.newEntry(
		StatusChange{From: from, To: to},
		fmt.Sprintf("Status changed to %s", to.Label()),
		fmt.Sprintf("From %s to %s", from.Label(), to.Label()),
		actor,
		l.opts.Now(),
	)
	entry.Notes = notes

	rec.Data.normalize()
	rec.NegotiationStatus = to
	rec.Data.Timeline = append(rec.Data.Timeline, entry)
	return entry, nil
}

// AddOffer appends an offer and its mirrored offer entry.
func (l *Ledger) AddOffer(rec *Record, in OfferInput, actor string) (Offer, TimelineEntry, error) {
	if err := in.Validate(l.opts.MaxOfferCents); err != nil {
		return Offer{}, TimelineEntry{}, err
	}

	code := in.Currency
	if code == "" {
		code = rec.AgreedCurrency
	}
	if code == "" {
		code = l.opts.DefaultCurrency
	}
	unit, err := parseCurrency(code)
	if err != nil {
		return Offer{}, TimelineEntry{}, err
	}

	now := l.opts.Now()
	offer := Offer{
		ID:          l.opts.NewID(),
		OfferType:   in.OfferType,
		OfferedBy:   in.OfferedBy,
		AmountCents: in.AmountCents,
		Currency:    unit.String(),
		Notes:       in.Notes,
		CreatedAt:   now,
		CreatedBy:   actor,
	}
	entry := l.newEntry(
		OfferEvent{
			OfferID:     offer.ID,
			OfferType:   offer.OfferType,
			OfferedBy:   offer.OfferedBy,
			AmountCents: offer.AmountCents,
			Currency:    offer.Currency,
		},
		fmt.Sprintf("%s offer from %s: %s", titleWord(string(offer.OfferType)), offer.OfferedBy, FormatAmount(offer.AmountCents, offer.Currency)),
		offer.Notes,
		actor,
		now,
	)

	rec.Data.normalize()
	rec.Data.Offers = append(rec.Data.Offers, offer)
	rec.Data.Timeline = append(rec.Data.Timeline, entry)
	return offer, entry, nil
}

// AddCommunication appends a communication and its mirrored entry, and
// stamps the engagement's last contact date.
func (l *Ledger) AddCommunication(rec *Record, in CommunicationInput, actor string) (Communication, TimelineEntry, error) {
	if err := in.Validate(); err != nil {
		return Communication{}, TimelineEntry{}, err
	}

	now := l.opts.Now()
	comm := Communication{
		ID:        l.opts.NewID(),
		Type:      in.Type,
		Direction: in.Direction,
		Subject:   in.Subject,
		Content:   in.Content,
		CreatedAt: now,
		CreatedBy: actor,
		Metadata:  in.Metadata,
	}

	title := comm.Subject
	if title == "" {
		title = fmt.Sprintf("%s %s", titleWord(string(comm.Direction)), comm.Type)
	}
	entry := l.newEntry(
		CommunicationEvent{
			CommunicationID: comm.ID,
			Channel:         comm.Type,
			Direction:       comm.Direction,
		},
		title,
		excerpt(comm.Content, 100),
		actor,
		now,
	)

	rec.Data.normalize()
	rec.Data.Communications = append(rec.Data.Communications, comm)
	rec.Data.Timeline = append(rec.Data.Timeline, entry)
	if in.Metadata != nil && in.Metadata.TemplateUsed != "" && !containsString(rec.Data.TemplatesUsed, in.Metadata.TemplateUsed) {
		rec.Data.TemplatesUsed = append(rec.Data.TemplatesUsed, in.Metadata.TemplateUsed)
	}
	rec.LastContactDate = &now
	return comm, entry, nil
}

// SetFollowUp schedules the next follow-up and bumps follow_up_count. It
// always returns the task entry describing the follow-up, but appends it to
// the timeline only when notes are given; recorded reports which happened.
func (l *Ledger) SetFollowUp(rec *Record, due time.Time, notes, actor string) (entry TimelineEntry, recorded bool, err error) {
	if due.IsZero() {
		return TimelineEntry{}, false, invalid("date", "is required")
	}
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return TimelineEntry{}, false, invalid("notes", "must be at most %d characters", MaxNotesLength)
	}

	due = due.UTC()
	rec.Data.normalize()
	rec.NextFollowUpDate = &due
	rec.Data.FollowUpCount++

	entry = l.newEntry(
		TaskEvent{DueAt: due},
		fmt.Sprintf("Follow-up scheduled for %s", due.Format("2006-01-02")),
		notes,
		actor,
		l.opts.Now(),
	)
	if notes == "" {
		return entry, false, nil
	}
	rec.Data.Timeline = append(rec.Data.Timeline, entry)
	return entry, true, nil
}

// AddNote appends a free-text note entry.
func (l *Ledger) AddNote(rec *Record, content, actor string) (TimelineEntry, error) {
	if strings.TrimSpace(content) == "" {
		return TimelineEntry{}, invalid("content", "is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return TimelineEntry{}, invalid("content", "must be at most %d characters", MaxContentLength)
	}

	entry := l.newEntry(NoteEvent{}, "Note", content, actor, l.opts.Now())
	rec.Data.normalize()
	rec.Data.Timeline = append(rec.Data.Timeline, entry)
	return entry, nil
}

// SetPriority changes the negotiation priority and notes the change.
func (l *Ledger) SetPriority(rec *Record, p Priority, actor string) (TimelineEntry, error) {
	if !p.Valid() {
		return TimelineEntry{}, invalid("priority", "must be low, medium or high")
	}

	entry := l.newEntry(
		NoteEvent{},
		fmt.Sprintf("Priority set to %s", p),
		fmt.Sprintf("Priority changed from %s to %s", rec.Priority, p),
		actor,
		l.opts.Now(),
	)
	rec.Data.normalize()
	rec.Priority = p
	rec.Data.Timeline = append(rec.Data.Timeline, entry)
	return entry, nil
}

// Reconcile repairs the mirror entries of a legacy document. Offers and
// communications without an id get one. Mirror entries whose metadata lacks
// the sub-event id are matched by amount, currency and party (offers) or by
// channel and direction (communications), preferring an equal created_at,
// and the id is backfilled. Sub-events still without a mirror get one
// stamped with their own created_at, and the timeline is re-sorted. It
// returns the number of entries added.
func (l *Ledger) Reconcile(d *Data) int {
	d.normalize()

	for i := range d.Offers {
		if d.Offers[i].ID == "" {
			d.Offers[i].ID = l.opts.NewID()
		}
	}
	for i := range d.Communications {
		if d.Communications[i].ID == "" {
			d.Communications[i].ID = l.opts.NewID()
		}
	}

	offerMirrored := make(map[string]bool, len(d.Offers))
	commMirrored := make(map[string]bool, len(d.Communications))
	var bare []int
	for i, e := range d.Timeline {
		switch det := e.Detail.(type) {
		case OfferEvent:
			if det.OfferID == "" {
				bare = append(bare, i)
			} else {
				offerMirrored[det.OfferID] = true
			}
		case CommunicationEvent:
			if det.CommunicationID == "" {
				bare = append(bare, i)
			} else {
				commMirrored[det.CommunicationID] = true
			}
		}
	}

	for _, i := range bare {
		entry := &d.Timeline[i]
		switch det := entry.Detail.(type) {
		case OfferEvent:
			if o, ok := matchOffer(d.Offers, offerMirrored, det, entry.CreatedAt); ok {
				det.OfferID = o.ID
				if det.OfferType == "" {
					det.OfferType = o.OfferType
				}
				entry.Detail = det
				offerMirrored[o.ID] = true
			}
		case CommunicationEvent:
			if c, ok := matchCommunication(d.Communications, commMirrored, det, entry.CreatedAt); ok {
				det.CommunicationID = c.ID
				det.Channel = c.Type
				det.Direction = c.Direction
				entry.Detail = det
				commMirrored[c.ID] = true
			}
		}
	}

	added := 0
	for _, o := range d.Offers {
		if offerMirrored[o.ID] {
			continue
		}
		d.Timeline = append(d.Timeline, l.newEntry(
			OfferEvent{OfferID: o.ID, OfferType: o.OfferType, OfferedBy: o.OfferedBy, AmountCents: o.AmountCents, Currency: o.Currency},
			fmt.Sprintf("%s offer from %s: %s", titleWord(string(o.OfferType)), o.OfferedBy, FormatAmount(o.AmountCents, o.Currency)),
			o.Notes, o.CreatedBy, o.CreatedAt,
		))
		added++
	}
	for _, c := range d.Communications {
		if commMirrored[c.ID] {
			continue
		}
		title := c.Subject
		if title == "" {
			title = fmt.Sprintf("%s %s", titleWord(string(c.Direction)), c.Type)
		}
		d.Timeline = append(d.Timeline, l.newEntry(
			CommunicationEvent{CommunicationID: c.ID, Channel: c.Type, Direction: c.Direction},
			title, excerpt(c.Content, 100), c.CreatedBy, c.CreatedAt,
		))
		added++
	}

	if added > 0 {
		d.Timeline = BuildTimeline(*d, TimelineQuery{Order: OldestFirst})
	}
	return added
}

// matchOffer finds the first unclaimed offer fitting a mirror without an id.
// Empty mirror fields match anything.
func matchOffer(offers []Offer, claimed map[string]bool, e OfferEvent, at time.Time) (Offer, bool) {
	fits := func(o Offer) bool {
		return !claimed[o.ID] &&
			o.AmountCents == e.AmountCents &&
			(e.OfferedBy == "" || o.OfferedBy == e.OfferedBy) &&
			(e.Currency == "" || strings.EqualFold(o.Currency, e.Currency)) &&
			(e.OfferType == "" || o.OfferType == e.OfferType)
	}
	for _, o := range offers {
		if fits(o) && o.CreatedAt.Equal(at) {
			return o, true
		}
	}
	for _, o := range offers {
		if fits(o) {
			return o, true
		}
	}
	return Offer{}, false
}

// matchCommunication is matchOffer for communications.
func matchCommunication(comms []Communication, claimed map[string]bool, e CommunicationEvent, at time.Time) (Communication, bool) {
	fits := func(c Communication) bool {
		return !claimed[c.ID] &&
			(e.Channel == "" || c.Type == e.Channel) &&
			(e.Direction == "" || c.Direction == e.Direction)
	}
	for _, c := range comms {
		if fits(c) && c.CreatedAt.Equal(at) {
			return c, true
		}
	}
	for _, c := range comms {
		if fits(c) {
			return c, true
		}
	}
	return Communication{}, false
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
