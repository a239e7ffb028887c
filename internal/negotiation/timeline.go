package negotiation

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// EntryType discriminates timeline entries
type EntryType string

// Timeline entry types
const (
	EntryStatusChange  EntryType = "status_change"
	EntryOffer         EntryType = "offer"
	EntryCommunication EntryType = "communication"
	EntryTask          EntryType = "task"
	EntryNote          EntryType = "note"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryStatusChange, EntryOffer, EntryCommunication, EntryTask, EntryNote:
		return true
	}
	return false
}

// EntryDetail is the type-specific payload of a timeline entry. The set of
// implementations is closed: StatusChange, OfferEvent, CommunicationEvent,
// TaskEvent and NoteEvent.
type EntryDetail interface {
	entryType() EntryType
}

// StatusChange records a negotiation_status transition
type StatusChange struct {
	From Status
	To   Status
}

// OfferEvent mirrors an entry of Data.Offers
type OfferEvent struct {
	OfferID     string    `json:"offer_id,omitempty"`
	OfferType   OfferType `json:"offer_type,omitempty"`
	OfferedBy   Party     `json:"offered_by"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
}

// CommunicationEvent mirrors an entry of Data.Communications
type CommunicationEvent struct {
	CommunicationID string            `json:"communication_id,omitempty"`
	Channel         CommunicationType `json:"channel"`
	Direction       Direction         `json:"direction"`
}

// TaskEvent records a scheduled follow-up
type TaskEvent struct {
	DueAt time.Time `json:"due_at"`
}

// NoteEvent is a free-text note; its content lives in the entry description.
type NoteEvent struct{}

func (StatusChange) entryType() EntryType       { return EntryStatusChange }
func (OfferEvent) entryType() EntryType         { return EntryOffer }
func (CommunicationEvent) entryType() EntryType { return EntryCommunication }
func (TaskEvent) entryType() EntryType          { return EntryTask }
func (NoteEvent) entryType() EntryType          { return EntryNote }

// TimelineEntry is one chronologically placed event of a negotiation.
// Type always equals Detail's type.
type TimelineEntry struct {
	ID          string
	Type        EntryType
	Title       string
	Description string
	Notes       string
	CreatedAt   time.Time
	CreatedBy   string
	Detail      EntryDetail
}

// entryJSON is the stored shape of a timeline entry. Status changes keep
// from_status/to_status at the top level; offers, communications and tasks
// carry their detail under metadata.
type entryJSON struct {
	ID          string          `json:"id"`
	Type        EntryType       `json:"type"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	FromStatus  Status          `json:"from_status,omitempty"`
	ToStatus    Status          `json:"to_status,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CreatedBy   string          `json:"created_by,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (e TimelineEntry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		ID:          e.ID,
		Type:        e.Type,
		Title:       e.Title,
		Description: e.Description,
		Notes:       e.Notes,
		CreatedAt:   e.CreatedAt,
		CreatedBy:   e.CreatedBy,
	}

	switch d := e.Detail.(type) {
	case StatusChange:
		out.FromStatus = d.From
		out.ToStatus = d.To
	case OfferEvent, CommunicationEvent, TaskEvent:
		meta, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		out.Metadata = meta
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (e *TimelineEntry) UnmarshalJSON(data []byte) error {
	var in entryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var detail EntryDetail
	switch in.Type {
	case EntryStatusChange:
		detail = StatusChange{From: in.FromStatus, To: in.ToStatus}
	case EntryOffer:
		var d OfferEvent
		if err := decodeMetadata(in.Metadata, &d); err != nil {
			return err
		}
		detail = d
	case EntryCommunication:
		var d CommunicationEvent
		if err := decodeMetadata(in.Metadata, &d); err != nil {
			return err
		}
		detail = d
	case EntryTask:
		var d TaskEvent
		if err := decodeMetadata(in.Metadata, &d); err != nil {
			return err
		}
		detail = d
	case EntryNote:
		detail = NoteEvent{}
	default:
		return fmt.Errorf("unknown timeline entry type %q", in.Type)
	}

	*e = TimelineEntry{
		ID:          in.ID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Notes:       in.Notes,
		CreatedAt:   in.CreatedAt,
		CreatedBy:   in.CreatedBy,
		Detail:      detail,
	}
	return nil
}

func decodeMetadata(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode timeline metadata: %w", err)
	}
	return nil
}

// Order is the sort direction of a timeline
type Order int

const (
	// NewestFirst is the display convention.
	NewestFirst Order = iota
	OldestFirst
)

// TimelineQuery narrows the result of BuildTimeline
type TimelineQuery struct {
	Order Order
	Types []EntryType // empty means all types
	Limit int         // zero means no limit
}

// BuildTimeline returns the entries of d sorted by created_at. Entries with the
// same timestamp keep their insertion order (reversed for NewestFirst), so the
// result is deterministic. The stored timeline is not modified.
func BuildTimeline(d Data, q TimelineQuery) []TimelineEntry {
	entries := make([]TimelineEntry, len(d.Timeline))
	copy(entries, d.Timeline)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	if q.Order == NewestFirst {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	if len(q.Types) > 0 {
		filtered := entries[:0]
		for _, e := range entries {
			if containsType(q.Types, e.Type) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}

	return entries
}

func containsType(types []EntryType, t EntryType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// heldFrom returns the status a negotiation was in before it was last put on
// hold, read from the latest status_change into on_hold.
func heldFrom(d Data) (Status, bool) {
	for i := len(d.Timeline) - 1; i >= 0; i-- {
		sc, ok := d.Timeline[i].Detail.(StatusChange)
		if ok && sc.To == StatusOnHold {
			return sc.From, sc.From.Valid() && sc.From != StatusOnHold
		}
	}
	return "", false
}

// CheckMirrors verifies that every offer and communication has exactly one
// mirrored timeline entry and that no mirror points at a missing sub-event.
func CheckMirrors(d Data) error {
	offers := make(map[string]int, len(d.Offers))
	for _, o := range d.Offers {
		offers[o.ID] = 0
	}
	comms := make(map[string]int, len(d.Communications))
	for _, c := range d.Communications {
		comms[c.ID] = 0
	}

	for _, e := range d.Timeline {
		switch det := e.Detail.(type) {
		case OfferEvent:
			if _, ok := offers[det.OfferID]; !ok {
				return fmt.Errorf("timeline entry %s mirrors unknown offer %q", e.ID, det.OfferID)
			}
			offers[det.OfferID]++
		case CommunicationEvent:
			if _, ok := comms[det.CommunicationID]; !ok {
				return fmt.Errorf("timeline entry %s mirrors unknown communication %q", e.ID, det.CommunicationID)
			}
			comms[det.CommunicationID]++
		}
	}

	for id, n := range offers {
		if n != 1 {
			return fmt.Errorf("offer %s has %d timeline entries, want 1", id, n)
		}
	}
	for id, n := range comms {
		if n != 1 {
			return fmt.Errorf("communication %s has %d timeline entries, want 1", id, n)
		}
	}
	return nil
}
