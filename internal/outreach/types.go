// Package outreach delivers rendered templates to influencers through the
// outreach webhook and records them on the negotiation.
package outreach

// Message is one outbound email handed to the webhook
type Message struct {
	EngagementID uint   `json:"engagement_id"`
	Template     string `json:"template"`
	To           string `json:"to"`
	ToName       string `json:"to_name"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	Format       string `json:"format"`
}

// Receipt is the webhook's acknowledgement of a delivered message
type Receipt struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}
