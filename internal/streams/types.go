package streams

// Stream name constants
const (
	StreamNegotiationEvents = "negotiation:events"
)

// Consumer group constants
const (
	GroupActivityWriters = "activity-writers"
)

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)
