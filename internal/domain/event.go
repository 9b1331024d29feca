package domain

import "time"

// Outbox event types emitted on coordinator state transitions.
const (
	EventSubmitted   = "submitted"
	EventPublished   = "published"
	EventUnpublished = "unpublished"
	EventRejected    = "rejected"
)

// OutboxEvent is a write-once record of a state transition. Delivery to an
// external stream is the relaying collaborator's responsibility.
type OutboxEvent struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	HeadID    string         `json:"head_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Actor     string         `json:"actor"`
	CreatedAt time.Time      `json:"created_at"`
}
