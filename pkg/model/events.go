package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is the envelope published after a successful write against the
// FHIR service. Consumers key off EventType ("resource.created",
// "resource.updated") and ResourceType.
type AuditEvent struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}
