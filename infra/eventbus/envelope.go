package eventbus

import (
	"encoding/json"
	"time"
)

// Envelope is the Kafka message value: the event type and its JSON payload.
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}
