package drops

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventReservationStarted = "ReservationStarted"
	EventInterestToggled    = "InterestToggled"
	EventProgressUpdated    = "ProgressUpdated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "drops-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // drop id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload as a version 1 event correlated to a drop.
func NewEnvelope(eventType, producer, traceID, dropID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: dropID,
		Payload:       b,
	}, nil
}

type ReservationStartedPayload struct {
	UserID      string      `json:"user_id"`
	Reservation Reservation `json:"reservation"`
}

type InterestToggledPayload struct {
	DropID     string `json:"drop_id"`
	UserID     string `json:"user_id"`
	Interested bool   `json:"interested"`
	Count      int    `json:"count"`
}

type ProgressUpdatedPayload struct {
	DropID   string  `json:"drop_id"`
	Progress float64 `json:"progress"`
}
