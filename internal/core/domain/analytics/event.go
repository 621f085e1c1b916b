package analytics

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one analytics event pending upload.
type Event struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Type       string          `json:"type" db:"type"`
	SessionID  string          `json:"session_id" db:"session_id"`
	OccurredAt time.Time       `json:"occurred_at" db:"occurred_at"`
	Body       json.RawMessage `json:"data" db:"body"`
}
