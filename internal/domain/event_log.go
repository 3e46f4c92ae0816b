package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventLogType distinguishes user-driven entries from scheduled ones.
const (
	EventLogTypeUser = "user"
	EventLogTypeCron = "cron"
)

// EventLogEntry is one audit record of a mutating operation. Payload,
// OldData and NewData are stored as JSONB; secrets are stripped before
// an entry is ever enqueued.
type EventLogEntry struct {
	ID          uuid.UUID       `json:"id"`
	UserID      *uuid.UUID      `json:"user_id"`
	Type        string          `json:"type"`
	APIEndpoint string          `json:"api_endpoint"`
	APIMethod   string          `json:"api_method"`
	Resource    string          `json:"resource"`
	ResourceID  *uuid.UUID      `json:"resource_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OldData     json.RawMessage `json:"old_data,omitempty"`
	NewData     json.RawMessage `json:"new_data,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
