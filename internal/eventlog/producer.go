// Package eventlog enqueues audit entries for every mutating request.
// Enqueueing is fire-and-forget: a broken queue must never fail the
// request that produced the entry.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/queue"
)

// Request captures the HTTP surface of the operation being logged.
type Request struct {
	UserID   *uuid.UUID
	Endpoint string
	Method   string
	Payload  map[string]any
}

// Change is one recorded mutation. OldData/NewData/Error are marshaled
// into the entry as JSONB.
type Change struct {
	Type       string
	Resource   string
	ResourceID *uuid.UUID
	OldData    any
	NewData    any
	Error      any
}

// Producer pushes audit entries onto the event-log queue.
type Producer struct {
	queue    queue.Queue
	disabled bool
	logger   *zap.Logger
}

// NewProducer wires the event-log producer. When disabled it drops
// entries silently.
func NewProducer(q queue.Queue, disabled bool, logger *zap.Logger) *Producer {
	return &Producer{
		queue:    q,
		disabled: disabled,
		logger:   logger.With(zap.String("component", "eventlog_producer")),
	}
}

// Log sanitizes the request payload and enqueues one entry per change.
// Failures are logged and swallowed.
func (p *Producer) Log(ctx context.Context, req Request, changes ...Change) {
	if p.disabled {
		return
	}

	payload := sanitizePayload(req.Payload)

	for _, change := range changes {
		entry := domain.EventLogEntry{
			UserID:      req.UserID,
			Type:        change.Type,
			APIEndpoint: req.Endpoint,
			APIMethod:   req.Method,
			Resource:    change.Resource,
			ResourceID:  change.ResourceID,
			Payload:     payload,
			OldData:     marshalOrNil(change.OldData),
			NewData:     marshalOrNil(change.NewData),
			Error:       marshalOrNil(change.Error),
			CreatedAt:   time.Now().UTC(),
		}
		if entry.Type == "" {
			entry.Type = domain.EventLogTypeUser
		}
		if _, err := p.queue.Enqueue(ctx, entry); err != nil {
			p.logger.Error("failed to enqueue event log entry",
				zap.String("endpoint", req.Endpoint), zap.Error(err))
			return
		}
	}

	p.logger.Info("event log entries enqueued",
		zap.String("method", req.Method),
		zap.String("endpoint", req.Endpoint),
		zap.Int("count", len(changes)),
	)
}

// sanitizePayload strips credentials from the payload before it is
// persisted anywhere. File payloads reduce to the original filename.
func sanitizePayload(payload map[string]any) json.RawMessage {
	if len(payload) == 0 {
		return nil
	}

	clean := make(map[string]any, len(payload))
	for k, v := range payload {
		clean[k] = v
	}

	delete(clean, "password")
	delete(clean, "refresh_token")
	if _, hasNew := clean["new_password"]; hasNew {
		if _, hasConfirm := clean["confirm_password"]; hasConfirm {
			delete(clean, "new_password")
			delete(clean, "confirm_password")
		}
	}
	if file, ok := clean["file"].(map[string]any); ok {
		clean["file"] = file["originalname"]
	}

	if len(clean) == 0 {
		return nil
	}
	return marshalOrNil(clean)
}

func marshalOrNil(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
