package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessageCompleted is emitted after a relayed message is persisted.
	EventTypeMessageCompleted = "chatstream.message.completed"
)

// MessageCompletedEvent is a transport-neutral event payload for a persisted
// assistant message.
type MessageCompletedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Stream        StreamMeta  `json:"stream"`
	Message       MessageRef  `json:"message"`
}

// EventSource identifies which upstream produced the message.
type EventSource struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// StreamMeta captures relay lifecycle metadata for the event.
type StreamMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Deltas      int       `json:"deltas"`
	Malformed   int       `json:"malformed"`
	Outcome     string    `json:"outcome"`
}

// MessageRef is the persisted message as published.
type MessageRef struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Role           string `json:"role"`
	Status         string `json:"status"`
	Content        string `json:"content"`
	Error          string `json:"error,omitempty"`
}

// NewMessageCompletedEvent builds the event for a stored message.
func NewMessageCompletedEvent(msg *storage.Message, stream StreamMeta) *MessageCompletedEvent {
	return &MessageCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMessageCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			Provider: msg.Provider,
			Model:    msg.Model,
		},
		Stream: stream,
		Message: MessageRef{
			ID:             msg.ID.String(),
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Status:         string(msg.Status),
			Content:        msg.Content,
			Error:          msg.Error,
		},
	}
}
