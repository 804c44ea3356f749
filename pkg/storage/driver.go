// Package storage persists completed chat messages. It is the narrow
// "persist a message, acknowledge" collaborator of the chat server.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the terminal state a message was saved in.
type Status string

const (
	// StatusComplete is a message whose stream ended normally.
	StatusComplete Status = "complete"

	// StatusFailed is a message whose stream was cut off. Content holds the
	// partial text that reached the client.
	StatusFailed Status = "failed"
)

// Message is one persisted chat turn.
type Message struct {
	ID             uuid.UUID
	ConversationID string
	Role           string
	Model          string
	Provider       string
	Content        string
	Status         Status

	// Error describes why a failed message stopped.
	Error string

	CreatedAt time.Time
}

// Driver stores and retrieves messages.
type Driver interface {
	// SaveMessage stores msg. A zero ID or CreatedAt is filled in.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage returns a message by ID or a NotFoundError.
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)

	// ListMessages returns a conversation's messages, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Close releases the backend.
	Close() error
}

// Prepare fills in the generated fields of msg.
func Prepare(msg *Message) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
}
