// Package inmemory is a map-backed storage.Driver for tests and for running
// the server without a database.
package inmemory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	mu sync.RWMutex

	// messages is keyed by message ID
	messages map[uuid.UUID]*storage.Message

	// order keeps insertion order for stable listing
	order []uuid.UUID
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		messages: make(map[uuid.UUID]*storage.Message),
	}
}

func (d *Driver) SaveMessage(_ context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}
	storage.Prepare(msg)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.messages[msg.ID]; !ok {
		d.order = append(d.order, msg.ID)
	}
	stored := *msg
	d.messages[msg.ID] = &stored
	return nil
}

func (d *Driver) GetMessage(_ context.Context, id uuid.UUID) (*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	msg, ok := d.messages[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id.String()}
	}
	out := *msg
	return &out, nil
}

func (d *Driver) ListMessages(_ context.Context, conversationID string) ([]*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*storage.Message
	for _, id := range d.order {
		msg := d.messages[id]
		if msg.ConversationID != conversationID {
			continue
		}
		out := *msg
		result = append(result, &out)
	}

	slices.SortStableFunc(result, func(a, b *storage.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (d *Driver) Close() error {
	return nil
}
