// Package sqldriver implements storage.Driver over database/sql. The sqlite
// and postgres packages supply the connection and the dialect.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/storage"
)

// Dialect covers what differs between backends.
type Dialect struct {
	// Schema creates the messages table if it does not exist.
	Schema string

	// Placeholder returns the bind parameter for the n-th argument, from 1.
	Placeholder func(n int) string
}

// Driver is a storage.Driver backed by a *sql.DB.
type Driver struct {
	DB      *sql.DB
	dialect Dialect
}

// New creates the schema and returns a Driver.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	if _, err := db.ExecContext(ctx, dialect.Schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Driver{DB: db, dialect: dialect}, nil
}

const columns = "id, conversation_id, role, model, provider, content, status, error, created_at"

func (d *Driver) bind(query string) string {
	n := 0
	var b strings.Builder
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *Driver) SaveMessage(ctx context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}
	storage.Prepare(msg)

	query := d.bind("INSERT INTO messages (" + columns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	_, err := d.DB.ExecContext(ctx, query,
		msg.ID.String(),
		msg.ConversationID,
		msg.Role,
		msg.Model,
		msg.Provider,
		msg.Content,
		string(msg.Status),
		msg.Error,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (d *Driver) GetMessage(ctx context.Context, id uuid.UUID) (*storage.Message, error) {
	row := d.DB.QueryRowContext(ctx, d.bind("SELECT "+columns+" FROM messages WHERE id = ?"), id.String())

	msg, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func (d *Driver) ListMessages(ctx context.Context, conversationID string) ([]*storage.Message, error) {
	rows, err := d.DB.QueryContext(ctx,
		d.bind("SELECT "+columns+" FROM messages WHERE conversation_id = ? ORDER BY created_at, id"),
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var result []*storage.Message
	for rows.Next() {
		msg, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (d *Driver) Close() error {
	return d.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*storage.Message, error) {
	var (
		msg    storage.Message
		id     string
		status string
	)
	err := s.Scan(&id, &msg.ConversationID, &msg.Role, &msg.Model, &msg.Provider,
		&msg.Content, &status, &msg.Error, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	msg.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	msg.Status = storage.Status(status)
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}
