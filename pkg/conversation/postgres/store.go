// Package postgres provides a PostgreSQL-backed [conversation.Store].
//
// Messages live in a single conversation_messages table keyed by
// conversation ID with a serial sequence column preserving append order.
// The schema is created on first connect; no external migration tooling is
// required.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dermalive/dermalive/pkg/conversation"
)

// Compile-time interface assertion.
var _ conversation.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_messages (
    id              BIGSERIAL PRIMARY KEY,
    conversation_id TEXT        NOT NULL,
    role            TEXT        NOT NULL,
    text            TEXT        NOT NULL,
    committed_at    TIMESTAMPTZ NOT NULL,
    citations       JSONB
);
CREATE INDEX IF NOT EXISTS conversation_messages_cid_idx
    ON conversation_messages (conversation_id, id);
`

// Store is the PostgreSQL conversation log. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn and ensures the schema exists.
// Call [Store.Close] when done.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("conversation store: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("conversation store: ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append implements [conversation.Store].
func (s *Store) Append(ctx context.Context, conversationID string, msg conversation.Message) error {
	var citations []byte
	if len(msg.Citations) > 0 {
		var err error
		citations, err = json.Marshal(msg.Citations)
		if err != nil {
			return fmt.Errorf("conversation store: marshal citations: %w", err)
		}
	}

	const q = `
		INSERT INTO conversation_messages (conversation_id, role, text, committed_at, citations)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, conversationID, string(msg.Role), msg.Text, msg.Timestamp, citations)
	if err != nil {
		return fmt.Errorf("conversation store: append: %w", err)
	}
	return nil
}

// Messages implements [conversation.Store].
func (s *Store) Messages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	const q = `
		SELECT role, text, committed_at, citations
		FROM   conversation_messages
		WHERE  conversation_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation store: query: %w", err)
	}
	defer rows.Close()

	msgs := []conversation.Message{}
	for rows.Next() {
		var (
			msg       conversation.Message
			role      string
			citations []byte
		)
		if err := rows.Scan(&role, &msg.Text, &msg.Timestamp, &citations); err != nil {
			return nil, fmt.Errorf("conversation store: scan: %w", err)
		}
		msg.Role = conversation.Role(role)
		if len(citations) > 0 {
			if err := json.Unmarshal(citations, &msg.Citations); err != nil {
				return nil, fmt.Errorf("conversation store: unmarshal citations: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation store: rows: %w", err)
	}
	return msgs, nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
