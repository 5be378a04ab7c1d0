package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// pgForeignKeyViolation is the SQLSTATE raised when a message references a
// conversation row that does not exist.
const pgForeignKeyViolation = "23503"

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_activity TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id              BIGSERIAL PRIMARY KEY,
	content         TEXT NOT NULL,
	sender          TEXT NOT NULL CHECK (sender IN ('user', 'bot')),
	timestamp       TIMESTAMPTZ NOT NULL DEFAULT now(),
	conversation_id TEXT NOT NULL REFERENCES conversations (id),
	is_question     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, timestamp, id);
`

type repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) Repo {
	return &repo{db: db}
}

// Migrate creates the tables if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("chat: migrate: %w", err)
	}
	return nil
}

func (r *repo) CreateConversation(ctx context.Context) (string, error) {
	id := newConversationID()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id) VALUES ($1)
	`, id)
	if err != nil {
		return "", fmt.Errorf("chat: create conversation: %w", err)
	}
	return id, nil
}

func (r *repo) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	var c Conversation
	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, last_activity
		FROM conversations
		WHERE id = $1
	`, conversationID).Scan(&c.ID, &c.CreatedAt, &c.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("chat: get conversation %q: %w", conversationID, ErrConversationNotFound)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("chat: get conversation %q: %w", conversationID, err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastActivity = c.LastActivity.UTC()
	return c, nil
}

func (r *repo) AppendMessage(ctx context.Context, conversationID, content string, sender Sender, isQuestion bool) error {
	if !sender.Valid() {
		return fmt.Errorf("chat: append message: %w", ErrInvalidSender)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (content, sender, conversation_id, is_question)
		VALUES ($1, $2, $3, $4)
	`,
		content,
		string(sender),
		conversationID,
		isQuestion,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("chat: append message to %q: %w", conversationID, ErrConversationNotFound)
	}
	if err != nil {
		return fmt.Errorf("chat: append message to %q: %w", conversationID, err)
	}
	return nil
}

func (r *repo) TouchConversation(ctx context.Context, conversationID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET last_activity = now() WHERE id = $1
	`, conversationID)
	if err != nil {
		return fmt.Errorf("chat: touch conversation %q: %w", conversationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("chat: touch conversation %q: %w", conversationID, err)
	}
	if n == 0 {
		return fmt.Errorf("chat: touch conversation %q: %w", conversationID, ErrConversationNotFound)
	}
	return nil
}

func (r *repo) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, content, sender, timestamp, conversation_id, is_question
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages %q: %w", conversationID, err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		var sender string
		if err := rows.Scan(
			&m.ID,
			&m.Content,
			&sender,
			&m.Timestamp,
			&m.ConversationID,
			&m.IsQuestion,
		); err != nil {
			return nil, fmt.Errorf("chat: list messages %q: scan: %w", conversationID, err)
		}
		m.Sender = Sender(sender)
		m.Timestamp = m.Timestamp.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: list messages %q: %w", conversationID, err)
	}
	return out, nil
}
