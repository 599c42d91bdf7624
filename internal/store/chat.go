package store

import (
	"context"
	"database/sql"

	"gridd.sh/internal/chat"
	"gridd.sh/internal/gerrors"
	"gridd.sh/internal/metrics"
)

// ChatRepository persists chat transcripts. Rows are insert-only; the
// transcript is never updated or reordered in place.
type ChatRepository struct {
	db *sql.DB
}

// NewChatRepository creates a chat repository.
func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// InsertMessage appends one transcript row tagged with the owning user.
func (r *ChatRepository) InsertMessage(ctx context.Context, msg chat.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_message (id, user_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, string(msg.Role), msg.Content, msg.CreatedAt,
	)
	metrics.RecordDBQuery("insert", "chat_message", err)
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to insert chat message")
	}
	return nil
}

// ListMessages returns the full transcript for a user ordered by
// creation time. Ties break on insertion order via rowid.
func (r *ChatRepository) ListMessages(ctx context.Context, userID string) ([]chat.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM chat_message
		 WHERE user_id = ?
		 ORDER BY created_at ASC, rowid ASC`,
		userID,
	)
	metrics.RecordDBQuery("select", "chat_message", err)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to query transcript")
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to scan chat message")
		}
		m.Role = chat.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to read transcript")
	}

	return msgs, nil
}
