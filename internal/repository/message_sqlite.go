package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatapp/internal/entity"
)

type sqliteGateway struct {
	db *sql.DB
}

func NewSQLiteMessageRepository(db *sql.DB) MessageGateway {
	return &sqliteGateway{
		db: db,
	}
}

func (r *sqliteGateway) WriteThrough(ctx context.Context, message entity.Message) error {
	var parent sql.NullString
	if id, ok := message.ParentMessageId(); ok {
		parent = sql.NullString{String: id.String(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, author_id, content, created_at, parent_message_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		message.Id().String(),
		message.ConversationId().String(),
		message.AuthorId().String(),
		message.Content(),
		message.CreatedAt().UnixNano(),
		parent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *sqliteGateway) LoadAll(ctx context.Context) ([]entity.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, author_id, content, created_at, parent_message_id
		FROM messages ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []entity.Message
	for rows.Next() {
		var (
			id, conversationId, authorId, content string
			createdAt                             int64
			parent                                sql.NullString
		)
		if err := rows.Scan(&id, &conversationId, &authorId, &content, &createdAt, &parent); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		message, err := toMessage(id, conversationId, authorId, content, time.Unix(0, createdAt).UTC(), parent.String)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}
