// Package repository persists conversations, their messages and the users
// that own them in Postgres.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPersistenceFailed    = errors.New("PERSISTENCE_FAILED")
	ErrConversationNotFound = errors.New("CONVERSATION_NOT_FOUND")
)

const (
	MessageTypeUser = "user"
	MessageTypeBot  = "bot"

	DefaultTitle  = "New Conversation"
	DefaultTopic  = "general"
	DefaultRegion = "centre"
)

// Message is one side of a turn. Confidence and Sentiment are optional.
type Message struct {
	ConversationID int64
	Type           string
	Content        string
	Intent         string
	Confidence     *float64
	Entities       map[string][]string
	Sentiment      *float64
}

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateConversation opens an active conversation for userID and returns its id.
func (r *ConversationRepository) CreateConversation(ctx context.Context, userID, region string) (int64, error) {
	if region == "" {
		region = DefaultRegion
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO conversations (session_id, user_id, title, current_topic, mentioned_crops, region)
		VALUES ($1, $2, $3, $4, '[]', $5)
		RETURNING id`,
		uuid.NewString(), userID, DefaultTitle, DefaultTopic, region,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: create conversation: %v", ErrPersistenceFailed, err)
	}
	return id, nil
}

// AddMessage stores msg and bumps the conversation counters. Bot messages
// with a confidence also move the running average confidence.
func (r *ConversationRepository) AddMessage(ctx context.Context, msg Message) error {
	if msg.Type != MessageTypeUser && msg.Type != MessageTypeBot {
		return fmt.Errorf("%w: unknown message type %q", ErrPersistenceFailed, msg.Type)
	}

	var entities interface{}
	if len(msg.Entities) > 0 {
		raw, err := json.Marshal(msg.Entities)
		if err != nil {
			return fmt.Errorf("%w: encode entities: %v", ErrPersistenceFailed, err)
		}
		entities = string(raw)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin add message: %v", ErrPersistenceFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, message_type, content, intent, confidence_score, entities_found, sentiment_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ConversationID, msg.Type, msg.Content,
		nullString(msg.Intent), nullFloat(msg.Confidence), entities, nullFloat(msg.Sentiment),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: insert message: %v", ErrPersistenceFailed, err)
	}

	var res sql.Result
	if msg.Type == MessageTypeBot && msg.Confidence != nil {
		res, err = tx.ExecContext(ctx, `
			UPDATE conversations
			SET message_count = message_count + 1,
			    bot_message_count = bot_message_count + 1,
			    avg_confidence = (avg_confidence * bot_message_count + $2) / (bot_message_count + 1)
			WHERE id = $1`, msg.ConversationID, *msg.Confidence)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE conversations SET message_count = message_count + 1 WHERE id = $1`, msg.ConversationID)
	}
	if err == nil {
		err = expectRow(res, msg.ConversationID)
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: update message count: %w", ErrPersistenceFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit add message: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// UpdateContext stores the current topic and mentioned crops. An empty topic
// leaves the stored one in place.
func (r *ConversationRepository) UpdateContext(ctx context.Context, conversationID int64, topic string, crops []string) error {
	if crops == nil {
		crops = []string{}
	}
	raw, err := json.Marshal(crops)
	if err != nil {
		return fmt.Errorf("%w: encode crops: %v", ErrPersistenceFailed, err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET current_topic = COALESCE(NULLIF($2, ''), current_topic),
		    mentioned_crops = $3
		WHERE id = $1`, conversationID, topic, string(raw))
	if err == nil {
		err = expectRow(res, conversationID)
	}
	if err != nil {
		return fmt.Errorf("%w: update context: %w", ErrPersistenceFailed, err)
	}
	return nil
}

func (r *ConversationRepository) EndConversation(ctx context.Context, conversationID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET is_active = FALSE, end_time = NOW() WHERE id = $1`, conversationID)
	if err == nil {
		err = expectRow(res, conversationID)
	}
	if err != nil {
		return fmt.Errorf("%w: end conversation: %w", ErrPersistenceFailed, err)
	}
	return nil
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrConversationNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
