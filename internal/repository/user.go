package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	DefaultUserName = "Friend"
	DefaultRole     = "farmer"
)

type User struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Region             string    `json:"region"`
	Role               string    `json:"role"`
	TotalConversations int       `json:"totalConversations"`
	LastActive         time.Time `json:"lastActive"`
	CreatedAt          time.Time `json:"createdAt"`
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreateUser inserts the user or refreshes name, region and last_active
// on an existing row.
func (r *UserRepository) GetOrCreateUser(ctx context.Context, userID, name, region string) (*User, error) {
	if name == "" {
		name = DefaultUserName
	}
	if region == "" {
		region = DefaultRegion
	}

	var u User
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, region, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, region = EXCLUDED.region, last_active = NOW()
		RETURNING id, name, region, role, total_conversations, last_active, created_at`,
		userID, name, region, DefaultRole,
	).Scan(&u.ID, &u.Name, &u.Region, &u.Role, &u.TotalConversations, &u.LastActive, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: get or create user: %v", ErrPersistenceFailed, err)
	}
	return &u, nil
}

func (r *UserRepository) IncrementConversations(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET total_conversations = total_conversations + 1 WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("%w: increment conversations: %v", ErrPersistenceFailed, err)
	}
	return nil
}
