package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hpcgateway/internal/store"

	"github.com/google/uuid"
)

// CreateUser inserts a user unless one with the same email already exists.
// The unique index on email makes the first write win under concurrency.
func (s *Store) CreateUser(ctx context.Context, email, name, home string) (*store.User, error) {
	query := `
		INSERT INTO users (id, email, name, home, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		email,
		name,
		home,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", email, err)
	}

	return s.GetUser(ctx, email)
}

// GetUser returns the user registered with email.
func (s *Store) GetUser(ctx context.Context, email string) (*store.User, error) {
	query := "SELECT id, email, name, home, created_at FROM users WHERE email = $1"

	var u store.User
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Home,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", email, err)
	}

	return &u, nil
}
