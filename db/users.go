package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type User struct {
	ID         int64
	TelegramID int64
	Username   string
	CreatedAt  time.Time
}

// GetOrCreateUser returns the user for a telegram ID, creating one if it doesn't exist.
// The returned User.ID is the row ID used for wallet derivation index.
func (s *Store) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*User, error) {
	var user User
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, telegram_id, username, created_at FROM users WHERE telegram_id = ?",
		telegramID,
	).Scan(&user.ID, &user.TelegramID, &user.Username, &user.CreatedAt)

	if err == sql.ErrNoRows {
		result, err := s.conn.ExecContext(ctx,
			"INSERT INTO users (telegram_id, username) VALUES (?, ?)",
			telegramID, username,
		)
		if err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		user.ID, _ = result.LastInsertId()
		user.TelegramID = telegramID
		user.Username = username
		user.CreatedAt = time.Now()
		return &user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return &user, nil
}
