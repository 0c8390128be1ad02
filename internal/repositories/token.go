package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// TokenRepository handles per-user Spotify credential persistence.
//
// A user has at most one token row; the OAuth callback overwrites it and
// refreshes mutate it in place.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Upsert stores a token for a user, replacing any existing credential.
func (r *TokenRepository) Upsert(token *models.Token) error {
	if token.UserID == "" {
		return fmt.Errorf("token requires a user id: %w", shared.ErrInvalidInput)
	}

	now := time.Now()
	if token.ID == "" {
		token.ID = shared.GenerateID()
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	query := `
		INSERT INTO tokens (id, user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		token.ID,
		token.UserID,
		token.AccessToken,
		token.RefreshToken,
		token.ExpiresAt,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}

	return nil
}

// GetByUser retrieves a user's token. A missing row surfaces as
// [shared.ErrNotConnected] so callers can redirect to the connect flow.
func (r *TokenRepository) GetByUser(userID string) (*models.Token, error) {
	query := `
		SELECT id, user_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM tokens WHERE user_id = ?
	`

	var t models.Token
	err := r.db.QueryRow(query, userID).Scan(
		&t.ID, &t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, shared.ErrNotConnected)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}

	return &t, nil
}

// UpdateAccess persists a refreshed access token and its new expiry.
func (r *TokenRepository) UpdateAccess(token *models.Token) error {
	token.UpdatedAt = time.Now()

	query := `
		UPDATE tokens
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, token.AccessToken, token.RefreshToken, token.ExpiresAt, token.UpdatedAt, token.ID)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("token %s: %w", token.ID, shared.ErrNotFound)
	}

	return nil
}
