package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// GenreRepository handles globally shared genre persistence.
//
// Genre identity is the name alone; two users importing "indie rock"
// converge on one row.
type GenreRepository struct {
	db *sql.DB
}

// NewGenreRepository creates a new [GenreRepository] with the given database connection
func NewGenreRepository(db *sql.DB) *GenreRepository {
	return &GenreRepository{db: db}
}

// Upsert gets or creates a genre by name. Returns the stored genre and
// whether a row was created.
func (r *GenreRepository) Upsert(name string) (*models.Genre, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("genre name is required: %w", shared.ErrInvalidInput)
	}

	now := time.Now()
	query := `
		INSERT INTO genres (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING
	`

	result, err := r.db.Exec(query, shared.GenerateID(), name, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert genre: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	stored, err := r.GetByName(name)
	if err != nil {
		return nil, false, err
	}

	return stored, inserted > 0, nil
}

// GetByName retrieves a genre by its unique name.
func (r *GenreRepository) GetByName(name string) (*models.Genre, error) {
	var g models.Genre
	err := r.db.QueryRow(`
		SELECT id, name, created_at, updated_at FROM genres WHERE name = ?
	`, name).Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("genre %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan genre: %w", err)
	}
	return &g, nil
}

// List retrieves all genres ordered by name.
func (r *GenreRepository) List() ([]*models.Genre, error) {
	rows, err := r.db.Query(`SELECT id, name, created_at, updated_at FROM genres ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query genres: %w", err)
	}
	defer rows.Close()

	var genres []*models.Genre
	for rows.Next() {
		var g models.Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		genres = append(genres, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return genres, nil
}
