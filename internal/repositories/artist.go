package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// ArtistRepository handles user-scoped artist persistence.
type ArtistRepository struct {
	db *sql.DB
}

// NewArtistRepository creates a new [ArtistRepository] with the given database connection
func NewArtistRepository(db *sql.DB) *ArtistRepository {
	return &ArtistRepository{db: db}
}

// ArtistFilter narrows dashboard artist listings. Name and AlbumTitle are
// case-insensitive substring matches; Genres are ANDed keyword matches.
type ArtistFilter struct {
	Name       string
	AlbumTitle string
	Genres     []string
}

// Upsert gets or creates an artist by (user, spotify id). The name is
// seeded on creation only; re-imports leave it untouched. Returns the
// stored artist and whether a row was created.
func (r *ArtistRepository) Upsert(userID, spotifyID, name string) (*models.Artist, bool, error) {
	artist := &models.Artist{UserID: userID, SpotifyID: spotifyID, Name: name}
	if err := artist.Validate(); err != nil {
		return nil, false, fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO artists (id, user_id, spotify_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, spotify_id) DO NOTHING
	`

	result, err := r.db.Exec(query, shared.GenerateID(), userID, spotifyID, name, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert artist: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	stored, err := r.GetBySpotifyID(userID, spotifyID)
	if err != nil {
		return nil, false, err
	}

	return stored, inserted > 0, nil
}

// UpdateImage sets the artist's profile image URL.
func (r *ArtistRepository) UpdateImage(artistID, imageURL string) error {
	query := `UPDATE artists SET image_url = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Exec(query, nullable(imageURL), time.Now(), artistID)
	if err != nil {
		return fmt.Errorf("failed to update artist image: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("artist %s: %w", artistID, shared.ErrNotFound)
	}

	return nil
}

// LinkGenre attaches a genre to an artist. Repeated links are no-ops.
func (r *ArtistRepository) LinkGenre(artistID, genreID string) error {
	query := `INSERT OR IGNORE INTO artist_genres (artist_id, genre_id) VALUES (?, ?)`
	if _, err := r.db.Exec(query, artistID, genreID); err != nil {
		return fmt.Errorf("failed to link genre: %w", err)
	}
	return nil
}

// Get retrieves an artist by primary key, including genres.
func (r *ArtistRepository) Get(id string) (*models.Artist, error) {
	artist, err := r.scanOne(r.db.QueryRow(`
		SELECT id, user_id, spotify_id, name, image_url, created_at, updated_at
		FROM artists WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	genres, err := r.genresFor(artist.ID)
	if err != nil {
		return nil, err
	}
	artist.Genres = genres

	return artist, nil
}

// GetBySpotifyID retrieves an artist by its per-user external identity.
func (r *ArtistRepository) GetBySpotifyID(userID, spotifyID string) (*models.Artist, error) {
	return r.scanOne(r.db.QueryRow(`
		SELECT id, user_id, spotify_id, name, image_url, created_at, updated_at
		FROM artists WHERE user_id = ? AND spotify_id = ?
	`, userID, spotifyID))
}

// SpotifyIDsByUser returns the external ids of every artist on file for
// the user, for the artist-profile phase of an import.
func (r *ArtistRepository) SpotifyIDsByUser(userID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT spotify_id FROM artists WHERE user_id = ? ORDER BY spotify_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artist ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan artist id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// ListByUser retrieves the user's artists matching the filter, with
// genres populated, ordered by name.
func (r *ArtistRepository) ListByUser(userID string, filter ArtistFilter) ([]*models.Artist, error) {
	query := `
		SELECT DISTINCT a.id, a.user_id, a.spotify_id, a.name, a.image_url, a.created_at, a.updated_at
		FROM artists a
	`
	args := []any{}
	conds := []string{"a.user_id = ?"}
	args = append(args, userID)

	if filter.AlbumTitle != "" {
		query += `
		JOIN album_artists aa ON aa.artist_id = a.id
		JOIN albums al ON al.id = aa.album_id
		`
		conds = append(conds, "LOWER(al.title) LIKE ?")
		args = append(args, contains(filter.AlbumTitle))
	}

	if filter.Name != "" {
		conds = append(conds, "LOWER(a.name) LIKE ?")
		args = append(args, contains(filter.Name))
	}

	// Each genre keyword must match one of the artist's genres.
	for _, kw := range filter.Genres {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM artist_genres ag
			JOIN genres g ON g.id = ag.genre_id
			WHERE ag.artist_id = a.id AND LOWER(g.name) LIKE ?
		)`)
		args = append(args, contains(kw))
	}

	query += " WHERE " + strings.Join(conds, " AND ") + " ORDER BY a.name ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []*models.Artist
	for rows.Next() {
		artist, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, artist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, artist := range artists {
		genres, err := r.genresFor(artist.ID)
		if err != nil {
			return nil, err
		}
		artist.Genres = genres
	}

	return artists, nil
}

func (r *ArtistRepository) genresFor(artistID string) ([]models.Genre, error) {
	rows, err := r.db.Query(`
		SELECT g.id, g.name, g.created_at, g.updated_at
		FROM genres g
		JOIN artist_genres ag ON ag.genre_id = g.id
		WHERE ag.artist_id = ?
		ORDER BY g.name ASC
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artist genres: %w", err)
	}
	defer rows.Close()

	var genres []models.Genre
	for rows.Next() {
		var g models.Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		genres = append(genres, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return genres, nil
}

func (r *ArtistRepository) scanOne(row *sql.Row) (*models.Artist, error) {
	var (
		a     models.Artist
		image sql.NullString
	)

	err := row.Scan(&a.ID, &a.UserID, &a.SpotifyID, &a.Name, &image, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artist %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}

	a.ImageURL = image.String
	return &a, nil
}

func (r *ArtistRepository) scanRow(rows *sql.Rows) (*models.Artist, error) {
	var (
		a     models.Artist
		image sql.NullString
	)

	if err := rows.Scan(&a.ID, &a.UserID, &a.SpotifyID, &a.Name, &image, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}

	a.ImageURL = image.String
	return &a, nil
}
