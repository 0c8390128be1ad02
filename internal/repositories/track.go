package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// TrackRepository handles globally shared track persistence.
//
// Tracks are not user-scoped: the same Spotify track imported by two users
// or placed on two albums converges on a single row.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new [TrackRepository] with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Upsert gets or creates a track by Spotify id. Title and duration are
// seeded on creation only. Returns the stored track and whether a row was
// created.
func (r *TrackRepository) Upsert(spotifyID, title string, durationMS int) (*models.Track, bool, error) {
	track := &models.Track{SpotifyID: spotifyID, Title: title, DurationMS: durationMS}
	if err := track.Validate(); err != nil {
		return nil, false, fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO tracks (id, spotify_id, title, duration_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (spotify_id) DO NOTHING
	`

	result, err := r.db.Exec(query, shared.GenerateID(), spotifyID, title, durationMS, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert track: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	stored, err := r.GetBySpotifyID(spotifyID)
	if err != nil {
		return nil, false, err
	}

	return stored, inserted > 0, nil
}

// GetBySpotifyID retrieves a track by its global external identity.
func (r *TrackRepository) GetBySpotifyID(spotifyID string) (*models.Track, error) {
	var t models.Track
	err := r.db.QueryRow(`
		SELECT id, spotify_id, title, duration_ms, created_at, updated_at
		FROM tracks WHERE spotify_id = ?
	`, spotifyID).Scan(&t.ID, &t.SpotifyID, &t.Title, &t.DurationMS, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("track %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}
	return &t, nil
}

// PlaceOnAlbum gets or creates the (album, track) placement with its
// track and disc numbers. Numbers are seeded on creation only, matching
// the composite uniqueness of the join table.
func (r *TrackRepository) PlaceOnAlbum(albumID, trackID string, trackNumber, discNumber int) error {
	now := time.Now()
	query := `
		INSERT INTO album_tracks (id, album_id, track_id, track_number, disc_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (album_id, track_id) DO NOTHING
	`

	if _, err := r.db.Exec(query, shared.GenerateID(), albumID, trackID, trackNumber, discNumber, now, now); err != nil {
		return fmt.Errorf("failed to place track on album: %w", err)
	}

	return nil
}

// CountByAlbum returns the number of placements for an album.
func (r *TrackRepository) CountByAlbum(albumID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM album_tracks WHERE album_id = ?`, albumID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count album tracks: %w", err)
	}
	return count, nil
}
