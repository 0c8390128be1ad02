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

// AlbumRepository handles user-scoped album persistence.
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new [AlbumRepository] with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// AlbumFilter narrows dashboard album listings with case-insensitive
// substring matches.
type AlbumFilter struct {
	Title      string
	ArtistName string
}

// Upsert gets or creates an album by (user, spotify id). On creation all
// fields are seeded; on an existing row only added_at and popularity are
// refreshed, since the rest rarely changes after release. Returns the
// stored album and whether a row was created.
func (r *AlbumRepository) Upsert(album *models.Album) (*models.Album, bool, error) {
	if err := album.Validate(); err != nil {
		return nil, false, fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO albums (id, user_id, spotify_id, title, total_tracks, release_date, added_at, popularity, cover_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, spotify_id) DO UPDATE SET
			added_at = excluded.added_at,
			popularity = excluded.popularity,
			updated_at = excluded.updated_at
	`

	result, err := r.db.Exec(query,
		shared.GenerateID(),
		album.UserID,
		album.SpotifyID,
		album.Title,
		album.TotalTracks,
		album.ReleaseDate,
		album.AddedAt,
		album.Popularity,
		nullable(album.CoverURL),
		now,
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert album: %w", err)
	}

	// sqlite reports one affected row for an insert; an upsert that took
	// the update arm leaves created_at behind the statement's timestamp.
	if _, err := result.RowsAffected(); err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	stored, err := r.GetBySpotifyID(album.UserID, album.SpotifyID)
	if err != nil {
		return nil, false, err
	}

	created := stored.CreatedAt.Equal(stored.UpdatedAt)
	return stored, created, nil
}

// LinkArtist associates an artist with an album. Repeated links are no-ops.
func (r *AlbumRepository) LinkArtist(albumID, artistID string) error {
	query := `INSERT OR IGNORE INTO album_artists (album_id, artist_id) VALUES (?, ?)`
	if _, err := r.db.Exec(query, albumID, artistID); err != nil {
		return fmt.Errorf("failed to link artist: %w", err)
	}
	return nil
}

// Get retrieves an album by primary key, including its artists.
func (r *AlbumRepository) Get(id string) (*models.Album, error) {
	album, err := r.scanOne(r.db.QueryRow(`
		SELECT id, user_id, spotify_id, title, total_tracks, release_date, added_at, popularity, cover_url, created_at, updated_at
		FROM albums WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	artists, err := r.artistsFor(album.ID)
	if err != nil {
		return nil, err
	}
	album.Artists = artists

	return album, nil
}

// GetBySpotifyID retrieves an album by its per-user external identity.
func (r *AlbumRepository) GetBySpotifyID(userID, spotifyID string) (*models.Album, error) {
	return r.scanOne(r.db.QueryRow(`
		SELECT id, user_id, spotify_id, title, total_tracks, release_date, added_at, popularity, cover_url, created_at, updated_at
		FROM albums WHERE user_id = ? AND spotify_id = ?
	`, userID, spotifyID))
}

// ListByUser retrieves the user's albums matching the filter, with
// artists populated, ordered by most recently added.
func (r *AlbumRepository) ListByUser(userID string, filter AlbumFilter) ([]*models.Album, error) {
	query := `
		SELECT DISTINCT al.id, al.user_id, al.spotify_id, al.title, al.total_tracks, al.release_date, al.added_at, al.popularity, al.cover_url, al.created_at, al.updated_at
		FROM albums al
	`
	args := []any{}
	conds := []string{"al.user_id = ?"}
	args = append(args, userID)

	if filter.ArtistName != "" {
		query += `
		JOIN album_artists aa ON aa.album_id = al.id
		JOIN artists ar ON ar.id = aa.artist_id
		`
		conds = append(conds, "LOWER(ar.name) LIKE ?")
		args = append(args, contains(filter.ArtistName))
	}

	if filter.Title != "" {
		conds = append(conds, "LOWER(al.title) LIKE ?")
		args = append(args, contains(filter.Title))
	}

	query += " WHERE " + strings.Join(conds, " AND ") + " ORDER BY al.added_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []*models.Album
	for rows.Next() {
		album, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, album := range albums {
		artists, err := r.artistsFor(album.ID)
		if err != nil {
			return nil, err
		}
		album.Artists = artists
	}

	return albums, nil
}

// ListByArtist retrieves the albums linked to an artist through
// album_artists, with artists populated, ordered by most recently added.
func (r *AlbumRepository) ListByArtist(artistID string) ([]*models.Album, error) {
	rows, err := r.db.Query(`
		SELECT al.id, al.user_id, al.spotify_id, al.title, al.total_tracks, al.release_date, al.added_at, al.popularity, al.cover_url, al.created_at, al.updated_at
		FROM albums al
		JOIN album_artists aa ON aa.album_id = al.id
		WHERE aa.artist_id = ?
		ORDER BY al.added_at DESC
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []*models.Album
	for rows.Next() {
		album, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, album := range albums {
		artists, err := r.artistsFor(album.ID)
		if err != nil {
			return nil, err
		}
		album.Artists = artists
	}

	return albums, nil
}

// Tracks returns the album's track placements joined with track data,
// always ordered by disc number then track number.
func (r *AlbumRepository) Tracks(albumID string) ([]*models.AlbumTrack, error) {
	rows, err := r.db.Query(`
		SELECT at.id, at.album_id, at.track_id, at.track_number, at.disc_number, at.created_at, at.updated_at,
		       t.id, t.spotify_id, t.title, t.duration_ms, t.created_at, t.updated_at
		FROM album_tracks at
		JOIN tracks t ON t.id = at.track_id
		WHERE at.album_id = ?
		ORDER BY at.disc_number ASC, at.track_number ASC
	`, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query album tracks: %w", err)
	}
	defer rows.Close()

	var placements []*models.AlbumTrack
	for rows.Next() {
		var (
			at models.AlbumTrack
			t  models.Track
		)
		err := rows.Scan(
			&at.ID, &at.AlbumID, &at.TrackID, &at.TrackNumber, &at.DiscNumber, &at.CreatedAt, &at.UpdatedAt,
			&t.ID, &t.SpotifyID, &t.Title, &t.DurationMS, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan album track: %w", err)
		}
		at.Track = &t
		placements = append(placements, &at)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return placements, nil
}

func (r *AlbumRepository) artistsFor(albumID string) ([]models.Artist, error) {
	rows, err := r.db.Query(`
		SELECT ar.id, ar.user_id, ar.spotify_id, ar.name, ar.image_url, ar.created_at, ar.updated_at
		FROM artists ar
		JOIN album_artists aa ON aa.artist_id = ar.id
		WHERE aa.album_id = ?
		ORDER BY ar.name ASC
	`, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query album artists: %w", err)
	}
	defer rows.Close()

	var artists []models.Artist
	for rows.Next() {
		var (
			a     models.Artist
			image sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.SpotifyID, &a.Name, &image, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		a.ImageURL = image.String
		artists = append(artists, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return artists, nil
}

func (r *AlbumRepository) scanOne(row *sql.Row) (*models.Album, error) {
	var (
		a     models.Album
		cover sql.NullString
	)

	err := row.Scan(&a.ID, &a.UserID, &a.SpotifyID, &a.Title, &a.TotalTracks, &a.ReleaseDate, &a.AddedAt, &a.Popularity, &cover, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("album %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}

	a.CoverURL = cover.String
	return &a, nil
}

func (r *AlbumRepository) scanRow(rows *sql.Rows) (*models.Album, error) {
	var (
		a     models.Album
		cover sql.NullString
	)

	if err := rows.Scan(&a.ID, &a.UserID, &a.SpotifyID, &a.Title, &a.TotalTracks, &a.ReleaseDate, &a.AddedAt, &a.Popularity, &cover, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}

	a.CoverURL = cover.String
	return &a, nil
}
