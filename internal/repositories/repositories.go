package repositories

import (
	"database/sql"
	"strings"
)

// Store bundles all repositories over one database connection.
type Store struct {
	Users   *UserRepository
	Tokens  *TokenRepository
	Artists *ArtistRepository
	Albums  *AlbumRepository
	Tracks  *TrackRepository
	Genres  *GenreRepository
	Jobs    *JobRepository
}

// NewStore creates a [Store] wiring every repository to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Users:   NewUserRepository(db),
		Tokens:  NewTokenRepository(db),
		Artists: NewArtistRepository(db),
		Albums:  NewAlbumRepository(db),
		Tracks:  NewTrackRepository(db),
		Genres:  NewGenreRepository(db),
		Jobs:    NewJobRepository(db),
	}
}

// contains builds a LIKE pattern for a case-insensitive substring match.
func contains(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

// nullable maps an empty string to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
