package models

import (
	"fmt"
	"time"
)

// User is an account that owns an imported library.
type User struct {
	ID          string
	Username    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks required user fields.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// Token holds a user's Spotify credential. One row per user, overwritten
// on each successful OAuth callback and mutated in place on refresh.
type Token struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token is stale, treating anything
// within margin of the expiry as already expired.
func (t *Token) Expired(margin time.Duration) bool {
	return !t.ExpiresAt.After(time.Now().Add(margin))
}

// UpdateExpiry sets the expiry to now plus the given lifetime in seconds,
// as returned by the token endpoint's expires_in field.
func (t *Token) UpdateExpiry(expiresIn int) {
	t.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
}

// Artist is a user-scoped imported artist. Genres are attached during the
// artist phase of an import.
type Artist struct {
	ID        string
	UserID    string
	SpotifyID string
	Name      string
	ImageURL  string
	Genres    []Genre
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Artist) Validate() error {
	if a.UserID == "" || a.SpotifyID == "" {
		return fmt.Errorf("artist requires user id and spotify id")
	}
	if a.Name == "" {
		return fmt.Errorf("artist name is required")
	}
	return nil
}

// SpotifyLink returns the public Spotify URL for the artist.
func (a *Artist) SpotifyLink() string {
	return "https://open.spotify.com/artist/" + a.SpotifyID
}

// Album is a user-scoped imported album. AddedAt and Popularity are
// refreshed on re-import; the remaining fields are seeded once.
type Album struct {
	ID          string
	UserID      string
	SpotifyID   string
	Title       string
	TotalTracks int
	ReleaseDate time.Time
	AddedAt     time.Time
	Popularity  int
	CoverURL    string
	Artists     []Artist
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a *Album) Validate() error {
	if a.UserID == "" || a.SpotifyID == "" {
		return fmt.Errorf("album requires user id and spotify id")
	}
	if a.Title == "" {
		return fmt.Errorf("album title is required")
	}
	return nil
}

// SpotifyLink returns the public Spotify URL for the album.
func (a *Album) SpotifyLink() string {
	return "https://open.spotify.com/album/" + a.SpotifyID
}

// Track is globally unique by Spotify id; the same track imported by two
// users or under two albums converges on one row.
type Track struct {
	ID         string
	SpotifyID  string
	Title      string
	DurationMS int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (t *Track) Validate() error {
	if t.SpotifyID == "" {
		return fmt.Errorf("track requires spotify id")
	}
	if t.Title == "" {
		return fmt.Errorf("track title is required")
	}
	return nil
}

// AlbumTrack places a track on an album. Unique on (album, track);
// ordering within an album is always (disc_number, track_number).
type AlbumTrack struct {
	ID          string
	AlbumID     string
	TrackID     string
	TrackNumber int
	DiscNumber  int
	Track       *Track
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Genre is global and unscoped; identity is the name.
type Genre struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ImportStats accumulates per-record counters across one import run.
// The run is single-threaded so plain ints are safe.
type ImportStats struct {
	AlbumsProcessed  int `json:"albums_processed"`
	AlbumsFailed     int `json:"albums_failed"`
	ArtistsProcessed int `json:"artists_processed"`
	ArtistsFailed    int `json:"artists_failed"`
	ArtistsUpdated   int `json:"artists_updated"`
	TracksProcessed  int `json:"tracks_processed"`
	TracksFailed     int `json:"tracks_failed"`
}

// JobStatus enumerates the lifecycle of an import job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailure JobStatus = "failure"
)

// ImportJob records one asynchronous import run for status polling.
type ImportJob struct {
	ID           string
	UserID       string
	Status       JobStatus
	Stats        *ImportStats
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the job has finished, successfully or not.
func (j *ImportJob) Terminal() bool {
	return j.Status == JobSuccess || j.Status == JobFailure
}
