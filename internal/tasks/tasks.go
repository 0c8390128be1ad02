package tasks

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

// libraryAPI is the slice of the Spotify client the import engine needs.
// [services.Client] satisfies it.
type libraryAPI interface {
	SavedAlbums(ctx context.Context, maxCount, offset, batchSize int) ([]services.SavedAlbumEntry, error)
	ArtistsByID(ctx context.Context, ids []string, batchSize int) ([]services.ArtistProfile, error)
}

// ImportEngine reconciles a user's saved Spotify library into local
// storage. Runs are idempotent: records are matched by external id and
// upserted, so re-running an import converges instead of duplicating.
//
// A run has two phases. The album phase walks the saved-albums listing
// and upserts albums, their artist stubs, and their tracks, isolating
// failures per record. The artist phase bulk-fetches full profiles for
// every artist on file and enriches them with images and genres,
// matching profiles by their returned id.
type ImportEngine struct {
	store     *repositories.Store
	maxAlbums int
	batchSize int
	logger    *log.Logger
}

// NewImportEngine creates an engine using the import tuning from config.
func NewImportEngine(store *repositories.Store, cfg shared.ImportConfig, logger *log.Logger) *ImportEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	return &ImportEngine{
		store:     store,
		maxAlbums: cfg.MaxAlbums,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run executes a full import for the user and returns the per-record
// statistics. A malformed or failing record is counted and skipped; only
// an unreadable page of the saved-albums listing fails the whole run,
// since skipping a page would silently drop part of the library.
func (e *ImportEngine) Run(ctx context.Context, api libraryAPI, userID string) (models.ImportStats, error) {
	var stats models.ImportStats

	maxCount := e.maxAlbums
	if maxCount <= 0 {
		maxCount = math.MaxInt32
	}

	saved, err := api.SavedAlbums(ctx, maxCount, 0, e.batchSize)
	if err != nil {
		return stats, err
	}

	e.logger.Info("importing saved albums", "user_id", userID, "count", len(saved))

	for _, entry := range saved {
		if err := e.importAlbum(userID, entry, &stats); err != nil {
			stats.AlbumsFailed++
			e.logger.Warn("skipping album", "spotify_id", entry.Album.ID, "err", err)
			continue
		}
		stats.AlbumsProcessed++
	}

	if err := e.enrichArtists(ctx, api, userID, &stats); err != nil {
		return stats, err
	}

	e.logger.Info("import finished",
		"user_id", userID,
		"albums", stats.AlbumsProcessed,
		"albums_failed", stats.AlbumsFailed,
		"artists", stats.ArtistsProcessed,
		"tracks", stats.TracksProcessed,
	)

	return stats, nil
}

// importAlbum upserts one saved album with its artist stubs and tracks.
// Track and artist-ref problems are counted in stats without failing the
// album; a malformed album payload fails the whole record.
func (e *ImportEngine) importAlbum(userID string, entry services.SavedAlbumEntry, stats *models.ImportStats) error {
	data := entry.Album
	if data.ID == "" || data.Name == "" || entry.AddedAt == "" || data.ReleaseDate == "" {
		return fmt.Errorf("%w: album missing required fields", shared.ErrMalformedRecord)
	}

	addedAt, err := time.Parse(time.RFC3339, entry.AddedAt)
	if err != nil {
		return fmt.Errorf("%w: added_at %q", shared.ErrMalformedRecord, entry.AddedAt)
	}

	releaseDate, err := shared.ParseReleaseDate(data.ReleaseDate)
	if err != nil {
		return fmt.Errorf("%w: release_date %q", shared.ErrMalformedRecord, data.ReleaseDate)
	}

	album := &models.Album{
		UserID:      userID,
		SpotifyID:   data.ID,
		Title:       data.Name,
		TotalTracks: data.TotalTracks,
		ReleaseDate: releaseDate,
		AddedAt:     addedAt,
		Popularity:  data.Popularity,
	}
	if len(data.Images) > 0 {
		album.CoverURL = data.Images[0].URL
	}

	stored, _, err := e.store.Albums.Upsert(album)
	if err != nil {
		return err
	}

	for _, ref := range data.Artists {
		if ref.ID == "" || ref.Name == "" {
			stats.ArtistsFailed++
			e.logger.Warn("skipping malformed artist ref", "album", data.ID)
			continue
		}

		artist, _, err := e.store.Artists.Upsert(userID, ref.ID, ref.Name)
		if err != nil {
			stats.ArtistsFailed++
			e.logger.Warn("skipping artist", "spotify_id", ref.ID, "err", err)
			continue
		}

		if err := e.store.Albums.LinkArtist(stored.ID, artist.ID); err != nil {
			stats.ArtistsFailed++
			continue
		}
		stats.ArtistsProcessed++
	}

	for _, te := range data.Tracks.Items {
		if te.ID == "" || te.Name == "" {
			stats.TracksFailed++
			e.logger.Warn("skipping malformed track", "album", data.ID)
			continue
		}

		track, _, err := e.store.Tracks.Upsert(te.ID, te.Name, te.DurationMS)
		if err != nil {
			stats.TracksFailed++
			e.logger.Warn("skipping track", "spotify_id", te.ID, "err", err)
			continue
		}

		if err := e.store.Tracks.PlaceOnAlbum(stored.ID, track.ID, te.TrackNumber, te.DiscNumber); err != nil {
			stats.TracksFailed++
			continue
		}
		stats.TracksProcessed++
	}

	return nil
}

// enrichArtists bulk-fetches profiles for every artist on file and
// attaches images and genres. Profiles are matched by the id the API
// returned; a chunk the client dropped leaves its artists as stubs until
// the next run.
func (e *ImportEngine) enrichArtists(ctx context.Context, api libraryAPI, userID string, stats *models.ImportStats) error {
	ids, err := e.store.Artists.SpotifyIDsByUser(userID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	profiles, err := api.ArtistsByID(ctx, ids, e.batchSize)
	if err != nil {
		return err
	}

	byID := make(map[string]services.ArtistProfile, len(profiles))
	for _, profile := range profiles {
		byID[profile.ID] = profile
	}

	for _, spotifyID := range ids {
		profile, ok := byID[spotifyID]
		if !ok {
			e.logger.Warn("no profile returned for artist", "spotify_id", spotifyID)
			stats.ArtistsFailed++
			continue
		}

		artist, err := e.store.Artists.GetBySpotifyID(userID, spotifyID)
		if err != nil {
			stats.ArtistsFailed++
			continue
		}

		if len(profile.Images) > 0 {
			if err := e.store.Artists.UpdateImage(artist.ID, profile.Images[0].URL); err != nil {
				stats.ArtistsFailed++
				continue
			}
		}

		ok = true
		for _, name := range profile.Genres {
			genre, _, err := e.store.Genres.Upsert(name)
			if err != nil {
				e.logger.Warn("skipping genre", "name", name, "err", err)
				ok = false
				continue
			}
			if err := e.store.Artists.LinkGenre(artist.ID, genre.ID); err != nil {
				ok = false
			}
		}

		if ok {
			stats.ArtistsUpdated++
		} else {
			stats.ArtistsFailed++
		}
	}

	return nil
}
