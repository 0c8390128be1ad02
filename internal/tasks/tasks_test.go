package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

func setupTaskTest(t *testing.T) (*repositories.Store, *sql.DB, string) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// one connection, or each pooled conn would get its own :memory: db
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	store := repositories.NewStore(db)
	user := &models.User{Username: "collector"}
	if err := store.Users.Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return store, db, user.ID
}

// library is a canned Spotify account for the fixture server.
type library struct {
	saved   []services.SavedAlbumEntry
	artists map[string]services.ArtistProfile
}

// fixtureServer serves the canned library on the two endpoints an import
// touches.
func fixtureServer(t *testing.T, lib library) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/me/albums", func(w http.ResponseWriter, r *http.Request) {
		page := services.SavedAlbumsPage{Items: lib.saved, Total: len(lib.saved)}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	})
	mux.HandleFunc("/artists", func(w http.ResponseWriter, r *http.Request) {
		var response struct {
			Artists []services.ArtistProfile `json:"artists"`
		}
		for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
			if profile, ok := lib.artists[id]; ok {
				response.Artists = append(response.Artists, profile)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testLibrary() library {
	return library{
		saved: []services.SavedAlbumEntry{
			{
				AddedAt: "2024-03-01T10:00:00Z",
				Album: services.AlbumData{
					ID:          "alb-1",
					Name:        "First Light",
					TotalTracks: 2,
					ReleaseDate: "2019-05-17",
					Popularity:  61,
					Images:      []services.Image{{URL: "https://img.example/alb-1.jpg"}},
					Artists:     []services.ArtistRef{{ID: "art-1", Name: "The Harbors"}},
					Tracks: struct {
						Items []services.TrackEntry `json:"items"`
					}{Items: []services.TrackEntry{
						{ID: "trk-1", Name: "Opener", DurationMS: 201000, TrackNumber: 1, DiscNumber: 1},
						{ID: "trk-2", Name: "Closer", DurationMS: 245000, TrackNumber: 2, DiscNumber: 1},
					}},
				},
			},
			{
				AddedAt: "2024-03-02T10:00:00Z",
				Album: services.AlbumData{
					ID:          "alb-2",
					Name:        "Night Driving",
					TotalTracks: 1,
					ReleaseDate: "2021-11",
					Popularity:  47,
					Artists: []services.ArtistRef{
						{ID: "art-1", Name: "The Harbors"},
						{ID: "art-2", Name: "Velvet Signal"},
					},
					Tracks: struct {
						Items []services.TrackEntry `json:"items"`
					}{Items: []services.TrackEntry{
						{ID: "trk-3", Name: "Motorway", DurationMS: 312000, TrackNumber: 1, DiscNumber: 1},
					}},
				},
			},
		},
		artists: map[string]services.ArtistProfile{
			"art-1": {
				ID:     "art-1",
				Name:   "The Harbors",
				Genres: []string{"art rock", "dream pop"},
				Images: []services.Image{{URL: "https://img.example/art-1.jpg"}},
			},
			"art-2": {
				ID:     "art-2",
				Name:   "Velvet Signal",
				Genres: []string{"electronica"},
			},
		},
	}
}

func newEngineClient(t *testing.T, server *httptest.Server) *services.Client {
	t.Helper()
	return services.NewClient(services.ClientConfig{
		AccessToken: "test-token",
		BaseURL:     server.URL,
		MaxRetries:  1,
		RetryDelay:  time.Millisecond,
	})
}

func TestImportEngine(t *testing.T) {
	cfg := shared.ImportConfig{BatchSize: 50}

	t.Run("Imports A Saved Library", func(t *testing.T) {
		store, _, userID := setupTaskTest(t)
		server := fixtureServer(t, testLibrary())
		engine := NewImportEngine(store, cfg, nil)

		stats, err := engine.Run(context.Background(), newEngineClient(t, server), userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if stats.AlbumsProcessed != 2 || stats.AlbumsFailed != 0 {
			t.Errorf("unexpected album stats: %+v", stats)
		}
		if stats.ArtistsProcessed != 3 {
			t.Errorf("expected 3 artist links, got %d", stats.ArtistsProcessed)
		}
		if stats.TracksProcessed != 3 || stats.TracksFailed != 0 {
			t.Errorf("unexpected track stats: %+v", stats)
		}
		if stats.ArtistsUpdated != 2 {
			t.Errorf("expected 2 enriched artists, got %d", stats.ArtistsUpdated)
		}

		albums, err := store.Albums.ListByUser(userID, repositories.AlbumFilter{})
		if err != nil {
			t.Fatalf("failed to list albums: %v", err)
		}
		if len(albums) != 2 {
			t.Fatalf("expected 2 albums, got %d", len(albums))
		}
		// most recently added first
		if albums[0].SpotifyID != "alb-2" {
			t.Errorf("expected alb-2 first by added_at, got %s", albums[0].SpotifyID)
		}
		if albums[1].CoverURL != "https://img.example/alb-1.jpg" {
			t.Errorf("expected cover url, got %q", albums[1].CoverURL)
		}
		if len(albums[0].Artists) != 2 {
			t.Errorf("expected 2 artists on alb-2, got %d", len(albums[0].Artists))
		}

		artist, err := store.Artists.GetBySpotifyID(userID, "art-1")
		if err != nil {
			t.Fatalf("failed to load artist: %v", err)
		}
		if artist.ImageURL != "https://img.example/art-1.jpg" {
			t.Errorf("expected enriched image, got %q", artist.ImageURL)
		}

		full, err := store.Artists.Get(artist.ID)
		if err != nil {
			t.Fatalf("failed to load artist with genres: %v", err)
		}
		if len(full.Genres) != 2 || full.Genres[0].Name != "art rock" {
			t.Errorf("unexpected genres: %+v", full.Genres)
		}

		placements, err := store.Albums.Tracks(albums[1].ID)
		if err != nil {
			t.Fatalf("failed to load tracks: %v", err)
		}
		if len(placements) != 2 || placements[0].Track.Title != "Opener" {
			t.Errorf("unexpected track listing: %+v", placements)
		}
	})

	t.Run("Rerun Converges Without Duplicates", func(t *testing.T) {
		store, db, userID := setupTaskTest(t)
		server := fixtureServer(t, testLibrary())
		engine := NewImportEngine(store, cfg, nil)

		for i := 0; i < 2; i++ {
			stats, err := engine.Run(context.Background(), newEngineClient(t, server), userID)
			if err != nil {
				t.Fatalf("run %d: unexpected error: %v", i, err)
			}
			if stats.AlbumsProcessed != 2 {
				t.Errorf("run %d: expected 2 albums processed, got %d", i, stats.AlbumsProcessed)
			}
		}

		for table, want := range map[string]int{
			"albums":       2,
			"artists":      2,
			"tracks":       3,
			"album_tracks": 3,
			"genres":       3,
		} {
			var count int
			if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
				t.Fatalf("failed to count %s: %v", table, err)
			}
			if count != want {
				t.Errorf("expected %d rows in %s after rerun, got %d", want, table, count)
			}
		}
	})

	t.Run("Malformed Album Is Counted And Skipped", func(t *testing.T) {
		store, _, userID := setupTaskTest(t)

		lib := testLibrary()
		lib.saved[1].Album.Name = ""
		server := fixtureServer(t, lib)
		engine := NewImportEngine(store, cfg, nil)

		stats, err := engine.Run(context.Background(), newEngineClient(t, server), userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if stats.AlbumsProcessed != 1 || stats.AlbumsFailed != 1 {
			t.Errorf("expected 1 processed / 1 failed, got %+v", stats)
		}

		albums, err := store.Albums.ListByUser(userID, repositories.AlbumFilter{})
		if err != nil {
			t.Fatalf("failed to list albums: %v", err)
		}
		if len(albums) != 1 || albums[0].SpotifyID != "alb-1" {
			t.Errorf("expected only alb-1 stored, got %+v", albums)
		}
	})

	t.Run("Unparseable Added At Fails The Record", func(t *testing.T) {
		store, _, userID := setupTaskTest(t)

		lib := testLibrary()
		lib.saved[0].AddedAt = "yesterday"
		server := fixtureServer(t, lib)
		engine := NewImportEngine(store, cfg, nil)

		stats, err := engine.Run(context.Background(), newEngineClient(t, server), userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stats.AlbumsFailed != 1 || stats.AlbumsProcessed != 1 {
			t.Errorf("expected the malformed record isolated, got %+v", stats)
		}
	})

	t.Run("Malformed Track Does Not Fail The Album", func(t *testing.T) {
		store, _, userID := setupTaskTest(t)

		lib := testLibrary()
		lib.saved[0].Album.Tracks.Items[0].ID = ""
		server := fixtureServer(t, lib)
		engine := NewImportEngine(store, cfg, nil)

		stats, err := engine.Run(context.Background(), newEngineClient(t, server), userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if stats.AlbumsProcessed != 2 || stats.AlbumsFailed != 0 {
			t.Errorf("album should survive a bad track: %+v", stats)
		}
		if stats.TracksProcessed != 2 || stats.TracksFailed != 1 {
			t.Errorf("unexpected track stats: %+v", stats)
		}
	})

	t.Run("Missing Profile Leaves Artist As Stub", func(t *testing.T) {
		store, _, userID := setupTaskTest(t)

		lib := testLibrary()
		delete(lib.artists, "art-2")
		server := fixtureServer(t, lib)
		engine := NewImportEngine(store, cfg, nil)

		stats, err := engine.Run(context.Background(), newEngineClient(t, server), userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if stats.ArtistsUpdated != 1 {
			t.Errorf("expected 1 enriched artist, got %d", stats.ArtistsUpdated)
		}
		if stats.ArtistsFailed != 1 {
			t.Errorf("expected the unfetched artist counted as failed, got %d", stats.ArtistsFailed)
		}

		stub, err := store.Artists.GetBySpotifyID(userID, "art-2")
		if err != nil {
			t.Fatalf("failed to load artist: %v", err)
		}
		if stub.Name != "Velvet Signal" || stub.ImageURL != "" {
			t.Errorf("expected bare stub for unfetched artist, got %+v", stub)
		}
	})

	t.Run("Unreadable Listing Fails The Run", func(t *testing.T) {
		store, _, userID := setupTaskTest(t)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		engine := NewImportEngine(store, cfg, nil)
		_, err := engine.Run(context.Background(), newEngineClient(t, server), userID)
		if !errors.Is(err, shared.ErrPageFailed) {
			t.Fatalf("expected ErrPageFailed, got %v", err)
		}
	})
}
