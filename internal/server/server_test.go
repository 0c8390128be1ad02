package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
)

type testServer struct {
	store  *repositories.Store
	server *httptest.Server
	client *http.Client
}

// newTestServer stands up the full server over an in-memory database and
// a canned Spotify API, with a cookie-aware client that does not follow
// redirects.
func newTestServer(t *testing.T) *testServer {
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

	cfg := shared.DefaultConfig()
	cfg.Credentials.Spotify.ClientID = "test-client"
	cfg.Credentials.Spotify.ClientSecret = "test-secret"

	spotify := fakeSpotify(t)
	auth := services.NewSessionManager(cfg, store.Tokens, services.ClientConfig{MaxRetries: 1, RetryDelay: time.Millisecond}, nil)
	auth.SetBaseURL(spotify.URL)

	engine := tasks.NewImportEngine(store, cfg.Import, nil)
	queue := tasks.NewJobQueue(store, auth, engine, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	queue.Start(ctx)
	t.Cleanup(queue.Stop)

	srv, err := New(cfg, store, auth, queue, nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &testServer{
		store:  store,
		server: ts,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// fakeSpotify serves a one-album library.
func fakeSpotify(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/me/albums", func(w http.ResponseWriter, r *http.Request) {
		page := services.SavedAlbumsPage{
			Items: []services.SavedAlbumEntry{{
				AddedAt: "2024-01-15T08:00:00Z",
				Album: services.AlbumData{
					ID:          "alb-1",
					Name:        "Harbor Lights",
					TotalTracks: 1,
					ReleaseDate: "2020-02-14",
					Artists:     []services.ArtistRef{{ID: "art-1", Name: "The Harbors"}},
					Tracks: struct {
						Items []services.TrackEntry `json:"items"`
					}{Items: []services.TrackEntry{
						{ID: "trk-1", Name: "Beacon", DurationMS: 180000, TrackNumber: 1, DiscNumber: 1},
					}},
				},
			}},
			Total: 1,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	})
	mux.HandleFunc("/artists", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]services.ArtistProfile{
			"artists": {{ID: "art-1", Name: "The Harbors", Genres: []string{"dream pop"}}},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// login signs the username in through the login endpoint and returns the
// created user.
func (ts *testServer) login(t *testing.T, username string) *models.User {
	t.Helper()

	resp, err := ts.client.PostForm(ts.server.URL+"/login", url.Values{"username": {username}})
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect after login, got %d", resp.StatusCode)
	}

	user, err := ts.store.Users.GetByUsername(username)
	if err != nil {
		t.Fatalf("expected user to exist after login: %v", err)
	}
	return user
}

// connect stores a credential directly, standing in for the OAuth flow.
func (ts *testServer) connect(t *testing.T, userID string) {
	t.Helper()

	err := ts.store.Tokens.Upsert(&models.Token{
		UserID:      userID,
		AccessToken: "test-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to store token: %v", err)
	}
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()

	resp, err := ts.client.Get(ts.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp, string(body)
}

func TestAuthentication(t *testing.T) {
	t.Run("Login Creates Account And Session", func(t *testing.T) {
		ts := newTestServer(t)
		user := ts.login(t, "listener")

		if user.Username != "listener" {
			t.Errorf("unexpected username %q", user.Username)
		}

		resp, body := ts.get(t, "/dashboard")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 from dashboard, got %d", resp.StatusCode)
		}
		if !strings.Contains(body, "Library") {
			t.Error("expected dashboard page")
		}
	})

	t.Run("Anonymous Dashboard Redirects Home", func(t *testing.T) {
		ts := newTestServer(t)

		resp, _ := ts.get(t, "/dashboard")
		if resp.StatusCode != http.StatusSeeOther {
			t.Errorf("expected redirect, got %d", resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "/" {
			t.Errorf("expected redirect to /, got %q", loc)
		}
	})

	t.Run("Anonymous Import Is Unauthorized", func(t *testing.T) {
		ts := newTestServer(t)

		resp, err := ts.client.Post(ts.server.URL+"/importing", "application/x-www-form-urlencoded", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("Logout Ends The Session", func(t *testing.T) {
		ts := newTestServer(t)
		ts.login(t, "listener")

		resp, err := ts.client.Post(ts.server.URL+"/logout", "application/x-www-form-urlencoded", nil)
		if err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		resp.Body.Close()

		resp, _ = ts.get(t, "/dashboard")
		if resp.StatusCode != http.StatusSeeOther {
			t.Errorf("expected redirect after logout, got %d", resp.StatusCode)
		}
	})
}

func TestImportEndpoints(t *testing.T) {
	t.Run("Import Without Connection Conflicts", func(t *testing.T) {
		ts := newTestServer(t)
		ts.login(t, "listener")

		resp, err := ts.client.Post(ts.server.URL+"/importing", "application/x-www-form-urlencoded", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusConflict {
			t.Errorf("expected 409, got %d", resp.StatusCode)
		}
	})

	t.Run("Import Runs And Is Pollable", func(t *testing.T) {
		ts := newTestServer(t)
		user := ts.login(t, "listener")
		ts.connect(t, user.ID)

		resp, err := ts.client.Post(ts.server.URL+"/importing", "application/x-www-form-urlencoded", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}

		var accepted struct {
			JobID  string `json:"job_id"`
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if accepted.JobID == "" || accepted.Status != "pending" {
			t.Fatalf("unexpected accept payload: %+v", accepted)
		}

		deadline := time.Now().Add(5 * time.Second)
		var status jobResponse
		for time.Now().Before(deadline) {
			_, body := ts.get(t, "/tasks/status/"+accepted.JobID)
			if err := json.Unmarshal([]byte(body), &status); err != nil {
				t.Fatalf("failed to decode status: %v", err)
			}
			if status.Status == models.JobSuccess || status.Status == models.JobFailure {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}

		if status.Status != models.JobSuccess {
			t.Fatalf("expected success, got %s (%s)", status.Status, status.Error)
		}
		if status.Stats == nil || status.Stats.AlbumsProcessed != 1 {
			t.Errorf("unexpected stats: %+v", status.Stats)
		}

		albums, err := ts.store.Albums.ListByUser(user.ID, repositories.AlbumFilter{})
		if err != nil {
			t.Fatalf("failed to list albums: %v", err)
		}
		if len(albums) != 1 || albums[0].Title != "Harbor Lights" {
			t.Errorf("expected imported album, got %+v", albums)
		}
	})

	t.Run("Job Is Scoped To Its Owner", func(t *testing.T) {
		ts := newTestServer(t)
		owner := ts.login(t, "owner")
		ts.connect(t, owner.ID)

		resp, err := ts.client.Post(ts.server.URL+"/importing", "application/x-www-form-urlencoded", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		var accepted struct {
			JobID string `json:"job_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		resp.Body.Close()

		ts.login(t, "intruder")
		statusResp, _ := ts.get(t, "/tasks/status/"+accepted.JobID)
		if statusResp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 for another user's job, got %d", statusResp.StatusCode)
		}
	})
}

func TestDashboard(t *testing.T) {
	// seed puts two albums by different artists into the user's library.
	seed := func(t *testing.T, store *repositories.Store, userID string) {
		t.Helper()

		added := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
		for _, fixture := range []struct {
			spotifyID, title, artistID, artistName, genre string
		}{
			{"alb-1", "Harbor Lights", "art-1", "The Harbors", "dream pop"},
			{"alb-2", "Static Fields", "art-2", "Velvet Signal", "electronica"},
		} {
			album, _, err := store.Albums.Upsert(&models.Album{
				UserID:      userID,
				SpotifyID:   fixture.spotifyID,
				Title:       fixture.title,
				ReleaseDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				AddedAt:     added,
			})
			if err != nil {
				t.Fatalf("failed to seed album: %v", err)
			}
			added = added.Add(24 * time.Hour)

			artist, _, err := store.Artists.Upsert(userID, fixture.artistID, fixture.artistName)
			if err != nil {
				t.Fatalf("failed to seed artist: %v", err)
			}
			if err := store.Albums.LinkArtist(album.ID, artist.ID); err != nil {
				t.Fatalf("failed to link artist: %v", err)
			}

			genre, _, err := store.Genres.Upsert(fixture.genre)
			if err != nil {
				t.Fatalf("failed to seed genre: %v", err)
			}
			if err := store.Artists.LinkGenre(artist.ID, genre.ID); err != nil {
				t.Fatalf("failed to link genre: %v", err)
			}
		}
	}

	t.Run("Album View Filters By Title", func(t *testing.T) {
		ts := newTestServer(t)
		user := ts.login(t, "listener")
		seed(t, ts.store, user.ID)

		_, body := ts.get(t, "/dashboard?view=albums&title=harbor")
		if !strings.Contains(body, "Harbor Lights") {
			t.Error("expected matching album in listing")
		}
		if strings.Contains(body, "Static Fields") {
			t.Error("expected non-matching album filtered out")
		}
	})

	t.Run("Artist View Filters By Genre", func(t *testing.T) {
		ts := newTestServer(t)
		user := ts.login(t, "listener")
		seed(t, ts.store, user.ID)

		_, body := ts.get(t, "/dashboard?view=artists&genres=electronica")
		if !strings.Contains(body, "Velvet Signal") {
			t.Error("expected matching artist in listing")
		}
		if strings.Contains(body, "The Harbors") {
			t.Error("expected non-matching artist filtered out")
		}
	})

	t.Run("Detail Pages Are User Scoped", func(t *testing.T) {
		ts := newTestServer(t)
		owner := ts.login(t, "owner")
		seed(t, ts.store, owner.ID)

		albums, err := ts.store.Albums.ListByUser(owner.ID, repositories.AlbumFilter{})
		if err != nil {
			t.Fatalf("failed to list albums: %v", err)
		}

		resp, body := ts.get(t, "/album/"+albums[0].ID)
		if resp.StatusCode != http.StatusOK || !strings.Contains(body, albums[0].Title) {
			t.Errorf("expected owner to see album detail, got %d", resp.StatusCode)
		}

		ts.login(t, "intruder")
		resp, _ = ts.get(t, "/album/"+albums[0].ID)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 for another user's album, got %d", resp.StatusCode)
		}
	})
}
