package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/go-chi/chi/v5"
)

type contextKey string

const sessionKey contextKey = "session"

// requireUser resolves the browser session and stores it on the request
// context. Anonymous browsers are sent to the login page; API-style
// endpoints get a 401 instead.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := s.sessions.FromRequest(r)
		if session == nil {
			if r.URL.Path == "/importing" || strings.HasPrefix(r.URL.Path, "/tasks/") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session placed on the context by requireUser.
func sessionFrom(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey).(*Session)
	return session
}

type homeData struct {
	Session   *Session
	Connected bool
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	data := homeData{Session: s.sessions.FromRequest(r)}
	if data.Session != nil {
		if _, err := s.store.Tokens.GetByUser(data.Session.UserID); err == nil {
			data.Connected = true
		}
	}
	s.render(w, "home", data)
}

// handleLogin signs a username in, creating the account on first use.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.PostForm.Get("username"))
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	user, err := s.store.Users.GetByUsername(username)
	if errors.Is(err, shared.ErrNotFound) {
		user = &models.User{Username: username}
		if err := s.store.Users.Create(user); err != nil {
			s.logger.Error("failed to create user", "username", username, "err", err)
			http.Error(w, "failed to create user", http.StatusInternalServerError)
			return
		}
	} else if err != nil {
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}

	session, err := s.sessions.Create(user.ID, user.Username)
	if err != nil {
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	s.sessions.SetCookie(w, session)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if session := s.sessions.FromRequest(r); session != nil {
		s.sessions.Delete(session.ID)
	}
	s.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleConnect starts the Spotify OAuth flow, parking the CSRF state in
// a short-lived cookie.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	state, err := randomToken()
	if err != nil {
		http.Error(w, "failed to start authorization", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * time.Minute).Seconds()),
	})

	http.Redirect(w, r, s.auth.AuthURL(state), http.StatusSeeOther)
}

// handleCallback finishes the OAuth flow and stores the credential.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || r.URL.Query().Get("state") != stateCookie.Value {
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "authorization was denied", http.StatusBadRequest)
		return
	}

	if err := s.auth.Connect(r.Context(), session.UserID, code); err != nil {
		s.logger.Error("spotify connect failed", "user_id", session.UserID, "err", err)
		http.Error(w, "failed to connect spotify account", http.StatusBadGateway)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleImport queues an asynchronous import for the signed-in user.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if _, err := s.store.Tokens.GetByUser(session.UserID); errors.Is(err, shared.ErrNotConnected) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "spotify account not connected"})
		return
	} else if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to check credentials"})
		return
	}

	job, err := s.queue.Enqueue(session.UserID)
	if err != nil {
		s.logger.Error("failed to enqueue import", "user_id", session.UserID, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

// jobResponse is the polling payload for an import job.
type jobResponse struct {
	ID          string              `json:"id"`
	Status      models.JobStatus    `json:"status"`
	Stats       *models.ImportStats `json:"stats,omitempty"`
	Error       string              `json:"error,omitempty"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// handleJobStatus reports an import job. Jobs are scoped to their owner;
// anyone else sees a 404.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	job, err := s.queue.Status(chi.URLParam(r, "id"))
	if err != nil || job.UserID != session.UserID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		ID:          job.ID,
		Status:      job.Status,
		Stats:       job.Stats,
		Error:       job.ErrorMessage,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	})
}

type dashboardData struct {
	Session     *Session
	View        string
	Albums      []*models.Album
	Artists     []*models.Artist
	TitleQuery  string
	ArtistQuery string
	NameQuery   string
	AlbumQuery  string
	GenreQuery  string
}

// handleDashboard renders the filterable album or artist listing.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	q := r.URL.Query()

	data := dashboardData{Session: session, View: q.Get("view")}
	if data.View != "artists" {
		data.View = "albums"
	}

	var err error
	switch data.View {
	case "artists":
		data.NameQuery = q.Get("name")
		data.AlbumQuery = q.Get("album")
		data.GenreQuery = q.Get("genres")
		data.Artists, err = s.store.Artists.ListByUser(session.UserID, repositories.ArtistFilter{
			Name:       data.NameQuery,
			AlbumTitle: data.AlbumQuery,
			Genres:     splitKeywords(data.GenreQuery),
		})
	default:
		data.TitleQuery = q.Get("title")
		data.ArtistQuery = q.Get("artist")
		data.Albums, err = s.store.Albums.ListByUser(session.UserID, repositories.AlbumFilter{
			Title:      data.TitleQuery,
			ArtistName: data.ArtistQuery,
		})
	}

	if err != nil {
		s.logger.Error("failed to load dashboard", "view", data.View, "err", err)
		http.Error(w, "failed to load library", http.StatusInternalServerError)
		return
	}

	s.render(w, "dashboard", data)
}

type albumData struct {
	Session *Session
	Album   *models.Album
	Tracks  []*models.AlbumTrack
}

func (s *Server) handleAlbum(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	album, err := s.store.Albums.Get(chi.URLParam(r, "id"))
	if err != nil || album.UserID != session.UserID {
		http.NotFound(w, r)
		return
	}

	tracks, err := s.store.Albums.Tracks(album.ID)
	if err != nil {
		http.Error(w, "failed to load tracks", http.StatusInternalServerError)
		return
	}

	s.render(w, "album", albumData{Session: session, Album: album, Tracks: tracks})
}

type artistData struct {
	Session *Session
	Artist  *models.Artist
	Albums  []*models.Album
}

func (s *Server) handleArtist(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	artist, err := s.store.Artists.Get(chi.URLParam(r, "id"))
	if err != nil || artist.UserID != session.UserID {
		http.NotFound(w, r)
		return
	}

	albums, err := s.store.Albums.ListByArtist(artist.ID)
	if err != nil {
		http.Error(w, "failed to load albums", http.StatusInternalServerError)
		return
	}

	s.render(w, "artist", artistData{Session: session, Artist: artist, Albums: albums})
}

// render writes a page template, logging any template failure.
func (s *Server) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.Render(w, page, data); err != nil {
		s.logger.Error("template render failed", "page", page, "err", err)
	}
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// splitKeywords breaks a genre query on commas and whitespace, so both
// "indie rock, jazz" and "indie jazz" become keyword lists.
func splitKeywords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
