package services

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
	"github.com/desertthunder/crate/internal/shared"
)

func setupSessionTest(t *testing.T) (*SessionManager, *repositories.TokenRepository, *sql.DB, string) {
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

	users := repositories.NewUserRepository(db)
	user := &models.User{Username: "listener"}
	if err := users.Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	tokens := repositories.NewTokenRepository(db)

	cfg := shared.DefaultConfig()
	cfg.Credentials.Spotify.ClientID = "test-client"
	cfg.Credentials.Spotify.ClientSecret = "test-secret"

	manager := NewSessionManager(cfg, tokens, ClientConfig{MaxRetries: 1, RetryDelay: time.Millisecond}, nil)
	return manager, tokens, db, user.ID
}

// tokenEndpoint fakes the OAuth token endpoint, handing out sequentially
// numbered access tokens for any refresh grant.
func tokenEndpoint(t *testing.T, refreshes *int) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request: %v", err)
		}
		if grant := r.Form.Get("grant_type"); grant != "refresh_token" {
			t.Errorf("expected refresh_token grant, got %q", grant)
		}

		*refreshes++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
}

func TestSessionManager(t *testing.T) {
	t.Run("Ensure Without Credential", func(t *testing.T) {
		manager, _, _, userID := setupSessionTest(t)

		_, err := manager.Ensure(context.Background(), userID)
		if !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("Ensure With Fresh Token Skips Refresh", func(t *testing.T) {
		manager, tokens, _, userID := setupSessionTest(t)

		var refreshes int
		oauth := httptest.NewServer(tokenEndpoint(t, &refreshes))
		defer oauth.Close()
		manager.SetTokenURL(oauth.URL)

		err := tokens.Upsert(&models.Token{
			UserID:       userID,
			AccessToken:  "still-good",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("failed to store token: %v", err)
		}

		client, err := manager.Ensure(context.Background(), userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.accessToken != "still-good" {
			t.Errorf("expected stored access token, got %q", client.accessToken)
		}
		if refreshes != 0 {
			t.Errorf("expected no refresh for a fresh token, got %d", refreshes)
		}
	})

	t.Run("Ensure Refreshes And Persists Stale Token", func(t *testing.T) {
		manager, tokens, _, userID := setupSessionTest(t)

		var refreshes int
		oauth := httptest.NewServer(tokenEndpoint(t, &refreshes))
		defer oauth.Close()
		manager.SetTokenURL(oauth.URL)

		err := tokens.Upsert(&models.Token{
			UserID:       userID,
			AccessToken:  "expired-token",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(-time.Minute),
		})
		if err != nil {
			t.Fatalf("failed to store token: %v", err)
		}

		client, err := manager.Ensure(context.Background(), userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.accessToken != "fresh-token" {
			t.Errorf("expected refreshed access token, got %q", client.accessToken)
		}
		if refreshes != 1 {
			t.Errorf("expected exactly one refresh, got %d", refreshes)
		}

		stored, err := tokens.GetByUser(userID)
		if err != nil {
			t.Fatalf("failed to reload token: %v", err)
		}
		if stored.AccessToken != "fresh-token" {
			t.Errorf("refreshed token was not persisted, got %q", stored.AccessToken)
		}
		if !stored.ExpiresAt.After(time.Now().Add(30 * time.Minute)) {
			t.Errorf("expected persisted expiry in the future, got %v", stored.ExpiresAt)
		}
		// endpoint omitted a refresh token, so the stored one survives
		if stored.RefreshToken != "refresh-1" {
			t.Errorf("expected original refresh token to survive, got %q", stored.RefreshToken)
		}
	})

	t.Run("Token Within Margin Counts As Stale", func(t *testing.T) {
		manager, tokens, _, userID := setupSessionTest(t)

		var refreshes int
		oauth := httptest.NewServer(tokenEndpoint(t, &refreshes))
		defer oauth.Close()
		manager.SetTokenURL(oauth.URL)

		// valid for 10s, inside the 30s staleness margin
		err := tokens.Upsert(&models.Token{
			UserID:       userID,
			AccessToken:  "nearly-expired",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(10 * time.Second),
		})
		if err != nil {
			t.Fatalf("failed to store token: %v", err)
		}

		if _, err := manager.Ensure(context.Background(), userID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if refreshes != 1 {
			t.Errorf("expected refresh within expiry margin, got %d", refreshes)
		}
	})

	t.Run("Refresh Without Refresh Token Fails", func(t *testing.T) {
		manager, tokens, _, userID := setupSessionTest(t)

		err := tokens.Upsert(&models.Token{
			UserID:      userID,
			AccessToken: "expired-token",
			ExpiresAt:   time.Now().Add(-time.Minute),
		})
		if err != nil {
			t.Fatalf("failed to store token: %v", err)
		}

		_, err = manager.Ensure(context.Background(), userID)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
	})

	t.Run("Auth URL Carries Scope And State", func(t *testing.T) {
		manager, _, _, _ := setupSessionTest(t)

		u := manager.AuthURL("csrf-state")
		for _, fragment := range []string{"state=csrf-state", "user-library-read", "client_id=test-client"} {
			if !strings.Contains(u, fragment) {
				t.Errorf("expected auth URL to contain %q, got %s", fragment, u)
			}
		}
	})
}
