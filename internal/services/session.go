package services

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/oauth2"
)

// Scopes requested during the connect flow. Library read is all the
// import pipeline needs.
var spotifyScopes = []string{"user-library-read"}

// SessionManager owns the per-user credential lifecycle: the OAuth
// connect dance, storage of tokens, and refresh-before-use.
//
// Ensure follows a cache-aside pattern: check freshness, refresh and
// persist on a stale hit, then hand back a client that is guaranteed to
// carry a usable access token.
type SessionManager struct {
	oauth  *oauth2.Config
	tokens *repositories.TokenRepository
	// margin treats tokens expiring within this window as already stale,
	// so a token cannot lapse mid-import.
	margin time.Duration
	client ClientConfig
	logger *log.Logger
}

// NewSessionManager wires a [SessionManager] from application config.
// The clientCfg acts as a template for API clients handed out by Ensure;
// its AccessToken field is overwritten per user.
func NewSessionManager(cfg *shared.Config, tokens *repositories.TokenRepository, clientCfg ClientConfig, logger *log.Logger) *SessionManager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Credentials.Spotify.ClientID,
		ClientSecret: cfg.Credentials.Spotify.ClientSecret,
		RedirectURL:  cfg.Credentials.Spotify.RedirectURI,
		Scopes:       spotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SessionManager{
		oauth:  oauthCfg,
		tokens: tokens,
		margin: cfg.Import.ExpiryMargin(),
		client: clientCfg,
		logger: logger,
	}
}

// AuthURL returns the authorization URL for the connect redirect.
func (m *SessionManager) AuthURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Connect exchanges an authorization code from the OAuth callback and
// stores (or overwrites) the user's credential.
func (m *SessionManager) Connect(ctx context.Context, userID, code string) error {
	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: code exchange: %w", shared.ErrAuthFailed, err)
	}

	token := &models.Token{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}

	if err := m.tokens.Upsert(token); err != nil {
		return err
	}

	m.logger.Info("spotify account connected", "user_id", userID)
	return nil
}

// Ensure loads the user's credential, refreshing and persisting it if
// stale, and returns an API client authenticated with a fresh access
// token. A user without a stored credential gets [shared.ErrNotConnected]
// so callers can send them through the connect flow instead of retrying.
func (m *SessionManager) Ensure(ctx context.Context, userID string) (*Client, error) {
	token, err := m.tokens.GetByUser(userID)
	if err != nil {
		return nil, err
	}

	if token.Expired(m.margin) {
		if err := m.refresh(ctx, token); err != nil {
			return nil, err
		}
	}

	cfg := m.client
	cfg.AccessToken = token.AccessToken
	cfg.Logger = m.logger
	return NewClient(cfg), nil
}

// refresh exchanges the stored refresh token for a new access token and
// persists it. Spotify may omit the refresh token from the response, in
// which case the stored one stays valid.
func (m *SessionManager) refresh(ctx context.Context, token *models.Token) error {
	if token.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token on file", shared.ErrRefreshFailed)
	}

	source := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	fresh, err := source.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	token.AccessToken = fresh.AccessToken
	token.ExpiresAt = fresh.Expiry
	if fresh.RefreshToken != "" {
		token.RefreshToken = fresh.RefreshToken
	}

	if err := m.tokens.UpdateAccess(token); err != nil {
		return err
	}

	m.logger.Info("access token refreshed", "user_id", token.UserID, "expires_at", token.ExpiresAt)
	return nil
}

// SetTokenURL points the OAuth token endpoint somewhere else, for tests.
func (m *SessionManager) SetTokenURL(u string) {
	m.oauth.Endpoint.TokenURL = u
}

// SetBaseURL points clients created by Ensure at a different API host,
// for tests.
func (m *SessionManager) SetBaseURL(u string) {
	m.client.BaseURL = u
}
