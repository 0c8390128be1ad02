package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify caps limit-style parameters at 50 items per request.
	maxPageSize = 50
)

// Image represents an image resource. Spotify orders images largest
// first, so the first entry is taken as the display image.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// ArtistRef is the abbreviated artist object embedded in album payloads.
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ArtistProfile is the full artist object returned by the bulk lookup.
type ArtistProfile struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	Images []Image  `json:"images"`
}

// TrackEntry is the simplified track object nested in an album payload.
type TrackEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMS  int    `json:"duration_ms"`
	TrackNumber int    `json:"track_number"`
	DiscNumber  int    `json:"disc_number"`
}

// AlbumData is the album object nested in a saved-album entry.
type AlbumData struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	TotalTracks int         `json:"total_tracks"`
	ReleaseDate string      `json:"release_date"`
	Popularity  int         `json:"popularity"`
	Images      []Image     `json:"images"`
	Artists     []ArtistRef `json:"artists"`
	Tracks      struct {
		Items []TrackEntry `json:"items"`
	} `json:"tracks"`
}

// SavedAlbumEntry pairs an album with the time it entered the library.
type SavedAlbumEntry struct {
	AddedAt string    `json:"added_at"`
	Album   AlbumData `json:"album"`
}

// SavedAlbumsPage is one page of the saved-albums listing.
type SavedAlbumsPage struct {
	Items  []SavedAlbumEntry `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	Next   *string           `json:"next"`
}

// ClientConfig configures a [Client].
type ClientConfig struct {
	AccessToken string
	BaseURL     string       // defaults to the public API host
	HTTPClient  *http.Client // defaults to http.DefaultClient
	MaxRetries  int          // attempts per request before giving up
	RetryDelay  time.Duration
	RateLimit   float64 // requests per second, 0 disables throttling
	Logger      *log.Logger
}

// Client is an authenticated Spotify Web API client with bounded retry
// and request throttling.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	retry       retryPolicy
	limiter     *rate.Limiter
	logger      *log.Logger
}

// NewClient creates a [Client] from the given configuration.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = spotifyBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = shared.NewLogger(nil)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		httpClient:  cfg.HTTPClient,
		retry:       retryPolicy{maxRetries: cfg.MaxRetries, delay: cfg.RetryDelay},
		limiter:     limiter,
		logger:      cfg.Logger,
	}
}

// SavedAlbums retrieves the user's saved albums, paging from offset in
// batches of batchSize until the upstream reports no further page or
// maxCount entries have accumulated. The final page is clamped so the
// result never exceeds the budget.
//
// Invalid arguments are a programming error and panic. A page that still
// fails after retries fails the whole call with [shared.ErrPageFailed];
// continuing past an unreadable page could never terminate when maxCount
// is unbounded.
func (c *Client) SavedAlbums(ctx context.Context, maxCount, offset, batchSize int) ([]SavedAlbumEntry, error) {
	if batchSize <= 0 || maxCount <= 0 || offset < 0 {
		panic(fmt.Sprintf("services: invalid pagination arguments maxCount=%d offset=%d batchSize=%d", maxCount, offset, batchSize))
	}
	if batchSize > maxPageSize {
		batchSize = maxPageSize
	}

	var albums []SavedAlbumEntry
	c.logger.Info("reading saved albums", "offset", offset, "batch_size", batchSize)

	for batch := 0; ; batch++ {
		batchOffset := offset + batchSize*batch
		batchLimit := batchSize
		if remaining := maxCount + offset - batchOffset; batchLimit > remaining {
			batchLimit = remaining
		}

		endpoint := fmt.Sprintf("/me/albums?limit=%d&offset=%d", batchLimit, batchOffset)

		var page SavedAlbumsPage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, fmt.Errorf("%w: saved albums at offset %d: %w", shared.ErrPageFailed, batchOffset, err)
		}

		albums = append(albums, page.Items...)
		c.logger.Debug("fetched saved-album page", "batch", batch, "items", len(page.Items), "total", len(albums))

		if page.Next == nil || len(albums) >= maxCount {
			break
		}
	}

	if len(albums) > maxCount {
		albums = albums[:maxCount]
	}

	return albums, nil
}

// ArtistsByID retrieves full artist profiles in chunks of batchSize.
// Chunk order is preserved. A chunk that fails after retries is logged
// and skipped, so the result can be shorter than ids; callers must match
// profiles by their returned id, never by position.
func (c *Client) ArtistsByID(ctx context.Context, ids []string, batchSize int) ([]ArtistProfile, error) {
	if batchSize <= 0 {
		panic(fmt.Sprintf("services: invalid batch size %d", batchSize))
	}
	if batchSize > maxPageSize {
		batchSize = maxPageSize
	}

	var artists []ArtistProfile
	c.logger.Info("reading artist profiles", "count", len(ids), "batch_size", batchSize)

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		endpoint := "/artists?ids=" + url.QueryEscape(strings.Join(chunk, ","))

		var response struct {
			Artists []ArtistProfile `json:"artists"`
		}
		if err := c.getJSON(ctx, endpoint, &response); err != nil {
			c.logger.Warn("skipping failed artist chunk", "start", start, "size", len(chunk), "err", err)
			continue
		}

		artists = append(artists, response.Artists...)
	}

	return artists, nil
}

// getJSON performs an authenticated GET with retry and decodes the
// response body into result.
func (c *Client) getJSON(ctx context.Context, endpoint string, result any) error {
	return c.retry.do(ctx, c.logger, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &apiError{status: resp.StatusCode, body: string(body)}
		}

		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}

		return nil
	})
}
