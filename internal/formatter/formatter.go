// package formatter exports an imported library to various formats (CSV, Markdown, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/shared"
)

// AlbumExport pairs an album with its ordered track listing.
type AlbumExport struct {
	Album  *models.Album
	Tracks []*models.AlbumTrack
}

// LibraryExport is a snapshot of one user's imported library.
type LibraryExport struct {
	Username string
	Albums   []AlbumExport
}

// BuildLibraryExport loads the user's full library from the store,
// albums ordered by most recently saved.
func BuildLibraryExport(store *repositories.Store, userID string) (*LibraryExport, error) {
	user, err := store.Users.Get(userID)
	if err != nil {
		return nil, err
	}

	albums, err := store.Albums.ListByUser(userID, repositories.AlbumFilter{})
	if err != nil {
		return nil, err
	}

	export := &LibraryExport{Username: user.Username, Albums: make([]AlbumExport, 0, len(albums))}
	for _, album := range albums {
		tracks, err := store.Albums.Tracks(album.ID)
		if err != nil {
			return nil, err
		}
		export.Albums = append(export.Albums, AlbumExport{Album: album, Tracks: tracks})
	}

	return export, nil
}

// artistNames joins an album's artist names for flat formats.
func artistNames(album *models.Album) string {
	names := make([]string, 0, len(album.Artists))
	for _, artist := range album.Artists {
		names = append(names, artist.Name)
	}
	return strings.Join(names, "; ")
}

// ExportToCSV converts a library to CSV with one row per album.
func ExportToCSV(export *LibraryExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"SpotifyID", "Title", "Artists", "Released", "Saved", "Tracks", "Popularity"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, entry := range export.Albums {
		album := entry.Album
		record := []string{
			album.SpotifyID,
			album.Title,
			artistNames(album),
			album.ReleaseDate.Format("2006-01-02"),
			album.AddedAt.Format("2006-01-02"),
			strconv.Itoa(len(entry.Tracks)),
			strconv.Itoa(album.Popularity),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a library to Markdown with a section per
// album and its track listing.
func ExportToMarkdown(export *LibraryExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s's library\n\n", export.Username))
	buf.WriteString(fmt.Sprintf("**Albums**: %d\n\n", len(export.Albums)))

	for _, entry := range export.Albums {
		album := entry.Album
		buf.WriteString(fmt.Sprintf("## %s\n\n", album.Title))
		buf.WriteString(fmt.Sprintf("**Artists**: %s\n", artistNames(album)))
		buf.WriteString(fmt.Sprintf("**Released**: %s\n", album.ReleaseDate.Format("2006-01-02")))
		buf.WriteString(fmt.Sprintf("**Saved**: %s\n\n", album.AddedAt.Format("2006-01-02")))

		for i, placement := range entry.Tracks {
			duration := shared.FormatDuration(placement.Track.DurationMS)
			buf.WriteString(fmt.Sprintf("%d. %s [%s]\n", i+1, placement.Track.Title, duration))
		}
		if len(entry.Tracks) > 0 {
			buf.WriteString("\n")
		}
	}

	return buf.Bytes(), nil
}

// jsonAlbum is the JSON shape of one exported album.
type jsonAlbum struct {
	SpotifyID  string      `json:"spotify_id"`
	Title      string      `json:"title"`
	Artists    []string    `json:"artists"`
	Released   string      `json:"released"`
	Saved      string      `json:"saved"`
	Popularity int         `json:"popularity"`
	Tracks     []jsonTrack `json:"tracks"`
}

type jsonTrack struct {
	SpotifyID   string `json:"spotify_id"`
	Title       string `json:"title"`
	DurationMS  int    `json:"duration_ms"`
	TrackNumber int    `json:"track_number"`
	DiscNumber  int    `json:"disc_number"`
}

// ExportToJSON converts a library to an indented JSON document.
func ExportToJSON(export *LibraryExport) ([]byte, error) {
	payload := struct {
		Username string      `json:"username"`
		Albums   []jsonAlbum `json:"albums"`
	}{Username: export.Username, Albums: make([]jsonAlbum, 0, len(export.Albums))}

	for _, entry := range export.Albums {
		album := entry.Album

		ja := jsonAlbum{
			SpotifyID:  album.SpotifyID,
			Title:      album.Title,
			Released:   album.ReleaseDate.Format("2006-01-02"),
			Saved:      album.AddedAt.Format("2006-01-02"),
			Popularity: album.Popularity,
			Tracks:     make([]jsonTrack, 0, len(entry.Tracks)),
		}
		for _, artist := range album.Artists {
			ja.Artists = append(ja.Artists, artist.Name)
		}
		for _, placement := range entry.Tracks {
			ja.Tracks = append(ja.Tracks, jsonTrack{
				SpotifyID:   placement.Track.SpotifyID,
				Title:       placement.Track.Title,
				DurationMS:  placement.Track.DurationMS,
				TrackNumber: placement.TrackNumber,
				DiscNumber:  placement.DiscNumber,
			})
		}

		payload.Albums = append(payload.Albums, ja)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal library: %w", err)
	}
	return data, nil
}

// WriteExport renders the library in the given format ("csv", "markdown",
// or "json") and writes it to path. An empty path derives a filename from
// the username.
func WriteExport(export *LibraryExport, format, path string) (string, error) {
	var (
		data []byte
		ext  string
		err  error
	)

	switch format {
	case "csv":
		data, err = ExportToCSV(export)
		ext = "csv"
	case "markdown", "md":
		data, err = ExportToMarkdown(export)
		ext = "md"
	case "json":
		data, err = ExportToJSON(export)
		ext = "json"
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return "", err
	}

	if path == "" {
		path = fmt.Sprintf("%s_library.%s", export.Username, ext)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}
