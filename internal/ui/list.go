package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/crate/internal/models"
)

var (
	_ list.Item = albumItem{}
	_ list.Item = artistItem{}
)

// albumItem wraps [models.Album] to implement [list.Item].
type albumItem struct {
	album *models.Album
}

func (i albumItem) FilterValue() string { return i.album.Title }
func (i albumItem) Title() string       { return i.album.Title }
func (i albumItem) Description() string {
	names := make([]string, 0, len(i.album.Artists))
	for _, artist := range i.album.Artists {
		names = append(names, artist.Name)
	}

	desc := i.album.ReleaseDate.Format("2006")
	if len(names) > 0 {
		desc = fmt.Sprintf("%s • %s", strings.Join(names, ", "), desc)
	}
	return desc
}

// artistItem wraps [models.Artist] to implement [list.Item].
type artistItem struct {
	artist *models.Artist
}

func (i artistItem) FilterValue() string { return i.artist.Name }
func (i artistItem) Title() string       { return i.artist.Name }
func (i artistItem) Description() string {
	if len(i.artist.Genres) == 0 {
		return "no genres"
	}

	names := make([]string, 0, len(i.artist.Genres))
	for _, genre := range i.artist.Genres {
		names = append(names, genre.Name)
	}
	return strings.Join(names, ", ")
}
