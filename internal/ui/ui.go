package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	AlbumListView ViewState = iota
	ArtistListView
	AlbumDetailView
)

// Model represents the TUI application state.
type Model struct {
	store      *repositories.Store
	userID     string
	view       ViewState
	width      int
	height     int
	albumList  list.Model
	artistList list.Model
	selected   *models.Album
	tracks     []*models.AlbumTrack
	err        error
	help       help.Model
	keys       keyMap
}

type libraryLoadedMsg struct {
	albums  []*models.Album
	artists []*models.Artist
	err     error
}

type albumLoadedMsg struct {
	album  *models.Album
	tracks []*models.AlbumTrack
	err    error
}

// NewModel creates a new TUI model browsing the given user's library.
func NewModel(store *repositories.Store, userID string) *Model {
	return &Model{
		store:  store,
		userID: userID,
		view:   AlbumListView,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init initializes the TUI by loading the library.
func (m *Model) Init() tea.Cmd {
	return m.loadLibrary()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.albumList.SetSize(msg.Width-4, msg.Height-8)
		m.artistList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case AlbumListView:
			return m.handleAlbumListKeys(msg)
		case ArtistListView:
			return m.handleArtistListKeys(msg)
		case AlbumDetailView:
			return m.handleDetailKeys(msg)
		}

	case libraryLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}

		albumItems := make([]list.Item, len(msg.albums))
		for i, album := range msg.albums {
			albumItems[i] = albumItem{album: album}
		}
		m.albumList = list.New(albumItems, list.NewDefaultDelegate(), 0, 0)
		m.albumList.Title = "Saved Albums"
		m.albumList.SetSize(m.width-4, m.height-8)

		artistItems := make([]list.Item, len(msg.artists))
		for i, artist := range msg.artists {
			artistItems[i] = artistItem{artist: artist}
		}
		m.artistList = list.New(artistItems, list.NewDefaultDelegate(), 0, 0)
		m.artistList.Title = "Artists"
		m.artistList.SetSize(m.width-4, m.height-8)

		return m, nil

	case albumLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.selected = msg.album
		m.tracks = msg.tracks
		m.view = AlbumDetailView
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case AlbumListView:
		return m.renderList(m.albumList, []key.Binding{m.keys.enter, m.keys.toggle, m.keys.quit})
	case ArtistListView:
		return m.renderList(m.artistList, []key.Binding{m.keys.toggle, m.keys.quit})
	case AlbumDetailView:
		return m.renderDetail()
	default:
		return ""
	}
}

func (m *Model) handleAlbumListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.view = ArtistListView
		return m, nil
	case "enter":
		if selected := m.albumList.SelectedItem(); selected != nil {
			if item, ok := selected.(albumItem); ok {
				return m, m.loadAlbum(item.album.ID)
			}
		}
	}

	var cmd tea.Cmd
	m.albumList, cmd = m.albumList.Update(msg)
	return m, cmd
}

func (m *Model) handleArtistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab", "esc":
		m.view = AlbumListView
		return m, nil
	}

	var cmd tea.Cmd
	m.artistList, cmd = m.artistList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = AlbumListView
		m.selected = nil
		m.tracks = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case AlbumListView:
		m.albumList, cmd = m.albumList.Update(msg)
	case ArtistListView:
		m.artistList, cmd = m.artistList.Update(msg)
	}
	return m, cmd
}

func (m *Model) loadLibrary() tea.Cmd {
	return func() tea.Msg {
		albums, err := m.store.Albums.ListByUser(m.userID, repositories.AlbumFilter{})
		if err != nil {
			return libraryLoadedMsg{err: err}
		}

		artists, err := m.store.Artists.ListByUser(m.userID, repositories.ArtistFilter{})
		return libraryLoadedMsg{albums: albums, artists: artists, err: err}
	}
}

func (m *Model) loadAlbum(albumID string) tea.Cmd {
	return func() tea.Msg {
		album, err := m.store.Albums.Get(albumID)
		if err != nil {
			return albumLoadedMsg{err: err}
		}

		tracks, err := m.store.Albums.Tracks(albumID)
		return albumLoadedMsg{album: album, tracks: tracks, err: err}
	}
}

func (m *Model) renderList(l list.Model, helpKeys []key.Binding) string {
	return fmt.Sprintf("%s\n\n%s", l.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return ""
	}

	title := styles.title.Render(m.selected.Title)

	var listing string
	for _, placement := range m.tracks {
		listing += fmt.Sprintf("%d.%d  %s  %s\n",
			placement.DiscNumber,
			placement.TrackNumber,
			placement.Track.Title,
			styles.help.Render(shared.FormatDuration(placement.Track.DurationMS)),
		)
	}
	if listing == "" {
		listing = styles.warn.Render("No tracks imported for this album.\n")
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, listing, helpView)
}
