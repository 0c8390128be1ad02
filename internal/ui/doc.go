// Package ui implements an interactive terminal browser for the imported
// library using bubbletea's Elm architecture.
//
// The TUI provides a read-only, multi-view workflow:
//  1. [AlbumListView] : Browse saved albums, most recently added first
//  2. [ArtistListView] : Browse artists with their genres
//  3. [AlbumDetailView] : Inspect an album's track listing
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View
// pattern. Library data is loaded through tea.Cmd messages so the
// interface never blocks on the database.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, tab, q)
// with contextual help displayed via charmbracelet/bubbles/help.
package ui
