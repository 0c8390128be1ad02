// Package server exposes the imported library over HTTP: the login and
// Spotify connect flows, the import trigger with job polling, and the
// filterable dashboard with album and artist detail pages.
package server
