// Package models defines the data model for the library import service.
//
// Artists and albums are scoped to the user who imported them; tracks and
// genres are global and shared across users. All externally sourced rows
// carry the Spotify id they were imported from.
package models
