// Package repositories provides the persistence layer for imported library
// data over SQLite.
//
// Externally sourced rows (artists, albums, tracks, genres) are written
// through upserts keyed on their Spotify identity so that re-imports
// converge on existing rows instead of duplicating them. Association
// tables use INSERT OR IGNORE so links are idempotent. Each call is
// atomic for a single row or association; there is no cross-call
// transaction around an album's full write sequence.
package repositories
