// Package tasks runs library imports: the reconciliation engine that
// turns Spotify API payloads into local rows, and the worker pool that
// executes imports asynchronously behind persisted job records.
package tasks
