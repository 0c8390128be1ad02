// Package services implements the Spotify Web API client used by the
// import pipeline: the paginated saved-albums fetch, the bulk artist
// lookup, and the OAuth token lifecycle.
//
// Response types are based on
// https://developer.spotify.com/documentation/web-api/reference/
package services
