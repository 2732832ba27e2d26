// Package services defines the [Catalog] and [Publisher] boundaries the generation engine talks to and implements both for Spotify.
//
// # Catalog Interface
//
// The engine only reads from the catalog: search, artist lookups, top tracks, album
// listings, recommendations and playlist pages. Every tool and the consensus collector
// depend on [Catalog], so tests substitute an in-memory stub.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication:
//   - access_token: a static bearer token
//   - refresh_token: an [oauth2.Config] token source that refreshes on expiry
//   - auth_code: exchanged once for a token
//   - none of the above: the client credentials grant, enough for catalog reads
//
// All requests go through one helper that waits on a [rate.Limiter], retries 429
// and 5xx responses with [shared.Retry], and honours Retry-After.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrMissingCredentials] : client ID or secret missing
//   - [shared.ErrAPIRequest] : HTTP request failed; wraps [shared.HTTPStatusError] for non-2xx responses
package services
