// Package server exposes the generation engine over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first).
// [Logging], [Recover] and [RateLimit] are provided.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # API
//
// [API] registers the JSON endpoints. POST /api/generate accepts a
// [tasks.Request] and returns a [tasks.Result]; with ?stream=1 it emits
// progress, result and error server-sent events instead. Failures carry the
// run ID and any partial tracks.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the authorization code callback used by the auth
// command to obtain a Spotify refresh token for publishing. It validates the
// state parameter, exchanges the code and hands the token to [OAuthHandler.Wait].
// It only processes one callback.
package server
