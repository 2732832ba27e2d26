// Spotify Web API implementation of [Catalog] and [Publisher]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	maxPageSize       = 50
	maxAddTracksBatch = 100
	maxSeeds          = 5
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyTrack represents a Spotify track. Album is absent on album track listings.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      *SpotifyAlbum   `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Popularity int             `json:"popularity"`
	PreviewURL *string         `json:"preview_url"`
	URI        string          `json:"uri"`
	Type       string          `json:"type"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Genres     []string  `json:"genres"`
	Popularity int       `json:"popularity"`
	Followers  followers `json:"followers"`
	URI        string    `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
	TotalTracks int    `json:"total_tracks"`
	URI         string `json:"uri"`
}

// Owner is a playlist owner.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Owner  Owner               `json:"owner"`
	Public bool                `json:"public"`
	Tracks simplePlaylistTrack `json:"tracks"`
	URI    string              `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
// Track is nil for removed or local items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

type paging[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

// spotifySearchResponse mirrors GET /search. Playlist items can be null.
type spotifySearchResponse struct {
	Tracks    *paging[SpotifyTrack]           `json:"tracks"`
	Artists   *paging[SpotifyArtist]          `json:"artists"`
	Playlists *paging[*SpotifySimplePlaylist] `json:"playlists"`
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithBaseURL points the service at another API root, such as an httptest server.
func WithBaseURL(u string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithRateLimit limits outbound requests to rps requests per second.
func WithRateLimit(rps float64, burst int) SpotifyOption {
	return func(s *SpotifyService) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for every request.
func WithRetry(cfg shared.RetryConfig) SpotifyOption {
	return func(s *SpotifyService) { s.retry = cfg }
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) { s.logger = l }
}

// SpotifyService implements [Catalog] and [Publisher] against the Spotify Web API.
//
// Uses [oauth2] for authentication: client credentials for catalog reads, a
// user refresh token (or access token) when publishing.
type SpotifyService struct {
	config      *oauth2.Config
	token       *oauth2.Token
	httpClient  *http.Client
	credentials map[string]string
	baseURL     string
	limiter     *rate.Limiter
	retry       shared.RetryConfig
	logger      *log.Logger
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	s := &SpotifyService{
		config:      config,
		httpClient:  http.DefaultClient,
		credentials: credentials,
		baseURL:     spotifyBaseURL,
		retry:       shared.DefaultRetryConfig(),
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authenticate prepares the HTTP client.
//
// Accepts an "access_token", a "refresh_token" or an "auth_code" in credentials;
// with none of them it falls back to the client credentials grant, which is enough
// for catalog reads but not for publishing.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken := credentials["access_token"]; accessToken != "" {
		s.token = &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
		s.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(s.token))
		return nil
	}

	if refreshToken := credentials["refresh_token"]; refreshToken != "" {
		s.token = &oauth2.Token{RefreshToken: refreshToken}
		s.httpClient = oauth2.NewClient(ctx, s.config.TokenSource(ctx, s.token))
		return nil
	}

	if authCode := credentials["auth_code"]; authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
		}
		s.token = token
		s.httpClient = s.config.Client(ctx, s.token)
		return nil
	}

	cc := &clientcredentials.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		TokenURL:     s.config.Endpoint.TokenURL,
	}
	s.token = &oauth2.Token{}
	s.httpClient = cc.Client(ctx)
	return nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// OAuthConfig exposes the authorization code configuration for the login flow.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// doRequest performs an authenticated, rate limited and retried request to the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = data
	}

	apiURL := s.baseURL + endpoint
	err := shared.Retry(ctx, s.retry, func(ctx context.Context) error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			statusErr := &shared.HTTPStatusError{
				StatusCode: resp.StatusCode,
				Body:       string(data),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
			s.logger.Debug("spotify request failed", "method", method, "endpoint", endpoint, "status", resp.StatusCode)
			return statusErr
		}

		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: spotify %s %s: %w", shared.ErrAPIRequest, method, endpoint, err)
	}
	return nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return 20
	}
	if limit > max {
		return max
	}
	return limit
}

// Search runs GET /search for one object type.
func (s *SpotifyService) Search(ctx context.Context, query string, kind SearchType, limit, offset int, market string) (*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", string(kind))
	params.Set("limit", strconv.Itoa(clampLimit(limit, maxPageSize)))
	params.Set("offset", strconv.Itoa(max(offset, 0)))
	if market != "" {
		params.Set("market", market)
	}

	var response spotifySearchResponse
	if err := s.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	result := &SearchResult{}
	if response.Tracks != nil {
		result.Tracks = convertTracks(response.Tracks.Items, nil)
	}
	if response.Artists != nil {
		for _, a := range response.Artists.Items {
			result.Artists = append(result.Artists, convertArtist(a))
		}
	}
	if response.Playlists != nil {
		for _, p := range response.Playlists.Items {
			if p == nil || p.ID == "" {
				continue
			}
			result.Playlists = append(result.Playlists, models.CatalogPlaylist{
				ID:         p.ID,
				Name:       p.Name,
				Owner:      p.Owner.DisplayName,
				TrackTotal: p.Tracks.Total,
			})
		}
	}
	return result, nil
}

// Artist retrieves an artist by ID.
func (s *SpotifyService) Artist(ctx context.Context, id string) (*models.CatalogArtist, error) {
	var artist SpotifyArtist
	if err := s.doRequest(ctx, http.MethodGet, "/artists/"+url.PathEscape(id), nil, &artist); err != nil {
		return nil, err
	}
	converted := convertArtist(artist)
	return &converted, nil
}

// ArtistTopTracks retrieves an artist's top tracks in market.
func (s *SpotifyService) ArtistTopTracks(ctx context.Context, id, market string) ([]models.Track, error) {
	if market == "" {
		market = "US"
	}
	endpoint := fmt.Sprintf("/artists/%s/top-tracks?market=%s", url.PathEscape(id), url.QueryEscape(market))

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return convertTracks(response.Tracks, nil), nil
}

// ArtistAlbums lists an artist's albums and singles (first page).
func (s *SpotifyService) ArtistAlbums(ctx context.Context, id string) ([]models.AlbumRef, error) {
	endpoint := fmt.Sprintf("/artists/%s/albums?include_groups=album,single&limit=%d", url.PathEscape(id), maxPageSize)

	var response paging[SpotifyAlbum]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	albums := make([]models.AlbumRef, 0, len(response.Items))
	for _, a := range response.Items {
		albums = append(albums, models.AlbumRef{ID: a.ID, Name: a.Name, ReleaseDate: a.ReleaseDate})
	}
	return albums, nil
}

// AlbumTracks lists an album's tracks (first page).
func (s *SpotifyService) AlbumTracks(ctx context.Context, id string) ([]models.Track, error) {
	endpoint := fmt.Sprintf("/albums/%s/tracks?limit=%d", url.PathEscape(id), maxPageSize)

	var response paging[SpotifyTrack]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return convertTracks(response.Items, &models.AlbumRef{ID: id}), nil
}

// Recommendations retrieves tracks seeded by artists and genres. At most five seeds are sent.
func (s *SpotifyService) Recommendations(ctx context.Context, seedArtists, seedGenres []string, limit int, market string) ([]models.Track, error) {
	if len(seedArtists) == 0 && len(seedGenres) == 0 {
		return nil, fmt.Errorf("%w: recommendations need at least one seed", shared.ErrInvalidInput)
	}
	if len(seedArtists) > maxSeeds {
		seedArtists = seedArtists[:maxSeeds]
	}
	if room := maxSeeds - len(seedArtists); len(seedGenres) > room {
		seedGenres = seedGenres[:room]
	}

	params := url.Values{}
	if len(seedArtists) > 0 {
		params.Set("seed_artists", strings.Join(seedArtists, ","))
	}
	if len(seedGenres) > 0 {
		params.Set("seed_genres", strings.Join(seedGenres, ","))
	}
	params.Set("limit", strconv.Itoa(clampLimit(limit, 100)))
	if market != "" {
		params.Set("market", market)
	}

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/recommendations?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}
	return convertTracks(response.Tracks, nil), nil
}

// PlaylistTracks retrieves one page of a playlist's tracks and its total size.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]models.Track, int, error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d",
		url.PathEscape(playlistID), clampLimit(limit, 100), max(offset, 0))

	var response paging[SpotifyPlaylistTrack]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, 0, err
	}

	items := make([]SpotifyTrack, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Track == nil || (item.Track.Type != "" && item.Track.Type != "track") {
			continue
		}
		items = append(items, *item.Track)
	}
	return convertTracks(items, nil), response.Total, nil
}

// CreatePlaylist creates a playlist for the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	body := map[string]any{"name": name, "description": description, "public": public}

	var created struct {
		ID string `json:"id"`
	}
	if err := s.doRequest(ctx, http.MethodPost, "/me/playlists", body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: playlist created without an id", shared.ErrAPIRequest)
	}
	return created.ID, nil
}

// AddTracks adds URIs to a playlist in batches of 100.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	for start := 0; start < len(uris); start += maxAddTracksBatch {
		end := min(start+maxAddTracksBatch, len(uris))
		body := map[string]any{"uris": uris[start:end]}
		if err := s.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
			return fmt.Errorf("failed to add tracks %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func convertArtist(a SpotifyArtist) models.CatalogArtist {
	return models.CatalogArtist{
		ID:         a.ID,
		Name:       a.Name,
		Popularity: a.Popularity,
		Followers:  a.Followers.Total,
		Genres:     a.Genres,
	}
}

// convertTracks maps API tracks to [models.Track], using album when the payload carries none.
func convertTracks(items []SpotifyTrack, album *models.AlbumRef) []models.Track {
	tracks := make([]models.Track, 0, len(items))
	for _, st := range items {
		if st.ID == "" {
			continue
		}
		t := models.Track{
			ID:         st.ID,
			Name:       st.Name,
			URI:        st.URI,
			Popularity: st.Popularity,
			DurationMS: st.DurationMS,
			PreviewURL: st.PreviewURL,
		}
		for _, a := range st.Artists {
			t.Artists = append(t.Artists, models.ArtistRef{ID: a.ID, Name: a.Name})
		}
		switch {
		case st.Album != nil:
			t.Album = &models.AlbumRef{ID: st.Album.ID, Name: st.Album.Name, ReleaseDate: st.Album.ReleaseDate}
		case album != nil:
			ref := *album
			t.Album = &ref
		}
		if t.URI == "" {
			t.URI = "spotify:track:" + st.ID
		}
		tracks = append(tracks, t)
	}
	return tracks
}
