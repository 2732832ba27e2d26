// package services defines the catalog and publisher boundaries and their Spotify implementation
package services

import (
	"context"

	"github.com/desertthunder/mixtape/internal/models"
)

// SearchType selects which kind of catalog object a search returns.
type SearchType string

const (
	SearchTracks    SearchType = "track"
	SearchArtists   SearchType = "artist"
	SearchPlaylists SearchType = "playlist"
)

// SearchResult holds the items of a single search page. Only the slice matching
// the requested [SearchType] is populated.
type SearchResult struct {
	Tracks    []models.Track
	Artists   []models.CatalogArtist
	Playlists []models.CatalogPlaylist
}

// Catalog is the read-only music catalog the engine retrieves tracks from.
type Catalog interface {
	// Search runs a catalog query for one object type.
	Search(ctx context.Context, query string, kind SearchType, limit, offset int, market string) (*SearchResult, error)

	// Artist retrieves artist metadata by ID.
	Artist(ctx context.Context, id string) (*models.CatalogArtist, error)

	// ArtistTopTracks returns the artist's most popular tracks in market.
	ArtistTopTracks(ctx context.Context, id, market string) ([]models.Track, error)

	// ArtistAlbums lists the artist's albums and singles.
	ArtistAlbums(ctx context.Context, id string) ([]models.AlbumRef, error)

	// AlbumTracks lists the tracks of an album.
	AlbumTracks(ctx context.Context, id string) ([]models.Track, error)

	// Recommendations returns tracks similar to the seeds.
	Recommendations(ctx context.Context, seedArtists, seedGenres []string, limit int, market string) ([]models.Track, error)

	// PlaylistTracks returns one page of a playlist and the playlist's total track count.
	PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]models.Track, int, error)
}

// Publisher creates playlists from a generated track list.
type Publisher interface {
	// CreatePlaylist creates an empty playlist for the authenticated user and returns its ID.
	CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error)

	// AddTracks appends track URIs to a playlist.
	AddTracks(ctx context.Context, playlistID string, uris []string) error
}
