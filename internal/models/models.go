// package models defines the data model for the playlist generation engine
package models

import (
	"strings"
	"time"

	"github.com/desertthunder/mixtape/internal/shared"
)

// ArtistRef is a contributing artist on a [Track].
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AlbumRef points at the album a track belongs to.
type AlbumRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date,omitempty"`
}

// Track is a catalog recording. Tracks are value objects: tools produce them,
// later stages only filter and reorder them.
type Track struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Artists    []ArtistRef `json:"artists"`
	Album      *AlbumRef   `json:"album,omitempty"`
	URI        string      `json:"uri"`
	Popularity int         `json:"popularity"`
	DurationMS int         `json:"duration_ms"`
	PreviewURL *string     `json:"preview_url,omitempty"`
}

// PrimaryArtist returns the first listed artist, or a zero ref for an artistless track.
func (t Track) PrimaryArtist() ArtistRef {
	if len(t.Artists) == 0 {
		return ArtistRef{}
	}
	return t.Artists[0]
}

// PrimaryArtistKey is the normalized primary artist name, used for per-artist accounting.
func (t Track) PrimaryArtistKey() string {
	return shared.NormalizeName(t.PrimaryArtist().Name)
}

// ArtistNames lists the contributing artist names in credit order.
func (t Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}

// ArtistLine joins the artist names for display.
func (t Track) ArtistLine() string {
	return strings.Join(t.ArtistNames(), ", ")
}

// HasArtist reports whether any contributor matches id, or normalizedName when id is empty or unmatched.
func (t Track) HasArtist(id, normalizedName string) bool {
	for _, a := range t.Artists {
		if id != "" && a.ID == id {
			return true
		}
		if normalizedName != "" && shared.NormalizeName(a.Name) == normalizedName {
			return true
		}
	}
	return false
}

// CatalogArtist is artist metadata from the catalog.
type CatalogArtist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	Followers  int      `json:"followers"`
	Genres     []string `json:"genres,omitempty"`
}

// CatalogPlaylist is playlist metadata returned by a playlist search.
type CatalogPlaylist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Owner      string `json:"owner,omitempty"`
	TrackTotal int    `json:"track_total"`
}

// ResolutionMethod records which resolver tier produced an [ArtistResolution].
type ResolutionMethod string

const (
	MethodExact            ResolutionMethod = "exact"
	MethodExactContainment ResolutionMethod = "exact_containment"
	MethodFuzzy            ResolutionMethod = "fuzzy"
	MethodAlias            ResolutionMethod = "alias"
	MethodRejected         ResolutionMethod = "rejected"
	MethodNotFound         ResolutionMethod = "not_found"
	MethodError            ResolutionMethod = "error"
)

// Resolved reports whether the method names an accepted match.
func (m ResolutionMethod) Resolved() bool {
	switch m {
	case MethodExact, MethodExactContainment, MethodFuzzy, MethodAlias:
		return true
	}
	return false
}

// ArtistResolution is the outcome of resolving one requested artist name.
type ArtistResolution struct {
	Requested    string           `json:"requested"`
	ResolvedName string           `json:"resolved_name,omitempty"`
	ResolvedID   string           `json:"resolved_id,omitempty"`
	Method       ResolutionMethod `json:"method"`
	Confidence   float64          `json:"confidence"`
	Aliases      []string         `json:"aliases,omitempty"`
}

// ConsensusEntry is a track together with the distinct playlists it appeared in.
type ConsensusEntry struct {
	Track     Track               `json:"track"`
	Count     int                 `json:"occurrence_count"`
	Playlists map[string]struct{} `json:"-"`
}

// PlaylistNames returns the contributing playlist names.
func (e ConsensusEntry) PlaylistNames() []string {
	names := make([]string, 0, len(e.Playlists))
	for n := range e.Playlists {
		names = append(names, n)
	}
	return names
}

// RunSummary is the post-run analysis of a completed generation.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	TrackCount      int           `json:"track_count"`
	TargetTracks    int           `json:"target_tracks"`
	DistinctArtists int           `json:"distinct_artists"`
	AvgPopularity   float64       `json:"avg_popularity"`
	Fallback        bool          `json:"fallback"`
	Duration        time.Duration `json:"duration"`
	CompletedAt     time.Time     `json:"completed_at"`
}

// Summarize computes a [RunSummary] for tracks.
func Summarize(runID string, tracks []Track, target int, fallback bool, elapsed time.Duration) RunSummary {
	artists := make(map[string]struct{})
	total := 0
	for _, t := range tracks {
		artists[t.PrimaryArtistKey()] = struct{}{}
		total += t.Popularity
	}

	s := RunSummary{
		RunID:           runID,
		TrackCount:      len(tracks),
		TargetTracks:    target,
		DistinctArtists: len(artists),
		Fallback:        fallback,
		Duration:        elapsed,
		CompletedAt:     time.Now(),
	}
	if len(tracks) > 0 {
		s.AvgPopularity = float64(total) / float64(len(tracks))
	}
	return s
}
