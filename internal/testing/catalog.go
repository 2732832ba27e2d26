package testing

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
)

// MockPlaylist is a playlist served by [MockCatalog].
type MockPlaylist struct {
	Playlist models.CatalogPlaylist
	Tracks   []models.Track
}

// MockCatalog is an in-memory [services.Catalog].
//
// Track search understands artist:"..." and track:"..." filters plus free-text
// keywords; artist search matches on shared name tokens, most popular first.
// Top tracks are the artist's tracks (as primary artist) by popularity, at most ten.
type MockCatalog struct {
	mu sync.Mutex

	Artists         []models.CatalogArtist
	Tracks          []models.Track
	Albums          map[string][]models.AlbumRef // artist ID → albums
	AlbumTrackList  map[string][]models.Track    // album ID → tracks
	Playlists       []MockPlaylist
	Recommended     map[string][]models.Track // seed artist ID → tracks
	Err             error                     // returned by every method when set
	FailOn          map[string]error          // method name → error
	calls           map[string]int
	playlistOffsets []int
}

var filterPattern = regexp.MustCompile(`(\w+):"([^"]*)"|(\w+):(\S+)`)

// Calls returns how often method was invoked.
func (m *MockCatalog) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// PlaylistOffsets returns the offsets passed to PlaylistTracks, in call order.
func (m *MockCatalog) PlaylistOffsets() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.playlistOffsets...)
}

func (m *MockCatalog) record(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	if m.Err != nil {
		return m.Err
	}
	if err, ok := m.FailOn[method]; ok {
		return err
	}
	return nil
}

func (m *MockCatalog) Search(ctx context.Context, query string, kind services.SearchType, limit, offset int, market string) (*services.SearchResult, error) {
	if err := m.record("Search"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	result := &services.SearchResult{}
	switch kind {
	case services.SearchTracks:
		var matched []models.Track
		for _, t := range m.Tracks {
			if matchTrackQuery(t, query) {
				matched = append(matched, t)
			}
		}
		result.Tracks = page(matched, limit, offset)
	case services.SearchArtists:
		q := shared.NormalizeName(query)
		qTokens := strings.Fields(q)
		var matched []models.CatalogArtist
		for _, a := range m.Artists {
			name := shared.NormalizeName(a.Name)
			if strings.Contains(name, q) || strings.Contains(q, name) || sharesPrefix(qTokens, strings.Fields(name), 3) {
				matched = append(matched, a)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Popularity > matched[j].Popularity })
		result.Artists = page(matched, limit, offset)
	case services.SearchPlaylists:
		qTokens := strings.Fields(shared.NormalizeName(query))
		var matched []models.CatalogPlaylist
		for _, p := range m.Playlists {
			if sharesToken(qTokens, strings.Fields(shared.NormalizeName(p.Playlist.Name))) {
				pl := p.Playlist
				pl.TrackTotal = len(p.Tracks)
				matched = append(matched, pl)
			}
		}
		result.Playlists = page(matched, limit, offset)
	}
	return result, nil
}

func (m *MockCatalog) Artist(ctx context.Context, id string) (*models.CatalogArtist, error) {
	if err := m.record("Artist"); err != nil {
		return nil, err
	}
	for _, a := range m.Artists {
		if a.ID == id {
			artist := a
			return &artist, nil
		}
	}
	return nil, &shared.HTTPStatusError{StatusCode: 404}
}

func (m *MockCatalog) ArtistTopTracks(ctx context.Context, id, market string) ([]models.Track, error) {
	if err := m.record("ArtistTopTracks"); err != nil {
		return nil, err
	}
	var out []models.Track
	for _, t := range m.Tracks {
		if t.PrimaryArtist().ID == id {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Popularity > out[j].Popularity })
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

func (m *MockCatalog) ArtistAlbums(ctx context.Context, id string) ([]models.AlbumRef, error) {
	if err := m.record("ArtistAlbums"); err != nil {
		return nil, err
	}
	return m.Albums[id], nil
}

func (m *MockCatalog) AlbumTracks(ctx context.Context, id string) ([]models.Track, error) {
	if err := m.record("AlbumTracks"); err != nil {
		return nil, err
	}
	return m.AlbumTrackList[id], nil
}

func (m *MockCatalog) Recommendations(ctx context.Context, seedArtists, seedGenres []string, limit int, market string) ([]models.Track, error) {
	if err := m.record("Recommendations"); err != nil {
		return nil, err
	}
	var out []models.Track
	seen := make(map[string]struct{})
	for _, seed := range seedArtists {
		for _, t := range m.Recommended[seed] {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockCatalog) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]models.Track, int, error) {
	if err := m.record("PlaylistTracks"); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	m.playlistOffsets = append(m.playlistOffsets, offset)
	m.mu.Unlock()

	for _, p := range m.Playlists {
		if p.Playlist.ID == playlistID {
			return page(p.Tracks, limit, offset), len(p.Tracks), nil
		}
	}
	return nil, 0, &shared.HTTPStatusError{StatusCode: 404}
}

func matchTrackQuery(t models.Track, query string) bool {
	names := shared.NormalizeName(strings.Join(t.ArtistNames(), " "))
	title := shared.NormalizeName(t.Name)

	for _, m := range filterPattern.FindAllStringSubmatch(query, -1) {
		field, value := m[1], m[2]
		if field == "" {
			field, value = m[3], m[4]
		}
		value = shared.NormalizeName(value)
		switch strings.ToLower(field) {
		case "artist":
			if !t.HasArtist("", value) && !strings.Contains(names, value) {
				return false
			}
		case "track":
			if !strings.Contains(title, value) {
				return false
			}
		}
	}

	free := strings.Fields(shared.NormalizeName(filterPattern.ReplaceAllString(query, " ")))
	haystack := title + " " + names
	for _, tok := range free {
		if !strings.Contains(haystack, tok) {
			return false
		}
	}
	return true
}

func sharesToken(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func sharesPrefix(a, b []string, n int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y || (len(x) >= n && len(y) >= n && x[:n] == y[:n]) {
				return true
			}
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]T(nil), items[offset:end]...)
}

// Track builds a test track whose artist IDs are derived from the names.
func Track(id, name string, artists ...string) models.Track {
	t := models.Track{ID: id, Name: name, URI: "spotify:track:" + id, Popularity: 50, DurationMS: 180000}
	for _, a := range artists {
		t.Artists = append(t.Artists, models.ArtistRef{ID: ArtistID(a), Name: a})
	}
	return t
}

// ArtistID is the ID [Track] assigns to an artist name.
func ArtistID(name string) string {
	return "artist-" + strings.ReplaceAll(shared.NormalizeName(name), " ", "-")
}

// Artist builds a catalog artist with the ID [Track] would assign.
func Artist(name string, popularity, followers int) models.CatalogArtist {
	return models.CatalogArtist{ID: ArtistID(name), Name: name, Popularity: popularity, Followers: followers}
}
