package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	searchPage        = 50
	maxAlbums         = 6
	lookupConcurrency = 5
)

// artistFilter builds a search query restricted to one artist.
func artistFilter(name string) string {
	return fmt.Sprintf("artist:%q", strings.ReplaceAll(name, `"`, ""))
}

// artistRef is a resolved artist or, when resolution failed, the requested name alone.
type artistRef struct {
	ID   string
	Name string
	Key  string
}

func (a artistRef) on(t models.Track) bool {
	return t.HasArtist(a.ID, a.Key)
}

func (a artistRef) primaryOn(t models.Track) bool {
	p := t.PrimaryArtist()
	return (a.ID != "" && p.ID == a.ID) || shared.NormalizeName(p.Name) == a.Key
}

func (e *Executor) resolveRef(ctx context.Context, name string, rc *models.RunContext) (artistRef, models.ArtistResolution) {
	artist, res := e.constrained(rc).Resolve(ctx, name, otherRequested(rc, name), rc.Market)
	if artist == nil {
		return artistRef{Name: name, Key: shared.NormalizeName(name)}, res
	}
	return artistRef{ID: artist.ID, Name: artist.Name, Key: shared.NormalizeName(artist.Name)}, res
}

// artistTracks implements get_artist_tracks.
func (e *Executor) artistTracks(ctx context.Context, call models.ToolCall, rc *models.RunContext) ([]models.Track, map[string]any, error) {
	name := call.String("artist", "")
	if name == "" {
		return nil, nil, fmt.Errorf("%w: artist", shared.ErrMissingArgument)
	}
	limit := call.Int("limit", 10)
	withCollabs := call.Bool("include_collaborations", true)
	onlyPopular := call.Bool("only_popular", false)

	ref, res := e.resolveRef(ctx, name, rc)
	meta := map[string]any{"resolution": res}

	keep := func(t models.Track) bool {
		if onlyPopular && t.Popularity < e.cfg.PopularThreshold {
			return false
		}
		if !withCollabs {
			return ref.primaryOn(t)
		}
		return ref.on(t)
	}

	acc := newAccumulator(rc, limit)
	if ref.ID == "" {
		meta["strategy"] = "keyword"
		tracks, err := e.keywordSearch(ctx, name, limit, rc.Market)
		if err != nil {
			return nil, meta, err
		}
		if acc.add(tracks, keep) == 0 && !onlyPopular {
			acc.add(tracks, nil)
		}
		return acc.tracks, meta, nil
	}

	sources := []string{"top_tracks"}
	top, topErr := e.catalog.ArtistTopTracks(ctx, ref.ID, rc.Market)
	if topErr != nil {
		e.logger.Warn("artist top tracks failed", "artist", ref.Name, "error", topErr)
	} else {
		acc.add(top, keep)
	}

	if !acc.full() {
		sources = append(sources, "search")
		result, err := e.catalog.Search(ctx, artistFilter(ref.Name), services.SearchTracks, searchPage, 0, rc.Market)
		if err != nil {
			e.logger.Debug("artist search failed", "artist", ref.Name, "error", err)
		} else {
			acc.add(result.Tracks, keep)
		}
	}

	if !acc.full() {
		sources = append(sources, "albums")
		acc.add(e.albumTracks(ctx, ref.ID), keep)
	}

	meta["sources"] = sources
	if len(acc.tracks) == 0 && topErr != nil {
		return nil, meta, topErr
	}
	return acc.tracks, meta, nil
}

// keywordSearch is the fallback for names the resolver could not place.
func (e *Executor) keywordSearch(ctx context.Context, query string, limit int, market string) ([]models.Track, error) {
	result, err := e.catalog.Search(ctx, query, services.SearchTracks, max(limit*2, 10), 0, market)
	if err != nil {
		return nil, err
	}
	return result.Tracks, nil
}

// albumTracks reads the artist's first albums concurrently and returns their tracks in album order.
func (e *Executor) albumTracks(ctx context.Context, artistID string) []models.Track {
	albums, err := e.catalog.ArtistAlbums(ctx, artistID)
	if err != nil {
		e.logger.Debug("album listing failed", "artist", artistID, "error", err)
		return nil
	}
	if len(albums) > maxAlbums {
		albums = albums[:maxAlbums]
	}

	pages := make([][]models.Track, len(albums))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, album := range albums {
		g.Go(func() error {
			tracks, err := e.catalog.AlbumTracks(gctx, album.ID)
			if err != nil {
				e.logger.Debug("album tracks failed", "album", album.ID, "error", err)
				return nil
			}
			tracks = append([]models.Track(nil), tracks...)
			for j := range tracks {
				if tracks[j].Album == nil || tracks[j].Album.Name == "" {
					a := album
					tracks[j].Album = &a
				}
			}
			pages[i] = tracks
			return nil
		})
	}
	_ = g.Wait()

	var out []models.Track
	for _, p := range pages {
		out = append(out, p...)
	}
	return out
}

// collaborations implements get_collaborations.
//
// Strategies run in order until the limit is met: a paired search per
// collaborator, the main artist's catalog, then each collaborator's catalog.
// Every strategy keeps only tracks crediting the main artist and at least one
// collaborator.
func (e *Executor) collaborations(ctx context.Context, call models.ToolCall, rc *models.RunContext) ([]models.Track, map[string]any, error) {
	mainName := call.String("main_artist", "")
	partners := call.Strings("must_collaborate_with")
	if mainName == "" {
		return nil, nil, fmt.Errorf("%w: main_artist", shared.ErrMissingArgument)
	}
	if len(partners) == 0 {
		return nil, nil, fmt.Errorf("%w: must_collaborate_with", shared.ErrMissingArgument)
	}
	limit := call.Int("limit", 10)

	lead, leadRes := e.resolveRef(ctx, mainName, rc)
	refs := make([]artistRef, 0, len(partners))
	resolutions := []models.ArtistResolution{leadRes}
	for _, p := range partners {
		ref, res := e.resolveRef(ctx, p, rc)
		if ref.Key == lead.Key || (ref.ID != "" && ref.ID == lead.ID) {
			continue
		}
		refs = append(refs, ref)
		resolutions = append(resolutions, res)
	}
	meta := map[string]any{"resolutions": resolutions}
	if len(refs) == 0 {
		return nil, meta, nil
	}

	together := func(t models.Track) bool {
		if !lead.on(t) {
			return false
		}
		for _, r := range refs {
			if r.on(t) {
				return true
			}
		}
		return false
	}

	acc := newAccumulator(rc, limit)
	var strategies []string

	strategies = append(strategies, "paired_search")
	for _, r := range refs {
		if acc.full() {
			break
		}
		query := artistFilter(lead.Name) + " " + artistFilter(r.Name)
		result, err := e.catalog.Search(ctx, query, services.SearchTracks, searchPage, 0, rc.Market)
		if err != nil {
			e.logger.Debug("paired search failed", "query", query, "error", err)
			continue
		}
		acc.add(result.Tracks, together)
	}

	if !acc.full() {
		strategies = append(strategies, "main_catalog")
		acc.add(e.catalogOf(ctx, lead, rc.Market), together)
	}

	if !acc.full() {
		strategies = append(strategies, "reverse_catalog")
		for _, r := range refs {
			if acc.full() {
				break
			}
			acc.add(e.catalogOf(ctx, r, rc.Market), together)
		}
	}

	meta["strategies"] = strategies
	return acc.tracks, meta, nil
}

// catalogOf returns an artist's top tracks followed by an artist-filtered search.
// Lookup failures are logged and yield fewer tracks.
func (e *Executor) catalogOf(ctx context.Context, a artistRef, market string) []models.Track {
	var out []models.Track
	if a.ID != "" {
		top, err := e.catalog.ArtistTopTracks(ctx, a.ID, market)
		if err != nil {
			e.logger.Debug("top tracks failed", "artist", a.Name, "error", err)
		}
		out = append(out, top...)
	}
	result, err := e.catalog.Search(ctx, artistFilter(a.Name), services.SearchTracks, searchPage, 0, market)
	if err != nil {
		e.logger.Debug("artist search failed", "artist", a.Name, "error", err)
		return out
	}
	return append(out, result.Tracks...)
}
