package tools

import (
	"context"
	"fmt"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	maxNeighbors       = 15
	maxSecondLevelFrom = 5
	maxRecommendSeeds  = 5
)

// neighborhood is an ordered, de-duplicated set of artists around the seeds.
type neighborhood struct {
	rc      *models.RunContext
	exclude map[string]struct{}
	seen    map[string]struct{}
	artists []artistRef
	levels  map[string]int
}

func newNeighborhood(rc *models.RunContext, seeds []artistRef) *neighborhood {
	n := &neighborhood{
		rc:      rc,
		exclude: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
		levels:  make(map[string]int),
	}
	for _, s := range seeds {
		n.exclude[s.Key] = struct{}{}
		if s.ID != "" {
			n.exclude[s.ID] = struct{}{}
		}
	}
	return n
}

func (n *neighborhood) isSeed(ref models.ArtistRef) bool {
	if _, ok := n.exclude[ref.ID]; ok && ref.ID != "" {
		return true
	}
	_, ok := n.exclude[shared.NormalizeName(ref.Name)]
	return ok
}

func (n *neighborhood) add(level int, refs ...models.ArtistRef) {
	for _, ref := range refs {
		if len(n.artists) >= maxNeighbors {
			return
		}
		key := shared.NormalizeName(ref.Name)
		if ref.ID == "" || key == "" || n.isSeed(ref) || n.rc.IsBanned(ref.Name) {
			continue
		}
		if _, dup := n.seen[ref.ID]; dup {
			continue
		}
		n.seen[ref.ID] = struct{}{}
		n.levels[ref.ID] = level
		n.artists = append(n.artists, artistRef{ID: ref.ID, Name: ref.Name, Key: key})
	}
}

// similarStyle implements get_similar_style.
//
// The neighborhood is built from the seeds' direct collaborators, catalog
// recommendations seeded by the resolved seeds, then collaborators of the first
// collaborators. Seeds are left out unless include_seed_artists is set; banned
// artists are left out at every level.
func (e *Executor) similarStyle(ctx context.Context, call models.ToolCall, rc *models.RunContext) ([]models.Track, map[string]any, error) {
	names := call.Strings("seed_artists")
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("%w: seed_artists", shared.ErrMissingArgument)
	}
	limit := call.Int("limit", 20)
	includeSeeds := call.Bool("include_seed_artists", false)
	modifier := call.String("style_modifier", "")

	var seeds []artistRef
	var seedIDs []string
	resolutions := make([]models.ArtistResolution, 0, len(names))
	for _, r := range e.constrained(rc).ResolveWithDeduplication(ctx, names, rc.Market) {
		resolutions = append(resolutions, r.Resolution)
		if r.Artist == nil {
			seeds = append(seeds, artistRef{Name: r.Resolution.Requested, Key: shared.NormalizeName(r.Resolution.Requested)})
			continue
		}
		seeds = append(seeds, artistRef{ID: r.Artist.ID, Name: r.Artist.Name, Key: shared.NormalizeName(r.Artist.Name)})
		seedIDs = append(seedIDs, r.Artist.ID)
		for _, alias := range r.Resolution.Aliases {
			seeds = append(seeds, artistRef{Name: alias, Key: shared.NormalizeName(alias)})
		}
	}
	meta := map[string]any{"resolutions": resolutions}

	hood := newNeighborhood(rc, seeds)
	seedTracks := e.tracksOf(ctx, seeds, rc.Market)
	for _, tracks := range seedTracks {
		for _, t := range tracks {
			hood.add(1, t.Artists...)
		}
	}

	var recommended []models.Track
	if len(seedIDs) > 0 {
		recs, err := e.catalog.Recommendations(ctx, seedIDs[:min(len(seedIDs), maxRecommendSeeds)], nil, max(limit*2, 20), rc.Market)
		if err != nil {
			e.logger.Debug("recommendations failed", "error", err)
		}
		for _, t := range recs {
			hood.add(0, t.Artists...)
		}
		recommended = recs
	}

	firstLevel := hood.artists[:min(len(hood.artists), maxSecondLevelFrom)]
	for _, tracks := range e.tracksOf(ctx, firstLevel, rc.Market) {
		for _, t := range tracks {
			hood.add(2, t.Artists...)
		}
	}

	keep := func(t models.Track) bool {
		if includeSeeds {
			return true
		}
		for _, a := range t.Artists {
			if hood.isSeed(a) {
				return false
			}
		}
		return true
	}

	acc := newAccumulator(rc, limit)
	if includeSeeds {
		seedQuota := newAccumulator(rc, max(1, limit/3))
		seedQuota.add(interleave(seedTracks), nil)
		acc.add(seedQuota.tracks, nil)
	}

	if modifier != "" {
		inHood := func(t models.Track) bool {
			_, ok := hood.seen[t.PrimaryArtist().ID]
			return ok && keep(t)
		}
		for _, s := range seeds {
			result, err := e.catalog.Search(ctx, modifier+" "+s.Name, services.SearchTracks, searchPage, 0, rc.Market)
			if err != nil {
				continue
			}
			acc.add(result.Tracks, inHood)
		}
	}

	acc.add(recommended, keep)
	if !acc.full() {
		acc.add(interleave(e.tracksOf(ctx, hood.artists, rc.Market)), keep)
	}

	levels := map[int]int{}
	for _, lvl := range hood.levels {
		levels[lvl]++
	}
	meta["neighbors"] = len(hood.artists)
	meta["levels"] = levels
	return acc.tracks, meta, nil
}

// tracksOf fetches top tracks for each resolved artist concurrently, keeping input order.
func (e *Executor) tracksOf(ctx context.Context, artists []artistRef, market string) [][]models.Track {
	out := make([][]models.Track, len(artists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, a := range artists {
		if a.ID == "" {
			continue
		}
		g.Go(func() error {
			tracks, err := e.catalog.ArtistTopTracks(gctx, a.ID, market)
			if err != nil {
				e.logger.Debug("top tracks failed", "artist", a.Name, "error", err)
				return nil
			}
			out[i] = tracks
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// interleave takes one track from each list per round.
func interleave(lists [][]models.Track) []models.Track {
	var out []models.Track
	for round := 0; ; round++ {
		took := false
		for _, l := range lists {
			if round < len(l) {
				out = append(out, l[round])
				took = true
			}
		}
		if !took {
			return out
		}
	}
}
