// Package resolver maps free-text artist names onto catalog artists.
//
// Resolution runs three tiers in order, each only when the previous found nothing:
//
//  1. exact: normalized names are equal, or one contains the other (shorter side at least 4 characters)
//  2. alias: an optional curated table maps a spelling onto a canonical name
//  3. fuzzy: edit distance with containment and token-overlap boosts, accepted at 0.7 or above
//
// Results go through an injected [cache.Cache]; a cached entry is only reused when
// it passes [cache.Valid] for the banned set of the caller's view (see [Resolver.Constrained]).
package resolver

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/cache"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	searchLimit      = 20
	batchConcurrency = 5
)

// AliasTable maps a normalized spelling to the canonical artist name to search for.
type AliasTable interface {
	Lookup(normalized string) (string, bool)
}

// MapAliases is an [AliasTable] over a plain map keyed by normalized spelling.
type MapAliases map[string]string

func (m MapAliases) Lookup(normalized string) (string, bool) {
	canonical, ok := m[normalized]
	return canonical, ok && canonical != ""
}

// NewMapAliases normalizes the spellings in raw, as read from config.
func NewMapAliases(raw map[string]string) MapAliases {
	m := make(MapAliases, len(raw))
	for spelling, canonical := range raw {
		if k := shared.NormalizeName(spelling); k != "" {
			m[k] = canonical
		}
	}
	return m
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithCache injects a resolution cache.
func WithCache(c cache.Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithAliases installs an alias table.
func WithAliases(a AliasTable) Option {
	return func(r *Resolver) { r.aliases = a }
}

// WithLogger sets the resolver logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// Resolver resolves artist names against a [services.Catalog].
type Resolver struct {
	catalog services.Catalog
	cache   cache.Cache
	aliases AliasTable
	banned  map[string]struct{}
	logger  *log.Logger
}

// Resolved pairs a resolution with the catalog artist it chose, if any.
type Resolved struct {
	Artist     *models.CatalogArtist
	Resolution models.ArtistResolution
}

// New creates a resolver.
func New(catalog services.Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		catalog: catalog,
		cache:   cache.Noop{},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Constrained returns a view of r whose cache reads are validated against banned,
// a set of normalized names. The view shares the catalog and cache.
func (r *Resolver) Constrained(banned map[string]struct{}) *Resolver {
	view := *r
	view.banned = banned
	return &view
}

// Resolve maps name to a catalog artist. otherPriority lists the other names
// requested in the same run; fuzzy and containment matches that land on one of
// them are rejected so two requests never collapse into one artist.
func (r *Resolver) Resolve(ctx context.Context, name string, otherPriority []string, market string) (*models.CatalogArtist, models.ArtistResolution) {
	res := models.ArtistResolution{Requested: name}
	query := shared.NormalizeName(name)
	if query == "" {
		res.Method = models.MethodNotFound
		return nil, res
	}

	others := otherNames(query, otherPriority)
	key := cache.Key(name, market)
	if entry, ok := r.cache.Get(key); ok {
		if cache.Valid(entry, r.banned) && !collides(shared.NormalizeName(entry.Artist.Name), query, others) {
			artist := entry.Artist
			cached := entry.Resolution
			cached.Requested = name
			r.logger.Debug("resolution cache hit", "artist", name, "id", artist.ID)
			return &artist, cached
		}
	}

	result, err := r.catalog.Search(ctx, name, services.SearchArtists, searchLimit, 0, market)
	if err != nil {
		r.logger.Warn("artist search failed", "artist", name, "error", err)
		res.Method = models.MethodError
		return nil, res
	}
	candidates := result.Artists
	if len(candidates) == 0 {
		res.Method = models.MethodNotFound
		return nil, res
	}

	artist, method, confidence := r.exactTier(query, candidates, others)
	if artist == nil {
		artist, method, confidence = r.aliasTier(ctx, query, market)
	}
	if artist == nil {
		artist, method, confidence = fuzzyTier(query, candidates, others)
	}
	if artist == nil {
		res.Method = models.MethodRejected
		r.logger.Debug("artist rejected", "artist", name, "candidates", len(candidates))
		return nil, res
	}

	res.ResolvedID = artist.ID
	res.ResolvedName = artist.Name
	res.Method = method
	res.Confidence = confidence
	r.cache.Set(key, cache.Entry{Artist: *artist, Resolution: res})
	return artist, res
}

// exactTier prefers equal names over containment; ties go to the more popular artist.
func (r *Resolver) exactTier(query string, candidates []models.CatalogArtist, others map[string]struct{}) (*models.CatalogArtist, models.ResolutionMethod, float64) {
	var equal, contained []models.CatalogArtist
	for _, c := range candidates {
		name := shared.NormalizeName(c.Name)
		switch {
		case name == query:
			equal = append(equal, c)
		case containmentMatch(query, name) && !collides(name, query, others):
			contained = append(contained, c)
		}
	}

	if best := mostPopular(equal); best != nil {
		return best, models.MethodExact, 1.0
	}
	if best := mostPopular(contained); best != nil {
		return best, models.MethodExactContainment, 0.9
	}
	return nil, "", 0
}

func (r *Resolver) aliasTier(ctx context.Context, query, market string) (*models.CatalogArtist, models.ResolutionMethod, float64) {
	if r.aliases == nil {
		return nil, "", 0
	}
	canonical, ok := r.aliases.Lookup(query)
	if !ok {
		return nil, "", 0
	}

	result, err := r.catalog.Search(ctx, canonical, services.SearchArtists, searchLimit, 0, market)
	if err != nil {
		r.logger.Warn("alias search failed", "alias", canonical, "error", err)
		return nil, "", 0
	}
	target := shared.NormalizeName(canonical)
	var matches []models.CatalogArtist
	for _, c := range result.Artists {
		if shared.NormalizeName(c.Name) == target {
			matches = append(matches, c)
		}
	}
	if best := mostPopular(matches); best != nil {
		return best, models.MethodAlias, 0.95
	}
	return nil, "", 0
}

func fuzzyTier(query string, candidates []models.CatalogArtist, others map[string]struct{}) (*models.CatalogArtist, models.ResolutionMethod, float64) {
	type scored struct {
		artist models.CatalogArtist
		score  float64
	}

	var accepted []scored
	for _, c := range candidates {
		name := shared.NormalizeName(c.Name)
		if collides(name, query, others) {
			continue
		}
		if s := Similarity(query, name); s >= fuzzyThreshold {
			accepted = append(accepted, scored{artist: c, score: s})
		}
	}
	if len(accepted) == 0 {
		return nil, "", 0
	}

	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].score > accepted[j].score })
	top, best := accepted[0].score, accepted[0]
	for _, s := range accepted[1:] {
		if top-s.score > nearTie {
			break
		}
		if PopularityScore(s.artist) > PopularityScore(best.artist) {
			best = s
		}
	}

	artist := best.artist
	return &artist, models.MethodFuzzy, min(best.score, 0.99)
}

// ResolveWithDeduplication resolves names concurrently and merges names that
// landed on the same artist ID into one result whose Aliases lists the extra spellings.
// Output order follows the first occurrence of each artist.
func (r *Resolver) ResolveWithDeduplication(ctx context.Context, names []string, market string) []Resolved {
	results := make([]Resolved, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, name := range names {
		others := make([]string, 0, len(names)-1)
		others = append(others, names[:i]...)
		others = append(others, names[i+1:]...)

		g.Go(func() error {
			artist, res := r.Resolve(gctx, name, others, market)
			results[i] = Resolved{Artist: artist, Resolution: res}
			return nil
		})
	}
	_ = g.Wait()

	var out []Resolved
	byID := make(map[string]int)
	for _, res := range results {
		id := res.Resolution.ResolvedID
		if id == "" {
			out = append(out, res)
			continue
		}
		if idx, ok := byID[id]; ok {
			out[idx].Resolution.Aliases = append(out[idx].Resolution.Aliases, res.Resolution.Requested)
			continue
		}
		byID[id] = len(out)
		out = append(out, res)
	}
	return out
}

func mostPopular(artists []models.CatalogArtist) *models.CatalogArtist {
	if len(artists) == 0 {
		return nil
	}
	best := artists[0]
	for _, a := range artists[1:] {
		if PopularityScore(a) > PopularityScore(best) {
			best = a
		}
	}
	return &best
}

// otherNames normalizes the other requested names, dropping the query itself.
func otherNames(query string, names []string) map[string]struct{} {
	set := shared.NameSet(names...)
	delete(set, query)
	return set
}

// collides reports whether candidate belongs to another requested name: it is
// that name, or it is more similar to it than to the query.
func collides(candidate, query string, others map[string]struct{}) bool {
	if candidate == query {
		return false
	}
	for other := range others {
		if candidate == other || Similarity(candidate, other) > Similarity(candidate, query) {
			return true
		}
	}
	return false
}
