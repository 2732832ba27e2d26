// Package consensus mines catalog playlists for tracks that several curators agree on.
//
// A [Collector] searches playlists for a query, reads a randomly offset window of
// each, and counts how many distinct playlists every track appears in. Tracks
// under the consensus threshold are dropped; the rest are ordered in three tiers
// (top 30%, middle 40%, bottom 30% by count), each shuffled on its own.
package consensus

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPlaylistLimit     = 10
	DefaultTracksPerPlaylist = 50
	maxTracksPerPlaylist     = 100
	fetchConcurrency         = 4
)

// Query describes one consensus collection.
// A MinConsensus of zero picks the default for the query text.
type Query struct {
	Text              string
	PlaylistLimit     int
	TracksPerPlaylist int
	MinConsensus      int
	Market            string
}

// Option configures a [Collector].
type Option func(*Collector)

// WithRand replaces the random source used for offsets and tier shuffles.
func WithRand(r *rand.Rand) Option {
	return func(c *Collector) { c.rng = r }
}

// WithLogger sets the collector logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// Collector implements consensus collection over a [services.Catalog].
type Collector struct {
	catalog    services.Catalog
	classifier EventClassifier
	logger     *log.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCollector creates a collector. A nil classifier treats no query as an event.
func NewCollector(catalog services.Catalog, classifier EventClassifier, opts ...Option) *Collector {
	if classifier == nil {
		classifier = NeverEvent{}
	}
	c := &Collector{
		catalog:    catalog,
		classifier: classifier,
		logger:     log.Default(),
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsEvent reports whether text reads as a festival or event request.
func (c *Collector) IsEvent(text string) bool {
	return c.classifier.IsEvent(text)
}

// DefaultMinConsensus is 2 for event-like text, where line-up claims need
// corroboration, and 1 otherwise.
func (c *Collector) DefaultMinConsensus(text string) int {
	if c.IsEvent(text) {
		return 2
	}
	return 1
}

// Collect returns the tracks that meet the consensus threshold, in tier order.
func (c *Collector) Collect(ctx context.Context, q Query) ([]models.Track, error) {
	entries, err := c.CollectEntries(ctx, q)
	if err != nil {
		return nil, err
	}
	tracks := make([]models.Track, len(entries))
	for i, e := range entries {
		tracks[i] = e.Track
	}
	return tracks, nil
}

type page struct {
	playlist models.CatalogPlaylist
	tracks   []models.Track
}

// CollectEntries is [Collector.Collect] with the occurrence counts attached.
//
// Only the playlist search can fail the call; a playlist whose tracks cannot be
// read is logged and skipped.
func (c *Collector) CollectEntries(ctx context.Context, q Query) ([]models.ConsensusEntry, error) {
	q = c.withDefaults(q)

	result, err := c.catalog.Search(ctx, q.Text, services.SearchPlaylists, q.PlaylistLimit, 0, q.Market)
	if err != nil {
		return nil, fmt.Errorf("%w: playlist search %q: %w", shared.ErrToolExecution, q.Text, err)
	}
	playlists := result.Playlists
	if len(playlists) == 0 {
		c.logger.Debug("no playlists found", "query", q.Text)
		return nil, nil
	}

	offsets := make([]int, len(playlists))
	for i, p := range playlists {
		offsets[i] = c.offset(p.TrackTotal, q.TracksPerPlaylist)
	}

	pages := make([]page, len(playlists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, p := range playlists {
		g.Go(func() error {
			tracks, _, err := c.catalog.PlaylistTracks(gctx, p.ID, q.TracksPerPlaylist, offsets[i])
			if err != nil {
				c.logger.Warn("playlist fetch failed", "playlist", p.ID, "error", err)
				return nil
			}
			pages[i] = page{playlist: p, tracks: tracks}
			return nil
		})
	}
	_ = g.Wait()

	entries := tally(pages)
	retained := entries[:0]
	for _, e := range entries {
		if e.Count >= q.MinConsensus {
			retained = append(retained, e)
		}
	}

	c.logger.Debug("consensus collected",
		"query", q.Text, "playlists", len(playlists), "candidates", len(entries),
		"retained", len(retained), "min_consensus", q.MinConsensus)

	return c.tiers(retained), nil
}

func (c *Collector) withDefaults(q Query) Query {
	if q.PlaylistLimit <= 0 {
		q.PlaylistLimit = DefaultPlaylistLimit
	}
	if q.TracksPerPlaylist <= 0 {
		q.TracksPerPlaylist = DefaultTracksPerPlaylist
	}
	q.TracksPerPlaylist = min(q.TracksPerPlaylist, maxTracksPerPlaylist)
	if q.MinConsensus <= 0 {
		q.MinConsensus = c.DefaultMinConsensus(q.Text)
	}
	return q
}

// offset picks a window start so successive runs read different slices of long playlists.
func (c *Collector) offset(total, window int) int {
	span := total - window
	if span <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.IntN(span + 1)
}

// tally counts distinct playlists per track ID, in first-seen order.
func tally(pages []page) []models.ConsensusEntry {
	var order []string
	entries := make(map[string]*models.ConsensusEntry)
	seen := make(map[string]map[string]struct{})

	for _, p := range pages {
		for _, t := range p.tracks {
			if t.ID == "" {
				continue
			}
			entry, ok := entries[t.ID]
			if !ok {
				entry = &models.ConsensusEntry{Track: t, Playlists: make(map[string]struct{})}
				entries[t.ID] = entry
				seen[t.ID] = make(map[string]struct{})
				order = append(order, t.ID)
			}
			if _, dup := seen[t.ID][p.playlist.ID]; dup {
				continue
			}
			seen[t.ID][p.playlist.ID] = struct{}{}
			entry.Playlists[p.playlist.Name] = struct{}{}
			entry.Count++
		}
	}

	out := make([]models.ConsensusEntry, len(order))
	for i, id := range order {
		out[i] = *entries[id]
	}
	return out
}

// tiers orders entries by count, splits them 30/40/30 and shuffles each tier.
func (c *Collector) tiers(entries []models.ConsensusEntry) []models.ConsensusEntry {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })

	n := len(entries)
	top := int(math.Round(float64(n) * 0.3))
	mid := int(math.Round(float64(n) * 0.4))
	bounds := [][2]int{{0, top}, {top, min(n, top+mid)}, {min(n, top+mid), n}}

	out := make([]models.ConsensusEntry, 0, n)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range bounds {
		tier := append([]models.ConsensusEntry(nil), entries[b[0]:b[1]]...)
		c.rng.Shuffle(len(tier), func(i, j int) { tier[i], tier[j] = tier[j], tier[i] })
		out = append(out, tier...)
	}
	return out
}
