package tasks

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tools"
)

const maxRecommendationSeeds = 5

// fill walks the fallback tiers after plan execution:
// gap check, emergency similarity, round fill, domain fallback and
// generative fallback. Each tier runs only while the run is short.
func (e *Engine) fill(ctx context.Context, r *run) {
	if r.rc.Gap() == 0 || ctx.Err() != nil {
		return
	}

	e.enterTier(r, GapCheck)
	if r.rc.Len() < r.rc.Target/e.cfg.EmergencyDivisor && len(r.rc.Banned()) > 0 {
		e.emergencyFill(ctx, r)
	}

	timedOut := false
	if r.rc.Gap() > 0 && ctx.Err() == nil {
		timedOut = e.roundFill(ctx, r)
	}

	if r.rc.Gap() > 0 && r.event && !timedOut && ctx.Err() == nil {
		e.domainFallback(ctx, r)
	}

	if r.rc.Gap() > 0 && !r.event && ctx.Err() == nil {
		e.generativeFallback(ctx, r)
	}
}

// emergencyFill seeds one similarity search with the banned artists, which
// covers requests shaped like "artists like X but not X".
func (e *Engine) emergencyFill(ctx context.Context, r *run) {
	e.enterTier(r, EmergencyFill)
	call := models.NewToolCall(models.ToolSimilarStyle, "emergency fill from excluded artists", map[string]any{
		"seed_artists": r.rc.Banned(),
		"limit":        r.rc.Gap(),
	})
	e.tierStep(ctx, r, call)
}

// roundFill fetches a batch of tracks per fill artist and takes one track per
// artist per round. It reports whether the soft timeout expired.
func (e *Engine) roundFill(ctx context.Context, r *run) bool {
	e.enterTier(r, RoundFill)

	fctx := ctx
	if r.rc.Gap() <= e.cfg.SmallGap {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, e.cfg.RoundFillTimeout())
		defer cancel()
	}

	batches := e.fillBatches(fctx, r)
	if expired(fctx, ctx) {
		r.logger.Warn("round fill timed out", "have", r.rc.Len(), "target", r.rc.Target)
		return true
	}

	before := r.rc.Len()
	for round := 0; round < e.cfg.MaxFillRounds && r.rc.Gap() > 0; round++ {
		added := 0
		for _, batch := range batches {
			if round >= len(batch) || r.rc.Gap() == 0 {
				continue
			}
			if t := batch[round]; r.rc.Accepts(t) {
				added += r.rc.Append(t)
			}
		}
		if added == 0 {
			break
		}
	}
	r.summary.Steps = append(r.summary.Steps, StepSummary{
		Tool: models.ToolArtistTracks, Reason: "round fill", Accepted: r.rc.Len() - before,
	})
	return expired(fctx, ctx)
}

// expired reports whether fctx hit its own deadline while parent is still live.
func expired(fctx, parent context.Context) bool {
	return parent.Err() == nil && errors.Is(fctx.Err(), context.DeadlineExceeded)
}

// fillBatches returns one post-filtered batch of tracks per fill artist, in
// fill-strategy rank order.
func (e *Engine) fillBatches(ctx context.Context, r *run) [][]models.Track {
	strategy := r.plan.FillStrategy
	if strategy == "" {
		strategy = models.FillSimilarArtists
		if len(r.rc.Requested) == 0 {
			strategy = models.FillAnyFromGenre
		}
	}

	if strategy == models.FillRecommendations {
		if batches := e.recommendationBatches(ctx, r); len(batches) > 0 {
			return batches
		}
		strategy = models.FillAnyFromGenre
	}

	artists := e.fillArtists(ctx, r, strategy)
	r.logger.Debug("fill artists", "strategy", strategy, "artists", artists)

	var batches [][]models.Track
	for _, name := range artists {
		if ctx.Err() != nil {
			break
		}
		call := models.NewToolCall(models.ToolArtistTracks, "round fill", map[string]any{
			"artist": name,
			"limit":  e.cfg.FillBatchSize,
		})
		res := e.executor.Run(ctx, call, r.rc)
		if res.Err != nil || len(res.Tracks) == 0 {
			continue
		}
		batches = append(batches, res.Tracks)
	}
	return batches
}

// fillArtists ranks candidate artists for strategy. Banned artists never appear.
func (e *Engine) fillArtists(ctx context.Context, r *run, strategy models.FillStrategy) []string {
	picked := newNamePicker(r.rc, e.cfg.MaxFillArtists)

	switch strategy {
	case models.FillOnlyRequested:
		picked.add(r.rc.Requested...)
	case models.FillSimilarArtists:
		picked.add(r.rc.Requested...)
		seeds := r.rc.Requested
		if len(seeds) == 0 {
			seeds = listArtists(r.rc)
		}
		picked.add(e.neighbors(ctx, r, seeds)...)
	case models.FillAnyFromGenre:
		present := listArtists(r.rc)
		picked.add(present...)
		seeds := present
		if len(seeds) == 0 {
			seeds = r.rc.Priority()
		}
		picked.add(e.neighbors(ctx, r, seeds)...)
	}
	return picked.names
}

// neighbors runs a similarity search without applying it and returns the
// primary artists it surfaced.
func (e *Engine) neighbors(ctx context.Context, r *run, seeds []string) []string {
	if len(seeds) == 0 {
		return nil
	}
	call := models.NewToolCall(models.ToolSimilarStyle, "fill artists", map[string]any{
		"seed_artists": seeds[:min(len(seeds), maxRecommendationSeeds)],
		"limit":        e.cfg.MaxFillArtists * 2,
	})
	res := e.executor.Run(ctx, call, r.rc)
	if res.Err != nil {
		return nil
	}
	var out []string
	for _, t := range res.Tracks {
		out = append(out, t.PrimaryArtist().Name)
	}
	e.mu.Lock()
	e.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	e.mu.Unlock()
	return out
}

// recommendationBatches groups catalog recommendations seeded by the list's
// artists into one batch per primary artist.
func (e *Engine) recommendationBatches(ctx context.Context, r *run) [][]models.Track {
	var seeds []string
	seen := make(map[string]struct{})
	for _, t := range r.rc.Tracks() {
		id := t.PrimaryArtist().ID
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		seeds = append(seeds, id)
		if len(seeds) == maxRecommendationSeeds {
			break
		}
	}
	if len(seeds) == 0 {
		return nil
	}

	recs, err := e.catalog.Recommendations(ctx, seeds, nil, r.rc.Gap()*4, r.rc.Market)
	if err != nil {
		r.logger.Warn("recommendations failed", "error", err)
		return nil
	}

	index := make(map[string]int)
	var batches [][]models.Track
	for _, t := range tools.PostFilter(recs, r.rc) {
		key := t.PrimaryArtistKey()
		i, ok := index[key]
		if !ok {
			if len(batches) == e.cfg.MaxFillArtists {
				continue
			}
			i = len(batches)
			index[key] = i
			batches = append(batches, nil)
		}
		if len(batches[i]) < e.cfg.FillBatchSize {
			batches[i] = append(batches[i], t)
		}
	}
	return batches
}

// domainFallback runs extra consensus searches for event requests instead of
// asking the generative tool to invent lineup entries.
func (e *Engine) domainFallback(ctx context.Context, r *run) {
	e.enterTier(r, DomainFallback)
	for _, query := range []string{r.rc.Request, r.rc.Request + " lineup", r.rc.Request + " playlist"} {
		if r.rc.Gap() == 0 || ctx.Err() != nil {
			return
		}
		e.tierStep(ctx, r, models.NewToolCall(models.ToolSearchPlaylists, "event fallback", map[string]any{
			"query":           query,
			"limit_playlists": 20,
		}))
	}
}

// generativeFallback asks the creative tool for the gap, inflated to absorb
// suggestions that fail to match or are filtered out.
func (e *Engine) generativeFallback(ctx context.Context, r *run) {
	e.enterTier(r, GenerativeFallback)
	count := int(math.Ceil(float64(r.rc.Gap()) * e.cfg.GenerativeInflation))
	params := map[string]any{
		"theme": r.rc.Request,
		"count": count,
	}
	if banned := r.rc.Banned(); len(banned) > 0 {
		params["artists_to_exclude"] = banned
	}
	if priority := r.rc.Priority(); len(priority) > 0 {
		params["artists_to_include"] = priority
	}
	e.tierStep(ctx, r, models.NewToolCall(models.ToolCreativeTracks, "generative fallback", params))
}

func (e *Engine) tierStep(ctx context.Context, r *run, call models.ToolCall) {
	before := r.rc.Len()
	res := e.executor.Execute(ctx, call, r.rc)
	s := StepSummary{Tool: call.Tool, Reason: call.Reason, Accepted: r.rc.Len() - before, Elapsed: res.Elapsed}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	r.summary.Steps = append(r.summary.Steps, s)
}

// listArtists returns the list's primary artists, most frequent first.
func listArtists(rc *models.RunContext) []string {
	counts := make(map[string]int)
	names := make(map[string]string)
	var order []string
	for _, t := range rc.Tracks() {
		key := t.PrimaryArtistKey()
		if key == "" {
			continue
		}
		if _, ok := names[key]; !ok {
			names[key] = t.PrimaryArtist().Name
			order = append(order, key)
		}
		counts[key]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	out := make([]string, len(order))
	for i, key := range order {
		out[i] = names[key]
	}
	return out
}

// namePicker collects distinct, non-banned artist names up to a limit.
type namePicker struct {
	rc    *models.RunContext
	limit int
	seen  map[string]struct{}
	names []string
}

func newNamePicker(rc *models.RunContext, limit int) *namePicker {
	return &namePicker{rc: rc, limit: limit, seen: make(map[string]struct{})}
}

func (p *namePicker) add(names ...string) {
	for _, name := range names {
		if len(p.names) >= p.limit {
			return
		}
		key := shared.NormalizeName(name)
		if key == "" || p.rc.IsBanned(name) {
			continue
		}
		if _, dup := p.seen[key]; dup {
			continue
		}
		p.seen[key] = struct{}{}
		p.names = append(p.names, name)
	}
}
