package tools

import (
	"context"
	"fmt"

	"github.com/desertthunder/mixtape/internal/balancer"
	"github.com/desertthunder/mixtape/internal/consensus"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

// searchPlaylists implements search_playlists.
func (e *Executor) searchPlaylists(ctx context.Context, call models.ToolCall, rc *models.RunContext) ([]models.Track, map[string]any, error) {
	query := call.String("query", "")
	if query == "" {
		return nil, nil, fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	q := consensus.Query{
		Text:              query,
		PlaylistLimit:     call.Int("limit_playlists", consensus.DefaultPlaylistLimit),
		TracksPerPlaylist: call.Int("tracks_per_playlist", consensus.DefaultTracksPerPlaylist),
		MinConsensus:      call.Int("min_consensus", 0),
		Market:            rc.Market,
	}
	if q.MinConsensus <= 0 {
		q.MinConsensus = max(e.collector.DefaultMinConsensus(query), e.collector.DefaultMinConsensus(rc.Request))
	}

	tracks, err := e.collector.Collect(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	return tracks, map[string]any{"min_consensus": q.MinConsensus, "retained": len(tracks)}, nil
}

// adjustDistribution implements adjust_distribution. It works on the run's
// accumulated list and returns its replacement.
func (e *Executor) adjustDistribution(call models.ToolCall, rc *models.RunContext) ([]models.Track, map[string]any) {
	opts := balancer.Options{
		PriorityArtists:  call.Strings("priority_artists"),
		PriorityCap:      call.Int("priority_cap", e.cfg.PriorityCap),
		OthersCap:        call.Int("others_cap", e.cfg.OthersCap),
		Shuffle:          call.Bool("shuffle", false),
		AvoidConsecutive: call.Bool("avoid_consecutive_same_artist", true),
		TotalTarget:      call.Int("total_target", rc.Target),
	}
	if n, ok := call.OptionalInt("max_per_artist"); ok && n > 0 {
		opts.MaxPerArtist = &n
	}
	opts.PriorityArtists = append(opts.PriorityArtists, rc.Priority()...)
	if rc.Target > 0 && (opts.TotalTarget <= 0 || opts.TotalTarget > rc.Target) {
		opts.TotalTarget = rc.Target
	}

	before := rc.Len()
	e.mu.Lock()
	balanced := balancer.Balance(rc.Tracks(), opts, e.rng)
	e.mu.Unlock()

	return balanced, map[string]any{"before": before, "after": len(balanced)}
}
