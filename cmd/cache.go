package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/urfave/cli/v3"
)

// resolutionStore opens the sqlite resolution cache. The memory driver has
// nothing to inspect between processes.
func (r *Runner) resolutionStore() (*repositories.ResolutionStore, error) {
	if r.config.Cache.Driver != "sqlite" {
		return nil, fmt.Errorf("%w: cache.driver is %q; the cache commands need \"sqlite\"", shared.ErrInvalidConfig, r.config.Cache.Driver)
	}
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	return repositories.NewResolutionStore(db, r.config.Cache.TTL(), shared.WithLogger(r.logger, "component", "cache")), nil
}

// CacheStats prints the number of cached resolutions.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	store, err := r.resolutionStore()
	if err != nil {
		return err
	}
	n, err := store.Count()
	if err != nil {
		return err
	}
	r.writePlain("Cached resolutions: %d\n", n)
	return r.writePlain("TTL: %s\n", r.config.Cache.TTL())
}

// CachePrune deletes resolutions older than the configured TTL.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	store, err := r.resolutionStore()
	if err != nil {
		return err
	}
	n, err := store.PruneExpired()
	if err != nil {
		return err
	}
	r.logger.Info("pruned expired resolutions", "count", n)
	return r.writePlain("✓ Pruned %d expired resolutions\n", n)
}

// CacheClear deletes every cached resolution.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	store, err := r.resolutionStore()
	if err != nil {
		return err
	}
	store.Purge()
	return r.writePlain("✓ Resolution cache cleared\n")
}

// Runs lists the most recent recorded run summaries.
func (r *Runner) Runs(ctx context.Context, cmd *cli.Command) error {
	if r.config.Cache.Driver != "sqlite" {
		return fmt.Errorf("%w: run history is recorded only with cache.driver = \"sqlite\"", shared.ErrInvalidConfig)
	}
	db, err := r.database()
	if err != nil {
		return err
	}

	runs, err := repositories.NewRunRepository(db).Recent(ctx, max(int(cmd.Int("limit")), 1))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Recent runs (%d)", len(runs)))
	for _, run := range runs {
		mode := "planned"
		if run.Fallback {
			mode = "fallback"
		}
		r.writePlain("%s  %s  %d/%d tracks  %d artists  pop %.1f  %s  %s\n",
			run.CompletedAt.Local().Format(time.DateTime), run.RunID,
			run.TrackCount, run.TargetTracks, run.DistinctArtists, run.AvgPopularity,
			mode, run.Duration.Round(time.Millisecond))
	}
	return nil
}
