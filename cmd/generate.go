package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/mixtape/internal/formatter"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
	"github.com/urfave/cli/v3"
)

const drainTimeout = 5 * time.Second

// requestFromFlags builds a [tasks.Request] from the generate flags.
func requestFromFlags(cmd *cli.Command) (tasks.Request, error) {
	prompt := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if prompt == "" {
		return tasks.Request{}, fmt.Errorf("%w: a prompt is required", shared.ErrMissingArgument)
	}

	req := tasks.Request{
		Prompt:       prompt,
		TargetTracks: int(cmd.Int("target")),
		Options: tasks.Options{
			Market:          cmd.String("market"),
			Shuffle:         cmd.Bool("shuffle"),
			ExcludeArtists:  cmd.StringSlice("exclude"),
			PriorityArtists: cmd.StringSlice("priority"),
		},
	}
	if req.TargetTracks < 0 {
		return tasks.Request{}, fmt.Errorf("%w: --target must not be negative", shared.ErrInvalidArgument)
	}
	if cmd.IsSet("max-per-artist") {
		n := int(cmd.Int("max-per-artist"))
		if n < 1 {
			return tasks.Request{}, fmt.Errorf("%w: --max-per-artist must be at least 1", shared.ErrInvalidArgument)
		}
		req.Options.MaxPerArtist = &n
	}
	if cmd.Bool("allow-consecutive") {
		avoid := false
		req.Options.AvoidConsecutive = &avoid
	}
	return req, nil
}

// Generate runs one generation and writes the playlist in the chosen format.
//
// A failed run still prints whatever partial tracks it gathered before returning the error.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	req, err := requestFromFlags(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	engine, shutdown, err := r.newEngine()
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		shutdown(drainCtx)
	}()

	progress := make(chan tasks.ProgressUpdate, 32)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.logProgress(progress, cmd.Bool("quiet"))
	}()

	result, genErr := engine.Generate(ctx, req, progress)
	close(progress)
	wg.Wait()

	name := cmd.String("name")
	if name == "" {
		name = req.Prompt
	}

	if genErr != nil {
		var failed *tasks.GenerateError
		if errors.As(genErr, &failed) && len(failed.Partial) > 0 {
			r.logger.Warn("run failed, writing partial tracks", "run_id", failed.RunID, "tracks", len(failed.Partial))
			partial := &formatter.Playlist{
				RunID:       failed.RunID,
				Name:        name,
				Prompt:      req.Prompt,
				Target:      engine.Target(req.TargetTracks),
				GeneratedAt: time.Now().UTC(),
				Tracks:      failed.Partial,
			}
			if err := r.emit(partial, format, cmd.String("output")); err != nil {
				r.logger.Error("failed to write partial tracks", "error", err)
			}
		}
		return genErr
	}

	playlist := &formatter.Playlist{
		RunID:       result.RunID,
		Name:        name,
		Prompt:      req.Prompt,
		Target:      engine.Target(req.TargetTracks),
		Fallback:    result.Fallback,
		GeneratedAt: time.Now().UTC(),
		Tracks:      result.Tracks,
	}
	if err := r.emit(playlist, format, cmd.String("output")); err != nil {
		return err
	}

	if cmd.Bool("publish") {
		published, err := tasks.Publish(ctx, r.publisher, result, name, cmd.Bool("public"))
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		r.logger.Info("playlist published", "playlist_id", published.PlaylistID, "tracks", published.Tracks)
		r.writePlainln("✓ Published %q (%d tracks): https://open.spotify.com/playlist/%s", published.Name, published.Tracks, published.PlaylistID)
	}
	return nil
}

// emit writes the playlist to path, or to the runner's output when path is empty.
func (r *Runner) emit(p *formatter.Playlist, format formatter.Format, path string) error {
	if path == "" {
		return formatter.Write(r.output, p, format)
	}
	written, err := formatter.WriteFile(p, format, path)
	if err != nil {
		return err
	}
	r.logger.Info("playlist written", "path", written, "tracks", len(p.Tracks))
	return nil
}

// logProgress logs each update until progress is closed.
func (r *Runner) logProgress(progress <-chan tasks.ProgressUpdate, quiet bool) {
	for update := range progress {
		if quiet {
			continue
		}
		kv := []any{"run_id", update.RunID, "phase", update.Phase}
		if update.Total > 0 {
			kv = append(kv, "step", fmt.Sprintf("%d/%d", update.Step, update.Total))
		}
		if update.Phase == tasks.Failed {
			r.logger.Warn(update.Message, kv...)
			continue
		}
		r.logger.Info(update.Message, kv...)
	}
}
