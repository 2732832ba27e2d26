package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
)

// Published describes a playlist created from a [Result].
type Published struct {
	PlaylistID string `json:"playlist_id"`
	Name       string `json:"name"`
	Tracks     int    `json:"tracks"`
}

// Publish creates a playlist named name holding the result's tracks in order.
// Tracks without a URI are skipped.
func Publish(ctx context.Context, publisher services.Publisher, result *Result, name string, public bool) (*Published, error) {
	if publisher == nil {
		return nil, fmt.Errorf("%w: no publisher configured", shared.ErrServiceUnavailable)
	}
	if result == nil || len(result.Tracks) == 0 {
		return nil, shared.ErrNoTracks
	}

	uris := make([]string, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		if t.URI != "" {
			uris = append(uris, t.URI)
		}
	}
	if len(uris) == 0 {
		return nil, fmt.Errorf("%w: no track has a URI", shared.ErrNoTracks)
	}

	description := fmt.Sprintf("Generated by mixtape (run %s)", result.RunID)
	id, err := publisher.CreatePlaylist(ctx, name, description, public)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}
	if err := publisher.AddTracks(ctx, id, uris); err != nil {
		return nil, fmt.Errorf("failed to add tracks to %s: %w", id, err)
	}
	return &Published{PlaylistID: id, Name: name, Tracks: len(uris)}, nil
}
