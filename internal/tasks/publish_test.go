package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

type fakePublisher struct {
	name      string
	public    bool
	added     []string
	createErr error
	addErr    error
}

func (f *fakePublisher) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.name = name
	f.public = public
	return "pl1", nil
}

func (f *fakePublisher) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, uris...)
	return nil
}

func TestPublish(t *testing.T) {
	result := &Result{RunID: "run1", Tracks: []models.Track{
		{ID: "t1", URI: "spotify:track:t1"},
		{ID: "t2"},
		{ID: "t3", URI: "spotify:track:t3"},
	}}

	t.Run("creates and fills the playlist", func(t *testing.T) {
		pub := &fakePublisher{}
		got, err := Publish(context.Background(), pub, result, "Road Trip", true)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if got.PlaylistID != "pl1" || got.Tracks != 2 {
			t.Errorf("unexpected result %+v", got)
		}
		if pub.name != "Road Trip" || !pub.public {
			t.Errorf("unexpected playlist %q public=%v", pub.name, pub.public)
		}
		if len(pub.added) != 2 || pub.added[0] != "spotify:track:t1" || pub.added[1] != "spotify:track:t3" {
			t.Errorf("unexpected uris %v", pub.added)
		}
	})

	tests := []struct {
		name   string
		pub    *fakePublisher
		result *Result
		want   error
	}{
		{"no tracks", &fakePublisher{}, &Result{}, shared.ErrNoTracks},
		{"no uris", &fakePublisher{}, &Result{Tracks: []models.Track{{ID: "t1"}}}, shared.ErrNoTracks},
		{"create fails", &fakePublisher{createErr: shared.ErrNotAuthenticated}, result, shared.ErrNotAuthenticated},
		{"add fails", &fakePublisher{addErr: shared.ErrAPIRequest}, result, shared.ErrAPIRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Publish(context.Background(), tt.pub, tt.result, "x", false); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("nil publisher", func(t *testing.T) {
		if _, err := Publish(context.Background(), nil, result, "x", false); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected service unavailable, got %v", err)
		}
	})
}
