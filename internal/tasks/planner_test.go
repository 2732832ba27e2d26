package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	testutil "github.com/desertthunder/mixtape/internal/testing"
	"github.com/desertthunder/mixtape/internal/tools"
)

func defaultToolCatalog(t *testing.T) *tools.Catalog {
	t.Helper()
	c, err := tools.DefaultCatalog()
	if err != nil {
		t.Fatalf("failed to load tool catalog: %v", err)
	}
	return c
}

func TestLLMPlanner(t *testing.T) {
	ctx := context.Background()
	catalog := defaultToolCatalog(t)

	t.Run("sanitizes and clamps the plan", func(t *testing.T) {
		completer := &testutil.MockCompleter{Responses: []string{"Here is the plan:\n```json\n" + `{
			"reasoning": ["one artist"],
			"steps": [
				{"tool": "get_artist_tracks", "params": {"artist": "Bad Bunny", "limit": 5}, "reason": "requested"},
				{"tool": "make_coffee", "params": {}},
				{"tool": "get_collaborations", "params": {"main_artist": "Bad Bunny"}},
			],
			"total_target": 500,
			"fill_strategy": "similar_artists",
			"requested_artists": ["Bad Bunny"]
		}` + "\n```"}}

		plan, err := NewLLMPlanner(completer, catalog, nil).Plan(ctx, "bad bunny hits", 20)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(plan.Steps) != 1 || plan.Steps[0].Tool != models.ToolArtistTracks {
			t.Errorf("expected only the artist step to survive, got %+v", plan.Steps)
		}
		if plan.TotalTarget != 20 {
			t.Errorf("expected total target clamped to 20, got %d", plan.TotalTarget)
		}
		if plan.FillStrategy != models.FillSimilarArtists {
			t.Errorf("unexpected fill strategy %q", plan.FillStrategy)
		}

		req := completer.Requests()[0]
		if !req.JSON || !strings.Contains(req.System, "get_artist_tracks") {
			t.Error("planner request should ask for JSON with the tool catalog as system prompt")
		}
		if !strings.Contains(req.Prompt, "bad bunny hits") || !strings.Contains(req.Prompt, "20") {
			t.Errorf("prompt should carry request and target: %s", req.Prompt)
		}
	})

	tests := []struct {
		name      string
		completer *testutil.MockCompleter
	}{
		{"completer failure", &testutil.MockCompleter{Err: errors.New("connection refused")}},
		{"no JSON", &testutil.MockCompleter{Responses: []string{"I cannot help with that."}}},
		{"null plan", &testutil.MockCompleter{Responses: []string{"null"}}},
		{"only unknown tools", &testutil.MockCompleter{Responses: []string{`{"steps": [{"tool": "make_coffee"}]}`}}},
		{"unknown fill strategy", &testutil.MockCompleter{Responses: []string{`{"steps": [{"tool": "get_artist_tracks", "params": {"artist": "X"}}], "fill_strategy": "vibes"}`}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMPlanner(tt.completer, catalog, nil).Plan(ctx, "anything", 20)
			if !errors.Is(err, shared.ErrPlanGeneration) {
				t.Errorf("expected plan generation error, got %v", err)
			}
		})
	}
}

func TestLLMFallbackGenerator(t *testing.T) {
	ctx := context.Background()
	catalog := &testutil.MockCatalog{Tracks: []models.Track{
		testutil.Track("dreams", "Dreams", "Fleetwood Mac"),
		testutil.Track("umbrella", "Umbrella", "Rihanna"),
	}}

	t.Run("matches suggestions and passes exclusions", func(t *testing.T) {
		completer := &testutil.MockCompleter{Responses: []string{`[
			{"title": "Dreams", "artist": "Fleetwood Mac"},
			{"title": "Imaginary", "artist": "Nobody"}
		]`}}
		rc := models.NewRunContext("soft rock", 4, "US")
		rc.Ban("Rihanna")

		tracks, err := NewLLMFallbackGenerator(completer, catalog, 1.5, nil).Generate(ctx, "soft rock", 4, rc)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != "dreams" {
			t.Errorf("expected dreams, got %v", ids(tracks))
		}
		prompt := completer.Requests()[0].Prompt
		if !strings.Contains(prompt, "Suggest 6") || !strings.Contains(prompt, "rihanna") {
			t.Errorf("prompt should inflate the count and name banned artists: %s", prompt)
		}
	})

	t.Run("surfaces completer failures", func(t *testing.T) {
		completer := &testutil.MockCompleter{Err: errors.New("down")}
		if _, err := NewLLMFallbackGenerator(completer, catalog, 1.5, nil).Generate(ctx, "x", 4, models.NewRunContext("x", 4, "US")); err == nil {
			t.Error("expected error")
		}
	})
}
