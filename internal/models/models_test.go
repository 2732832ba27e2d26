package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/desertthunder/mixtape/internal/shared"
)

func track(id, name string, artists ...string) Track {
	t := Track{ID: id, Name: name, URI: "spotify:track:" + id}
	for _, a := range artists {
		t.Artists = append(t.Artists, ArtistRef{ID: "id-" + shared.NormalizeName(a), Name: a})
	}
	return t
}

func TestTrack(t *testing.T) {
	duet := track("t1", "Work", "Rihanna", "Drake")

	t.Run("PrimaryArtist", func(t *testing.T) {
		if got := duet.PrimaryArtist().Name; got != "Rihanna" {
			t.Errorf("PrimaryArtist() = %q, want Rihanna", got)
		}
		if (Track{}).PrimaryArtist().Name != "" {
			t.Error("artistless track should return zero ref")
		}
	})

	t.Run("HasArtist", func(t *testing.T) {
		tc := []struct {
			name string
			id   string
			norm string
			want bool
		}{
			{name: "by id", id: "id-drake", want: true},
			{name: "by normalized name", norm: "rihanna", want: true},
			{name: "unmatched id falls back to name", id: "zzz", norm: "drake", want: true},
			{name: "absent", id: "id-bad bunny", norm: "bad bunny", want: false},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if got := duet.HasArtist(tt.id, tt.norm); got != tt.want {
					t.Errorf("HasArtist(%q, %q) = %v, want %v", tt.id, tt.norm, got, tt.want)
				}
			})
		}
	})

	t.Run("ArtistLine", func(t *testing.T) {
		if got := duet.ArtistLine(); got != "Rihanna, Drake" {
			t.Errorf("ArtistLine() = %q", got)
		}
	})
}

func TestToolCallParams(t *testing.T) {
	var call ToolCall
	raw := `{"tool":"get_artist_tracks","params":{"artist":" Bad Bunny ","limit":5.0,"only_popular":"true","seed_artists":["A"," ",3,"B"],"single":"Solo"},"reason":"requested"}`
	if err := json.Unmarshal([]byte(raw), &call); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if call.Tool != ToolArtistTracks {
		t.Errorf("Tool = %q", call.Tool)
	}
	if got := call.String("artist", ""); got != "Bad Bunny" {
		t.Errorf("String(artist) = %q", got)
	}
	if got := call.String("missing", "x"); got != "x" {
		t.Errorf("String(missing) = %q", got)
	}
	if got := call.Int("limit", 10); got != 5 {
		t.Errorf("Int(limit) = %d", got)
	}
	if got := call.Int("missing", 10); got != 10 {
		t.Errorf("Int(missing) = %d", got)
	}
	if !call.Bool("only_popular", false) {
		t.Error("Bool(only_popular) should parse string true")
	}
	if got := call.Strings("seed_artists"); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("Strings(seed_artists) = %v", got)
	}
	if got := call.Strings("single"); len(got) != 1 || got[0] != "Solo" {
		t.Errorf("Strings(single) = %v", got)
	}
	if _, ok := call.OptionalInt("max_per_artist"); ok {
		t.Error("OptionalInt should report absence")
	}
}

func TestExecutionPlanValidate(t *testing.T) {
	tc := []struct {
		name    string
		plan    *ExecutionPlan
		wantErr bool
	}{
		{name: "nil", plan: nil, wantErr: true},
		{name: "no steps", plan: &ExecutionPlan{}, wantErr: true},
		{name: "empty tool", plan: &ExecutionPlan{Steps: []ToolCall{{}}}, wantErr: true},
		{
			name:    "bad strategy",
			plan:    &ExecutionPlan{Steps: []ToolCall{NewToolCall(ToolArtistTracks, "", nil)}, FillStrategy: "whatever"},
			wantErr: true,
		},
		{
			name: "valid",
			plan: &ExecutionPlan{
				Steps:        []ToolCall{NewToolCall(ToolArtistTracks, "", nil)},
				FillStrategy: FillSimilarArtists,
			},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr && !errors.Is(err, shared.ErrPlanGeneration) {
				t.Errorf("expected ErrPlanGeneration, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRunContext(t *testing.T) {
	t.Run("symbol-only artist names can be banned", func(t *testing.T) {
		rc := NewRunContext("no !!!", 10, "US")
		rc.Ban("!!!")

		if !rc.IsBanned("!!!") {
			t.Fatal("expected !!! to be banned")
		}
		if rc.IsBanned("Drake") {
			t.Error("a symbol-only ban must not match other artists")
		}
		if added := rc.Append(track("a", "Heart of Hearts", "!!!"), track("b", "Solo", "Drake")); added != 1 {
			t.Errorf("expected only the Drake track, added=%d", added)
		}
	})

	t.Run("Append deduplicates and filters banned artists", func(t *testing.T) {
		rc := NewRunContext("like rihanna but not rihanna", 10, "US")
		rc.Ban("Rihanna")

		added := rc.Append(
			track("a", "Solo", "Rihanna"),
			track("b", "Duet", "Drake", "RIHANNA"),
			track("c", "Solo Drake", "Drake"),
			track("c", "Solo Drake", "Drake"),
			track("", "No ID", "Drake"),
		)
		if added != 1 || rc.Len() != 1 {
			t.Fatalf("expected exactly 1 track, added=%d len=%d", added, rc.Len())
		}
		if rc.Tracks()[0].ID != "c" {
			t.Errorf("expected the solo Drake track, got %s", rc.Tracks()[0].ID)
		}
		if rc.Gap() != 9 {
			t.Errorf("Gap() = %d, want 9", rc.Gap())
		}
	})

	t.Run("pre-marked IDs are still appended once", func(t *testing.T) {
		rc := NewRunContext("", 5, "US")
		rc.MarkUsed("x")
		if rc.Append(track("x", "X", "Artist")) != 1 {
			t.Error("a track accepted by a post-filter should still be appended")
		}
		if rc.Append(track("x", "X", "Artist")) != 0 {
			t.Error("second append should be a no-op")
		}
	})

	t.Run("Replace keeps replaced-out IDs used", func(t *testing.T) {
		rc := NewRunContext("", 5, "US")
		rc.Append(track("a", "A", "One"), track("b", "B", "Two"))
		rc.Replace([]Track{track("b", "B", "Two")})

		if rc.Len() != 1 {
			t.Fatalf("Len() = %d, want 1", rc.Len())
		}
		if !rc.IsUsed("a") {
			t.Error("trimmed tracks should not be re-admitted later")
		}
		if rc.Accepts(track("a", "A", "One")) {
			t.Error("Accepts should reject a used ID")
		}
	})

	t.Run("priority never includes banned", func(t *testing.T) {
		rc := NewRunContext("", 5, "US")
		rc.Ban("Drake")
		rc.AddPriority("drake", "Future")
		if rc.IsPriority("Drake") {
			t.Error("banned artist must not become priority")
		}
		if !rc.IsPriority("FUTURE") {
			t.Error("expected Future to be priority")
		}
	})
}
