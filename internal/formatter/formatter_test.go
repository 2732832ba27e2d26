package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	th "github.com/desertthunder/mixtape/internal/testing"
)

func testPlaylist() *Playlist {
	return &Playlist{
		RunID:       "run123",
		Name:        "Road Trip",
		Prompt:      "summer road trip, no Nickelback",
		Target:      3,
		GeneratedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Tracks: []models.Track{
			{
				ID:         "track1",
				Name:       "Song One",
				Artists:    []models.ArtistRef{{ID: "a1", Name: "Artist One"}, {ID: "a2", Name: "Guest"}},
				Album:      &models.AlbumRef{ID: "al1", Name: "Album One"},
				URI:        "spotify:track:track1",
				Popularity: 71,
				DurationMS: 180000,
			},
			{
				ID:         "track2",
				Name:       "Song Two",
				Artists:    []models.ArtistRef{{ID: "a3", Name: "Artist Two"}},
				URI:        "spotify:track:track2",
				Popularity: 40,
				DurationMS: 240000,
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  error
	}{
		{"json", FormatJSON, nil},
		{"CSV", FormatCSV, nil},
		{"md", FormatMarkdown, nil},
		{"markdown", FormatMarkdown, nil},
		{"text", FormatText, nil},
		{"", FormatText, nil},
		{"xml", "", shared.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if !errors.Is(err, tt.err) {
				t.Fatalf("ParseFormat(%q) error = %v, want %v", tt.in, err, tt.err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testPlaylist())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		output := string(data)

		if !strings.HasPrefix(output, "ID,Title,Artists,Album,Duration,Popularity,URI\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, `track1,Song One,"Artist One, Guest",Album One,3:00,71,spotify:track:track1`) {
			t.Errorf("CSV missing track1 row, got: %s", output)
		}
		if !strings.Contains(output, "track2,Song Two,Artist Two,,4:00,40,spotify:track:track2") {
			t.Errorf("CSV should leave album empty for track2, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(testPlaylist())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"# Road Trip",
			"> summer road trip, no Nickelback",
			"**Tracks**: 2 of 3",
			"**Length**: 7:00",
			"1. Artist One, Guest - Song One (Album One) [3:00]",
			"2. Artist Two - Song Two [4:00]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
		if strings.Contains(output, "**Mode**") {
			t.Error("planned playlists should not carry a mode line")
		}
	})

	t.Run("ExportToMarkdown marks fallback runs", func(t *testing.T) {
		p := testPlaylist()
		p.Fallback = true
		data, _ := ExportToMarkdown(p)
		if !strings.Contains(string(data), "**Mode**: direct suggestions") {
			t.Error("expected fallback mode line")
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		p := testPlaylist()
		p.Name = ""
		data, err := ExportToText(p)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		output := string(data)

		if !strings.Contains(output, "Playlist: summer road trip, no Nickelback") {
			t.Errorf("Text should fall back to the prompt as name, got: %s", output)
		}
		if !strings.Contains(output, "Tracks: 2") || !strings.Contains(output, "2. Artist Two - Song Two") {
			t.Errorf("Text missing track listing, got: %s", output)
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(testPlaylist())
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}
		var decoded struct {
			RunID  string `json:"run_id"`
			Tracks []struct {
				ID string `json:"id"`
			} `json:"tracks"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.RunID != "run123" || len(decoded.Tracks) != 2 {
			t.Errorf("unexpected JSON payload: %+v", decoded)
		}
	})

	t.Run("ToMetadataJSON", func(t *testing.T) {
		data, err := ToMetadataJSON(testPlaylist())
		if err != nil {
			t.Fatalf("ToMetadataJSON failed: %v", err)
		}
		output := string(data)
		if strings.Contains(output, "track1") {
			t.Error("metadata should not include tracks")
		}
		if !strings.Contains(output, `"track_count": 2`) || !strings.Contains(output, `"duration_ms": 420000`) {
			t.Errorf("metadata missing counts, got: %s", output)
		}
	})
}

func TestWrite(t *testing.T) {
	t.Run("unknown format", func(t *testing.T) {
		var sb strings.Builder
		if err := Write(&sb, testPlaylist(), Format("xml")); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
	})

	t.Run("writer failure", func(t *testing.T) {
		if err := Write(&th.FWriter{}, testPlaylist(), FormatText); err == nil {
			t.Error("expected write error")
		}
	})

	t.Run("writes every format", func(t *testing.T) {
		for _, f := range []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText} {
			var sb strings.Builder
			if err := Write(&sb, testPlaylist(), f); err != nil {
				t.Errorf("%s: %v", f, err)
			}
			if !strings.Contains(sb.String(), "Song One") {
				t.Errorf("%s output missing track", f)
			}
		}
	})
}

func TestFileExports(t *testing.T) {
	t.Run("WriteCSVExport", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "custom_export")
		result, err := WriteCSVExport(testPlaylist(), base)
		if err != nil {
			t.Fatalf("WriteCSVExport failed: %v", err)
		}
		if result.TracksFile != base+"_tracks.csv" || result.MetadataFile != base+"_metadata.json" {
			t.Errorf("unexpected paths: %+v", result)
		}
		th.AssertFileExists(t, result.TracksFile)
		th.AssertFileExists(t, result.MetadataFile)

		if content := th.MustReadFile(t, result.MetadataFile); !strings.Contains(content, "run123") {
			t.Errorf("metadata JSON missing run ID")
		}
	})

	t.Run("WriteMarkdownExport", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "road_trip")
		path, err := WriteMarkdownExport(testPlaylist(), dir)
		if err != nil {
			t.Fatalf("WriteMarkdownExport failed: %v", err)
		}
		th.AssertDirExists(t, dir)
		if path != filepath.Join(dir, "README.md") {
			t.Errorf("unexpected path %s", path)
		}
		if content := th.MustReadFile(t, path); !strings.Contains(content, "# Road Trip") {
			t.Errorf("Markdown missing title")
		}
	})

	t.Run("WriteFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		got, err := WriteFile(testPlaylist(), FormatText, path)
		if err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
		if content := th.MustReadFile(t, path); !strings.Contains(content, "1. Artist One, Guest - Song One") {
			t.Errorf("text file missing track listing")
		}
	})

	t.Run("WriteFile rejects unknown format", func(t *testing.T) {
		if _, err := WriteFile(testPlaylist(), Format("xml"), filepath.Join(t.TempDir(), "x")); err == nil {
			t.Error("expected error")
		}
	})
}
