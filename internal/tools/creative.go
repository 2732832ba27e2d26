package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/mixtape/internal/llm"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	creativeInflation = 1.5
	genreArtistCount  = 10
	perGenreArtist    = 3
)

// Suggestion is one (title, artist) pair proposed by the generative collaborator.
type Suggestion struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

var bracketed = regexp.MustCompile(`\s*[\(\[].*?[\)\]]`)

// cleanTitle drops bracketed qualifiers and "- Remastered" style suffixes.
func cleanTitle(title string) string {
	title = bracketed.ReplaceAllString(title, "")
	if i := strings.Index(title, " - "); i > 0 {
		title = title[:i]
	}
	return shared.NormalizeName(title)
}

// MatchTrack searches the catalog for title by artist and returns the first
// result whose title and credited artist agree with the request.
func MatchTrack(ctx context.Context, catalog services.Catalog, title, artist, market string) (*models.Track, error) {
	query := fmt.Sprintf("track:%q %s", strings.ReplaceAll(title, `"`, ""), artistFilter(artist))
	result, err := catalog.Search(ctx, query, services.SearchTracks, 5, 0, market)
	if err != nil {
		return nil, err
	}

	wantTitle := cleanTitle(title)
	wantArtist := shared.NormalizeName(artist)
	for _, t := range result.Tracks {
		got := cleanTitle(t.Name)
		if got == "" || wantTitle == "" {
			continue
		}
		if got != wantTitle && !strings.Contains(got, wantTitle) && !strings.Contains(wantTitle, got) {
			continue
		}
		if !t.HasArtist("", wantArtist) {
			continue
		}
		match := t
		return &match, nil
	}
	return nil, fmt.Errorf("%w: %s by %s", shared.ErrTrackNotFound, title, artist)
}

// creativeTracks implements generate_creative_tracks.
//
// It refuses event-like requests, which belong to search_playlists. Suggestions
// are matched to real tracks; when fewer than half match, artists for the genre
// are suggested instead and their top tracks fill the rest.
func (e *Executor) creativeTracks(ctx context.Context, call models.ToolCall, rc *models.RunContext) ([]models.Track, map[string]any, error) {
	mood := call.String("mood", "")
	theme := call.String("theme", "")
	genre := call.String("genre", "")
	era := call.String("era", "")
	count := call.Int("count", 20)
	include := call.Strings("artists_to_include")
	exclude := shared.NameSet(call.Strings("artists_to_exclude")...)

	if e.IsEvent(rc.Request) || e.IsEvent(theme) {
		e.logger.Info("refusing creative generation for event request", "request", rc.Request)
		return nil, map[string]any{"refused": "event"}, nil
	}
	if e.completer == nil {
		return nil, nil, fmt.Errorf("%w: no generative collaborator configured", shared.ErrServiceUnavailable)
	}

	avoid := append(rc.Banned(), call.Strings("artists_to_exclude")...)
	brief := describe(rc.Request, mood, theme, genre, era)

	keep := func(t models.Track) bool {
		for _, a := range t.Artists {
			if _, ok := exclude[shared.NormalizeName(a.Name)]; ok {
				return false
			}
		}
		return true
	}

	acc := newAccumulator(rc, count)
	meta := map[string]any{}

	suggestions, err := e.suggestTracks(ctx, brief, int(float64(count)*creativeInflation), include, avoid)
	if err != nil {
		e.logger.Warn("track suggestions failed", "error", err)
	} else {
		matched := e.matchAll(ctx, suggestions, rc.Market)
		acc.add(matched, keep)
		meta["suggested"] = len(suggestions)
		meta["matched"] = len(matched)
	}

	if len(acc.tracks) < (count+1)/2 {
		meta["genre_fallback"] = true
		acc.add(e.genreArtistTracks(ctx, brief, genre, avoid, rc), keep)
	}

	if err != nil && len(acc.tracks) == 0 {
		return nil, meta, err
	}
	return acc.tracks, meta, nil
}

func describe(request, mood, theme, genre, era string) string {
	var parts []string
	for _, p := range []struct{ label, value string }{
		{"Request", request}, {"Mood", mood}, {"Theme", theme}, {"Genre", genre}, {"Era", era},
	} {
		if p.value != "" {
			parts = append(parts, p.label+": "+p.value)
		}
	}
	return strings.Join(parts, "\n")
}

func (e *Executor) suggestTracks(ctx context.Context, brief string, n int, include, avoid []string) ([]Suggestion, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nSuggest %d real, released songs that fit.", brief, n)
	if len(include) > 0 {
		fmt.Fprintf(&b, " Include songs by: %s.", strings.Join(include, ", "))
	}
	if len(avoid) > 0 {
		fmt.Fprintf(&b, " Do not include any song by or featuring: %s.", strings.Join(avoid, ", "))
	}
	b.WriteString(` Respond with JSON: {"tracks": [{"title": "...", "artist": "..."}]}`)

	resp, err := e.completer.Complete(ctx, llm.Request{
		System: "You are a music curator who only names songs that exist.",
		Prompt: b.String(),
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}

	var suggestions []Suggestion
	if err := llm.DecodeList(resp.Content, "tracks", &suggestions); err != nil {
		return nil, err
	}
	return suggestions, nil
}

// matchAll resolves suggestions concurrently and returns the matches in suggestion order.
func (e *Executor) matchAll(ctx context.Context, suggestions []Suggestion, market string) []models.Track {
	slots := make([]*models.Track, len(suggestions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, s := range suggestions {
		if strings.TrimSpace(s.Title) == "" || strings.TrimSpace(s.Artist) == "" {
			continue
		}
		g.Go(func() error {
			t, err := MatchTrack(gctx, e.catalog, s.Title, s.Artist, market)
			if err != nil {
				e.logger.Debug("suggestion unmatched", "title", s.Title, "artist", s.Artist, "error", err)
				return nil
			}
			slots[i] = t
			return nil
		})
	}
	_ = g.Wait()

	var out []models.Track
	for _, t := range slots {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// genreArtistTracks asks for artists fitting the brief and returns a few top tracks from each.
func (e *Executor) genreArtistTracks(ctx context.Context, brief, genre string, avoid []string, rc *models.RunContext) []models.Track {
	prompt := fmt.Sprintf("%s\n\nName %d artists whose music fits.", brief, genreArtistCount)
	if len(avoid) > 0 {
		prompt += " Do not name: " + strings.Join(avoid, ", ") + "."
	}
	prompt += ` Respond with JSON: {"artists": ["..."]}`

	var names []string
	resp, err := e.completer.Complete(ctx, llm.Request{Prompt: prompt, JSON: true})
	if err == nil {
		err = llm.DecodeList(resp.Content, "artists", &names)
	}
	if err != nil {
		e.logger.Debug("genre artist suggestions failed", "error", err)
		if genre == "" {
			return nil
		}
		result, serr := e.catalog.Search(ctx, fmt.Sprintf("genre:%q", genre), services.SearchArtists, genreArtistCount, 0, rc.Market)
		if serr != nil {
			return nil
		}
		for _, a := range result.Artists {
			names = append(names, a.Name)
		}
	}

	var refs []artistRef
	for _, r := range e.constrained(rc).ResolveWithDeduplication(ctx, names, rc.Market) {
		if r.Artist != nil && !rc.IsBanned(r.Artist.Name) {
			refs = append(refs, artistRef{ID: r.Artist.ID, Name: r.Artist.Name, Key: shared.NormalizeName(r.Artist.Name)})
		}
	}

	lists := e.tracksOf(ctx, refs, rc.Market)
	for i := range lists {
		if len(lists[i]) > perGenreArtist {
			lists[i] = lists[i][:perGenreArtist]
		}
	}
	return interleave(lists)
}
