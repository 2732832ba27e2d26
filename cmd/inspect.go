package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/mixtape/internal/consensus"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tools"
	"github.com/urfave/cli/v3"
)

func (r *Runner) market(cmd *cli.Command) string {
	if m := cmd.String("market"); m != "" {
		return m
	}
	return r.config.Catalog.Market
}

// Resolve resolves each argument to a catalog artist, merging names that land on the same artist.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	names := cmd.Args().Slice()
	if len(names) == 0 {
		return fmt.Errorf("%w: at least one artist name is required", shared.ErrMissingArgument)
	}
	if err := r.requireCatalog(); err != nil {
		return err
	}

	res, err := r.newResolver()
	if err != nil {
		return err
	}
	resolved := res.ResolveWithDeduplication(ctx, names, r.market(cmd))

	if cmd.Bool("json") {
		out := make([]any, len(resolved))
		for i, rv := range resolved {
			out[i] = rv.Resolution
		}
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Artist Resolution")
	for _, rv := range resolved {
		res := rv.Resolution
		if !res.Method.Resolved() {
			r.writePlain("✗ %s (%s)\n", res.Requested, res.Method)
			continue
		}
		r.writePlain("✓ %s → %s [%s, %.2f]", res.Requested, res.ResolvedName, res.Method, res.Confidence)
		if len(res.Aliases) > 0 {
			r.writePlain(" also: %s", strings.Join(res.Aliases, ", "))
		}
		r.writePlain("\n  %s\n", res.ResolvedID)
	}
	return nil
}

// Consensus prints the tracks that recur across playlists matching the query.
func (r *Runner) Consensus(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("%w: a query is required", shared.ErrMissingArgument)
	}
	if err := r.requireCatalog(); err != nil {
		return err
	}

	collector := r.newCollector()
	entries, err := collector.CollectEntries(ctx, consensus.Query{
		Text:          query,
		PlaylistLimit: int(cmd.Int("playlists")),
		MinConsensus:  int(cmd.Int("min")),
		Market:        r.market(cmd),
	})
	if err != nil {
		return err
	}
	if limit := int(cmd.Int("limit")); limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	title := fmt.Sprintf("Consensus: %s", query)
	if collector.IsEvent(query) {
		title += " (event)"
	}
	r.writePlainHeader(title)
	if len(entries) == 0 {
		return r.writePlain("No tracks reached consensus.\n")
	}
	for i, e := range entries {
		r.writePlain("%3d. [%d] %s - %s\n", i+1, e.Count, e.Track.ArtistLine(), e.Track.Name)
	}
	return nil
}

// Tools prints the tool catalog, or the planner system prompt built from it.
func (r *Runner) Tools(ctx context.Context, cmd *cli.Command) error {
	catalog, err := tools.DefaultCatalog()
	if err != nil {
		return err
	}

	if cmd.Bool("prompt") {
		return r.writePlain("%s\n", catalog.SystemPrompt())
	}
	if cmd.Bool("json") {
		return r.writeJSON(catalog, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Tool catalog v%s", catalog.Version))
	for _, def := range catalog.Tools {
		r.writePlain("\n%s\n  %s\n", def.Name, def.Description)
		for _, p := range def.Parameters {
			req := ""
			if p.Required {
				req = " (required)"
			}
			r.writePlain("    - %s: %s%s\n", p.Name, p.Type, req)
		}
	}
	r.writePlainln("Fill strategies:")
	for _, s := range catalog.FillStrategies {
		r.writePlain("  - %s: %s\n", s.Name, s.Description)
	}
	return nil
}
