package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/llm"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tools"
	"golang.org/x/sync/errgroup"
)

// Planner turns a request into an [models.ExecutionPlan].
type Planner interface {
	Plan(ctx context.Context, request string, target int) (*models.ExecutionPlan, error)
}

// FallbackGenerator produces tracks in one shot when planning fails.
type FallbackGenerator interface {
	Generate(ctx context.Context, request string, target int, rc *models.RunContext) ([]models.Track, error)
}

// LLMPlanner asks the generative collaborator for a plan using the tool catalog as instructions.
type LLMPlanner struct {
	completer llm.Completer
	catalog   *tools.Catalog
	logger    *log.Logger
}

// NewLLMPlanner creates a planner.
func NewLLMPlanner(completer llm.Completer, catalog *tools.Catalog, logger *log.Logger) *LLMPlanner {
	if logger == nil {
		logger = log.Default()
	}
	return &LLMPlanner{completer: completer, catalog: catalog, logger: logger}
}

// Plan returns a validated plan. Steps naming unknown tools or missing
// required parameters are dropped; a plan left without steps is an error.
func (p *LLMPlanner) Plan(ctx context.Context, request string, target int) (*models.ExecutionPlan, error) {
	prompt := fmt.Sprintf("Request: %s\nTarget tracks: %d", request, target)
	resp, err := p.completer.Complete(ctx, llm.Request{
		System:      p.catalog.SystemPrompt(),
		Prompt:      prompt,
		JSON:        true,
		Temperature: llm.Temperature(0.3),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrPlanGeneration, err)
	}

	var plan models.ExecutionPlan
	if err := llm.DecodeObject(resp.Content, &plan); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrPlanGeneration, err)
	}

	sanitized, dropped := p.catalog.Sanitize(&plan)
	for _, note := range dropped {
		p.logger.Warn("dropping plan step", "note", note)
	}
	if sanitized.TotalTarget <= 0 || sanitized.TotalTarget > target {
		sanitized.TotalTarget = target
	}
	if err := sanitized.Validate(); err != nil {
		return nil, err
	}
	return sanitized, nil
}

// LLMFallbackGenerator asks for a flat (title, artist) list and matches each to a catalog track.
type LLMFallbackGenerator struct {
	completer llm.Completer
	catalog   services.Catalog
	logger    *log.Logger
	inflation float64
}

// NewLLMFallbackGenerator creates a fallback generator. inflation over-asks to
// absorb suggestions that do not match; values below 1 are treated as 1.5.
func NewLLMFallbackGenerator(completer llm.Completer, catalog services.Catalog, inflation float64, logger *log.Logger) *LLMFallbackGenerator {
	if inflation < 1 {
		inflation = 1.5
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LLMFallbackGenerator{completer: completer, catalog: catalog, inflation: inflation, logger: logger}
}

func (g *LLMFallbackGenerator) Generate(ctx context.Context, request string, target int, rc *models.RunContext) ([]models.Track, error) {
	ask := int(float64(target)*g.inflation + 0.5)
	prompt := fmt.Sprintf("Request: %s\n\nSuggest %d real, released songs for this playlist.", request, ask)
	if banned := rc.Banned(); len(banned) > 0 {
		prompt += " Do not include any song by or featuring: " + strings.Join(banned, ", ") + "."
	}
	prompt += ` Respond with JSON: {"tracks": [{"title": "...", "artist": "..."}]}`

	resp, err := g.completer.Complete(ctx, llm.Request{
		System: "You are a music curator who only names songs that exist.",
		Prompt: prompt,
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}

	var suggestions []tools.Suggestion
	if err := llm.DecodeList(resp.Content, "tracks", &suggestions); err != nil {
		return nil, err
	}

	slots := make([]*models.Track, len(suggestions))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(5)
	for i, s := range suggestions {
		eg.Go(func() error {
			t, err := tools.MatchTrack(egctx, g.catalog, s.Title, s.Artist, rc.Market)
			if err != nil {
				g.logger.Debug("fallback suggestion unmatched", "title", s.Title, "artist", s.Artist)
				return nil
			}
			slots[i] = t
			return nil
		})
	}
	_ = eg.Wait()

	var out []models.Track
	for _, t := range slots {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, nil
}
