package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/desertthunder/mixtape/internal/shared"
)

// ToolName identifies one of the executor's tools.
type ToolName string

const (
	ToolArtistTracks       ToolName = "get_artist_tracks"
	ToolCollaborations     ToolName = "get_collaborations"
	ToolSimilarStyle       ToolName = "get_similar_style"
	ToolCreativeTracks     ToolName = "generate_creative_tracks"
	ToolSearchPlaylists    ToolName = "search_playlists"
	ToolAdjustDistribution ToolName = "adjust_distribution"
)

// AllTools lists every tool in catalog order.
var AllTools = []ToolName{
	ToolArtistTracks,
	ToolCollaborations,
	ToolSimilarStyle,
	ToolCreativeTracks,
	ToolSearchPlaylists,
	ToolAdjustDistribution,
}

// FillStrategy decides which artists are eligible when the run must fill a gap.
type FillStrategy string

const (
	FillOnlyRequested   FillStrategy = "only_requested_artists"
	FillSimilarArtists  FillStrategy = "similar_artists"
	FillAnyFromGenre    FillStrategy = "any_from_genre"
	FillRecommendations FillStrategy = "recommendations"
)

// Valid reports whether s is a known strategy.
func (s FillStrategy) Valid() bool {
	switch s {
	case FillOnlyRequested, FillSimilarArtists, FillAnyFromGenre, FillRecommendations:
		return true
	}
	return false
}

// ExecutionPlan is the planner's decomposition of a request.
type ExecutionPlan struct {
	Reasoning        []string     `json:"reasoning"`
	Steps            []ToolCall   `json:"steps"`
	TotalTarget      int          `json:"total_target"`
	FillStrategy     FillStrategy `json:"fill_strategy"`
	RequestedArtists []string     `json:"requested_artists"`
}

// Validate checks the plan has something to execute.
func (p *ExecutionPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: plan is nil", shared.ErrPlanGeneration)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan has no steps", shared.ErrPlanGeneration)
	}
	for i, step := range p.Steps {
		if step.Tool == "" {
			return fmt.Errorf("%w: step %d has no tool", shared.ErrPlanGeneration, i)
		}
	}
	if p.FillStrategy != "" && !p.FillStrategy.Valid() {
		return fmt.Errorf("%w: unknown fill strategy %q", shared.ErrPlanGeneration, p.FillStrategy)
	}
	return nil
}

// ToolCall is one planned tool invocation.
type ToolCall struct {
	Tool   ToolName       `json:"tool"`
	Params map[string]any `json:"params"`
	Reason string         `json:"reason,omitempty"`
}

// NewToolCall builds a call with a fresh parameter map.
func NewToolCall(tool ToolName, reason string, params map[string]any) ToolCall {
	if params == nil {
		params = map[string]any{}
	}
	return ToolCall{Tool: tool, Params: params, Reason: reason}
}

// String returns a string parameter, or def when missing.
func (c ToolCall) String(key, def string) string {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return def
		}
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integer parameter. JSON numbers and numeric strings are accepted.
func (c ToolCall) Int(key string, def int) int {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(math.Round(n))
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// OptionalInt returns the parameter and whether it was present and numeric.
func (c ToolCall) OptionalInt(key string) (int, bool) {
	const sentinel = math.MinInt
	v := c.Int(key, sentinel)
	return v, v != sentinel
}

// Bool returns a boolean parameter. "true"/"false" strings are accepted.
func (c ToolCall) Bool(key string, def bool) bool {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return def
}

// Strings returns a list parameter. A single string is treated as a one-element list.
func (c ToolCall) Strings(key string) []string {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return nil
	}
	var out []string
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case string:
		out = append(out, list)
	}

	cleaned := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}
