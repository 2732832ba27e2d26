package tools

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"gopkg.in/yaml.v3"
)

//go:embed tools.yaml
var catalogYAML []byte

// Parameter describes one tool argument.
type Parameter struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	Description string `yaml:"description" json:"description"`
}

// Definition describes one tool the planner may call.
type Definition struct {
	Name        models.ToolName `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Parameters  []Parameter     `yaml:"parameters" json:"parameters"`
}

// Strategy describes one fill strategy.
type Strategy struct {
	Name        models.FillStrategy `yaml:"name" json:"name"`
	Description string              `yaml:"description" json:"description"`
}

// Catalog is the static tool catalog handed to the planner.
type Catalog struct {
	Version        string       `yaml:"version" json:"version"`
	Preamble       string       `yaml:"preamble" json:"-"`
	Rules          []string     `yaml:"rules" json:"rules"`
	FillStrategies []Strategy   `yaml:"fill_strategies" json:"fill_strategies"`
	Tools          []Definition `yaml:"tools" json:"tools"`
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded tool catalog.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(catalogYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// ParseCatalog decodes a YAML tool catalog and checks it declares exactly the known tools.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: parse tool catalog: %w", shared.ErrInvalidConfig, err)
	}

	declared := make(map[models.ToolName]bool, len(c.Tools))
	for _, def := range c.Tools {
		if !isKnown(def.Name) {
			return nil, fmt.Errorf("%w: %q", shared.ErrUnknownTool, def.Name)
		}
		declared[def.Name] = true
	}
	for _, name := range models.AllTools {
		if !declared[name] {
			return nil, fmt.Errorf("%w: tool catalog is missing %s", shared.ErrInvalidConfig, name)
		}
	}
	return &c, nil
}

func isKnown(name models.ToolName) bool {
	for _, known := range models.AllTools {
		if name == known {
			return true
		}
	}
	return false
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name models.ToolName) (Definition, bool) {
	for _, def := range c.Tools {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// Sanitize drops steps naming tools outside the catalog and steps missing a
// required parameter, returning the kept plan and a note per dropped step.
func (c *Catalog) Sanitize(plan *models.ExecutionPlan) (*models.ExecutionPlan, []string) {
	var dropped []string
	kept := *plan
	kept.Steps = make([]models.ToolCall, 0, len(plan.Steps))

	for i, step := range plan.Steps {
		def, ok := c.Lookup(step.Tool)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("step %d: unknown tool %q", i+1, step.Tool))
			continue
		}
		if missing := missingRequired(def, step); missing != "" {
			dropped = append(dropped, fmt.Sprintf("step %d: %s missing %s", i+1, step.Tool, missing))
			continue
		}
		kept.Steps = append(kept.Steps, step)
	}
	return &kept, dropped
}

func missingRequired(def Definition, step models.ToolCall) string {
	for _, p := range def.Parameters {
		if !p.Required {
			continue
		}
		v, ok := step.Params[p.Name]
		if !ok || v == nil {
			return p.Name
		}
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) == "" {
				return p.Name
			}
		case []any:
			if len(val) == 0 {
				return p.Name
			}
		}
	}
	return ""
}

// SystemPrompt renders the planner instructions: preamble, rules, fill strategies,
// tool list and the JSON shape of a plan.
func (c *Catalog) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(c.Preamble))
	b.WriteString("\n\nRules:\n")
	for _, r := range c.Rules {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	b.WriteString("\nFill strategies (how gaps are filled when the tools come up short):\n")
	for _, s := range c.FillStrategies {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}

	b.WriteString("\nTools:\n")
	for _, def := range c.Tools {
		fmt.Fprintf(&b, "\n%s: %s\n", def.Name, def.Description)
		for _, p := range def.Parameters {
			fmt.Fprintf(&b, "  - %s (%s", p.Name, p.Type)
			if p.Required {
				b.WriteString(", required")
			}
			if p.Default != nil {
				fmt.Fprintf(&b, ", default %v", p.Default)
			}
			fmt.Fprintf(&b, "): %s\n", p.Description)
		}
	}

	example := models.ExecutionPlan{
		Reasoning:        []string{"why these steps"},
		Steps:            []models.ToolCall{models.NewToolCall(models.ToolArtistTracks, "requested artist", map[string]any{"artist": "Name", "limit": 10})},
		TotalTarget:      30,
		FillStrategy:     models.FillSimilarArtists,
		RequestedArtists: []string{"Name"},
	}
	shape, _ := json.MarshalIndent(example, "", "  ")
	b.WriteString("\nRespond with a single JSON object shaped like:\n")
	b.Write(shape)
	b.WriteString("\n")
	return b.String()
}
