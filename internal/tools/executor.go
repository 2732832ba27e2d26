// Package tools implements the six retrieval tools a plan can call and the
// executor that dispatches to them.
//
// Every tool but adjust_distribution goes through the same post-filter: tracks
// without an ID, already used in the run, or crediting a banned artist are dropped.
// A failing or panicking tool yields an empty [Result] with Err set; it never
// fails the run.
package tools

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/balancer"
	"github.com/desertthunder/mixtape/internal/consensus"
	"github.com/desertthunder/mixtape/internal/llm"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/resolver"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
)

// Result is the outcome of one tool call.
type Result struct {
	Tool     models.ToolName
	Tracks   []models.Track
	Metadata map[string]any
	// Replace is set by adjust_distribution: Tracks is the new run list, not an addition.
	Replace bool
	Err     error
	Elapsed time.Duration
}

// Observer is notified after every tool call.
type Observer interface {
	ToolFinished(tool models.ToolName, tracks int, elapsed time.Duration, err error)
}

// Config holds tool thresholds.
type Config struct {
	PopularThreshold int
	PriorityCap      int
	OthersCap        int
}

// DefaultConfig matches the [engine] defaults.
func DefaultConfig() Config {
	return Config{PopularThreshold: 50, PriorityCap: balancer.DefaultPriorityCap, OthersCap: balancer.DefaultOthersCap}
}

// ConfigFromEngine reads tool thresholds from the [engine] config section.
func ConfigFromEngine(e shared.EngineConfig) Config {
	cfg := DefaultConfig()
	if e.PopularThreshold > 0 {
		cfg.PopularThreshold = e.PopularThreshold
	}
	if e.PriorityCap > 0 {
		cfg.PriorityCap = e.PriorityCap
	}
	if e.OthersCap > 0 {
		cfg.OthersCap = e.OthersCap
	}
	return cfg
}

// Option configures an [Executor].
type Option func(*Executor)

// WithCompleter sets the generative collaborator used by generate_creative_tracks.
func WithCompleter(c llm.Completer) Option {
	return func(e *Executor) { e.completer = c }
}

// WithObserver registers a tool call observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithConfig replaces the tool thresholds.
func WithConfig(cfg Config) Option {
	return func(e *Executor) { e.cfg = cfg }
}

// WithLogger sets the executor logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithRand sets the random source used by adjust_distribution.
func WithRand(r *rand.Rand) Option {
	return func(e *Executor) { e.rng = r }
}

// Executor dispatches tool calls.
type Executor struct {
	catalog   services.Catalog
	resolver  *resolver.Resolver
	collector *consensus.Collector
	completer llm.Completer
	observer  Observer
	cfg       Config
	logger    *log.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type toolFunc func(ctx context.Context, call models.ToolCall, rc *models.RunContext) ([]models.Track, map[string]any, error)

// NewExecutor creates an executor over catalog.
func NewExecutor(catalog services.Catalog, res *resolver.Resolver, collector *consensus.Collector, opts ...Option) *Executor {
	e := &Executor{
		catalog:   catalog,
		resolver:  res,
		collector: collector,
		cfg:       DefaultConfig(),
		logger:    log.Default(),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsEvent reports whether text reads as a festival or event request.
func (e *Executor) IsEvent(text string) bool {
	return e.collector.IsEvent(text)
}

// Execute runs call and applies its result to rc: accepted tracks are appended
// and marked used, and adjust_distribution replaces the list.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall, rc *models.RunContext) Result {
	res := e.Run(ctx, call, rc)
	if res.Err != nil {
		return res
	}
	if res.Replace {
		rc.Replace(res.Tracks)
		return res
	}
	rc.Append(res.Tracks...)
	return res
}

// Run executes call and post-filters its output without touching rc.
func (e *Executor) Run(ctx context.Context, call models.ToolCall, rc *models.RunContext) (res Result) {
	start := time.Now()
	res = Result{Tool: call.Tool}
	logger := e.logger.With("tool", call.Tool)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool panicked", "panic", r, "stack", string(debug.Stack()))
			res = Result{Tool: call.Tool, Err: fmt.Errorf("%w: %s panicked: %v", shared.ErrToolExecution, call.Tool, r)}
		}
		res.Elapsed = time.Since(start)
		if e.observer != nil {
			e.observer.ToolFinished(call.Tool, len(res.Tracks), res.Elapsed, res.Err)
		}
	}()

	if call.Tool == models.ToolAdjustDistribution {
		res.Tracks, res.Metadata = e.adjustDistribution(call, rc)
		res.Replace = true
		return res
	}

	fn, ok := e.dispatch(call.Tool)
	if !ok {
		res.Err = fmt.Errorf("%w: %q", shared.ErrUnknownTool, call.Tool)
		logger.Warn("unknown tool")
		return res
	}

	tracks, meta, err := fn(ctx, call, rc)
	if err != nil {
		logger.Warn("tool failed", "error", err, "reason", call.Reason)
		res.Err = fmt.Errorf("%w: %s: %w", shared.ErrToolExecution, call.Tool, err)
		res.Metadata = meta
		return res
	}

	res.Tracks = PostFilter(tracks, rc)
	res.Metadata = meta
	logger.Debug("tool finished", "candidates", len(tracks), "accepted", len(res.Tracks))
	return res
}

func (e *Executor) dispatch(name models.ToolName) (toolFunc, bool) {
	switch name {
	case models.ToolArtistTracks:
		return e.artistTracks, true
	case models.ToolCollaborations:
		return e.collaborations, true
	case models.ToolSimilarStyle:
		return e.similarStyle, true
	case models.ToolCreativeTracks:
		return e.creativeTracks, true
	case models.ToolSearchPlaylists:
		return e.searchPlaylists, true
	}
	return nil, false
}

// PostFilter keeps tracks that have an ID, are not yet used in rc, credit no
// banned artist and have not already appeared earlier in tracks.
func PostFilter(tracks []models.Track, rc *models.RunContext) []models.Track {
	seen := make(map[string]struct{}, len(tracks))
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if !rc.Accepts(t) {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

// constrained returns the resolver view for rc's banned set.
func (e *Executor) constrained(rc *models.RunContext) *resolver.Resolver {
	return e.resolver.Constrained(rc.BannedSet())
}

// accumulator gathers tracks up to a limit, skipping anything the run would reject.
type accumulator struct {
	rc     *models.RunContext
	limit  int
	seen   map[string]struct{}
	tracks []models.Track
}

func newAccumulator(rc *models.RunContext, limit int) *accumulator {
	return &accumulator{rc: rc, limit: limit, seen: make(map[string]struct{})}
}

// add appends tracks passing keep until full and returns how many were added.
func (a *accumulator) add(tracks []models.Track, keep func(models.Track) bool) int {
	added := 0
	for _, t := range tracks {
		if a.full() {
			break
		}
		if _, dup := a.seen[t.ID]; dup || !a.rc.Accepts(t) {
			continue
		}
		if keep != nil && !keep(t) {
			continue
		}
		a.seen[t.ID] = struct{}{}
		a.tracks = append(a.tracks, t)
		added++
	}
	return added
}

func (a *accumulator) full() bool {
	return a.limit > 0 && len(a.tracks) >= a.limit
}

// otherRequested lists the run's requested artists other than name.
func otherRequested(rc *models.RunContext, name string) []string {
	key := shared.NormalizeName(name)
	var out []string
	for _, r := range rc.Requested {
		if shared.NormalizeName(r) != key {
			out = append(out, r)
		}
	}
	return out
}
