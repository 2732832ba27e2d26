// package tasks implements the generation run loop.
//
// The core abstraction is [Engine], which plans a request, executes the plan's
// tool calls against a shared [models.RunContext] and walks the fallback tiers
// until the target is met. Runs emit progress updates via channels for
// non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tools"
)

// Options are caller overrides applied on top of the plan.
type Options struct {
	Market           string   `json:"market,omitempty"`
	MaxPerArtist     *int     `json:"max_per_artist,omitempty"`
	AvoidConsecutive *bool    `json:"avoid_consecutive_same_artist,omitempty"`
	Shuffle          bool     `json:"shuffle,omitempty"`
	ExcludeArtists   []string `json:"exclude_artists,omitempty"`
	PriorityArtists  []string `json:"priority_artists,omitempty"`
}

// Request is one generation request.
type Request struct {
	Prompt       string  `json:"prompt"`
	TargetTracks int     `json:"target_tracks"`
	Options      Options `json:"options"`
}

// StepSummary reports what one executed step contributed.
type StepSummary struct {
	Tool     models.ToolName `json:"tool"`
	Reason   string          `json:"reason,omitempty"`
	Accepted int             `json:"accepted"`
	Error    string          `json:"error,omitempty"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// PlanSummary describes how a run was produced.
type PlanSummary struct {
	Reasoning        []string            `json:"reasoning,omitempty"`
	Steps            []StepSummary       `json:"steps"`
	FillStrategy     models.FillStrategy `json:"fill_strategy,omitempty"`
	RequestedArtists []string            `json:"requested_artists,omitempty"`
	BannedArtists    []string            `json:"banned_artists,omitempty"`
	Tiers            []Phase             `json:"tiers,omitempty"`
	Dropped          []string            `json:"dropped,omitempty"`
}

// Result is a completed run.
type Result struct {
	RunID       string            `json:"run_id"`
	Tracks      []models.Track    `json:"tracks"`
	PlanSummary PlanSummary       `json:"plan_summary"`
	Fallback    bool              `json:"fallback"`
	Summary     models.RunSummary `json:"summary"`
}

// GenerateError is returned when a run fails. Partial holds whatever the run
// had accumulated, which is empty for terminal failures.
type GenerateError struct {
	RunID   string
	Err     error
	Partial []models.Track
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("generation %s failed: %v", e.RunID, e.Err)
}

func (e *GenerateError) Unwrap() error { return e.Err }

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithFallback sets the generator used when planning fails.
func WithFallback(f FallbackGenerator) EngineOption {
	return func(e *Engine) { e.fallback = f }
}

// WithExtractor replaces the default [PatternExtractor].
func WithExtractor(x TextSignalExtractor) EngineOption {
	return func(e *Engine) { e.extractor = x }
}

// WithAnalysis enqueues completed run summaries on q.
func WithAnalysis(q *AnalysisQueue) EngineOption {
	return func(e *Engine) { e.analysis = q }
}

// WithUsage sets the telemetry sink.
func WithUsage(u UsageSink) EngineOption {
	return func(e *Engine) { e.usage = u }
}

// WithMetrics records tier and run metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithEngineConfig sets the run thresholds. Zero fields keep their defaults.
func WithEngineConfig(cfg shared.EngineConfig) EngineOption {
	return func(e *Engine) { e.cfg = withEngineDefaults(cfg) }
}

// WithMarket sets the default catalog market.
func WithMarket(market string) EngineOption {
	return func(e *Engine) { e.market = market }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEngineRand seeds fill ordering, for tests.
func WithEngineRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

// Engine runs generation requests. It is safe for concurrent use; each run
// owns its [models.RunContext].
type Engine struct {
	catalog   services.Catalog
	executor  *tools.Executor
	planner   Planner
	fallback  FallbackGenerator
	extractor TextSignalExtractor
	analysis  *AnalysisQueue
	usage     UsageSink
	metrics   *Metrics
	cfg       shared.EngineConfig
	market    string
	logger    *log.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates an engine. planner may be nil, in which case every run
// goes straight to the fallback generator.
func NewEngine(catalog services.Catalog, executor *tools.Executor, planner Planner, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:   catalog,
		executor:  executor,
		planner:   planner,
		extractor: PatternExtractor{},
		cfg:       withEngineDefaults(shared.EngineConfig{}),
		logger:    log.Default(),
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6d697874)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func withEngineDefaults(c shared.EngineConfig) shared.EngineConfig {
	if c.DefaultTarget <= 0 {
		c.DefaultTarget = 30
	}
	if c.MaxTarget <= 0 {
		c.MaxTarget = 100
	}
	if c.EmergencyDivisor <= 0 {
		c.EmergencyDivisor = 3
	}
	if c.SmallGap <= 0 {
		c.SmallGap = 3
	}
	if c.FillBatchSize <= 0 {
		c.FillBatchSize = 5
	}
	if c.MaxFillRounds <= 0 {
		c.MaxFillRounds = 10
	}
	if c.MaxFillArtists <= 0 {
		c.MaxFillArtists = 12
	}
	if c.GenerativeInflation < 1 {
		c.GenerativeInflation = 1.5
	}
	return c
}

// Target clamps a requested track count to the configured range.
func (e *Engine) Target(requested int) int {
	if requested <= 0 {
		return min(e.cfg.DefaultTarget, e.cfg.MaxTarget)
	}
	return min(requested, e.cfg.MaxTarget)
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, runID string, update ProgressUpdate) {
	if progress == nil {
		return
	}
	update.RunID = runID
	select {
	case progress <- update:
	default:
	}
}

// run is the state of one Generate call.
type run struct {
	id       string
	rc       *models.RunContext
	plan     *models.ExecutionPlan
	balance  models.ToolCall
	summary  PlanSummary
	event    bool
	progress chan<- ProgressUpdate
	logger   *log.Logger
}

// Generate produces a playlist for req.
//
// Planner failures switch the run to the fallback generator and mark the
// result with Fallback. Tool failures never fail the run; only an empty list
// after every tier does, with [shared.ErrNoTracks].
func (e *Engine) Generate(ctx context.Context, req Request, progress chan<- ProgressUpdate) (*Result, error) {
	start := time.Now()
	runID := shared.GenerateID()
	if req.Prompt == "" {
		return nil, &GenerateError{RunID: runID, Err: fmt.Errorf("%w: prompt is required", shared.ErrInvalidInput)}
	}

	market := req.Options.Market
	if market == "" {
		market = e.market
	}
	r := &run{
		id:       runID,
		rc:       models.NewRunContext(req.Prompt, e.Target(req.TargetTracks), market),
		event:    e.executor.IsEvent(req.Prompt),
		progress: progress,
		logger:   e.logger.With("run_id", runID),
	}

	signals := e.extractor.Extract(req.Prompt)
	r.rc.Ban(signals.Banned...)
	r.rc.Ban(req.Options.ExcludeArtists...)

	r.logger.Info("generation started", "target", r.rc.Target, "event", r.event, "banned", r.rc.Banned())
	e.sendProgress(progress, runID, planningUpdate(false))

	plan, err := e.plan(ctx, req.Prompt, r.rc.Target)
	if err != nil {
		r.logger.Warn("planning failed, using fallback generator", "error", err)
		r.rc.AddPriority(signals.Recommended...)
		r.rc.AddPriority(req.Options.PriorityArtists...)
		return e.runFallback(ctx, r, req.Options, err, start)
	}

	r.plan = plan
	for _, step := range plan.Steps {
		r.rc.Ban(step.Strings("artists_to_exclude")...)
	}
	r.rc.AddPriority(signals.Recommended...)
	r.rc.AddPriority(req.Options.PriorityArtists...)
	r.rc.AddPriority(plan.RequestedArtists...)
	for _, name := range plan.RequestedArtists {
		if !r.rc.IsBanned(name) {
			r.rc.Requested = append(r.rc.Requested, name)
		}
	}
	r.summary = PlanSummary{
		Reasoning:        plan.Reasoning,
		FillStrategy:     plan.FillStrategy,
		RequestedArtists: r.rc.Requested,
	}
	r.balance = balanceCall(plan)

	e.execute(ctx, r)
	e.fill(ctx, r)
	e.finalBalance(ctx, r, req.Options)

	return e.finish(r, false, start)
}

func (e *Engine) plan(ctx context.Context, request string, target int) (*models.ExecutionPlan, error) {
	if e.planner == nil {
		return nil, fmt.Errorf("%w: no planner configured", shared.ErrPlanGeneration)
	}
	plan, err := e.planner.Plan(ctx, request, target)
	if err != nil {
		if !errors.Is(err, shared.ErrPlanGeneration) {
			err = fmt.Errorf("%w: %w", shared.ErrPlanGeneration, err)
		}
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// balanceCall returns the plan's last adjust_distribution step, or a corrective
// one when the plan has none.
func balanceCall(plan *models.ExecutionPlan) models.ToolCall {
	for i := len(plan.Steps) - 1; i >= 0; i-- {
		if plan.Steps[i].Tool == models.ToolAdjustDistribution {
			params := make(map[string]any, len(plan.Steps[i].Params))
			for k, v := range plan.Steps[i].Params {
				params[k] = v
			}
			return models.NewToolCall(models.ToolAdjustDistribution, plan.Steps[i].Reason, params)
		}
	}
	return models.NewToolCall(models.ToolAdjustDistribution, "enforce artist caps", nil)
}

// execute runs the plan's steps in order. adjust_distribution steps are
// deferred to the balancing phase so fill tiers are balanced too.
func (e *Engine) execute(ctx context.Context, r *run) {
	total := len(r.plan.Steps)
	for i, step := range r.plan.Steps {
		if ctx.Err() != nil {
			r.logger.Warn("run cancelled during execution", "step", i+1)
			return
		}
		if step.Tool == models.ToolAdjustDistribution {
			continue
		}

		e.sendProgress(r.progress, r.id, executingUpdate(i+1, total, step))
		before := r.rc.Len()
		res := e.executor.Execute(ctx, step, r.rc)
		accepted := r.rc.Len() - before

		s := StepSummary{Tool: step.Tool, Reason: step.Reason, Accepted: accepted, Elapsed: res.Elapsed}
		if res.Err != nil {
			s.Error = res.Err.Error()
		}
		r.summary.Steps = append(r.summary.Steps, s)
		r.logger.Debug("step finished", "step", i+1, "tool", step.Tool, "accepted", accepted, "have", r.rc.Len())
		e.sendProgress(r.progress, r.id, stepResultUpdate(i+1, total, step, accepted, r.rc.Len()))
	}
}

// finalBalance runs adjust_distribution once with caller overrides applied.
func (e *Engine) finalBalance(ctx context.Context, r *run, opts Options) {
	e.enterTier(r, Balancing)

	call := r.balance
	if call.Tool == "" {
		call = models.NewToolCall(models.ToolAdjustDistribution, "enforce artist caps", nil)
	}
	if opts.MaxPerArtist != nil && *opts.MaxPerArtist > 0 {
		call.Params["max_per_artist"] = *opts.MaxPerArtist
	}
	if opts.AvoidConsecutive != nil {
		call.Params["avoid_consecutive_same_artist"] = *opts.AvoidConsecutive
	}
	if opts.Shuffle {
		call.Params["shuffle"] = true
	}
	call.Params["total_target"] = r.rc.Target

	before := r.rc.Len()
	res := e.executor.Execute(ctx, call, r.rc)
	if res.Err != nil {
		r.logger.Warn("balancing failed, trimming to target", "error", res.Err)
	}
	if r.rc.Len() > r.rc.Target {
		r.rc.Replace(r.rc.Tracks()[:r.rc.Target])
	}
	r.summary.Steps = append(r.summary.Steps, StepSummary{
		Tool: call.Tool, Reason: call.Reason, Accepted: r.rc.Len(), Elapsed: res.Elapsed,
	})
	r.logger.Debug("balanced", "before", before, "after", r.rc.Len())
}

// runFallback is the single-shot path taken when planning fails.
func (e *Engine) runFallback(ctx context.Context, r *run, opts Options, cause error, start time.Time) (*Result, error) {
	e.sendProgress(r.progress, r.id, planningUpdate(true))
	r.summary = PlanSummary{Dropped: []string{cause.Error()}}

	if e.fallback == nil {
		return e.fail(r, fmt.Errorf("%w: %w", shared.ErrNoTracks, cause), start)
	}

	tracks, err := e.fallback.Generate(ctx, r.rc.Request, r.rc.Target, r.rc)
	if err != nil {
		r.logger.Warn("fallback generator failed", "error", err)
		return e.fail(r, fmt.Errorf("%w: %w", shared.ErrNoTracks, err), start)
	}
	accepted := r.rc.Append(tools.PostFilter(tracks, r.rc)...)
	r.summary.Steps = append(r.summary.Steps, StepSummary{Tool: "fallback_generator", Accepted: accepted})

	r.balance = models.NewToolCall(models.ToolAdjustDistribution, "enforce artist caps", nil)
	e.finalBalance(ctx, r, opts)
	return e.finish(r, true, start)
}

func (e *Engine) finish(r *run, fallback bool, start time.Time) (*Result, error) {
	if r.rc.Len() == 0 {
		return e.fail(r, shared.ErrNoTracks, start)
	}

	elapsed := time.Since(start)
	r.summary.BannedArtists = r.rc.Banned()
	result := &Result{
		RunID:       r.id,
		Tracks:      r.rc.Tracks(),
		PlanSummary: r.summary,
		Fallback:    fallback,
		Summary:     models.Summarize(r.id, r.rc.Tracks(), r.rc.Target, fallback, elapsed),
	}

	outcome := "done"
	if fallback {
		outcome = "fallback"
	}
	if e.metrics != nil {
		e.metrics.RunFinished(outcome, elapsed)
	}
	e.recordUsage(r, result)
	if e.analysis != nil {
		e.analysis.Enqueue(result.Summary)
	}

	r.logger.Info("generation finished", "tracks", len(result.Tracks), "target", r.rc.Target, "fallback", fallback, "elapsed", elapsed)
	e.sendProgress(r.progress, r.id, doneUpdate(result))
	return result, nil
}

func (e *Engine) fail(r *run, err error, start time.Time) (*Result, error) {
	if e.metrics != nil {
		e.metrics.RunFinished("failed", time.Since(start))
	}
	r.logger.Error("generation failed", "error", err)
	e.sendProgress(r.progress, r.id, failedUpdate(err))
	return nil, &GenerateError{RunID: r.id, Err: err, Partial: r.rc.Tracks()}
}

// recordUsage hands the completion event to the usage sink without waiting on it.
func (e *Engine) recordUsage(r *run, result *Result) {
	if e.usage == nil {
		return
	}
	payload := map[string]any{
		"run_id":   result.RunID,
		"tracks":   len(result.Tracks),
		"target":   r.rc.Target,
		"fallback": result.Fallback,
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("usage sink panicked", "panic", rec)
			}
		}()
		e.usage.Ingest("generation_completed", payload)
	}()
}

func (e *Engine) enterTier(r *run, phase Phase) {
	r.summary.Tiers = append(r.summary.Tiers, phase)
	if e.metrics != nil {
		e.metrics.TierEntered(phase)
	}
	r.logger.Debug("entering tier", "phase", phase, "have", r.rc.Len(), "target", r.rc.Target)
	e.sendProgress(r.progress, r.id, tierUpdate(phase, r.rc.Len(), r.rc.Target))
}
