package tasks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
)

const analysisTimeout = 30 * time.Second

// AnalysisSink stores post-run summaries. [repositories.RunRepository] implements it.
type AnalysisSink interface {
	Record(ctx context.Context, summary models.RunSummary) error
}

// LogSink writes summaries to a logger.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Record(_ context.Context, summary models.RunSummary) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Info("run summary",
		"run_id", summary.RunID, "tracks", summary.TrackCount, "target", summary.TargetTracks,
		"artists", summary.DistinctArtists, "avg_popularity", fmt.Sprintf("%.1f", summary.AvgPopularity),
		"fallback", summary.Fallback, "duration", summary.Duration)
	return nil
}

// AnalysisQueue runs post-run analysis on background workers.
//
// Jobs run under their own context, so a finished or cancelled request never
// cancels its analysis, and a failing or panicking sink is only logged.
type AnalysisQueue struct {
	sink   AnalysisSink
	logger *log.Logger
	jobs   chan models.RunSummary
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAnalysisQueue starts workers draining a queue of the given buffer size.
func NewAnalysisQueue(sink AnalysisSink, workers, buffer int, logger *log.Logger) *AnalysisQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = log.Default()
	}

	q := &AnalysisQueue{sink: sink, logger: logger, jobs: make(chan models.RunSummary, buffer)}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Enqueue schedules a summary without blocking. It reports false when the
// queue is full or closed and the summary was dropped.
func (q *AnalysisQueue) Enqueue(summary models.RunSummary) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- summary:
		return true
	default:
		q.logger.Warn("analysis queue full, dropping summary", "run_id", summary.RunID)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones until ctx is done.
func (q *AnalysisQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *AnalysisQueue) work() {
	defer q.wg.Done()
	for summary := range q.jobs {
		q.process(summary)
	}
}

func (q *AnalysisQueue) process(summary models.RunSummary) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("analysis panicked", "run_id", summary.RunID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	if err := q.sink.Record(ctx, summary); err != nil {
		q.logger.Warn("analysis failed", "run_id", summary.RunID, "error", err)
	}
}

// UsageSink receives telemetry events. Ingest must not block the caller for long.
type UsageSink interface {
	Ingest(eventType string, payload map[string]any)
}

// LogUsageSink logs usage events at debug level.
type LogUsageSink struct {
	Logger *log.Logger
}

func (s LogUsageSink) Ingest(eventType string, payload map[string]any) {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	kv := make([]any, 0, len(payload)*2+2)
	kv = append(kv, "event", eventType)
	for k, v := range payload {
		kv = append(kv, k, v)
	}
	logger.Debug("usage", kv...)
}
