package tasks

import (
	"fmt"

	"github.com/desertthunder/mixtape/internal/models"
)

// ProgressUpdate represents a progress event during a generation run.
//
// Used to send real-time updates to the CLI, TUI or HTTP layer for display.
type ProgressUpdate struct {
	RunID   string // Run the update belongs to
	Phase   Phase  // Run phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Phase is a state of the run loop.
type Phase int

const (
	Planning Phase = iota
	Executing
	GapCheck
	EmergencyFill
	RoundFill
	DomainFallback
	GenerativeFallback
	Balancing
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Planning:
		return "planning"
	case Executing:
		return "executing"
	case GapCheck:
		return "gap_check"
	case EmergencyFill:
		return "emergency_fill"
	case RoundFill:
		return "round_fill"
	case DomainFallback:
		return "domain_fallback"
	case GenerativeFallback:
		return "generative_fallback"
	case Balancing:
		return "balancing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	return p == Done || p == Failed
}

// StepData is attached to [Executing] updates.
type StepData struct {
	Tool     models.ToolName `json:"tool"`
	Reason   string          `json:"reason,omitempty"`
	Accepted int             `json:"accepted"`
	Total    int             `json:"total"`
}

func planningUpdate(fallback bool) ProgressUpdate {
	msg := "Planning playlist..."
	if fallback {
		msg = "Planner unavailable, generating directly..."
	}
	return ProgressUpdate{Phase: Planning, Step: 1, Total: 1, Message: msg}
}

func executingUpdate(step, total int, call models.ToolCall) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Executing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Running %s...", call.Tool),
		Data:    StepData{Tool: call.Tool, Reason: call.Reason},
	}
}

func stepResultUpdate(step, total int, call models.ToolCall, accepted, have int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Executing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%s added %d tracks (%d so far)", call.Tool, accepted, have),
		Data:    StepData{Tool: call.Tool, Reason: call.Reason, Accepted: accepted, Total: have},
	}
}

func tierUpdate(phase Phase, have, target int) ProgressUpdate {
	var msg string
	switch phase {
	case GapCheck:
		msg = fmt.Sprintf("Checking results: %d of %d tracks", have, target)
	case EmergencyFill:
		msg = "Too few tracks, searching artists similar to the excluded ones..."
	case RoundFill:
		msg = fmt.Sprintf("Filling %d missing tracks from related artists...", target-have)
	case DomainFallback:
		msg = "Searching more event playlists..."
	case GenerativeFallback:
		msg = fmt.Sprintf("Generating suggestions for %d missing tracks...", target-have)
	case Balancing:
		msg = "Balancing artists..."
	default:
		msg = phase.String()
	}
	return ProgressUpdate{Phase: phase, Step: have, Total: target, Message: msg}
}

func doneUpdate(result *Result) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    len(result.Tracks),
		Total:   result.Summary.TargetTracks,
		Message: fmt.Sprintf("Generated %d tracks", len(result.Tracks)),
		Data:    result,
	}
}

func failedUpdate(err error) ProgressUpdate {
	return ProgressUpdate{Phase: Failed, Step: 1, Total: 1, Message: err.Error()}
}
