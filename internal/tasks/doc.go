// Package tasks turns a free-text request into a playlist with real-time progress reporting.
//
// # Run Loop
//
// [Engine.Generate] walks one run through these phases:
//
//  1. Planning : a [Planner] decomposes the request into tool calls
//     - Planner failure or an invalid plan switches to the [FallbackGenerator]
//     - Fallback results are marked with [Result.Fallback]
//
//  2. Executing : each tool call runs in plan order against one [models.RunContext]
//     - Failed tools contribute nothing and the run continues
//     - adjust_distribution steps are deferred to balancing
//
//  3. Gap check and fill tiers, each only while the run is short
//     - Emergency fill : similarity search seeded by banned artists
//     - Round fill : one track per fill artist per round, soft timeout for small gaps
//     - Domain fallback : extra playlist consensus for event requests
//     - Generative fallback : creative suggestions, never for event requests
//
//  4. Balancing : adjust_distribution always runs once before output
//
// A run that ends with no tracks fails with [shared.ErrNoTracks]; nothing is
// recorded for it.
//
// # Signals
//
// Banned and recommended artists are read from the request by a
// [TextSignalExtractor] and merged with the plan's exclusions and caller options.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains run ID, phase, step counters, messages,
// and optional data for advanced UI rendering. Updates use select with default
// to prevent blocking.
//
// # After a Run
//
// Completed runs are handed to a [UsageSink] and their summaries are queued on
// an [AnalysisQueue], which runs detached from the request and never reports
// back. [Metrics] exposes tool, tier and run counters to Prometheus.
package tasks
