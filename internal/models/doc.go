// Package models defines the domain types shared by the mixtape generation engine.
//
// The package contains three categories of types:
//
// 1. Catalog values: immutable data produced by the music catalog
//   - [Track] : a playable recording with its contributing artists
//   - [CatalogArtist] : artist metadata used for resolution and ranking
//   - [CatalogPlaylist] : playlist metadata used for consensus voting
//
// 2. Plan values: the planner's structured output
//   - [ExecutionPlan] : ordered tool calls, fill strategy and target
//   - [ToolCall] : one planned tool invocation with its parameters
//
// 3. Run state and results
//   - [RunContext] : the mutable per-run accumulator owned by the orchestrator
//   - [ArtistResolution] : the outcome of resolving a free-text artist name
//   - [ConsensusEntry] : a track with the playlists that agreed on it
package models
