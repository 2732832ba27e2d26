// Package repositories implements SQLite persistence for the engine.
//
// Key Implementations:
//   - [ResolutionStore] : a [cache.Cache] backed by the resolution_cache table, selected with cache.driver = "sqlite"
//   - [RunRepository] : post-run summaries written by the analysis worker
//
// Schema lives in the embedded migrations of the shared package; callers run
// [shared.RunMigrations] before constructing a repository.
package repositories
