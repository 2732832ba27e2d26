package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/cache"
	"github.com/desertthunder/mixtape/internal/models"
)

// ResolutionStore implements [cache.Cache] on the resolution_cache table.
//
// The cache interface has no error returns, so storage failures are logged and
// treated as misses.
type ResolutionStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

// NewResolutionStore creates a store. A zero ttl disables expiry.
func NewResolutionStore(db *sql.DB, ttl time.Duration, logger *log.Logger) *ResolutionStore {
	if logger == nil {
		logger = log.Default()
	}
	return &ResolutionStore{db: db, ttl: ttl, logger: logger, now: time.Now}
}

// Get returns the unexpired entry stored under key.
func (s *ResolutionStore) Get(key string) (cache.Entry, bool) {
	entry, err := s.Find(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("resolution cache read failed", "key", key, "error", err)
		}
		return cache.Entry{}, false
	}
	if s.ttl > 0 && s.now().Sub(entry.StoredAt) > s.ttl {
		return cache.Entry{}, false
	}
	return *entry, true
}

// Set upserts entry under key.
func (s *ResolutionStore) Set(key string, entry cache.Entry) {
	if err := s.Save(key, entry); err != nil {
		s.logger.Warn("resolution cache write failed", "key", key, "error", err)
	}
}

// Purge deletes every cached resolution.
func (s *ResolutionStore) Purge() {
	if _, err := s.db.Exec("DELETE FROM resolution_cache"); err != nil {
		s.logger.Warn("resolution cache purge failed", "error", err)
	}
}

// Find retrieves the entry for key regardless of age.
func (s *ResolutionStore) Find(key string) (*cache.Entry, error) {
	query := `
		SELECT requested, artist_id, artist_name, popularity, followers, genres, method, confidence, stored_at
		FROM resolution_cache
		WHERE cache_key = ?
	`

	var (
		entry      cache.Entry
		genresJSON string
		method     string
	)
	err := s.db.QueryRow(query, key).Scan(
		&entry.Resolution.Requested,
		&entry.Artist.ID,
		&entry.Artist.Name,
		&entry.Artist.Popularity,
		&entry.Artist.Followers,
		&genresJSON,
		&method,
		&entry.Resolution.Confidence,
		&entry.StoredAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("resolution %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resolution: %w", err)
	}

	if err := json.Unmarshal([]byte(genresJSON), &entry.Artist.Genres); err != nil {
		return nil, fmt.Errorf("failed to decode genres: %w", err)
	}
	entry.Resolution.Method = models.ResolutionMethod(method)
	entry.Resolution.ResolvedID = entry.Artist.ID
	entry.Resolution.ResolvedName = entry.Artist.Name
	return &entry, nil
}

// Save upserts entry under key, stamping StoredAt when unset.
func (s *ResolutionStore) Save(key string, entry cache.Entry) error {
	if entry.Artist.ID == "" {
		return fmt.Errorf("refusing to cache resolution %q without an artist id", key)
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = s.now()
	}

	genres, err := json.Marshal(entry.Artist.Genres)
	if err != nil {
		return fmt.Errorf("failed to encode genres: %w", err)
	}
	if entry.Artist.Genres == nil {
		genres = []byte("[]")
	}

	query := `
		INSERT INTO resolution_cache (cache_key, requested, artist_id, artist_name, popularity, followers, genres, method, confidence, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			requested = excluded.requested,
			artist_id = excluded.artist_id,
			artist_name = excluded.artist_name,
			popularity = excluded.popularity,
			followers = excluded.followers,
			genres = excluded.genres,
			method = excluded.method,
			confidence = excluded.confidence,
			stored_at = excluded.stored_at
	`

	_, err = s.db.Exec(query,
		key,
		entry.Resolution.Requested,
		entry.Artist.ID,
		entry.Artist.Name,
		entry.Artist.Popularity,
		entry.Artist.Followers,
		string(genres),
		string(entry.Resolution.Method),
		entry.Resolution.Confidence,
		entry.StoredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert resolution: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *ResolutionStore) Delete(key string) error {
	result, err := s.db.Exec("DELETE FROM resolution_cache WHERE cache_key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete resolution: %w", err)
	}
	return requireOneRow(result, "resolution "+key)
}

// PruneExpired deletes entries older than the store's TTL and returns how many were removed.
func (s *ResolutionStore) PruneExpired() (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl).UTC()
	result, err := s.db.Exec("DELETE FROM resolution_cache WHERE stored_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune resolutions: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stored entries.
func (s *ResolutionStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM resolution_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count resolutions: %w", err)
	}
	return n, nil
}
