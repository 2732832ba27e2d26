// Package cache holds artist resolutions across runs.
//
// A cache is injected into the resolver; it is never a package-level global.
// Entries are keyed by normalized name and market, expire after a TTL, and must
// pass [Valid] against the current run's banned set before they are reused.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

// Entry is one cached resolution.
type Entry struct {
	Artist     models.CatalogArtist
	Resolution models.ArtistResolution
	StoredAt   time.Time
}

// Cache stores resolutions between runs.
type Cache interface {
	Get(key string) (Entry, bool)
	Set(key string, entry Entry)
	Purge()
}

// Key builds the cache key for a requested name in a market.
func Key(name, market string) string {
	return shared.NormalizeName(name) + "|" + strings.ToUpper(strings.TrimSpace(market))
}

// Valid reports whether a cached entry may be reused under banned, a set of
// normalized artist names. Entries resolving to a banned artist are rejected
// even when the request spelled the name differently.
func Valid(entry Entry, banned map[string]struct{}) bool {
	if entry.Artist.ID == "" || !entry.Resolution.Method.Resolved() {
		return false
	}
	if _, ok := banned[shared.NormalizeName(entry.Artist.Name)]; ok {
		return false
	}
	for _, alias := range entry.Resolution.Aliases {
		if _, ok := banned[shared.NormalizeName(alias)]; ok {
			return false
		}
	}
	return true
}

// Memory is an in-process [Cache] with a TTL and a size bound. When full, the
// oldest entries are evicted.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemory creates a memory cache. A zero ttl disables expiry; a zero maxEntries disables the bound.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	return &Memory{
		entries:    make(map[string]Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) Get(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	if m.expired(entry) {
		delete(m.entries, key)
		return Entry{}, false
	}
	return entry, true
}

func (m *Memory) Set(key string, entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.StoredAt.IsZero() {
		entry.StoredAt = m.now()
	}
	m.entries[key] = entry
	m.evict()
}

func (m *Memory) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) expired(e Entry) bool {
	return m.ttl > 0 && m.now().Sub(e.StoredAt) > m.ttl
}

// evict drops expired entries, then the oldest until the bound holds. Caller holds mu.
func (m *Memory) evict() {
	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
		}
	}
	if m.maxEntries <= 0 || len(m.entries) <= m.maxEntries {
		return
	}

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return m.entries[keys[i]].StoredAt.Before(m.entries[keys[j]].StoredAt)
	})
	for _, k := range keys[:len(keys)-m.maxEntries] {
		delete(m.entries, k)
	}
}

// Noop is a [Cache] that stores nothing.
type Noop struct{}

func (Noop) Get(string) (Entry, bool) { return Entry{}, false }
func (Noop) Set(string, Entry)        {}
func (Noop) Purge()                   {}
