package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/mixtape/internal/cache"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testEntry(id, name string) cache.Entry {
	return cache.Entry{
		Artist: models.CatalogArtist{ID: id, Name: name, Popularity: 88, Followers: 1000, Genres: []string{"latin trap"}},
		Resolution: models.ArtistResolution{
			Requested:  name,
			Method:     models.MethodExact,
			Confidence: 1,
		},
	}
}

func TestResolutionStore(t *testing.T) {
	t.Run("Save and Find", func(t *testing.T) {
		store := NewResolutionStore(setupTestDB(t), time.Hour, nil)

		if err := store.Save("bad bunny|US", testEntry("a1", "Bad Bunny")); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		entry, err := store.Find("bad bunny|US")
		if err != nil {
			t.Fatalf("failed to find: %v", err)
		}
		if entry.Artist.ID != "a1" || entry.Resolution.ResolvedID != "a1" {
			t.Errorf("unexpected entry %+v", entry)
		}
		if len(entry.Artist.Genres) != 1 || entry.Artist.Genres[0] != "latin trap" {
			t.Errorf("genres not restored: %v", entry.Artist.Genres)
		}
		if entry.Resolution.Method != models.MethodExact {
			t.Errorf("expected exact method, got %s", entry.Resolution.Method)
		}
	})

	t.Run("Set upserts", func(t *testing.T) {
		store := NewResolutionStore(setupTestDB(t), time.Hour, nil)
		store.Set("k", testEntry("a1", "One"))
		store.Set("k", testEntry("a2", "Two"))

		entry, ok := store.Get("k")
		if !ok || entry.Artist.ID != "a2" {
			t.Errorf("expected upserted entry, got %+v %v", entry, ok)
		}
		if n, _ := store.Count(); n != 1 {
			t.Errorf("expected 1 row, got %d", n)
		}
	})

	t.Run("Get honours ttl", func(t *testing.T) {
		store := NewResolutionStore(setupTestDB(t), time.Minute, nil)
		old := testEntry("a1", "Old")
		old.StoredAt = time.Now().Add(-time.Hour)
		store.Set("old", old)
		store.Set("fresh", testEntry("a2", "Fresh"))

		if _, ok := store.Get("old"); ok {
			t.Error("expired entry should miss")
		}
		if _, ok := store.Get("fresh"); !ok {
			t.Error("fresh entry should hit")
		}

		removed, err := store.PruneExpired()
		if err != nil {
			t.Fatalf("PruneExpired failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("expected 1 pruned row, got %d", removed)
		}
	})

	t.Run("rejects entries without artist", func(t *testing.T) {
		store := NewResolutionStore(setupTestDB(t), 0, nil)
		if err := store.Save("k", cache.Entry{}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("Delete and Purge", func(t *testing.T) {
		store := NewResolutionStore(setupTestDB(t), 0, nil)
		store.Set("a", testEntry("a1", "A"))
		store.Set("b", testEntry("b1", "B"))

		if err := store.Delete("a"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := store.Delete("a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		store.Purge()
		if n, _ := store.Count(); n != 0 {
			t.Errorf("expected empty table, got %d", n)
		}
	})

	t.Run("miss", func(t *testing.T) {
		store := NewResolutionStore(setupTestDB(t), 0, nil)
		if _, ok := store.Get("missing"); ok {
			t.Error("unexpected hit")
		}
		if _, err := store.Find("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Record and Get", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		summary := models.RunSummary{
			RunID:           "run-1",
			TrackCount:      28,
			TargetTracks:    30,
			DistinctArtists: 12,
			AvgPopularity:   61.5,
			Fallback:        true,
			Duration:        2500 * time.Millisecond,
			CompletedAt:     time.Now(),
		}
		if err := repo.Record(ctx, summary); err != nil {
			t.Fatalf("Record failed: %v", err)
		}

		got, err := repo.Get(ctx, "run-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.TrackCount != 28 || !got.Fallback || got.Duration != 2500*time.Millisecond {
			t.Errorf("unexpected summary %+v", got)
		}
	})

	t.Run("Recent orders newest first", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		base := time.Now()
		for i, id := range []string{"a", "b", "c"} {
			s := models.RunSummary{RunID: id, CompletedAt: base.Add(time.Duration(i) * time.Minute)}
			if err := repo.Record(ctx, s); err != nil {
				t.Fatalf("Record failed: %v", err)
			}
		}

		runs, err := repo.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(runs) != 2 || runs[0].RunID != "c" || runs[1].RunID != "b" {
			t.Errorf("unexpected order %+v", runs)
		}
	})

	t.Run("errors", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		if err := repo.Record(ctx, models.RunSummary{}); err == nil {
			t.Error("expected error without run id")
		}
		if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
