package shared

import (
	"database/sql"
	"testing"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ConfigureDatabase(db, 1, 1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count); err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrations(t *testing.T) {
	t.Run("loadMigrations pairs files", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("loadMigrations failed: %v", err)
		}
		if len(migrations) < 2 {
			t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
		}
		for i, m := range migrations {
			if m.Version != i {
				t.Errorf("expected version %d at index %d, got %d", i, i, m.Version)
			}
		}
	})

	t.Run("RunMigrations creates tables", func(t *testing.T) {
		db := openMemory(t)
		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations failed: %v", err)
		}

		for _, table := range []string{"schema_migrations", "resolution_cache", "generation_runs"} {
			if !tableExists(t, db, table) {
				t.Errorf("expected table %s to exist", table)
			}
		}
	})

	t.Run("RunMigrations is idempotent", func(t *testing.T) {
		db := openMemory(t)
		if err := RunMigrations(db); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("second run failed: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 recorded migrations, got %d", count)
		}
	})

	t.Run("RollbackMigration drops the latest", func(t *testing.T) {
		db := openMemory(t)
		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations failed: %v", err)
		}
		if err := RollbackMigration(db); err != nil {
			t.Fatalf("RollbackMigration failed: %v", err)
		}

		if tableExists(t, db, "generation_runs") {
			t.Error("generation_runs should be dropped")
		}
		if !tableExists(t, db, "resolution_cache") {
			t.Error("resolution_cache should remain")
		}
	})

	t.Run("RollbackMigration with nothing applied", func(t *testing.T) {
		db := openMemory(t)
		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations failed: %v", err)
		}
		for range 2 {
			if err := RollbackMigration(db); err != nil {
				t.Fatalf("RollbackMigration failed: %v", err)
			}
		}
		if err := RollbackMigration(db); err == nil {
			t.Error("expected error when no migrations remain")
		}
	})
}

func TestStripSQLComments(t *testing.T) {
	got := stripSQLComments("-- header\nCREATE TABLE x (id INTEGER) -- trailing\n\n")
	if got != "CREATE TABLE x (id INTEGER)" {
		t.Errorf("stripSQLComments() = %q", got)
	}
}
