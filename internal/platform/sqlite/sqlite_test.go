package sqlite

import (
	"testing"
)

func TestOpen_AppliesMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{
		"prefetch_jobs",
		"dividend_dps_cache",
		"dividend_events",
		"price_cache",
		"fx_rates",
		"holding_positions",
	} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after open: %v", table, err)
		}
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version < 1 {
		t.Errorf("schema version not recorded, user_version = %d", version)
	}
}

func TestMigrate_SkipsAppliedVersions(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(
		`INSERT INTO fx_rates (pair, date, rate) VALUES ('USDKRW', '2025-04-09', 1450)`,
	); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Re-running against an up-to-date database applies nothing and loses
	// nothing.
	if err := migrate(db.DB); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM fx_rates`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("row count after re-migrate = %d, want 1", n)
	}
}

func TestMigrationVersion(t *testing.T) {
	v, err := migrationVersion("migrations/001_initial.sql")
	if err != nil || v != 1 {
		t.Errorf("migrationVersion = %d, %v; want 1", v, err)
	}
	if _, err := migrationVersion("migrations/notes.sql"); err == nil {
		t.Error("expected error for a file without a version prefix")
	}
}
