package integration

import (
	"testing"

	"github.com/fhuszti/assets-ms-go/internal/migration"
	"github.com/fhuszti/assets-ms-go/test/testutil"
)

func TestMigrateUpIntegration(t *testing.T) {
	db := testutil.MigratedDB(t)

	var recs int
	if err := db.QueryRow("SELECT COUNT(*) FROM assets").Scan(&recs); err != nil {
		t.Fatalf("failed to query migrated table: %v", err)
	}
	if recs != 0 {
		t.Errorf("expected 0 rows in assets after migration, got %d", recs)
	}

	// the unique index backing the one-record-per-key rule
	var indexes int
	if err := db.QueryRow(`SELECT COUNT(*) FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = 'assets' AND index_name = 'uq_assets_channel_cache_key'`).Scan(&indexes); err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	if indexes == 0 {
		t.Error("unique cache key index is missing")
	}

	// applying again is a no-op
	if err := migration.MigrateUp(db); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}
}
