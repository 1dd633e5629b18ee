package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/feedledger-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one migration matching %q, got %d", pattern, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestFeedEnumsMigration(t *testing.T) {
	content := readMigration(t, "*_create_feed_enums.sql")
	assertContains(t, content, []string{
		"CREATE TYPE feed_type_enum AS ENUM",
		"'pre_layer'",
		"CREATE TYPE location_type_enum AS ENUM ('global', 'site', 'building')",
		"CREATE TYPE movement_type_enum AS ENUM ('restock', 'consumption', 'adjustment')",
		"DROP TYPE IF EXISTS feed_type_enum",
	})
}

func TestFeedStockItemsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_feed_stock_items.sql")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS feed_stock_items",
		"quantity_kg numeric(12,2) NOT NULL DEFAULT 0",
		"CONSTRAINT uniq_feed_stock_items_key UNIQUE (feed_type, location_key)",
		"CHECK (quantity_kg >= 0)",
		"FOREIGN KEY (building_id) REFERENCES buildings(id) ON DELETE RESTRICT",
		"DROP TABLE IF EXISTS feed_stock_items",
	})
}

func TestFeedStockMovementsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_feed_stock_movements.sql")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS feed_stock_movements",
		"CHECK (quantity_kg > 0)",
		"CHECK (direction IN (-1, 1))",
		"FOREIGN KEY (stock_item_id) REFERENCES feed_stock_items(id) ON DELETE RESTRICT",
		"CREATE INDEX IF NOT EXISTS idx_feed_stock_movements_item_time",
		"CREATE UNIQUE INDEX IF NOT EXISTS uniq_feed_stock_movements_reverses",
		"DROP TABLE IF EXISTS feed_stock_movements",
	})
}

func TestOutboxMigration(t *testing.T) {
	content := readMigration(t, "*_create_outbox.sql")
	assertContains(t, content, []string{
		"'feed_movement_recorded'",
		"'feed_autonomy_low'",
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"payload jsonb NOT NULL",
		"WHERE published_at IS NULL",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"DROP TABLE IF EXISTS outbox_dlq",
	})
}
