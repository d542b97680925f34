package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ticketloom/ticketloom-backend/pkg/migrate"
)

func TestCheckoutMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*_checkout.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no checkout migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE holds",
		"CREATE TABLE orders",
		"CREATE TABLE order_items",
		"CREATE TABLE tickets",
		"ux_holds_idempotency_key",
		"ux_orders_order_number",
		"ux_tickets_ticket_code",
		"DROP TABLE IF EXISTS holds",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerMigrationGuardsCounters(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*_init_schema.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no init schema migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE ticket_tiers",
		"sold + reserved <= quantity",
		"chk_tier_purchase_bounds",
		"DROP TABLE IF EXISTS ticket_tiers",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	dir := filepath.Join("..", "..", "migrations")
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
