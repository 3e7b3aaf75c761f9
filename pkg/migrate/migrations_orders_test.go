package migrate_test

import (
	"testing"

	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
)

func TestOrdersMigrationContainsUniquenessAndTotals(t *testing.T) {
	content := readMigration(t, "create_orders")
	assertContains(t, content, []string{
		"CONSTRAINT orders_order_number_key UNIQUE (order_number)",
		"CONSTRAINT payments_external_intent_id_key UNIQUE (external_intent_id)",
		"CONSTRAINT payments_order_id_key UNIQUE (order_id)",
		"CHECK (total = subtotal + tax + shipping_cost - discount)",
		"status order_item_status NOT NULL DEFAULT 'pending'",
		"REFERENCES orders(id) ON DELETE CASCADE",
	})
}

func TestEnumMigrationMatchesItemStates(t *testing.T) {
	content := readMigration(t, "create_enums")
	assertContains(t, content, []string{
		"CREATE TYPE order_item_status AS ENUM ('pending', 'confirmed', 'processing', 'shipped', 'delivered', 'cancelled', 'refunded')",
		"CREATE TYPE payment_status AS ENUM ('pending', 'paid', 'failed', 'refunded', 'cancelled')",
	})
}

func TestLedgerMigrationIsIdempotentPerItem(t *testing.T) {
	content := readMigration(t, "create_vendor_ledger")
	assertContains(t, content, []string{
		"CONSTRAINT ledger_events_item_type_key UNIQUE (order_item_id, type)",
		"CREATE TABLE IF NOT EXISTS vendor_balances",
	})
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}
