package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestMigrateSQLiteCreatesReportingTables(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for _, table := range []string{
		"payment_transactions",
		"cards",
		"bin_countries",
		"merchants",
		"legacy_merchants",
		"decta_transactions",
		"gateway_transactions",
		"gateway_settlement_logs",
		"report_runs",
	} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}

	if conn.Migrator().HasTable("merchant_bank_accounts") {
		t.Fatalf("bank account table must stay optional")
	}
}

func TestMigrateBankAccountsIsOptIn(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errMigrate := MigrateBankAccounts(conn); errMigrate != nil {
		t.Fatalf("migrate bank accounts: %v", errMigrate)
	}
	if !conn.Migrator().HasTable("merchant_bank_accounts") {
		t.Fatalf("bank account table missing after opt-in migration")
	}
}
