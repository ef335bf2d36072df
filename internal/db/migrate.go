package db

import (
	"fmt"

	"github.com/altpaynet/regreport/internal/models"
	"gorm.io/gorm"
)

// Migrate applies the schema for all reporting and reconciliation tables.
//
// MerchantBankAccount is intentionally excluded: the table is optional and
// only exists in deployments with payouts enabled (the resolver fails soft
// when it is absent).
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.PaymentTransaction{},
		&models.Card{},
		&models.BinCountry{},
		&models.Merchant{},
		&models.LegacyMerchant{},
		&models.MerchantShop{},
		&models.DectaTransaction{},
		&models.GatewayTransaction{},
		&models.GatewaySettlementLog{},
		&models.ReportRun{},
		&models.Operator{},
		&models.NotificationLog{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}

// MigrateBankAccounts applies the optional payout-account table. Called
// only by deployments that carry real IBANs.
func MigrateBankAccounts(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(&models.MerchantBankAccount{}); errMigrate != nil {
		return fmt.Errorf("db: migrate bank accounts: %w", errMigrate)
	}
	return nil
}
