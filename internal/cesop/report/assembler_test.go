package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/altpaynet/regreport/internal/cesop"
	"github.com/altpaynet/regreport/internal/cesop/dataset"
	"github.com/altpaynet/regreport/internal/cesop/merchant"
	"github.com/altpaynet/regreport/internal/cesop/qualifying"
	"github.com/altpaynet/regreport/internal/db"
	"github.com/altpaynet/regreport/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var euTest = []string{"FR", "DE", "CY"}

var testPSP = cesop.PSP{BIC: "ALTPCY2N", Name: "Altpay Net Ltd", Country: "CY", TaxID: "CY10123456A"}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func newTestAssembler(conn *gorm.DB) *Assembler {
	resolver := merchant.NewResolver(conn, true, time.Second)
	finder := qualifying.NewFinder(conn, resolver, euTest, time.Second)
	builder := dataset.NewBuilder(conn, euTest, time.Second)
	return NewAssembler(finder, builder, resolver, testPSP)
}

func seedQualifyingMerchant(t *testing.T, conn *gorm.DB, merchantID uint64, country string, cardID, customerID uint64, n int) {
	t.Helper()
	if merchantID != 0 {
		conn.Create(&models.Merchant{
			ID: merchantID, AccountID: fmt.Sprintf("acc-%d", merchantID),
			Name: fmt.Sprintf("Merchant %d", merchantID), Country: country,
		})
	}
	conn.FirstOrCreate(&models.BinCountry{Bin: "411111", Country: "FR"})
	conn.Create(&models.Card{
		ID: cardID, CustomerID: customerID, Bin: "411111", Last4: "4242",
		HolderName: "JOHN DOE", ExpiryMonth: 9, ExpiryYear: 2027,
	})
	at := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		conn.Create(&models.PaymentTransaction{
			MerchantID: merchantID, ShopID: merchantID * 10, CardID: cardID,
			TransactionID: fmt.Sprintf("txn-%d-%d", cardID, i),
			TrxID:         fmt.Sprintf("trx-%d-%d", cardID, i),
			Status:        models.TransactionStatusApproved,
			Type:          models.TransactionTypeSale,
			Currency:      "EUR", Amount: 1000,
			CreatedAt: at.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestAssembleNoQualifyingData(t *testing.T) {
	conn := openTestDB(t)

	result, errAssemble := newTestAssembler(conn).Assemble(context.Background(), Params{
		Quarter: 1, Year: 2025, Threshold: 25,
	})
	if errAssemble != nil {
		t.Fatalf("assemble: %v", errAssemble)
	}
	if result.Success {
		t.Fatalf("expected no-data result")
	}
	if result.Message != "no qualifying transactions found" {
		t.Fatalf("message = %q", result.Message)
	}
	if result.Bundle != nil {
		t.Fatalf("bundle must be nil on no-data result")
	}
}

func TestAssembleBundleStats(t *testing.T) {
	conn := openTestDB(t)
	seedQualifyingMerchant(t, conn, 1, "CY", 10, 100, 30)

	result, errAssemble := newTestAssembler(conn).Assemble(context.Background(), Params{
		Quarter: 1, Year: 2025, Threshold: 25,
	})
	if errAssemble != nil {
		t.Fatalf("assemble: %v", errAssemble)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}

	bundle := result.Bundle
	if bundle.Stats.MerchantCount != 1 {
		t.Fatalf("merchant count = %d", bundle.Stats.MerchantCount)
	}
	if bundle.Stats.TransactionCount != 30 {
		t.Fatalf("transaction count = %d", bundle.Stats.TransactionCount)
	}
	if bundle.Stats.TotalAmount != 30000 {
		t.Fatalf("total amount = %d", bundle.Stats.TotalAmount)
	}
	if bundle.Stats.CurrencyCount != 1 {
		t.Fatalf("currency count = %d", bundle.Stats.CurrencyCount)
	}
	if bundle.PSP != testPSP {
		t.Fatalf("psp = %+v", bundle.PSP)
	}
	if len(bundle.Groups) != 1 || bundle.Groups[0].Profile.ID != 1 {
		t.Fatalf("groups = %+v", bundle.Groups)
	}
	if bundle.Groups[0].TotalAmount() != 30000 {
		t.Fatalf("group total = %d", bundle.Groups[0].TotalAmount())
	}
}

func TestAssembleSkipsUnresolvedMerchant(t *testing.T) {
	conn := openTestDB(t)
	// Merchant 1 resolvable, merchant 2 absent from both stores.
	seedQualifyingMerchant(t, conn, 1, "CY", 10, 100, 30)
	conn.Create(&models.Card{ID: 20, CustomerID: 200, Bin: "411111", Last4: "1111", HolderName: "JANE ROE", ExpiryMonth: 3, ExpiryYear: 2028})
	at := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		conn.Create(&models.PaymentTransaction{
			MerchantID: 2, ShopID: 20, CardID: 20,
			TransactionID: fmt.Sprintf("orphan-%d", i), TrxID: "t",
			Status: models.TransactionStatusApproved, Type: models.TransactionTypeSale,
			Currency: "EUR", Amount: 500, CreatedAt: at.Add(time.Duration(i) * time.Minute),
		})
	}

	result, errAssemble := newTestAssembler(conn).Assemble(context.Background(), Params{
		Quarter: 1, Year: 2025, Threshold: 25,
	})
	if errAssemble != nil {
		t.Fatalf("assemble: %v", errAssemble)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}

	bundle := result.Bundle
	if len(bundle.Groups) != 1 || bundle.Groups[0].Profile.ID != 1 {
		t.Fatalf("unresolved merchant must be dropped: %+v", bundle.Groups)
	}
	if len(bundle.Skipped) != 1 || bundle.Skipped[0].MerchantID != 2 {
		t.Fatalf("skip list = %+v", bundle.Skipped)
	}
	if bundle.Skipped[0].TransactionCount != 30 {
		t.Fatalf("skip transaction count = %d", bundle.Skipped[0].TransactionCount)
	}
	if bundle.Stats.TransactionCount != 30 {
		t.Fatalf("skipped merchant's rows must not count, got %d", bundle.Stats.TransactionCount)
	}
}

func TestAssembleDomesticMerchantFullyExcluded(t *testing.T) {
	conn := openTestDB(t)
	// Merchant in FR, cards issued in FR: meets threshold but domestic.
	seedQualifyingMerchant(t, conn, 1, "FR", 10, 100, 40)

	result, errAssemble := newTestAssembler(conn).Assemble(context.Background(), Params{
		Quarter: 1, Year: 2025, Threshold: 25,
	})
	if errAssemble != nil {
		t.Fatalf("assemble: %v", errAssemble)
	}
	if result.Success {
		t.Fatalf("domestic-only dataset must yield no-data result, got %+v", result)
	}
}

func TestAssembleInvalidQuarter(t *testing.T) {
	conn := openTestDB(t)
	if _, errAssemble := newTestAssembler(conn).Assemble(context.Background(), Params{
		Quarter: 5, Year: 2025, Threshold: 25,
	}); errAssemble == nil {
		t.Fatalf("expected error for invalid quarter")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		1050:   "10.50",
		123456: "1234.56",
		-250:   "-2.50",
	}
	for minor, want := range cases {
		if got := FormatAmount(minor); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", minor, got, want)
		}
	}
}
