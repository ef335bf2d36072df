package run

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/altpaynet/regreport/internal/cesop"
	"github.com/altpaynet/regreport/internal/cesop/dataset"
	"github.com/altpaynet/regreport/internal/cesop/merchant"
	"github.com/altpaynet/regreport/internal/cesop/qualifying"
	"github.com/altpaynet/regreport/internal/cesop/report"
	"github.com/altpaynet/regreport/internal/cesop/xmlgen"
	"github.com/altpaynet/regreport/internal/db"
	"github.com/altpaynet/regreport/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var euTest = []string{"FR", "DE", "CY"}

var testPSP = cesop.PSP{BIC: "ALTPCY2N", Name: "Altpay Net Ltd", Country: "CY", TaxID: "CY10123456A"}

type stubWriter struct {
	path string
	err  error
}

func (s stubWriter) Write(*report.Bundle) (string, error) { return s.path, s.err }

type stubValidatingWriter struct {
	path       string
	validation xmlgen.ValidationReport
	err        error
}

func (s stubValidatingWriter) Write(*report.Bundle) (string, xmlgen.ValidationReport, error) {
	return s.path, s.validation, s.err
}

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

func newTestService(conn *gorm.DB, excel, xml BundleWriter, validating ValidatingBundleWriter) *Service {
	resolver := merchant.NewResolver(conn, true, time.Second)
	finder := qualifying.NewFinder(conn, resolver, euTest, time.Second)
	builder := dataset.NewBuilder(conn, euTest, time.Second)
	assembler := report.NewAssembler(finder, builder, resolver, testPSP)
	return NewService(conn, assembler, excel, xml, validating, nil)
}

func seedQualifyingMerchant(t *testing.T, conn *gorm.DB, merchantID uint64, n int) {
	t.Helper()
	conn.Create(&models.Merchant{
		ID: merchantID, AccountID: fmt.Sprintf("acc-%d", merchantID),
		Name: fmt.Sprintf("Merchant %d", merchantID), Country: "CY",
	})
	conn.FirstOrCreate(&models.BinCountry{Bin: "411111", Country: "FR"})
	conn.Create(&models.Card{
		ID: merchantID * 100, CustomerID: merchantID * 1000, Bin: "411111", Last4: "4242",
		HolderName: "JOHN DOE", ExpiryMonth: 9, ExpiryYear: 2027,
	})
	at := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		conn.Create(&models.PaymentTransaction{
			MerchantID: merchantID, ShopID: merchantID * 10, CardID: merchantID * 100,
			TransactionID: fmt.Sprintf("txn-%d-%d", merchantID, i),
			TrxID:         fmt.Sprintf("trx-%d-%d", merchantID, i),
			Status:        models.TransactionStatusApproved,
			Type:          models.TransactionTypeSale,
			Currency:      "EUR", Amount: 1000,
			CreatedAt: at.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestGenerateCompletedRun(t *testing.T) {
	conn := openTestDB(t)
	seedQualifyingMerchant(t, conn, 1, 30)
	service := newTestService(conn, stubWriter{path: "/out/report.xlsx"}, stubWriter{}, stubValidatingWriter{})

	outcome, errGenerate := service.Generate(context.Background(), Params{
		Quarter: 1, Year: 2025, Threshold: 25, Format: FormatExcel,
	})
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if outcome.Status != models.ReportRunStatusCompleted {
		t.Fatalf("status = %q", outcome.Status)
	}
	if outcome.ArtifactPath != "/out/report.xlsx" {
		t.Fatalf("artifact = %q", outcome.ArtifactPath)
	}
	if outcome.Stats == nil || outcome.Stats.TransactionCount != 30 {
		t.Fatalf("stats = %+v", outcome.Stats)
	}

	entry, errGet := service.Get(context.Background(), outcome.RunID)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if entry.Status != models.ReportRunStatusCompleted || entry.FinishedAt == nil {
		t.Fatalf("entry = %+v", entry)
	}
	if len(entry.Stats) == 0 {
		t.Fatalf("stats snapshot not persisted")
	}
}

func TestGenerateEmptyPeriod(t *testing.T) {
	conn := openTestDB(t)
	service := newTestService(conn, stubWriter{}, stubWriter{}, stubValidatingWriter{})

	outcome, errGenerate := service.Generate(context.Background(), Params{
		Quarter: 1, Year: 2025, Threshold: 25, Format: FormatXML,
	})
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if outcome.Status != models.ReportRunStatusEmpty {
		t.Fatalf("status = %q", outcome.Status)
	}
	if outcome.Message != "no qualifying transactions found" {
		t.Fatalf("message = %q", outcome.Message)
	}
	if outcome.ArtifactPath != "" {
		t.Fatalf("artifact = %q", outcome.ArtifactPath)
	}
}

func TestGenerateWriterFailureMarksRunFailed(t *testing.T) {
	conn := openTestDB(t)
	seedQualifyingMerchant(t, conn, 1, 30)
	writeErr := errors.New("disk full")
	service := newTestService(conn, stubWriter{err: writeErr}, stubWriter{}, stubValidatingWriter{})

	outcome, errGenerate := service.Generate(context.Background(), Params{
		Quarter: 1, Year: 2025, Threshold: 25, Format: FormatExcel,
	})
	if !errors.Is(errGenerate, writeErr) {
		t.Fatalf("expected writer error, got %v", errGenerate)
	}
	if outcome.Status != models.ReportRunStatusFailed {
		t.Fatalf("status = %q", outcome.Status)
	}

	entry, errGet := service.Get(context.Background(), outcome.RunID)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if entry.Status != models.ReportRunStatusFailed || entry.Message != "disk full" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestGenerateValidationFailureMarksRunFailed(t *testing.T) {
	conn := openTestDB(t)
	seedQualifyingMerchant(t, conn, 1, 30)
	service := newTestService(conn, stubWriter{}, stubWriter{}, stubValidatingWriter{
		path:       "/out/report.xml",
		validation: xmlgen.ValidationReport{Valid: false, Errors: []string{"bad element"}},
	})

	outcome, errGenerate := service.Generate(context.Background(), Params{
		Quarter: 1, Year: 2025, Threshold: 25, Format: FormatXMLValidated,
	})
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if outcome.Status != models.ReportRunStatusFailed {
		t.Fatalf("status = %q", outcome.Status)
	}
	if outcome.Validation == nil || outcome.Validation.Valid {
		t.Fatalf("validation = %+v", outcome.Validation)
	}
	// The artifact is still on disk for inspection.
	if outcome.ArtifactPath != "/out/report.xml" {
		t.Fatalf("artifact = %q", outcome.ArtifactPath)
	}
}

func TestGenerateUnknownFormat(t *testing.T) {
	conn := openTestDB(t)
	service := newTestService(conn, stubWriter{}, stubWriter{}, stubValidatingWriter{})

	if _, errGenerate := service.Generate(context.Background(), Params{
		Quarter: 1, Year: 2025, Threshold: 25, Format: "pdf",
	}); errGenerate == nil {
		t.Fatalf("expected format error")
	}

	// Nothing was recorded for the rejected invocation.
	runs, errList := service.List(context.Background(), 10)
	if errList != nil {
		t.Fatalf("list: %v", errList)
	}
	if len(runs) != 0 {
		t.Fatalf("runs = %d", len(runs))
	}
}

func TestListNewestFirst(t *testing.T) {
	conn := openTestDB(t)
	service := newTestService(conn, stubWriter{path: "/out/a.xlsx"}, stubWriter{}, stubValidatingWriter{})
	base := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		service.now = func() time.Time { return at }
		if _, errGenerate := service.Generate(context.Background(), Params{
			Quarter: 1, Year: 2025, Threshold: 25, Format: FormatExcel,
		}); errGenerate != nil {
			t.Fatalf("generate %d: %v", i, errGenerate)
		}
	}

	runs, errList := service.List(context.Background(), 2)
	if errList != nil {
		t.Fatalf("list: %v", errList)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Fatalf("runs not newest first: %v then %v", runs[0].StartedAt, runs[1].StartedAt)
	}
}
