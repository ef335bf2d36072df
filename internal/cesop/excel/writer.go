// Package excel renders a report bundle as the two-sheet CESOP
// workbook (accounts and payments).
package excel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/altpaynet/regreport/internal/cesop"
	"github.com/altpaynet/regreport/internal/cesop/report"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	SheetAccounts = "CESOP_Accounts"
	SheetPayments = "CESOP_Payments"
)

// accountHeaders is the fixed 21-column layout of the accounts sheet.
var accountHeaders = []string{
	"Merchant ID", "External Account ID", "Name", "Legal Name", "Email",
	"Street", "City", "Postal Code", "Country", "VAT Number",
	"IBAN", "Shop IDs", "PSP BIC", "PSP Name", "PSP Country",
	"PSP Tax ID", "Quarter", "Year", "Transaction Count", "Total Amount",
	"Currencies",
}

// paymentHeaders is the fixed 18-column layout of the payments sheet.
var paymentHeaders = []string{
	"Payment Ref", "Merchant ID", "Shop ID", "Transaction ID", "Trx ID",
	"Card BIN", "Card Last4", "Cardholder", "Card Expiry", "Issuing Country",
	"Merchant Country", "Date Time", "Currency", "Amount", "Is Refund",
	"Payment Method", "Initiated At Premises", "Payer MS",
}

// Writer renders a bundle into an xlsx artifact on disk.
type Writer struct {
	outputDir string
	now       func() time.Time
}

// NewWriter wires a Writer targeting the given output directory.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir, now: time.Now}
}

// Write renders the workbook and returns the artifact path. The file
// is saved to a temp path and renamed on success.
//
// The per-payment reference in column one embeds a random suffix and is
// regenerated on every run; it is an export row handle, not a stable
// business identifier.
func (w *Writer) Write(bundle *report.Bundle) (string, error) {
	book := excelize.NewFile()
	defer func() {
		if errClose := book.Close(); errClose != nil {
			log.WithError(errClose).Warn("excel: close workbook")
		}
	}()

	if errAccounts := w.writeAccounts(book, bundle); errAccounts != nil {
		return "", errAccounts
	}
	if errPayments := w.writePayments(book, bundle); errPayments != nil {
		return "", errPayments
	}
	if errDelete := book.DeleteSheet("Sheet1"); errDelete != nil {
		return "", fmt.Errorf("excel: drop default sheet: %w", errDelete)
	}

	if errMkdir := os.MkdirAll(w.outputDir, 0755); errMkdir != nil {
		return "", fmt.Errorf("excel: create output dir: %w", errMkdir)
	}
	name := report.ArtifactName(bundle.Quarter, bundle.Year, "xlsx", w.now())
	path := filepath.Join(w.outputDir, name)
	tmpPath := path + ".tmp"

	if errSave := book.SaveAs(tmpPath); errSave != nil {
		return "", fmt.Errorf("excel: save artifact: %w", errSave)
	}
	if errRename := os.Rename(tmpPath, path); errRename != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("excel: finalize artifact: %w", errRename)
	}

	log.WithField("path", path).Info("excel: report written")
	return path, nil
}

func (w *Writer) writeAccounts(book *excelize.File, bundle *report.Bundle) error {
	if _, errNew := book.NewSheet(SheetAccounts); errNew != nil {
		return fmt.Errorf("excel: create accounts sheet: %w", errNew)
	}

	rows := make([][]any, 0, len(bundle.Groups)+1)
	header := make([]any, len(accountHeaders))
	for i, title := range accountHeaders {
		header[i] = title
	}
	rows = append(rows, header)

	for _, group := range bundle.Groups {
		profile := group.Profile
		currencies := map[string]struct{}{}
		for _, record := range group.Transactions {
			currencies[record.Currency] = struct{}{}
		}
		rows = append(rows, []any{
			profile.ID, profile.AccountID, profile.Name, profile.LegalName, profile.Email,
			profile.Street, profile.City, profile.PostalCode, profile.Country, profile.VATNumber,
			profile.IBAN, joinShopIDs(profile.ShopIDs), bundle.PSP.BIC, bundle.PSP.Name, bundle.PSP.Country,
			bundle.PSP.TaxID, bundle.Quarter, bundle.Year, len(group.Transactions),
			report.FormatAmount(group.TotalAmount()), joinCurrencies(currencies),
		})
	}

	return w.fillSheet(book, SheetAccounts, rows)
}

func (w *Writer) writePayments(book *excelize.File, bundle *report.Bundle) error {
	if _, errNew := book.NewSheet(SheetPayments); errNew != nil {
		return fmt.Errorf("excel: create payments sheet: %w", errNew)
	}

	rows := make([][]any, 0, 1)
	header := make([]any, len(paymentHeaders))
	for i, title := range paymentHeaders {
		header[i] = title
	}
	rows = append(rows, header)

	for _, group := range bundle.Groups {
		for _, record := range group.Transactions {
			rows = append(rows, []any{
				paymentRef(record), record.MerchantID, record.ShopID, record.TransactionID, record.TrxID,
				record.Fingerprint.Bin, record.Fingerprint.Last4, record.Fingerprint.HolderName,
				fmt.Sprintf("%02d/%d", record.Fingerprint.ExpiryMonth, record.Fingerprint.ExpiryYear),
				record.IssuingCountry,
				group.Profile.Country, record.Timestamp.UTC().Format(time.RFC3339), record.Currency,
				report.FormatAmount(record.Amount), record.IsRefund,
				"Card payment", false, record.IssuingCountry,
			})
		}
	}

	return w.fillSheet(book, SheetPayments, rows)
}

// fillSheet writes rows, styles and freezes the header, and sizes the
// columns to their longest value.
func (w *Writer) fillSheet(book *excelize.File, sheet string, rows [][]any) error {
	widths := make([]int, len(rows[0]))
	for i, row := range rows {
		cell, errCell := excelize.CoordinatesToCellName(1, i+1)
		if errCell != nil {
			return fmt.Errorf("excel: cell name: %w", errCell)
		}
		if errSet := book.SetSheetRow(sheet, cell, &row); errSet != nil {
			return fmt.Errorf("excel: write row: %w", errSet)
		}
		for col, value := range row {
			if n := len(fmt.Sprint(value)); n > widths[col] {
				widths[col] = n
			}
		}
	}

	headerStyle, errStyle := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if errStyle != nil {
		return fmt.Errorf("excel: header style: %w", errStyle)
	}
	lastCol, errLast := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if errLast != nil {
		return fmt.Errorf("excel: cell name: %w", errLast)
	}
	if errSet := book.SetCellStyle(sheet, "A1", lastCol, headerStyle); errSet != nil {
		return fmt.Errorf("excel: apply header style: %w", errSet)
	}

	if errFreeze := book.SetPanes(sheet, &excelize.Panes{
		Freeze: true, Split: false, XSplit: 0, YSplit: 1,
		TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); errFreeze != nil {
		return fmt.Errorf("excel: freeze header: %w", errFreeze)
	}

	for col, width := range widths {
		name, errName := excelize.ColumnNumberToName(col + 1)
		if errName != nil {
			return fmt.Errorf("excel: column name: %w", errName)
		}
		if errWidth := book.SetColWidth(sheet, name, name, float64(width)+2); errWidth != nil {
			return fmt.Errorf("excel: column width: %w", errWidth)
		}
	}
	return nil
}

// paymentRef builds the export row handle: merchant, shop, transaction,
// trx and card identifiers joined with a random suffix.
func paymentRef(record cesop.TransactionRecord) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return strings.Join([]string{
		strconv.FormatUint(record.MerchantID, 10),
		strconv.FormatUint(record.ShopID, 10),
		record.TransactionID,
		record.TrxID,
		record.Fingerprint.Bin + record.Fingerprint.Last4,
		suffix,
	}, "-")
}

func joinShopIDs(ids []uint64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatUint(id, 10))
	}
	return strings.Join(parts, ",")
}

func joinCurrencies(set map[string]struct{}) string {
	parts := make([]string, 0, len(set))
	for currency := range set {
		parts = append(parts, currency)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
