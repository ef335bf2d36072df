// Package report assembles the shared dataset all three CESOP
// serializers consume.
package report

import (
	"fmt"
	"time"

	"github.com/altpaynet/regreport/internal/cesop"

	"github.com/shopspring/decimal"
)

// MerchantGroup pairs a resolved merchant with its report transactions.
type MerchantGroup struct {
	Profile      cesop.MerchantProfile
	Transactions []cesop.TransactionRecord
}

// TotalAmount sums the group's transaction amounts in minor units.
func (g MerchantGroup) TotalAmount() int64 {
	var total int64
	for _, record := range g.Transactions {
		total += record.Amount
	}
	return total
}

// Stats aggregates the bundle's business totals.
type Stats struct {
	MerchantCount    int    `json:"merchant_count"`
	TransactionCount int    `json:"transaction_count"`
	TotalAmount      int64  `json:"total_amount"`
	CurrencyCount    int    `json:"currency_count"`
}

// SkippedMerchant records a merchant dropped during assembly, so
// auditors can see what was excluded and why.
type SkippedMerchant struct {
	MerchantID       uint64 `json:"merchant_id"`
	TransactionCount int    `json:"transaction_count"`
	Reason           string `json:"reason"`
}

// Bundle is the assembled report: one struct consumed by the Excel,
// XML and validating-XML writers alike.
type Bundle struct {
	Quarter   int
	Year      int
	Threshold int
	PSP       cesop.PSP

	Groups  []MerchantGroup   // Ordered by merchant id ascending.
	Skipped []SkippedMerchant // Merchants dropped during resolution.

	Stats Stats
}

// Result is the structured outcome of an assembly invocation. A run
// with no qualifying data is a non-error result with Success=false;
// callers branch on it rather than catching anything.
type Result struct {
	Success bool
	Message string
	Bundle  *Bundle
}

// FormatAmount renders minor units as a two-decimal string, e.g. 1050
// cents as "10.50".
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// ArtifactName builds the conventional artifact file name, e.g.
// CESOP_Q1_2025_20250401_083000.xml.
func ArtifactName(quarter, year int, ext string, now time.Time) string {
	return fmt.Sprintf("CESOP_Q%d_%d_%s.%s", quarter, year, now.UTC().Format("20060102_150405"), ext)
}
