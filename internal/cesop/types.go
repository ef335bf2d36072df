// Package cesop defines the shared domain types for quarterly CESOP
// reporting: card fingerprints, qualifying cards, transaction records
// and resolved merchant profiles. The pipeline packages (qualifying,
// dataset, merchant, report) all operate on these types so the three
// serializers see identical business content.
package cesop

import (
	"fmt"
	"strings"
	"time"
)

// CardFingerprint identifies one physical card independent of internal
// card-record ids. Cards are re-tokenized over their lifetime, so two
// rows with different card ids but identical fingerprint fields are the
// same physical card for threshold purposes.
type CardFingerprint struct {
	CustomerID  uint64 // Owning customer.
	Bin         string // First six digits of the PAN.
	Last4       string // Last four digits of the PAN.
	HolderName  string // Cardholder name, exact string.
	ExpiryMonth int    // Expiry month, 1-12.
	ExpiryYear  int    // Expiry year, four digits.
}

// Key returns the composite equality key over all six fields.
func (f CardFingerprint) Key() string {
	return fmt.Sprintf("%d|%s|%s|%s|%d|%d",
		f.CustomerID, f.Bin, f.Last4, f.HolderName, f.ExpiryMonth, f.ExpiryYear)
}

// QualifyingCard is a fingerprint whose in-window transaction count met
// the reporting threshold at a merchant/shop, with the card's issuing
// country. Transient: computed per report run, never persisted.
type QualifyingCard struct {
	CardFingerprint

	MerchantID       uint64 // Merchant the card transacted at.
	ShopID           uint64 // Shop the card transacted at.
	IssuingCountry   string // ISO-3166 alpha-2, uppercase.
	TransactionCount int64  // Approved sale/refund count within the window.
}

// TransactionRecord is one payment event in the report dataset.
// Immutable once read from the source store.
type TransactionRecord struct {
	MerchantID uint64
	ShopID     uint64

	Fingerprint    CardFingerprint
	IssuingCountry string // ISO-3166 alpha-2, uppercase.

	TransactionID string
	TrxID         string
	Timestamp     time.Time
	Currency      string // ISO-4217 code.
	Amount        int64  // Minor units.
	IsRefund      bool
}

// MerchantProfile is canonical merchant info resolved from the primary
// or secondary store, with a payout IBAN or synthesized placeholder.
type MerchantProfile struct {
	ID        uint64 // Internal merchant id.
	AccountID string // External account identifier.

	Name      string
	LegalName string
	Email     string

	Street     string
	City       string
	PostalCode string
	Country    string // ISO-3166 alpha-2, uppercase.

	VATNumber string
	IBAN      string // Payout IBAN, or placeholder when synthesized.

	ShopIDs []uint64 // Associated shops, ascending.
}

// PSP identifies the reporting payment service provider.
type PSP struct {
	BIC     string
	Name    string
	Country string
	TaxID   string
}

// Window is a half-open reporting interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// QuarterWindow returns the UTC window covering a calendar quarter.
func QuarterWindow(quarter, year int) (Window, error) {
	if quarter < 1 || quarter > 4 {
		return Window{}, fmt.Errorf("cesop: invalid quarter %d", quarter)
	}
	start := time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 3, 0)}, nil
}

// NormalizeCountry uppercases and trims an ISO-3166 alpha-2 code.
func NormalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SameCountry compares two country codes case-insensitively.
func SameCountry(a, b string) bool {
	return a != "" && NormalizeCountry(a) == NormalizeCountry(b)
}
