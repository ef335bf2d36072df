// Package dataset re-derives the full transaction detail rows for a set
// of qualifying cards.
package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/altpaynet/regreport/internal/cesop"
	"github.com/altpaynet/regreport/internal/models"

	"gorm.io/gorm"
)

// Builder turns qualifying cards back into ordered transaction rows.
// Matching is done on the six-field fingerprint, not the internal card
// id, so every tokenization of a physical card is captured.
type Builder struct {
	db           *gorm.DB
	euCountries  []string
	queryTimeout time.Duration
}

// NewBuilder wires a Builder with the same issuing-country list the
// finder uses, so the dataset never re-admits rows outside the
// reporting criteria.
func NewBuilder(db *gorm.DB, euCountries []string, queryTimeout time.Duration) *Builder {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	normalized := make([]string, 0, len(euCountries))
	for _, country := range euCountries {
		normalized = append(normalized, cesop.NormalizeCountry(country))
	}
	return &Builder{db: db, euCountries: normalized, queryTimeout: queryTimeout}
}

// datasetRow is the scan target for the detail query.
type datasetRow struct {
	CustomerID  uint64
	Bin         string
	Last4       string
	HolderName  string
	ExpiryMonth int
	ExpiryYear  int

	MerchantID     uint64
	ShopID         uint64
	IssuingCountry string

	TransactionID string
	TrxID         string
	Currency      string
	Amount        int64
	Type          string
	CreatedAt     time.Time
}

// BuildDataset returns all in-window transactions belonging to the
// qualifying cards, ordered by merchant id, shop id, then timestamp.
// An empty card set short-circuits without touching the store.
func (b *Builder) BuildDataset(ctx context.Context, window cesop.Window, cards []cesop.QualifyingCard, merchantIDs, shopIDs []uint64) ([]cesop.TransactionRecord, error) {
	if len(cards) == 0 {
		return nil, nil
	}

	fingerprints := make(map[string]struct{}, len(cards))
	cardMerchants := make(map[uint64]struct{}, len(cards))
	scanIDs := make([]uint64, 0, len(cards))
	for _, card := range cards {
		fingerprints[card.Key()] = struct{}{}
		if _, ok := cardMerchants[card.MerchantID]; !ok {
			cardMerchants[card.MerchantID] = struct{}{}
			scanIDs = append(scanIDs, card.MerchantID)
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, b.queryTimeout)
	defer cancel()

	query := b.db.WithContext(queryCtx).
		Table("payment_transactions AS t").
		Select("c.customer_id AS customer_id, c.bin AS bin, c.last4 AS last4, "+
			"c.holder_name AS holder_name, c.expiry_month AS expiry_month, c.expiry_year AS expiry_year, "+
			"t.merchant_id AS merchant_id, t.shop_id AS shop_id, bc.country AS issuing_country, "+
			"t.transaction_id AS transaction_id, t.trx_id AS trx_id, t.currency AS currency, "+
			"t.amount AS amount, t.type AS type, t.created_at AS created_at").
		Joins("JOIN cards c ON c.id = t.card_id").
		Joins("JOIN bin_countries bc ON bc.bin = c.bin").
		Where("t.created_at >= ? AND t.created_at < ?", window.Start, window.End).
		Where("t.status = ?", models.TransactionStatusApproved).
		Where("t.type IN ?", []string{models.TransactionTypeSale, models.TransactionTypeRefund}).
		Where("bc.country IN ?", b.euCountries).
		Where("t.merchant_id IN ?", scanIDs).
		Order("t.merchant_id ASC, t.shop_id ASC, t.created_at ASC, t.id ASC")
	if len(merchantIDs) > 0 {
		query = query.Where("t.merchant_id IN ?", merchantIDs)
	}
	if len(shopIDs) > 0 {
		query = query.Where("t.shop_id IN ?", shopIDs)
	}

	var rows []datasetRow
	if errScan := query.Scan(&rows).Error; errScan != nil {
		return nil, fmt.Errorf("dataset: detail query: %w", errScan)
	}

	records := make([]cesop.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		fingerprint := cesop.CardFingerprint{
			CustomerID:  row.CustomerID,
			Bin:         row.Bin,
			Last4:       row.Last4,
			HolderName:  row.HolderName,
			ExpiryMonth: row.ExpiryMonth,
			ExpiryYear:  row.ExpiryYear,
		}
		if _, ok := fingerprints[fingerprint.Key()]; !ok {
			continue
		}
		records = append(records, cesop.TransactionRecord{
			MerchantID:     row.MerchantID,
			ShopID:         row.ShopID,
			Fingerprint:    fingerprint,
			IssuingCountry: cesop.NormalizeCountry(row.IssuingCountry),
			TransactionID:  row.TransactionID,
			TrxID:          row.TrxID,
			Timestamp:      row.CreatedAt,
			Currency:       row.Currency,
			Amount:         row.Amount,
			IsRefund:       row.Type == models.TransactionTypeRefund,
		})
	}
	return records, nil
}
