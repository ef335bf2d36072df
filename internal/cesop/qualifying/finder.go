// Package qualifying identifies the physical cards that crossed the
// CESOP reporting threshold within a quarter.
package qualifying

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/altpaynet/regreport/internal/cesop"
	"github.com/altpaynet/regreport/internal/cesop/merchant"
	"github.com/altpaynet/regreport/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Finder scans transaction records, groups them by card fingerprint and
// retains groups at or over the threshold. The threshold comparison is
// inclusive: a card with exactly threshold transactions qualifies.
type Finder struct {
	db           *gorm.DB
	resolver     *merchant.Resolver
	euCountries  []string
	queryTimeout time.Duration
}

// Params selects the reporting window and optional merchant/shop scope.
type Params struct {
	Window      cesop.Window
	Threshold   int
	MerchantIDs []uint64
	ShopIDs     []uint64
}

// NewFinder wires a Finder with its merchant resolver and the
// configured reportable issuing-country list.
func NewFinder(db *gorm.DB, resolver *merchant.Resolver, euCountries []string, queryTimeout time.Duration) *Finder {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	normalized := make([]string, 0, len(euCountries))
	for _, country := range euCountries {
		normalized = append(normalized, cesop.NormalizeCountry(country))
	}
	return &Finder{db: db, resolver: resolver, euCountries: normalized, queryTimeout: queryTimeout}
}

// qualifyingRow is the scan target for the aggregation query.
type qualifyingRow struct {
	CustomerID  uint64
	Bin         string
	Last4       string
	HolderName  string
	ExpiryMonth int
	ExpiryYear  int

	MerchantID       uint64
	ShopID           uint64
	IssuingCountry   string
	TransactionCount int64
}

// FindQualifying returns the qualifying cards for the window, with
// domestic groups removed. The internal card id is deliberately not
// carried forward: a physical card may map to several card ids, so
// downstream consumers re-derive rows by fingerprint.
func (f *Finder) FindQualifying(ctx context.Context, p Params) ([]cesop.QualifyingCard, error) {
	if !p.Window.Start.Before(p.Window.End) {
		return nil, nil
	}
	if len(f.euCountries) == 0 {
		return nil, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, f.queryTimeout)
	defer cancel()

	query := f.db.WithContext(queryCtx).
		Table("payment_transactions AS t").
		Select("c.customer_id AS customer_id, c.bin AS bin, c.last4 AS last4, "+
			"c.holder_name AS holder_name, c.expiry_month AS expiry_month, c.expiry_year AS expiry_year, "+
			"t.merchant_id AS merchant_id, t.shop_id AS shop_id, bc.country AS issuing_country, "+
			"COUNT(*) AS transaction_count").
		Joins("JOIN cards c ON c.id = t.card_id").
		Joins("JOIN bin_countries bc ON bc.bin = c.bin").
		Where("t.created_at >= ? AND t.created_at < ?", p.Window.Start, p.Window.End).
		Where("t.status = ?", models.TransactionStatusApproved).
		Where("t.type IN ?", []string{models.TransactionTypeSale, models.TransactionTypeRefund}).
		Where("bc.country IN ?", f.euCountries).
		Group("c.customer_id, c.bin, c.last4, c.holder_name, c.expiry_month, c.expiry_year, " +
			"t.merchant_id, t.shop_id, bc.country").
		Having("COUNT(*) >= ?", p.Threshold)
	if len(p.MerchantIDs) > 0 {
		query = query.Where("t.merchant_id IN ?", p.MerchantIDs)
	}
	if len(p.ShopIDs) > 0 {
		query = query.Where("t.shop_id IN ?", p.ShopIDs)
	}

	var rows []qualifyingRow
	if errScan := query.Scan(&rows).Error; errScan != nil {
		return nil, fmt.Errorf("qualifying: aggregate: %w", errScan)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	countries, errCountries := f.merchantCountries(ctx, rows)
	if errCountries != nil {
		return nil, errCountries
	}

	cards := make([]cesop.QualifyingCard, 0, len(rows))
	domestic := 0
	for _, row := range rows {
		issuing := cesop.NormalizeCountry(row.IssuingCountry)
		if cesop.SameCountry(countries[row.MerchantID], issuing) {
			domestic++
			continue
		}
		cards = append(cards, cesop.QualifyingCard{
			CardFingerprint: cesop.CardFingerprint{
				CustomerID:  row.CustomerID,
				Bin:         row.Bin,
				Last4:       row.Last4,
				HolderName:  row.HolderName,
				ExpiryMonth: row.ExpiryMonth,
				ExpiryYear:  row.ExpiryYear,
			},
			MerchantID:       row.MerchantID,
			ShopID:           row.ShopID,
			IssuingCountry:   issuing,
			TransactionCount: row.TransactionCount,
		})
	}
	if domestic > 0 {
		log.WithField("groups", domestic).Debug("qualifying: excluded domestic card groups")
	}

	sort.Slice(cards, func(i, j int) bool {
		if cards[i].MerchantID != cards[j].MerchantID {
			return cards[i].MerchantID < cards[j].MerchantID
		}
		if cards[i].ShopID != cards[j].ShopID {
			return cards[i].ShopID < cards[j].ShopID
		}
		return cards[i].Key() < cards[j].Key()
	})
	return cards, nil
}

// merchantCountries resolves the country of every merchant seen in the
// retained groups. Unresolved merchants stay absent from the map; their
// groups survive here and are dropped later during assembly.
func (f *Finder) merchantCountries(ctx context.Context, rows []qualifyingRow) (map[uint64]string, error) {
	seen := map[uint64]struct{}{}
	ids := make([]uint64, 0)
	for _, row := range rows {
		if _, ok := seen[row.MerchantID]; ok {
			continue
		}
		seen[row.MerchantID] = struct{}{}
		ids = append(ids, row.MerchantID)
	}
	countries, errResolve := f.resolver.ResolveCountries(ctx, ids)
	if errResolve != nil {
		return nil, fmt.Errorf("qualifying: resolve merchant countries: %w", errResolve)
	}
	return countries, nil
}
