// Package merchant resolves merchant identifiers to canonical profile
// data, falling back from the primary store to the legacy store and
// synthesizing placeholder payout IBANs where no account exists.
package merchant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/altpaynet/regreport/internal/cesop"
	"github.com/altpaynet/regreport/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// placeholderCountry is used when a merchant row carries no country.
	placeholderCountry = "CY"
	// placeholderCheckDigits is a literal, not a computed checksum; the
	// synthesized value is deliberately not a valid IBAN.
	placeholderCheckDigits = "10"
	// placeholderBankCode is the fixed bank code of synthesized IBANs.
	placeholderBankCode = "0010"
)

// Resolver resolves merchant ids against the primary and legacy stores.
type Resolver struct {
	db              *gorm.DB
	placeholderIBAN bool
	queryTimeout    time.Duration
}

// NewResolver wires a Resolver. placeholderIBAN controls whether a
// placeholder payout identifier is synthesized for merchants without a
// bank account row.
func NewResolver(db *gorm.DB, placeholderIBAN bool, queryTimeout time.Duration) *Resolver {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &Resolver{db: db, placeholderIBAN: placeholderIBAN, queryTimeout: queryTimeout}
}

// Resolve looks up all requested merchant ids and returns profiles for
// those found. Ids absent from both stores are simply missing from the
// result; callers decide the skip policy.
func (r *Resolver) Resolve(ctx context.Context, merchantIDs []uint64) (map[uint64]cesop.MerchantProfile, error) {
	profiles := make(map[uint64]cesop.MerchantProfile, len(merchantIDs))
	if len(merchantIDs) == 0 {
		return profiles, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var primary []models.Merchant
	if errFind := r.db.WithContext(queryCtx).
		Where("id IN ?", merchantIDs).
		Find(&primary).Error; errFind != nil {
		return nil, fmt.Errorf("merchant: primary lookup: %w", errFind)
	}
	for _, row := range primary {
		profiles[row.ID] = cesop.MerchantProfile{
			ID:         row.ID,
			AccountID:  row.AccountID,
			Name:       row.Name,
			LegalName:  row.LegalName,
			Email:      row.Email,
			Street:     row.Street,
			City:       row.City,
			PostalCode: row.PostalCode,
			Country:    cesop.NormalizeCountry(row.Country),
			VATNumber:  row.VATNumber,
		}
	}

	missing := make([]uint64, 0)
	for _, id := range merchantIDs {
		if _, ok := profiles[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		var legacy []models.LegacyMerchant
		if errFind := r.db.WithContext(queryCtx).
			Where("id IN ?", missing).
			Find(&legacy).Error; errFind != nil {
			return nil, fmt.Errorf("merchant: legacy lookup: %w", errFind)
		}
		for _, row := range legacy {
			profiles[row.ID] = cesop.MerchantProfile{
				ID:         row.ID,
				AccountID:  row.ExternalRef,
				Name:       row.CompanyTitle,
				LegalName:  row.RegisteredAs,
				Email:      row.ContactMail,
				Street:     row.AddrLine,
				City:       row.AddrCity,
				PostalCode: row.AddrPostal,
				Country:    cesop.NormalizeCountry(row.AddrState),
				VATNumber:  row.TaxNo,
			}
		}
	}
	if len(profiles) == 0 {
		return profiles, nil
	}

	resolvedIDs := make([]uint64, 0, len(profiles))
	for id := range profiles {
		resolvedIDs = append(resolvedIDs, id)
	}
	sort.Slice(resolvedIDs, func(i, j int) bool { return resolvedIDs[i] < resolvedIDs[j] })

	if errShops := r.attachShops(queryCtx, profiles, resolvedIDs); errShops != nil {
		return nil, errShops
	}
	r.attachBankIdentifiers(queryCtx, profiles, resolvedIDs)

	return profiles, nil
}

// ResolveCountries returns the resolved country per merchant id, for
// domestic-exclusion checks.
func (r *Resolver) ResolveCountries(ctx context.Context, merchantIDs []uint64) (map[uint64]string, error) {
	profiles, errResolve := r.Resolve(ctx, merchantIDs)
	if errResolve != nil {
		return nil, errResolve
	}
	countries := make(map[uint64]string, len(profiles))
	for id, profile := range profiles {
		countries[id] = profile.Country
	}
	return countries, nil
}

func (r *Resolver) attachShops(ctx context.Context, profiles map[uint64]cesop.MerchantProfile, merchantIDs []uint64) error {
	var shops []models.MerchantShop
	if errFind := r.db.WithContext(ctx).
		Where("merchant_id IN ?", merchantIDs).
		Order("id ASC").
		Find(&shops).Error; errFind != nil {
		return fmt.Errorf("merchant: shop lookup: %w", errFind)
	}
	for _, shop := range shops {
		profile, ok := profiles[shop.MerchantID]
		if !ok {
			continue
		}
		profile.ShopIDs = append(profile.ShopIDs, shop.ID)
		profiles[shop.MerchantID] = profile
	}
	return nil
}

// attachBankIdentifiers fills each profile's IBAN from the payout store,
// synthesizing a placeholder when the table or row is absent. The store
// is optional, so lookup failures degrade to placeholders instead of
// failing the run.
func (r *Resolver) attachBankIdentifiers(ctx context.Context, profiles map[uint64]cesop.MerchantProfile, merchantIDs []uint64) {
	ibans := map[uint64]string{}
	if r.db.Migrator().HasTable(&models.MerchantBankAccount{}) {
		var accounts []models.MerchantBankAccount
		if errFind := r.db.WithContext(ctx).
			Where("merchant_id IN ?", merchantIDs).
			Order("id ASC").
			Find(&accounts).Error; errFind != nil {
			log.WithError(errFind).Warn("merchant: bank account lookup failed, synthesizing placeholders")
		} else {
			for _, account := range accounts {
				if _, ok := ibans[account.MerchantID]; !ok {
					ibans[account.MerchantID] = account.IBAN
				}
			}
		}
	}

	for id, profile := range profiles {
		if iban, ok := ibans[id]; ok && iban != "" {
			profile.IBAN = iban
		} else if r.placeholderIBAN {
			profile.IBAN = PlaceholderIBAN(profile.Country, id)
		}
		profiles[id] = profile
	}
}

// PlaceholderIBAN synthesizes the documented placeholder payout
// identifier: country + literal check digits "10" + fixed bank code +
// the merchant id zero-padded to ten digits. The check digits are not
// computed, so the value never passes real IBAN validation.
func PlaceholderIBAN(country string, merchantID uint64) string {
	code := cesop.NormalizeCountry(country)
	if len(code) != 2 {
		code = placeholderCountry
	}
	return fmt.Sprintf("%s%s%s%010d", code, placeholderCheckDigits, placeholderBankCode, merchantID)
}
