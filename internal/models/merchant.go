package models

import "time"

// Merchant is the primary merchant store, keyed by the external
// account identifier assigned at onboarding.
type Merchant struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID string `gorm:"type:text;not null;uniqueIndex"` // External account identifier.

	Name      string `gorm:"type:text;not null"` // Display name.
	LegalName string `gorm:"type:text"`          // Registered legal name.
	Email     string `gorm:"type:text"`          // Contact email.

	Street     string `gorm:"type:text"`            // Street address.
	City       string `gorm:"type:text"`            // City.
	PostalCode string `gorm:"type:text"`            // Postal code.
	Country    string `gorm:"type:varchar(2);index"` // ISO-3166 alpha-2.

	VATNumber string `gorm:"type:text"` // VAT / tax identifier.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// LegacyMerchant is the secondary merchant store carried over from the
// previous platform. Same semantic fields as Merchant under different
// column names; consulted only when the primary store has no row.
type LegacyMerchant struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ExternalRef  string `gorm:"column:external_ref;type:text;not null;uniqueIndex"` // External account identifier.
	CompanyTitle string `gorm:"column:company_title;type:text;not null"`            // Display name.
	RegisteredAs string `gorm:"column:registered_as;type:text"`                     // Legal name.
	ContactMail  string `gorm:"column:contact_mail;type:text"`                      // Contact email.

	AddrLine   string `gorm:"column:addr_line;type:text"`            // Street address.
	AddrCity   string `gorm:"column:addr_city;type:text"`            // City.
	AddrPostal string `gorm:"column:addr_postal;type:text"`          // Postal code.
	AddrState  string `gorm:"column:addr_state;type:varchar(2)"`     // ISO-3166 alpha-2 country.

	TaxNo string `gorm:"column:tax_no;type:text"` // VAT / tax identifier.
}

// TableName keeps the legacy platform's table name.
func (LegacyMerchant) TableName() string { return "legacy_merchants" }

// MerchantShop links a shop to its merchant.
type MerchantShop struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key, shop id.

	MerchantID uint64 `gorm:"not null;index"`     // Owning merchant.
	Name       string `gorm:"type:text;not null"` // Shop display name.
	URL        string `gorm:"type:text"`          // Shop URL, informational.
}

// MerchantBankAccount holds a merchant's payout account. The table is
// optional; deployments without payouts do not create it.
type MerchantBankAccount struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MerchantID uint64 `gorm:"not null;index"`     // Owning merchant.
	IBAN       string `gorm:"type:text;not null"` // Payout IBAN.
	BIC        string `gorm:"type:text"`          // Payout BIC.
}
