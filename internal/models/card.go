package models

// Card is an internal card record. Cards are re-tokenized over their
// lifetime, so several rows can describe the same physical card; the
// six fingerprint fields (customer, bin, last4, holder, expiry) are the
// only stable identity.
type Card struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CustomerID uint64 `gorm:"not null;index"` // Owning customer.

	Bin         string `gorm:"type:varchar(6);not null;index"` // First six digits of the PAN.
	Last4       string `gorm:"type:varchar(4);not null"`       // Last four digits of the PAN.
	HolderName  string `gorm:"type:text;not null"`             // Cardholder name as embossed.
	ExpiryMonth int    `gorm:"not null"`                       // Expiry month, 1-12.
	ExpiryYear  int    `gorm:"not null"`                       // Expiry year, four digits.
}

// BinCountry maps a BIN prefix to the card's issuing country.
type BinCountry struct {
	Bin     string `gorm:"type:varchar(6);primaryKey"`   // BIN prefix.
	Country string `gorm:"type:varchar(2);not null"`     // ISO-3166 alpha-2 issuing country.
	Scheme  string `gorm:"type:text"`                    // Card scheme, informational.
}

// TableName keeps the lookup table's legacy name.
func (BinCountry) TableName() string { return "bin_countries" }
