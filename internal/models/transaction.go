package models

import "time"

// Transaction statuses and types as recorded by the payment gateway.
const (
	TransactionStatusApproved = "approved"
	TransactionStatusDeclined = "declined"

	TransactionTypeSale   = "sale"
	TransactionTypeRefund = "refund"
)

// PaymentTransaction is one payment event as recorded by the gateway.
// Rows are read-only for the reporting pipeline.
type PaymentTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MerchantID uint64 `gorm:"not null;index"` // Owning merchant.
	ShopID     uint64 `gorm:"not null;index"` // Shop the payment was taken at.
	CardID     uint64 `gorm:"not null;index"` // Internal card record; one physical card may span several.

	TransactionID string `gorm:"type:text;not null;uniqueIndex"` // Public transaction identifier.
	TrxID         string `gorm:"type:text;not null"`             // Gateway trx reference.

	Status   string `gorm:"type:text;not null;index"`      // approved / declined.
	Type     string `gorm:"type:text;not null;index"`      // sale / refund.
	Currency string `gorm:"type:varchar(3);not null"`      // ISO-4217 code.
	Amount   int64  `gorm:"not null"`                      // Minor units (cents).
	IsRefund bool   `gorm:"not null;default:false"`        // Refund marker mirrored from Type.

	CreatedAt time.Time `gorm:"not null;index"` // Payment timestamp.
}

// TableName keeps the legacy gateway table name.
func (PaymentTransaction) TableName() string { return "payment_transactions" }
