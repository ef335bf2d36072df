package models

import (
	"time"

	"gorm.io/datatypes"
)

// Decta record matching states.
const (
	DectaStatusPending    = "pending"
	DectaStatusProcessing = "processing"
	DectaStatusMatched    = "matched"
	DectaStatusFailed     = "failed"
)

// DectaTransaction is one card-network settlement record ingested from
// a Decta file. Created at ingestion; mutated only by the matcher.
type DectaTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	PaymentID string `gorm:"type:text;not null;uniqueIndex"` // External payment identifier from the file.

	Amount   int64  `gorm:"not null"`                 // Minor units.
	Currency string `gorm:"type:varchar(3);not null"` // ISO-4217 code.

	CardMask   string    `gorm:"type:text"`      // Masked PAN from the file.
	MerchantID *uint64   `gorm:"index"`          // Merchant hint when the file carries one.
	OccurredAt time.Time `gorm:"not null;index"` // Settlement timestamp from the file.

	SourceFile string `gorm:"type:text"` // File the row came from, for audit.

	IsMatched    bool       `gorm:"not null;default:false"`                 // Whether a gateway row was found.
	MatchedAt    *time.Time           // When the match was recorded.
	Status       string     `gorm:"type:text;not null;default:pending;index"` // pending / processing / matched / failed.
	ErrorMessage string     `gorm:"type:text"`                              // Failure reason, when failed.

	GatewayTransactionID *uint64 `gorm:"index"` // Matched gateway transaction, when matched.

	MatchingAttempts datatypes.JSON `gorm:"type:jsonb"` // Ordered audit list of match attempts.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Ingestion timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last mutation timestamp.
}

// MatchAttempt is one entry of DectaTransaction.MatchingAttempts.
type MatchAttempt struct {
	At       time.Time `json:"at"`       // When the attempt ran.
	Strategy string    `json:"strategy"` // exact / fuzzy.
	Result   string    `json:"result"`   // Free-text outcome.
}

// GatewayTransaction is an internally recorded gateway transaction the
// matcher resolves Decta rows against.
type GatewayTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MerchantID uint64 `gorm:"not null;index"` // Owning merchant.

	Amount   int64  `gorm:"not null"`                 // Minor units.
	Currency string `gorm:"type:varchar(3);not null"` // ISO-4217 code.

	CreatedAt time.Time `gorm:"not null;index"` // Gateway-side timestamp.
}

// GatewaySettlementLog is the gateway's response/settlement log. Its
// cross-reference carries the processor's external payment id and is
// the exact-match key for Decta reconciliation.
type GatewaySettlementLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	GatewayTransactionID uint64 `gorm:"not null;index"`           // Owning gateway transaction.
	CrossReference       string `gorm:"type:text;not null;index"` // Processor-side payment id.

	ResponseCode string `gorm:"type:text"` // Processor response code.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Log timestamp.
}
