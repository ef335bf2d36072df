package models

import "time"

// Operator is an API account allowed to trigger report and matching runs.
type Operator struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username     string `gorm:"type:text;not null;uniqueIndex"` // Login name.
	PasswordHash string `gorm:"type:text;not null"`             // Bcrypt hash.

	IsEnabled bool `gorm:"not null;default:true"` // Whether login is allowed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// NotificationLog records delivered run-summary notifications and
// backs the delivery throttle.
type NotificationLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key     string `gorm:"type:text;not null;index"` // Throttle key (kind + subject).
	Subject string `gorm:"type:text;not null"`       // Notification subject line.
	Body    string `gorm:"type:text"`                // Rendered summary body.

	SentAt time.Time `gorm:"not null;index"` // Delivery timestamp.
}
