package models

import (
	"time"

	"gorm.io/datatypes"
)

// Report run lifecycle states.
const (
	ReportRunStatusRunning   = "running"
	ReportRunStatusCompleted = "completed"
	ReportRunStatusEmpty     = "empty"
	ReportRunStatusFailed    = "failed"
)

// ReportRun records one CESOP report generation invocation.
type ReportRun struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RunID string `gorm:"type:text;not null;uniqueIndex"` // UUID assigned at start.

	Quarter   int    `gorm:"not null"`           // Reporting quarter, 1-4.
	Year      int    `gorm:"not null"`           // Reporting year.
	Threshold int    `gorm:"not null"`           // Qualifying threshold used.
	Format    string `gorm:"type:text;not null"` // xlsx / xml / xml-validated.

	Status       string `gorm:"type:text;not null;index"` // running / completed / empty / failed.
	ArtifactPath string `gorm:"type:text"`                // Written artifact, when completed.
	Message      string `gorm:"type:text"`                // Outcome or failure message.

	Stats            datatypes.JSON `gorm:"type:jsonb"` // Aggregate stats snapshot.
	SkippedMerchants datatypes.JSON `gorm:"type:jsonb"` // Merchants dropped during resolution, with reasons.

	StartedAt  time.Time  `gorm:"not null"` // Run start.
	FinishedAt *time.Time             // Run end, when finished.
}
