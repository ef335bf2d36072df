// Package run executes report generation end to end and keeps the
// ReportRun registry: every invocation is persisted so prior runs and
// their outcomes can be listed.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/altpaynet/regreport/internal/cesop/report"
	"github.com/altpaynet/regreport/internal/cesop/xmlgen"
	"github.com/altpaynet/regreport/internal/models"
	"github.com/altpaynet/regreport/internal/notify"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Artifact formats.
const (
	FormatExcel        = "xlsx"
	FormatXML          = "xml"
	FormatXMLValidated = "xml-validated"
)

// BundleWriter serializes a bundle to a file and returns its path.
type BundleWriter interface {
	Write(bundle *report.Bundle) (string, error)
}

// ValidatingBundleWriter additionally reports schema validation.
type ValidatingBundleWriter interface {
	Write(bundle *report.Bundle) (string, xmlgen.ValidationReport, error)
}

// Service runs report generation and records each run.
type Service struct {
	db         *gorm.DB
	assembler  *report.Assembler
	excel      BundleWriter
	xml        BundleWriter
	validating ValidatingBundleWriter
	dispatcher *notify.Dispatcher
	now        func() time.Time
}

func NewService(db *gorm.DB, assembler *report.Assembler, excel, xml BundleWriter, validating ValidatingBundleWriter, dispatcher *notify.Dispatcher) *Service {
	return &Service{
		db:         db,
		assembler:  assembler,
		excel:      excel,
		xml:        xml,
		validating: validating,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Params selects the reporting period, scope and output format.
type Params struct {
	Quarter   int
	Year      int
	Threshold int
	Format    string

	MerchantIDs []uint64
	ShopIDs     []uint64
}

// Outcome is the recorded result of one generation run.
type Outcome struct {
	RunID        string                   `json:"run_id"`
	Status       string                   `json:"status"`
	Message      string                   `json:"message,omitempty"`
	ArtifactPath string                   `json:"artifact_path,omitempty"`
	Stats        *report.Stats            `json:"stats,omitempty"`
	Validation   *xmlgen.ValidationReport `json:"validation,omitempty"`
}

// Generate assembles the period's bundle, writes the requested
// artifact, and persists the run. Empty periods complete as a non-error
// "empty" run; only infrastructure failures return an error.
func (s *Service) Generate(ctx context.Context, p Params) (Outcome, error) {
	if p.Format != FormatExcel && p.Format != FormatXML && p.Format != FormatXMLValidated {
		return Outcome{}, fmt.Errorf("run: unknown format %q", p.Format)
	}

	entry := models.ReportRun{
		RunID:     uuid.NewString(),
		Quarter:   p.Quarter,
		Year:      p.Year,
		Threshold: p.Threshold,
		Format:    p.Format,
		Status:    models.ReportRunStatusRunning,
		StartedAt: s.now().UTC(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		return Outcome{}, fmt.Errorf("run: create run record: %w", errCreate)
	}

	result, errAssemble := s.assembler.Assemble(ctx, report.Params{
		Quarter:     p.Quarter,
		Year:        p.Year,
		Threshold:   p.Threshold,
		MerchantIDs: p.MerchantIDs,
		ShopIDs:     p.ShopIDs,
	})
	if errAssemble != nil {
		s.finish(ctx, &entry, models.ReportRunStatusFailed, errAssemble.Error(), "", nil)
		return Outcome{RunID: entry.RunID, Status: entry.Status, Message: entry.Message}, errAssemble
	}
	if !result.Success {
		s.finish(ctx, &entry, models.ReportRunStatusEmpty, result.Message, "", nil)
		return Outcome{RunID: entry.RunID, Status: entry.Status, Message: entry.Message}, nil
	}

	bundle := result.Bundle
	outcome := Outcome{RunID: entry.RunID, Stats: &bundle.Stats}

	var artifactPath string
	var errWrite error
	switch p.Format {
	case FormatExcel:
		artifactPath, errWrite = s.excel.Write(bundle)
	case FormatXML:
		artifactPath, errWrite = s.xml.Write(bundle)
	case FormatXMLValidated:
		var validation xmlgen.ValidationReport
		artifactPath, validation, errWrite = s.validating.Write(bundle)
		if errWrite == nil {
			outcome.Validation = &validation
		}
	}
	if errWrite != nil {
		s.finish(ctx, &entry, models.ReportRunStatusFailed, errWrite.Error(), "", bundle)
		outcome.Status = entry.Status
		outcome.Message = entry.Message
		return outcome, errWrite
	}

	status := models.ReportRunStatusCompleted
	message := fmt.Sprintf("%d merchants, %d transactions", bundle.Stats.MerchantCount, bundle.Stats.TransactionCount)
	if outcome.Validation != nil && !outcome.Validation.Valid {
		status = models.ReportRunStatusFailed
		message = fmt.Sprintf("schema validation failed with %d errors", len(outcome.Validation.Errors))
	}

	s.finish(ctx, &entry, status, message, artifactPath, bundle)
	outcome.Status = entry.Status
	outcome.Message = entry.Message
	outcome.ArtifactPath = entry.ArtifactPath

	s.notifyRun(ctx, entry)
	return outcome, nil
}

// List returns the most recent runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]models.ReportRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var runs []models.ReportRun
	errFind := s.db.WithContext(ctx).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&runs).Error
	if errFind != nil {
		return nil, fmt.Errorf("run: list runs: %w", errFind)
	}
	return runs, nil
}

// Get returns one run by its public run id.
func (s *Service) Get(ctx context.Context, runID string) (models.ReportRun, error) {
	var entry models.ReportRun
	errFind := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&entry).Error
	if errFind != nil {
		return models.ReportRun{}, fmt.Errorf("run: find run %s: %w", runID, errFind)
	}
	return entry, nil
}

func (s *Service) finish(ctx context.Context, entry *models.ReportRun, status, message, artifactPath string, bundle *report.Bundle) {
	now := s.now().UTC()
	entry.Status = status
	entry.Message = message
	entry.ArtifactPath = artifactPath
	entry.FinishedAt = &now

	if bundle != nil {
		if stats, errStats := json.Marshal(bundle.Stats); errStats == nil {
			entry.Stats = stats
		}
		if len(bundle.Skipped) > 0 {
			if skipped, errSkipped := json.Marshal(bundle.Skipped); errSkipped == nil {
				entry.SkippedMerchants = skipped
			}
		}
	}

	if errSave := s.db.WithContext(ctx).Save(entry).Error; errSave != nil {
		log.WithError(errSave).Warnf("run: persist run %s outcome", entry.RunID)
	}
}

func (s *Service) notifyRun(ctx context.Context, entry models.ReportRun) {
	if s.dispatcher == nil {
		return
	}
	summary := notify.Summary{
		Kind:    "report",
		Subject: fmt.Sprintf("Q%d %d report %s", entry.Quarter, entry.Year, entry.Status),
		Body:    entry.Message,
	}
	if _, errDispatch := s.dispatcher.Dispatch(ctx, summary); errDispatch != nil {
		log.WithError(errDispatch).Warn("run: notification failed")
	}
}
