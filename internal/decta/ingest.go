package decta

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/altpaynet/regreport/internal/models"
	"github.com/altpaynet/regreport/internal/transfer"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Column order of a Decta settlement CSV export.
const (
	colPaymentID = iota
	colAmount
	colCurrency
	colCardMask
	colMerchantID
	colOccurredAt
	ingestColumns
)

// IngestStats summarizes one file ingestion.
type IngestStats struct {
	File     string `json:"file"`
	Rows     int    `json:"rows"`     // Data rows seen.
	Inserted int    `json:"inserted"` // New records created.
	Skipped  int    `json:"skipped"`  // Malformed or duplicate rows.
}

// Ingester loads Decta settlement CSV files into the matching queue.
type Ingester struct {
	db     *gorm.DB
	source transfer.FileSource
}

func NewIngester(db *gorm.DB, source transfer.FileSource) *Ingester {
	return &Ingester{db: db, source: source}
}

// IngestAll fetches and ingests every file the source currently lists.
func (i *Ingester) IngestAll(ctx context.Context) ([]IngestStats, error) {
	names, errList := i.source.List(ctx)
	if errList != nil {
		return nil, fmt.Errorf("decta: list settlement files: %w", errList)
	}
	stats := make([]IngestStats, 0, len(names))
	for _, name := range names {
		fileStats, errIngest := i.IngestFile(ctx, name)
		if errIngest != nil {
			return stats, errIngest
		}
		stats = append(stats, fileStats)
	}
	return stats, nil
}

// IngestFile ingests one named settlement file. Malformed rows are
// logged and skipped; re-ingesting a file is a no-op for rows whose
// payment id is already known.
func (i *Ingester) IngestFile(ctx context.Context, name string) (IngestStats, error) {
	stats := IngestStats{File: name}

	body, errFetch := i.source.Fetch(ctx, name)
	if errFetch != nil {
		return stats, fmt.Errorf("decta: fetch %s: %w", name, errFetch)
	}
	defer func() { _ = body.Close() }()

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1

	header := true
	for {
		row, errRead := reader.Read()
		if errRead == io.EOF {
			break
		}
		if errRead != nil {
			return stats, fmt.Errorf("decta: read %s: %w", name, errRead)
		}
		if header {
			header = false
			continue
		}
		stats.Rows++

		record, errParse := parseRow(row, name)
		if errParse != nil {
			stats.Skipped++
			log.WithError(errParse).Warnf("decta ingest: %s row %d skipped", name, stats.Rows)
			continue
		}

		res := i.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "payment_id"}}, DoNothing: true}).
			Create(&record)
		if res.Error != nil {
			return stats, fmt.Errorf("decta: insert %s: %w", record.PaymentID, res.Error)
		}
		if res.RowsAffected == 1 {
			stats.Inserted++
		} else {
			stats.Skipped++
		}
	}

	log.Infof("decta ingest: %s rows=%d inserted=%d skipped=%d", name, stats.Rows, stats.Inserted, stats.Skipped)
	return stats, nil
}

func parseRow(row []string, file string) (models.DectaTransaction, error) {
	if len(row) < ingestColumns {
		return models.DectaTransaction{}, fmt.Errorf("decta: row has %d columns, want %d", len(row), ingestColumns)
	}

	paymentID := strings.TrimSpace(row[colPaymentID])
	if paymentID == "" {
		return models.DectaTransaction{}, fmt.Errorf("decta: empty payment id")
	}

	amount, errAmount := decimal.NewFromString(strings.TrimSpace(row[colAmount]))
	if errAmount != nil {
		return models.DectaTransaction{}, fmt.Errorf("decta: amount %q: %w", row[colAmount], errAmount)
	}
	minor := amount.Shift(2)
	if !minor.IsInteger() {
		return models.DectaTransaction{}, fmt.Errorf("decta: amount %q has sub-cent precision", row[colAmount])
	}

	currency := strings.ToUpper(strings.TrimSpace(row[colCurrency]))
	if len(currency) != 3 {
		return models.DectaTransaction{}, fmt.Errorf("decta: currency %q", row[colCurrency])
	}

	occurredAt, errTime := time.Parse(time.RFC3339, strings.TrimSpace(row[colOccurredAt]))
	if errTime != nil {
		return models.DectaTransaction{}, fmt.Errorf("decta: occurred_at %q: %w", row[colOccurredAt], errTime)
	}

	record := models.DectaTransaction{
		PaymentID:  paymentID,
		Amount:     minor.IntPart(),
		Currency:   currency,
		CardMask:   strings.TrimSpace(row[colCardMask]),
		OccurredAt: occurredAt.UTC(),
		SourceFile: file,
		Status:     models.DectaStatusPending,
	}

	if raw := strings.TrimSpace(row[colMerchantID]); raw != "" {
		merchantID, errMerchant := strconv.ParseUint(raw, 10, 64)
		if errMerchant != nil {
			return models.DectaTransaction{}, fmt.Errorf("decta: merchant id %q: %w", raw, errMerchant)
		}
		record.MerchantID = &merchantID
	}

	return record, nil
}
