package decta

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/altpaynet/regreport/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultExportChunkSize = 1000

var exportHeader = []string{
	"payment_id", "amount", "currency", "card_mask",
	"status", "matched_at", "gateway_transaction_id", "error_message",
}

// Exporter streams Decta records to CSV in fixed-size chunks so a large
// table never has to fit in memory.
type Exporter struct {
	db        *gorm.DB
	chunkSize int
}

func NewExporter(db *gorm.DB, chunkSize int) *Exporter {
	if chunkSize <= 0 {
		chunkSize = defaultExportChunkSize
	}
	return &Exporter{db: db, chunkSize: chunkSize}
}

// Export writes every record in the given status (empty = all) to out.
// Rows are paged by ascending id so concurrent inserts cannot shift the
// window. Returns the number of data rows written.
func (e *Exporter) Export(ctx context.Context, out io.Writer, status string) (int, error) {
	writer := csv.NewWriter(out)
	if errHeader := writer.Write(exportHeader); errHeader != nil {
		return 0, fmt.Errorf("decta: write export header: %w", errHeader)
	}

	written := 0
	lastID := uint64(0)
	for {
		var chunk []models.DectaTransaction
		query := e.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id ASC").
			Limit(e.chunkSize)
		if status != "" {
			query = query.Where("status = ?", status)
		}
		if errFind := query.Find(&chunk).Error; errFind != nil {
			return written, fmt.Errorf("decta: export page after %d: %w", lastID, errFind)
		}
		if len(chunk) == 0 {
			break
		}

		for _, record := range chunk {
			if errRow := writer.Write(exportRow(record)); errRow != nil {
				return written, fmt.Errorf("decta: write export row: %w", errRow)
			}
			written++
		}
		lastID = chunk[len(chunk)-1].ID

		writer.Flush()
		if errFlush := writer.Error(); errFlush != nil {
			return written, fmt.Errorf("decta: flush export: %w", errFlush)
		}
	}

	writer.Flush()
	return written, writer.Error()
}

func exportRow(record models.DectaTransaction) []string {
	matchedAt := ""
	if record.MatchedAt != nil {
		matchedAt = record.MatchedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	gatewayID := ""
	if record.GatewayTransactionID != nil {
		gatewayID = strconv.FormatUint(*record.GatewayTransactionID, 10)
	}
	return []string{
		record.PaymentID,
		decimal.New(record.Amount, -2).StringFixed(2),
		record.Currency,
		record.CardMask,
		record.Status,
		matchedAt,
		gatewayID,
		record.ErrorMessage,
	}
}
