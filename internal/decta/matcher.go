// Package decta reconciles Decta card-network settlement records
// against internally recorded gateway transactions.
package decta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/altpaynet/regreport/internal/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// noMatchReason is the recorded failure reason when every strategy
	// comes up empty.
	noMatchReason = "no matching gateway transaction found"

	strategyExact = "exact"
	strategyFuzzy = "fuzzy"
)

// Candidate scoring for ambiguous exact-key lookups.
const (
	scoreAmountExact    = 10
	scoreCurrencyMatch  = 5
	scoreWithinHour     = 3
	scoreWithinDay      = 1
)

// ErrAttemptLimit is returned when a record has exhausted its matching
// attempts.
var ErrAttemptLimit = errors.New("decta: matching attempt limit reached")

// ErrNotClaimable is returned when the record is not in a state the
// matcher can claim (another worker holds it, or it is already matched).
var ErrNotClaimable = errors.New("decta: record not claimable")

// MatchResult is the outcome of one matching invocation.
type MatchResult struct {
	Matched              bool
	GatewayTransactionID uint64
	Strategy             string
	Reason               string
}

// Matcher locates gateway transactions for Decta records. Concurrent
// workers are safe: claiming a record is a single compare-and-set on
// its status, so a record is mutated by at most one matcher at a time.
type Matcher struct {
	db          *gorm.DB
	maxAttempts int
	now         func() time.Time
}

// NewMatcher wires a Matcher with its attempt cap.
func NewMatcher(db *gorm.DB, maxAttempts int) *Matcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Matcher{db: db, maxAttempts: maxAttempts, now: time.Now}
}

// MatchOne claims the record, runs the strategy chain and records the
// outcome. Strategy failures are written to the record, not returned as
// errors; only claim failures and store errors surface.
func (m *Matcher) MatchOne(ctx context.Context, recordID uint64) (MatchResult, error) {
	var record models.DectaTransaction
	if errFirst := m.db.WithContext(ctx).First(&record, recordID).Error; errFirst != nil {
		return MatchResult{}, fmt.Errorf("decta: load record %d: %w", recordID, errFirst)
	}

	attempts, errAttempts := decodeAttempts(record.MatchingAttempts)
	if errAttempts != nil {
		return MatchResult{}, errAttempts
	}
	if len(attempts) >= m.maxAttempts {
		return MatchResult{}, fmt.Errorf("%w: record %d has %d attempts", ErrAttemptLimit, recordID, len(attempts))
	}

	if errClaim := m.claim(ctx, &record); errClaim != nil {
		return MatchResult{}, errClaim
	}

	result, matchErr := m.runStrategies(ctx, &record)
	if matchErr != nil {
		// Lookup exceptions are recorded as a failure, not re-raised.
		log.WithError(matchErr).WithField("record_id", record.ID).
			Warn("decta: matching lookup failed")
		result = MatchResult{Matched: false, Strategy: "none", Reason: fmt.Sprintf("lookup error: %v", matchErr)}
	}

	if errFinish := m.finish(ctx, &record, attempts, result); errFinish != nil {
		return MatchResult{}, errFinish
	}
	return result, nil
}

// claim performs the atomic pending/failed -> processing transition.
func (m *Matcher) claim(ctx context.Context, record *models.DectaTransaction) error {
	update := m.db.WithContext(ctx).
		Model(&models.DectaTransaction{}).
		Where("id = ? AND status IN ?", record.ID, []string{models.DectaStatusPending, models.DectaStatusFailed}).
		Update("status", models.DectaStatusProcessing)
	if update.Error != nil {
		return fmt.Errorf("decta: claim record %d: %w", record.ID, update.Error)
	}
	if update.RowsAffected != 1 {
		return fmt.Errorf("%w: record %d in status %q", ErrNotClaimable, record.ID, record.Status)
	}
	record.Status = models.DectaStatusProcessing
	return nil
}

func (m *Matcher) runStrategies(ctx context.Context, record *models.DectaTransaction) (MatchResult, error) {
	if result, errExact := m.exactMatch(ctx, record); errExact != nil {
		return MatchResult{}, errExact
	} else if result.Matched {
		return result, nil
	}

	if result, errFuzzy := m.fuzzyMatch(ctx, record); errFuzzy != nil {
		return MatchResult{}, errFuzzy
	} else if result.Matched {
		return result, nil
	}

	return MatchResult{
		Matched:  false,
		Strategy: "none",
		Reason: fmt.Sprintf("%s (payment_id=%s amount=%d currency=%s date=%s)",
			noMatchReason, record.PaymentID, record.Amount, record.Currency,
			record.OccurredAt.UTC().Format("2006-01-02")),
	}, nil
}

// gatewayCandidate is the scan target for candidate queries.
type gatewayCandidate struct {
	ID        uint64
	Amount    int64
	Currency  string
	CreatedAt time.Time
}

// exactMatch looks up the settlement log by cross-reference key,
// narrowed by currency and exact amount when the record carries them.
// A single hit is accepted directly; multiple hits are scored and the
// best positive score wins, ties broken by lowest candidate id.
func (m *Matcher) exactMatch(ctx context.Context, record *models.DectaTransaction) (MatchResult, error) {
	query := m.db.WithContext(ctx).
		Table("gateway_transactions AS gt").
		Select("gt.id AS id, gt.amount AS amount, gt.currency AS currency, gt.created_at AS created_at").
		Joins("JOIN gateway_settlement_logs sl ON sl.gateway_transaction_id = gt.id").
		Where("sl.cross_reference = ?", record.PaymentID).
		Order("gt.id ASC")
	if record.Currency != "" {
		query = query.Where("gt.currency = ?", record.Currency)
	}
	if record.Amount != 0 {
		query = query.Where("gt.amount = ?", record.Amount)
	}

	var candidates []gatewayCandidate
	if errScan := query.Scan(&candidates).Error; errScan != nil {
		return MatchResult{}, fmt.Errorf("decta: exact lookup: %w", errScan)
	}

	switch len(candidates) {
	case 0:
		return MatchResult{}, nil
	case 1:
		return MatchResult{Matched: true, GatewayTransactionID: candidates[0].ID,
			Strategy: strategyExact, Reason: "exact cross-reference match"}, nil
	}

	best := -1
	bestScore := 0
	for i, candidate := range candidates {
		score := m.scoreCandidate(record, candidate)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return MatchResult{}, nil
	}
	return MatchResult{
		Matched:              true,
		GatewayTransactionID: candidates[best].ID,
		Strategy:             strategyExact,
		Reason:               fmt.Sprintf("exact cross-reference match, scored %d among %d candidates", bestScore, len(candidates)),
	}, nil
}

func (m *Matcher) scoreCandidate(record *models.DectaTransaction, candidate gatewayCandidate) int {
	score := 0
	if candidate.Amount == record.Amount {
		score += scoreAmountExact
	}
	if candidate.Currency == record.Currency {
		score += scoreCurrencyMatch
	}
	gap := candidate.CreatedAt.Sub(record.OccurredAt)
	if gap < 0 {
		gap = -gap
	}
	if gap <= time.Hour {
		score += scoreWithinHour
	} else if gap <= 24*time.Hour {
		score += scoreWithinDay
	}
	return score
}

// fuzzyMatch searches by amount within a ±1% tolerance (at least one
// minor unit) on the same calendar date, accepting the candidate with
// the smallest amount difference, lowest id first.
func (m *Matcher) fuzzyMatch(ctx context.Context, record *models.DectaTransaction) (MatchResult, error) {
	tolerance := decimal.NewFromInt(record.Amount).Mul(decimal.NewFromFloat(0.01)).Abs().Ceil().IntPart()
	if tolerance < 1 {
		tolerance = 1
	}

	dayStart := record.OccurredAt.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := m.db.WithContext(ctx).
		Table("gateway_transactions AS gt").
		Select("gt.id AS id, gt.amount AS amount, gt.currency AS currency, gt.created_at AS created_at").
		Where("gt.amount BETWEEN ? AND ?", record.Amount-tolerance, record.Amount+tolerance).
		Where("gt.created_at >= ? AND gt.created_at < ?", dayStart, dayEnd).
		Order("gt.id ASC")
	if record.Currency != "" {
		query = query.Where("gt.currency = ?", record.Currency)
	}

	var candidates []gatewayCandidate
	if errScan := query.Scan(&candidates).Error; errScan != nil {
		return MatchResult{}, fmt.Errorf("decta: fuzzy lookup: %w", errScan)
	}
	if len(candidates) == 0 {
		return MatchResult{}, nil
	}

	best := 0
	bestDiff := diffAbs(candidates[0].Amount, record.Amount)
	for i := 1; i < len(candidates); i++ {
		if diff := diffAbs(candidates[i].Amount, record.Amount); diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	return MatchResult{
		Matched:              true,
		GatewayTransactionID: candidates[best].ID,
		Strategy:             strategyFuzzy,
		Reason:               fmt.Sprintf("fuzzy amount match within %d minor units on same date", tolerance),
	}, nil
}

// finish writes the outcome and appends an audit attempt entry.
func (m *Matcher) finish(ctx context.Context, record *models.DectaTransaction, attempts []models.MatchAttempt, result MatchResult) error {
	now := m.now().UTC()
	attempts = append(attempts, models.MatchAttempt{At: now, Strategy: result.Strategy, Result: result.Reason})
	if len(attempts) > m.maxAttempts {
		attempts = attempts[len(attempts)-m.maxAttempts:]
	}
	encoded, errEncode := json.Marshal(attempts)
	if errEncode != nil {
		return fmt.Errorf("decta: encode attempts: %w", errEncode)
	}

	updates := map[string]any{
		"matching_attempts": encoded,
		"updated_at":        now,
	}
	if result.Matched {
		updates["status"] = models.DectaStatusMatched
		updates["is_matched"] = true
		updates["matched_at"] = now
		updates["gateway_transaction_id"] = result.GatewayTransactionID
		updates["error_message"] = ""
	} else {
		updates["status"] = models.DectaStatusFailed
		updates["is_matched"] = false
		updates["error_message"] = result.Reason
	}

	if errUpdate := m.db.WithContext(ctx).
		Model(&models.DectaTransaction{}).
		Where("id = ?", record.ID).
		Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("decta: record outcome for %d: %w", record.ID, errUpdate)
	}
	return nil
}

func decodeAttempts(raw []byte) ([]models.MatchAttempt, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var attempts []models.MatchAttempt
	if errDecode := json.Unmarshal(raw, &attempts); errDecode != nil {
		return nil, fmt.Errorf("decta: decode attempts: %w", errDecode)
	}
	return attempts, nil
}

func diffAbs(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
