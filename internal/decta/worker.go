package decta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/altpaynet/regreport/internal/models"
	"github.com/altpaynet/regreport/internal/notify"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultWorkerInterval  = time.Minute
	defaultWorkerBatchSize = 100
)

// Worker drives the matcher over pending Decta records in the
// background. Claiming is per-record CAS, so multiple workers can run
// against the same table without double-processing.
type Worker struct {
	db         *gorm.DB
	matcher    *Matcher
	interval   time.Duration
	batchSize  int
	dispatcher *notify.Dispatcher
}

func NewWorker(db *gorm.DB, matcher *Matcher, interval time.Duration, batchSize int) *Worker {
	if interval <= 0 {
		interval = defaultWorkerInterval
	}
	if batchSize <= 0 {
		batchSize = defaultWorkerBatchSize
	}
	return &Worker{db: db, matcher: matcher, interval: interval, batchSize: batchSize}
}

// WithDispatcher enables throttled batch-summary notifications.
func (w *Worker) WithDispatcher(dispatcher *notify.Dispatcher) *Worker {
	w.dispatcher = dispatcher
	return w
}

// Start launches the matching loop in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go w.run(ctx)
	log.Infof("decta match worker started (interval=%s batch=%d)", w.interval, w.batchSize)
}

func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, errRun := w.RunOnce(ctx); errRun != nil {
			log.WithError(errRun).Warn("decta match worker: batch failed")
		}
		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// BatchStats summarizes one worker pass.
type BatchStats struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Failed    int `json:"failed"`
}

// RunOnce matches one batch of pending records and returns its stats.
func (w *Worker) RunOnce(ctx context.Context) (BatchStats, error) {
	var stats BatchStats

	var ids []uint64
	errFind := w.db.WithContext(ctx).
		Model(&models.DectaTransaction{}).
		Where("status = ?", models.DectaStatusPending).
		Order("id ASC").
		Limit(w.batchSize).
		Pluck("id", &ids).Error
	if errFind != nil {
		return stats, errFind
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		result, errMatch := w.matcher.MatchOne(ctx, id)
		switch {
		case errMatch == nil:
			stats.Processed++
			if result.Matched {
				stats.Matched++
			} else {
				stats.Failed++
			}
		case errors.Is(errMatch, ErrNotClaimable), errors.Is(errMatch, ErrAttemptLimit):
			// Another worker got there first, or the record is out of
			// attempts. Either way there is nothing left to do here.
		default:
			log.WithError(errMatch).Warnf("decta match worker: record %d", id)
		}
	}

	if stats.Processed > 0 {
		log.Infof("decta match worker: processed=%d matched=%d failed=%d", stats.Processed, stats.Matched, stats.Failed)
		if w.dispatcher != nil {
			summary := notify.Summary{
				Kind:    "match",
				Subject: "matching batch finished",
				Body:    fmt.Sprintf("processed=%d matched=%d failed=%d", stats.Processed, stats.Matched, stats.Failed),
			}
			if _, errDispatch := w.dispatcher.Dispatch(ctx, summary); errDispatch != nil {
				log.WithError(errDispatch).Warn("decta match worker: notification failed")
			}
		}
	}
	return stats, nil
}
