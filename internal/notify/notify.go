// Package notify delivers run-summary notifications with a DB-backed
// throttle. The Notifier interface keeps the delivery channel
// pluggable; the default sink is the structured log.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/altpaynet/regreport/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Summary is the payload of one run notification.
type Summary struct {
	Kind    string // "report" or "match".
	Subject string // One-line summary.
	Body    string // Rendered details.
}

// Key identifies the summary for throttling.
func (s Summary) Key() string {
	return s.Kind + ":" + s.Subject
}

// Notifier delivers a summary to some channel.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

// LogNotifier writes summaries to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, summary Summary) error {
	log.WithField("kind", summary.Kind).Infof("notification: %s", summary.Subject)
	return nil
}

// Dispatcher throttles and records deliveries. At most one notification
// per key is sent within the throttle window; suppressed deliveries are
// not an error.
type Dispatcher struct {
	db       *gorm.DB
	notifier Notifier
	window   time.Duration
	now      func() time.Time
}

func NewDispatcher(db *gorm.DB, notifier Notifier, window time.Duration) *Dispatcher {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Dispatcher{db: db, notifier: notifier, window: window, now: time.Now}
}

// Dispatch sends the summary unless an identical key was delivered
// within the throttle window. Returns whether the summary was sent.
func (d *Dispatcher) Dispatch(ctx context.Context, summary Summary) (bool, error) {
	now := d.now().UTC()

	if d.window > 0 {
		var count int64
		errCount := d.db.WithContext(ctx).
			Model(&models.NotificationLog{}).
			Where("key = ? AND sent_at > ?", summary.Key(), now.Add(-d.window)).
			Count(&count).Error
		if errCount != nil {
			return false, fmt.Errorf("notify: check throttle: %w", errCount)
		}
		if count > 0 {
			log.Debugf("notify: throttled %q", summary.Key())
			return false, nil
		}
	}

	if errNotify := d.notifier.Notify(ctx, summary); errNotify != nil {
		return false, fmt.Errorf("notify: deliver %q: %w", summary.Key(), errNotify)
	}

	entry := models.NotificationLog{
		Key:     summary.Key(),
		Subject: summary.Subject,
		Body:    summary.Body,
		SentAt:  now,
	}
	if errCreate := d.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		return true, fmt.Errorf("notify: record delivery: %w", errCreate)
	}
	return true, nil
}
