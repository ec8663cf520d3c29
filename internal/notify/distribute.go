// Package notify renders processed notices and delivers them to the
// subscribers of their source.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// Sender delivers one message to a set of recipients.
type Sender interface {
	Send(ctx context.Context, to []string, msg Message) error
}

// Store resolves subscribers and records delivery attempts.
type Store interface {
	SubscribersBySource(ctx context.Context) (map[int64][]string, error)
	LogDelivery(ctx context.Context, entry notice.DeliveryLog) error
}

// Result summarizes a distribution phase.
type Result struct {
	Sent    int
	Failed  int
	Skipped int
}

// Distributor fans processed items out to their subscribers.
type Distributor struct {
	store    Store
	sender   Sender
	renderer *Renderer
	workers  int
	now      func() time.Time
}

// NewDistributor creates a Distributor with at most workers concurrent sends.
func NewDistributor(store Store, sender Sender, renderer *Renderer, workers int) *Distributor {
	if workers <= 0 {
		workers = 20
	}
	return &Distributor{store: store, sender: sender, renderer: renderer, workers: workers, now: time.Now}
}

// Run sends one message per item to the subscribers of its source. A failed
// delivery is logged and recorded, and never stops other items. The returned
// error reports a failed subscriber lookup or failed audit writes.
func (d *Distributor) Run(ctx context.Context, items []notice.Processed) (Result, error) {
	var res Result
	if len(items) == 0 {
		return res, nil
	}

	subscribers, err := d.store.SubscribersBySource(ctx)
	if err != nil {
		return res, fmt.Errorf("loading subscribers: %w", err)
	}

	slog.Info("distribution started", "items", len(items), "workers", d.workers)
	start := time.Now()

	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	g := new(errgroup.Group)
	g.SetLimit(d.workers)

	for _, p := range items {
		g.Go(func() error {
			recipients := subscribers[p.Item.SourceID]
			if len(recipients) == 0 {
				slog.Warn("no subscribers for source", "source_id", p.Item.SourceID, "link", p.Item.Link)
				mu.Lock()
				res.Skipped++
				mu.Unlock()
				return nil
			}

			entry := d.deliver(ctx, p, recipients)
			logErr := d.store.LogDelivery(ctx, entry)

			mu.Lock()
			defer mu.Unlock()
			if entry.Status == notice.DeliverySuccess {
				res.Sent++
			} else {
				res.Failed++
			}
			if logErr != nil {
				errs = multierror.Append(errs, fmt.Errorf("recording delivery for %s: %w", p.Item.Link, logErr))
			}
			return nil
		})
	}
	g.Wait()

	slog.Info("distribution complete",
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res, errs.ErrorOrNil()
}

// deliver renders and sends one item, returning its audit row.
func (d *Distributor) deliver(ctx context.Context, p notice.Processed, recipients []string) (entry notice.DeliveryLog) {
	entry = notice.DeliveryLog{
		SourceID:       p.Item.SourceID,
		RecipientCount: len(recipients),
		Status:         notice.DeliverySuccess,
	}
	defer func() {
		if r := recover(); r != nil {
			entry.Status = notice.DeliveryError
			entry.Error = fmt.Sprintf("panic: %v", r)
		}
		entry.SentAt = d.now()
		if entry.Status == notice.DeliveryError {
			slog.Error("delivery failed", "source_id", p.Item.SourceID, "link", p.Item.Link, "error", entry.Error)
		}
	}()

	msg, err := d.renderer.Render(p.Item.Category, p.Summary)
	if err != nil {
		entry.Status = notice.DeliveryError
		entry.Error = err.Error()
		return entry
	}
	if err := d.sender.Send(ctx, recipients, msg); err != nil {
		entry.Status = notice.DeliveryError
		entry.Error = err.Error()
		return entry
	}
	slog.Info("delivered", "source_id", p.Item.SourceID, "link", p.Item.Link, "recipients", len(recipients))
	return entry
}
