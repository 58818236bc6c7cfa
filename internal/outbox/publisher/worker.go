package publisher

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/lendstack/underwriting/internal/observability/metrics"
	"github.com/lendstack/underwriting/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PublishFunc is the injectable event sink. Implementations must be safe for
// concurrent use; the worker calls it once per row inside the batch
// transaction.
type PublishFunc func(ctx context.Context, topic, eventType string, payload []byte, headers map[string]string) error

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Publish PublishFunc
	Metrics *obsmetrics.Metrics `optional:"true"`
	Config  Config              `optional:"true"`
}

// Worker drains the outbox table. Several workers may run against the same
// table; SKIP LOCKED row selection keeps them from processing the same row.
type Worker struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	publish PublishFunc
	metrics *obsmetrics.Metrics
	cfg     Config
}

func NewWorker(p Params) *Worker {
	cfg := p.Config.withDefaults()
	return &Worker{
		db:      p.DB,
		log:     p.Log.Named("outbox.publisher"),
		repo:    p.Repo,
		publish: p.Publish,
		metrics: p.Metrics,
		cfg:     cfg,
	}
}

// RunForever polls until the context is cancelled.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("outbox publish cycle failed", zap.Error(err))
			if w.metrics != nil {
				w.metrics.RecordOutboxFailure()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce drains one batch inside a single transaction. If the sink fails
// partway through, the transaction rolls back and every row in the batch
// stays unpublished for the next cycle. Delivery is at-least-once; consumers
// deduplicate by event id.
func (w *Worker) RunOnce(parentCtx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	published := 0

	// The row whose sink call failed. Its attempt counter is bumped after
	// the rollback, otherwise the increment would be discarded with the
	// batch and a poison row could never reach the MaxAttempts ceiling.
	var failed []snowflake.ID

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := w.repo.LockUnpublished(ctx, tx, w.cfg.BatchSize, w.cfg.MaxAttempts)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(rows))
		for _, row := range rows {
			if err := w.publish(ctx, row.Topic, row.EventType, row.Payload, stringHeaders(row.Headers)); err != nil {
				failed = append(failed, row.ID)
				return err
			}
			ids = append(ids, row.ID)
		}

		if err := w.repo.MarkPublished(ctx, tx, ids, time.Now().UTC()); err != nil {
			return err
		}

		published = len(ids)
		return nil
	})
	if err != nil {
		if len(failed) > 0 {
			if merr := w.repo.MarkFailed(parentCtx, w.db, failed); merr != nil {
				w.log.Warn("recording publish failure", zap.Error(merr))
			}
		}
		return 0, err
	}

	if w.metrics != nil {
		w.metrics.RecordOutboxPublished(published)
		w.metrics.ObserveOutboxBatch(time.Since(start))
	}
	if published > 0 {
		w.log.Info("outbox batch published", zap.Int("events", published))
	}

	return published, nil
}

func stringHeaders(headers map[string]any) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
