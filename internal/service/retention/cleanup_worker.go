// Package retention удаляет из outbox события, которые уже опубликованы или ушли в DLQ.
package retention

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultRetention        = 24 * time.Hour
)

var (
	outboxCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_outbox_cleanup_runs_total",
		Help: "Total number of outbox cleanup runs grouped by result.",
	}, []string{"result"})
	outboxCleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_outbox_cleanup_deleted_total",
		Help: "Total number of deleted processed outbox messages.",
	})
	outboxCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickets_outbox_cleanup_last_deleted",
		Help: "Number of deleted messages during the last cleanup run.",
	})
)

// CleanupOptions задает параметры воркера очистки outbox.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Retention time.Duration
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задает размер batch для одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// WithRetention задает, сколько хранить обработанные сообщения.
func WithRetention(retention time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Retention = retention
	}
}

// CleanupWorker периодически удаляет обработанные сообщения outbox старше retention.
type CleanupWorker struct {
	repo      domain.OutboxPurger
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	retention time.Duration
	now       func() time.Time
}

// NewCleanupWorker создает воркер очистки outbox.
func NewCleanupWorker(repo domain.OutboxPurger, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
		Retention: defaultRetention,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-cleanup-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Retention < 0 {
		opts.Retention = defaultRetention
	}

	return &CleanupWorker{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		retention: opts.Retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("outbox cleanup worker is disabled: repo is nil")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	deleted, err := w.DeleteProcessed(ctx, w.now().Add(-w.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		outboxCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}

	outboxCleanupRunsTotal.WithLabelValues("ok").Inc()
	outboxCleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("outbox cleanup completed")
	}
}

// DeleteProcessed удаляет все обработанные сообщения, обновлённые не позже before,
// порциями batchSize.
func (w *CleanupWorker) DeleteProcessed(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		deleted, err := w.repo.DeleteProcessed(ctx, before, w.batchSize)
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted > 0 {
			outboxCleanupDeletedTotal.Add(float64(deleted))
		}

		if deleted < w.batchSize {
			break
		}
	}

	return totalDeleted, nil
}
