package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
)

// Worker drains unpublished outbox messages to a Publisher. A batch is marked
// published only after the broker acknowledged all of it, so delivery is
// at-least-once.
type Worker struct {
	store     Store
	runner    TxRunner
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

type WorkerOption func(w *Worker)

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		w.now = now
	}
}

func NewWorker(store Store, runner TxRunner, publisher Publisher, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:     store,
		runner:    runner,
		publisher: publisher,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled. Publish failures are logged and retried on
// the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain publishes full batches until the backlog is empty.
func (w *Worker) drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.ProcessBatch(ctx)
		total += n
		if err != nil || n < w.batchSize {
			return total, err
		}
	}
}

// ProcessBatch claims, publishes and marks one batch, returning how many
// messages were delivered.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	delivered := 0
	err := w.runner.RunInTx(ctx, func(ctx context.Context) error {
		msgs, err := w.store.FetchUnpublished(ctx, w.batchSize)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		if err := w.publisher.Publish(ctx, msgs); err != nil {
			w.metrics.incFailure()
			return fmt.Errorf("publish outbox batch: %w", err)
		}
		ids := make([]uuid.UUID, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		if err := w.store.MarkPublished(ctx, ids, w.now()); err != nil {
			return err
		}
		delivered = len(msgs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if delivered > 0 {
		w.metrics.addPublished(delivered)
		w.logger.DebugContext(ctx, "outbox batch published", "count", delivered)
	}
	return delivered, nil
}
