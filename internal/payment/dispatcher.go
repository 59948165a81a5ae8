package payment

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/payment/metrics"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/sentinel"
)

// Sender drives one payment to completion.
type Sender interface {
	Send(ctx context.Context, p *models.Payment) (models.PaymentStatus, error)
}

// Log is the part of the payment store the dispatcher needs.
type Log interface {
	Insert(ctx context.Context, p *models.Payment) error
	ListByStatus(ctx context.Context, statuses ...models.PaymentStatus) ([]*models.Payment, error)
}

// Dispatcher completes accepted payments in the background with a fixed
// pool of workers reading from a bounded queue.
type Dispatcher struct {
	sender  Sender
	log     Log
	queue   chan *models.Payment
	workers int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type DispatcherOption func(*Dispatcher)

func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan *models.Payment, n)
		}
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(sender Sender, log Log, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		log:     log,
		queue:   make(chan *models.Payment, 256),
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue records p as Pending and hands it to the workers without
// waiting. A full queue is reported as CodeUnavailable so the caller can
// redeliver; the recorded payment is also recovered by the next Run.
func (d *Dispatcher) Enqueue(ctx context.Context, p *models.Payment) error {
	if err := d.log.Insert(ctx, p); err != nil && !errors.Is(err, sentinel.ErrAlreadyUsed) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
	}
	select {
	case d.queue <- p:
		if d.metrics != nil {
			d.metrics.QueueDepth.Inc()
		}
		return nil
	default:
		if d.metrics != nil {
			d.metrics.QueueRejected.Inc()
		}
		d.logger.WarnContext(ctx, "payment queue full", "reference", p.Reference)
		return dErrors.New(dErrors.CodeUnavailable, "payment queue is full")
	}
}

// Run starts the workers, re-enqueues unfinished payments from the log and
// blocks until ctx ends. Payments still queued at that point stay in the
// log and are picked up by the next Run.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return d.recoverUnfinished(ctx)
	})
	return g.Wait()
}

func (d *Dispatcher) recoverUnfinished(ctx context.Context) error {
	unfinished, err := d.log.ListByStatus(ctx, models.PaymentPending, models.PaymentSubmitted)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to load unfinished payments", "error", err)
		return nil
	}
	for _, p := range unfinished {
		select {
		case <-ctx.Done():
			return nil
		case d.queue <- p:
			if d.metrics != nil {
				d.metrics.QueueDepth.Inc()
				d.metrics.Recovered.Inc()
			}
		}
	}
	if len(unfinished) > 0 {
		d.logger.InfoContext(ctx, "unfinished payments re-enqueued", "count", len(unfinished))
	}
	return nil
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-d.queue:
			if d.metrics != nil {
				d.metrics.QueueDepth.Dec()
			}
			status, err := d.sender.Send(ctx, p)
			if err != nil {
				d.logger.WarnContext(ctx, "payment did not complete",
					"reference", p.Reference,
					"tenant_id", p.SourceTenantID,
					"status", string(status),
					"error", err,
				)
			}
		}
	}
}
