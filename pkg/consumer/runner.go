package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/jmunro/archivist/pkg/observability"
	"github.com/jmunro/archivist/pkg/queue"
)

// Runner drives one consume loop: receive, process, settle. Failures are
// strictly per-message; nothing a single message does can abort the loop
// or affect its siblings.
type Runner struct {
	queue     *queue.Queue
	processor *Processor
	logger    *observability.Logger
	metrics   *observability.Metrics

	// ReceiveWait bounds each blocking receive so the loop notices
	// context cancellation promptly. Defaults to 5s.
	ReceiveWait time.Duration
}

// NewRunner wires a consume loop over a queue and processor.
func NewRunner(q *queue.Queue, p *Processor, logger *observability.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		queue:       q,
		processor:   p,
		logger:      logger,
		metrics:     metrics,
		ReceiveWait: 5 * time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.RunOnce(ctx); err != nil && !errors.Is(err, queue.ErrEmpty) {
			// Receive-side failure (Redis down, poison payload already
			// dead-lettered). Log and keep consuming.
			r.logger.WithError(err).Error("receive failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}

		r.observeDepth(ctx)
	}
}

// RunOnce handles at most one delivery. Returns queue.ErrEmpty when there
// was nothing to do.
func (r *Runner) RunOnce(ctx context.Context) error {
	d, err := r.queue.Receive(ctx, r.ReceiveWait)
	if err != nil {
		return err
	}

	outcome, perr := r.processor.Process(ctx, d.Message)

	var settle error
	switch outcome {
	case Indexed:
		settle = r.queue.Ack(ctx, d)
	case FailedTerminal:
		settle = r.queue.Nack(ctx, d, false)
	case FailedRetryable:
		settle = r.queue.Nack(ctx, d, true)
	}
	if settle != nil {
		// The delivery stays parked on the pending list; an operator can
		// requeue it. Better stuck than lost.
		r.logger.WithError(settle).Error("failed to settle delivery")
	}

	_ = perr // already logged with full context by the processor
	return nil
}

func (r *Runner) observeDepth(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	if depth, err := r.queue.Depth(ctx); err == nil {
		r.metrics.QueueDepth.Set(float64(depth))
	}
	if dead, err := r.queue.DeadDepth(ctx); err == nil {
		r.metrics.DeadLetterDepth.Set(float64(dead))
	}
}
