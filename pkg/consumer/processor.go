package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmunro/archivist/pkg/blob"
	"github.com/jmunro/archivist/pkg/envelope"
	"github.com/jmunro/archivist/pkg/index"
	"github.com/jmunro/archivist/pkg/observability"
	"github.com/jmunro/archivist/pkg/queue"
)

// Outcome classifies one processed message.
type Outcome int

const (
	// Indexed means the hot-tier row was written (or re-written to the
	// same values on a redelivery).
	Indexed Outcome = iota

	// FailedTerminal means no redelivery can ever succeed: bad message,
	// missing blob, invalid envelope, or a uniqueness conflict.
	FailedTerminal

	// FailedRetryable means a dependency was unavailable; the platform
	// should redeliver.
	FailedRetryable
)

func (o Outcome) String() string {
	switch o {
	case Indexed:
		return "indexed"
	case FailedTerminal:
		return "failed-terminal"
	default:
		return "failed-retryable"
	}
}

// Upserter is the slice of the index the processor writes through.
type Upserter interface {
	Upsert(ctx context.Context, category, id, r2Key string, fields map[string]interface{}) error
}

// Processor handles one message at a time. Stateless; safe for concurrent
// use by multiple consumer loops.
type Processor struct {
	store   blob.Store
	idx     Upserter
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewProcessor wires a processor over the cold tier and the index.
func NewProcessor(store blob.Store, idx Upserter, logger *observability.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{store: store, idx: idx, logger: logger, metrics: metrics}
}

// Process runs the state machine for one message. The returned error
// carries detail for logging; the Outcome decides what happens to the
// delivery. Side effects are confined to the index.
func (p *Processor) Process(ctx context.Context, msg queue.Message) (Outcome, error) {
	start := time.Now()

	category, err := msg.Category()
	if err != nil {
		return p.done(msg, FailedTerminal, start, err)
	}
	if _, err := envelope.Lookup(category); err != nil {
		return p.done(msg, FailedTerminal, start, err)
	}

	key, err := msg.Key()
	if err != nil {
		return p.done(msg, FailedTerminal, start, err)
	}

	body, err := p.store.Get(ctx, key)
	p.blobOp("get", err)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			// The blob is the source of truth; a pointer to a blob that
			// does not exist can never be indexed.
			return p.done(msg, FailedTerminal, start, err)
		}
		return p.done(msg, FailedRetryable, start, err)
	}

	env, err := envelope.Decode(body)
	if err != nil {
		return p.done(msg, FailedTerminal, start, err)
	}

	if err := envelope.Validate(env, category); err != nil {
		return p.done(msg, FailedTerminal, start, err)
	}

	fields, err := envelope.Project(env)
	if err != nil {
		return p.done(msg, FailedTerminal, start, err)
	}

	if err := p.idx.Upsert(ctx, category, env.ID, key, fields); err != nil {
		if errors.Is(err, index.ErrConflict) {
			// The first claimant of the unique key wins; this envelope
			// loses permanently and must not clobber the winner.
			return p.done(msg, FailedTerminal, start, err)
		}
		return p.done(msg, FailedRetryable, start, err)
	}

	return p.done(msg, Indexed, start, nil)
}

func (p *Processor) blobOp(operation string, err error) {
	if p.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	p.metrics.BlobOperationsTotal.WithLabelValues(operation, result).Inc()
}

func (p *Processor) done(msg queue.Message, outcome Outcome, start time.Time, err error) (Outcome, error) {
	category := msg.Type
	if category == "" {
		if c, cerr := msg.Category(); cerr == nil {
			category = c
		} else {
			category = "unknown"
		}
	}

	if p.metrics != nil {
		label := observability.OutcomeIndexed
		switch {
		case outcome == FailedRetryable:
			label = observability.OutcomeError
		case outcome == FailedTerminal && errors.Is(err, index.ErrConflict):
			label = observability.OutcomeConflict
		case outcome == FailedTerminal:
			label = observability.OutcomeInvalid
		}
		p.metrics.ConsumedTotal.WithLabelValues(category, label).Inc()
		p.metrics.ConsumeDuration.WithLabelValues(category).Observe(time.Since(start).Seconds())
	}

	log := p.logger.WithFields(map[string]interface{}{
		"category":   category,
		"message_id": msg.MessageID,
		"id":         msg.ID,
		"outcome":    outcome.String(),
	})
	switch {
	case err == nil:
		log.Debug("message indexed")
	case outcome == FailedTerminal:
		// Validation failures name the offending field in err.
		log.WithError(err).Warn("message failed terminally")
	default:
		log.WithError(err).Error("message failed, eligible for redelivery")
	}

	if err != nil {
		return outcome, fmt.Errorf("process %s: %w", msg.MessageID, err)
	}
	return outcome, nil
}
