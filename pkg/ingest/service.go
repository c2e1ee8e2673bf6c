package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jmunro/archivist/pkg/blob"
	"github.com/jmunro/archivist/pkg/envelope"
	"github.com/jmunro/archivist/pkg/observability"
	"github.com/jmunro/archivist/pkg/queue"
)

// Deduper answers the pre-write existence question, normally backed by the
// metadata index.
type Deduper interface {
	ExistsByID(ctx context.Context, category, id string) (bool, error)
}

// Publisher emits indexing messages, normally backed by the Redis queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
	PublishBatch(ctx context.Context, msgs []queue.Message) error
}

// Result reports one ingestion.
type Result struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Created bool   `json:"created"`
}

// Service runs the validate → address → dedup → store → enqueue pipeline.
type Service struct {
	store   blob.Store
	dedup   Deduper
	pub     Publisher
	seen    *lru.Cache[string, struct{}]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService wires the pipeline. cacheSize bounds the in-process LRU that
// fronts the index dedup lookup; 0 disables the cache.
func NewService(store blob.Store, dedup Deduper, pub Publisher, cacheSize int, logger *observability.Logger, metrics *observability.Metrics) (*Service, error) {
	s := &Service{
		store:   store,
		dedup:   dedup,
		pub:     pub,
		logger:  logger,
		metrics: metrics,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, struct{}](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create dedup cache: %w", err)
		}
		s.seen = cache
	}
	return s, nil
}

// Ingest runs one payload through the pipeline. Identical payloads always
// produce the identical id; the second submission returns the existing id
// with Created=false and has no side effects.
//
// The dedup check is racy by design: two concurrent identical submissions
// may both proceed past it. Both then write identical bytes to the same
// key and emit equivalent messages, and the consumer's upsert converges
// the index to a single row.
func (s *Service) Ingest(ctx context.Context, category string, data json.RawMessage) (*Result, error) {
	env, err := envelope.New(category, data)
	if err != nil {
		s.count(category, observability.OutcomeInvalid)
		return nil, err
	}

	if err := envelope.Validate(env, category); err != nil {
		s.count(category, observability.OutcomeInvalid)
		return nil, err
	}

	key := blob.Key(category, env.ID)

	exists, err := s.exists(ctx, category, env.ID)
	if err != nil {
		s.count(category, observability.OutcomeError)
		return nil, err
	}
	if exists {
		s.count(category, observability.OutcomeDuplicate)
		s.logger.WithFields(map[string]interface{}{
			"category": category,
			"id":       env.ID,
		}).Debug("duplicate submission, skipping")
		return &Result{ID: env.ID, Key: key, Created: false}, nil
	}

	body, err := env.Encode()
	if err != nil {
		s.count(category, observability.OutcomeError)
		return nil, err
	}

	err = s.store.Put(ctx, key, body)
	s.blobOp("put", err)
	if err != nil {
		s.count(category, observability.OutcomeError)
		return nil, fmt.Errorf("failed to store %s envelope: %w", category, err)
	}

	msg := queue.Message{Type: category, ID: env.ID, R2Key: key}
	if err := s.pub.Publish(ctx, msg); err != nil {
		// The blob is durable; the row will appear on the next reindex.
		s.count(category, observability.OutcomeError)
		return nil, fmt.Errorf("stored %s but failed to enqueue indexing: %w", key, err)
	}

	s.remember(env.ID)
	s.count(category, observability.OutcomeCreated)
	s.logger.WithFields(map[string]interface{}{
		"category": category,
		"id":       env.ID,
		"key":      key,
	}).Info("envelope stored and queued")

	return &Result{ID: env.ID, Key: key, Created: true}, nil
}

// Exists answers the existence probe for a known content address without
// ingesting anything.
func (s *Service) Exists(ctx context.Context, category, id string) (bool, error) {
	if !envelope.ValidAddress(id) {
		return false, &envelope.ValidationError{Category: category, Field: "id", Reason: "is not a content address"}
	}
	return s.exists(ctx, category, id)
}

// Reindex lists every blob under the category prefix and fans out one
// indexing message per object. All or nothing: a listing failure publishes
// zero messages, so a half-fanned-out reindex can never be mistaken for a
// complete one. Re-running is always safe; the consumer upsert absorbs
// repeats.
func (s *Service) Reindex(ctx context.Context, category string) (int, error) {
	if _, err := envelope.Lookup(category); err != nil {
		return 0, err
	}

	keys, err := s.store.List(ctx, blob.Prefix(category))
	s.blobOp("list", err)
	if err != nil {
		return 0, fmt.Errorf("enumeration failed for %s, nothing queued: %w", category, err)
	}

	msgs := make([]queue.Message, 0, len(keys))
	for _, key := range keys {
		msgs = append(msgs, queue.Message{Type: category, ObjectKey: key})
	}

	if err := s.pub.PublishBatch(ctx, msgs); err != nil {
		return 0, fmt.Errorf("failed to queue reindex for %s: %w", category, err)
	}

	if s.metrics != nil {
		s.metrics.ReindexQueued.WithLabelValues(category).Add(float64(len(msgs)))
	}
	s.logger.WithFields(map[string]interface{}{
		"category": category,
		"count":    len(msgs),
	}).Info("reindex fan-out complete")

	return len(msgs), nil
}

func (s *Service) exists(ctx context.Context, category, id string) (bool, error) {
	if s.seen != nil {
		if _, ok := s.seen.Get(id); ok {
			return true, nil
		}
	}
	exists, err := s.dedup.ExistsByID(ctx, category, id)
	if err != nil {
		return false, fmt.Errorf("dedup lookup failed: %w", err)
	}
	if exists {
		s.remember(id)
	}
	return exists, nil
}

func (s *Service) remember(id string) {
	if s.seen != nil {
		s.seen.Add(id, struct{}{})
	}
}

func (s *Service) count(category, outcome string) {
	if s.metrics != nil {
		s.metrics.IngestTotal.WithLabelValues(category, outcome).Inc()
	}
}

func (s *Service) blobOp(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	s.metrics.BlobOperationsTotal.WithLabelValues(operation, result).Inc()
}
