package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmunro/archivist/pkg/blob"
	"github.com/jmunro/archivist/pkg/envelope"
	"github.com/jmunro/archivist/pkg/observability"
	"github.com/jmunro/archivist/pkg/queue"
)

type fakeDeduper struct {
	mu    sync.Mutex
	ids   map[string]bool
	err   error
	calls int
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{ids: make(map[string]bool)}
}

func (f *fakeDeduper) ExistsByID(ctx context.Context, category, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.ids[id], nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.Message) error {
	return f.PublishBatch(ctx, []queue.Message{msg})
}

func (f *fakePublisher) PublishBatch(ctx context.Context, msgs []queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func setupService(t *testing.T) (*Service, *blob.MemoryStore, *fakeDeduper, *fakePublisher) {
	store := blob.NewMemoryStore()
	dedup := newFakeDeduper()
	pub := &fakePublisher{}
	svc, err := NewService(store, dedup, pub, 128, testLogger(), observability.NewMetrics(nil))
	require.NoError(t, err)
	return svc, store, dedup, pub
}

func quotePayload() json.RawMessage {
	return json.RawMessage(`{
		"author": "Twain",
		"date_added": "2024-01-01T00:00:00Z",
		"year": 2024,
		"month": 1,
		"slug": "twain-1",
		"text": "..."
	}`)
}

func TestIngest_StoresBlobAndQueues(t *testing.T) {
	svc, store, _, pub := setupService(t)
	ctx := context.Background()

	result, err := svc.Ingest(ctx, "quotes", quotePayload())
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.True(t, envelope.ValidAddress(result.ID))
	assert.Equal(t, blob.Key("quotes", result.ID), result.Key)

	// Full envelope in cold storage.
	body, err := store.Get(ctx, result.Key)
	require.NoError(t, err)
	env, err := envelope.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, result.ID, env.ID)
	fields, err := env.Fields()
	require.NoError(t, err)
	assert.Equal(t, "...", fields["text"])

	// One indexing message pointing at the blob.
	require.Equal(t, 1, pub.count())
	assert.Equal(t, result.Key, pub.msgs[0].R2Key)
	assert.Equal(t, "quotes", pub.msgs[0].Type)
}

func TestIngest_IdempotentCreation(t *testing.T) {
	svc, store, dedup, pub := setupService(t)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, "quotes", quotePayload())
	require.NoError(t, err)
	require.True(t, first.Created)

	// The consumer has indexed it in the meantime.
	dedup.ids[first.ID] = true

	// Byte-identical resubmission: same id, no new blob, no new message.
	second, err := svc.Ingest(ctx, "quotes", quotePayload())
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, pub.count())
}

func TestIngest_DedupCacheShortCircuitsIndexLookup(t *testing.T) {
	svc, _, dedup, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "quotes", quotePayload())
	require.NoError(t, err)
	callsAfterFirst := dedup.calls

	// Second submission is answered from the LRU without hitting the index.
	result, err := svc.Ingest(ctx, "quotes", quotePayload())
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, callsAfterFirst, dedup.calls)
}

func TestIngest_EquivalentPayloadsDeduplicate(t *testing.T) {
	svc, store, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "quotes", quotePayload())
	require.NoError(t, err)

	// Same content, different key order and whitespace.
	reordered := json.RawMessage(`{"text":"...","slug":"twain-1","month":1,"year":2024,"date_added":"2024-01-01T00:00:00Z","author":"Twain"}`)
	result, err := svc.Ingest(ctx, "quotes", reordered)
	require.NoError(t, err)

	assert.False(t, result.Created)
	assert.Equal(t, 1, store.Len())
}

func TestIngest_ValidationFailureHasNoSideEffects(t *testing.T) {
	svc, store, _, pub := setupService(t)

	// slug missing
	_, err := svc.Ingest(context.Background(), "quotes", json.RawMessage(`{
		"author": "Twain", "date_added": "2024-01-01", "year": 2024, "month": 1
	}`))

	var verr *envelope.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "slug", verr.Field)
	assert.Zero(t, store.Len())
	assert.Zero(t, pub.count())
}

func TestIngest_UnknownCategory(t *testing.T) {
	svc, store, _, _ := setupService(t)

	_, err := svc.Ingest(context.Background(), "mixtapes", json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.Zero(t, store.Len())
}

func TestIngest_DedupLookupFailure(t *testing.T) {
	svc, store, dedup, pub := setupService(t)
	dedup.err = errors.New("index unavailable")

	_, err := svc.Ingest(context.Background(), "quotes", quotePayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup lookup failed")
	assert.Zero(t, store.Len())
	assert.Zero(t, pub.count())
}

func TestIngest_PublishFailureSurfaces(t *testing.T) {
	svc, store, _, pub := setupService(t)
	pub.err = errors.New("queue unavailable")

	_, err := svc.Ingest(context.Background(), "quotes", quotePayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to enqueue")
	// The blob write happened; reindex will pick it up.
	assert.Equal(t, 1, store.Len())
}

func TestExists(t *testing.T) {
	svc, _, dedup, _ := setupService(t)
	ctx := context.Background()

	id := "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	dedup.ids[id] = true

	exists, err := svc.Exists(ctx, "photo", id)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.Exists(ctx, "photo", "sha256:0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExists_RejectsMalformedAddress(t *testing.T) {
	svc, _, _, _ := setupService(t)

	_, err := svc.Exists(context.Background(), "photo", "not-a-hash")
	var verr *envelope.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReindex_FansOutOneMessagePerKey(t *testing.T) {
	svc, store, _, pub := setupService(t)
	ctx := context.Background()

	for _, key := range []string{"films/a.json", "films/b.json", "films/c.json", "quotes/d.json"} {
		require.NoError(t, store.Put(ctx, key, []byte("{}")))
	}

	count, err := svc.Reindex(ctx, "films")
	require.NoError(t, err)

	assert.Equal(t, 3, count)
	require.Equal(t, 3, pub.count())
	for _, msg := range pub.msgs {
		assert.Equal(t, "films", msg.Type)
		assert.NotEmpty(t, msg.ObjectKey)
	}
}

func TestReindex_EnumerationFailurePublishesNothing(t *testing.T) {
	svc, store, _, pub := setupService(t)
	store.FailList = true

	count, err := svc.Reindex(context.Background(), "films")
	require.Error(t, err)
	assert.Zero(t, count)
	assert.Zero(t, pub.count())
	assert.Contains(t, err.Error(), "nothing queued")
}

func TestReindex_EmptyPrefix(t *testing.T) {
	svc, _, _, pub := setupService(t)

	count, err := svc.Reindex(context.Background(), "films")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, pub.count())
}

func TestReindex_RerunDoublesMessagesNotState(t *testing.T) {
	svc, store, _, pub := setupService(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "films/a.json", []byte("{}")))
	require.NoError(t, store.Put(ctx, "films/b.json", []byte("{}")))

	first, err := svc.Reindex(ctx, "films")
	require.NoError(t, err)
	second, err := svc.Reindex(ctx, "films")
	require.NoError(t, err)

	assert.Equal(t, 2, first)
	assert.Equal(t, 2, second)
	// 2×N messages; final index state convergence is the consumer's job.
	assert.Equal(t, 4, pub.count())
}

func TestIngest_RecordsBlobOperations(t *testing.T) {
	store := blob.NewMemoryStore()
	metrics := observability.NewMetrics(nil)
	svc, err := NewService(store, newFakeDeduper(), &fakePublisher{}, 0, testLogger(), metrics)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Ingest(ctx, "quotes", quotePayload())
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BlobOperationsTotal.WithLabelValues("put", "success")))

	_, err = svc.Reindex(ctx, "quotes")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BlobOperationsTotal.WithLabelValues("list", "success")))

	store.FailList = true
	_, err = svc.Reindex(ctx, "quotes")
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BlobOperationsTotal.WithLabelValues("list", "error")))
}

func TestNewService_NoCache(t *testing.T) {
	svc, err := NewService(blob.NewMemoryStore(), newFakeDeduper(), &fakePublisher{}, 0, testLogger(), nil)
	require.NoError(t, err)

	// Works without the LRU and without metrics.
	result, err := svc.Ingest(context.Background(), "quotes", quotePayload())
	require.NoError(t, err)
	assert.True(t, result.Created)
}
