// Package ingest implements the write path of the archive: validate a
// category payload, derive its content address, deduplicate, write the
// authoritative envelope to the cold tier, and emit an indexing message.
//
// The pipeline is the same for every category; per-category behavior is
// entirely data-driven by the envelope.Registry config, so there is exactly
// one state machine regardless of how many categories exist.
//
// Deduplication is advisory: two concurrent submissions of identical
// content may both pass the pre-write check and both write the same blob
// key with the same bytes. That is harmless - the key is derived from the
// content, the writes are identical, and the index upsert converges both
// to one row. Correctness never depends on the check; it only saves work.
//
// The bulk trigger (Reindex) re-derives the same flow for blobs that
// already exist, which is what makes the relational index disposable: the
// cold tier is the source of truth and the hot tier can always be rebuilt
// from it.
package ingest
