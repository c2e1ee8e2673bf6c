// Package consumer implements the read side of the indexing queue: fetch
// the referenced blob, validate the envelope, and upsert the hot-tier
// projection.
//
// Every message moves through a small state machine:
//
//	received → validating → {indexed | failed-terminal | failed-retryable}
//
// Terminal failures (malformed message, missing blob, validation error,
// uniqueness conflict) can never succeed on redelivery and go to the
// dead-letter list. Retryable failures (blob store or index unavailable)
// go back on the queue for the platform to redeliver. The two must never
// be conflated: retrying a validation error wastes deliveries forever,
// dead-lettering a transient outage loses data.
//
// Processing is idempotent. The upsert is keyed on the content address, so
// handling the same message one time or ten times leaves the identical
// row. The consumer never mutates the blob; its only side effect is the
// index.
package consumer
