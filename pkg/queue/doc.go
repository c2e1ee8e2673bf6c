// Package queue provides the at-least-once indexing queue between the
// ingestion path and the index consumer, backed by Redis lists.
//
// # Delivery Semantics
//
// Publish pushes messages onto the main list. Receive atomically moves one
// message to a per-queue pending list (BRPOPLPUSH), so a consumer crash
// mid-processing leaves the message parked rather than lost. Ack removes it
// from pending; a retryable Nack moves it back onto the main list for
// redelivery; a terminal Nack parks it on a dead-letter list for inspection.
//
// Delivery is at-least-once: consumers may see duplicates (including after
// a fully successful processing run whose Ack was lost) and must be
// idempotent. No ordering is guaranteed across messages.
//
// # Message Shape
//
// A message is a minimal pointer at a blob record. Producers emit either a
// direct object key or an {id, r2Key} pair; Key() resolves both shapes.
package queue
