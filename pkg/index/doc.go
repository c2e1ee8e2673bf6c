// Package index implements the hot tier: a relational projection of the
// blob archive holding only the fields needed for filtering, sorting and
// uniqueness checks. One table per category, one row per blob, keyed by
// content address.
//
// The index is deliberately disposable. It is written only by the queue
// consumer, via idempotent upserts keyed on id, and can be truncated and
// rebuilt at any time by re-enumerating the blob store. Secondary
// uniqueness (human-authored slugs) is enforced here with UNIQUE
// constraints - the database is the sole serialization point for
// concurrent indexing of the same logical record.
//
// SQLite is the default backend; Postgres is supported through the same
// ON CONFLICT upsert dialect.
package index
