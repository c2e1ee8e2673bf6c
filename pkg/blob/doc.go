// Package blob implements the cold tier: durable object storage for full
// envelope documents on any S3-compatible backend (Cloudflare R2 in
// production, MinIO in development).
//
// Objects are keyed deterministically from the content address:
//
//	{category}/{id with ":" replaced by "_"}.json
//
// so the envelope for quote sha256:abc... lives at quotes/sha256_abc....json.
// The blob tier is the source of truth for the archive; the relational index
// is a rebuildable projection of it. Nothing in this package ever rewrites
// an existing object outside of an explicit migration.
package blob
