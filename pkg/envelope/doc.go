// Package envelope defines the wire and storage contract for every content
// category in the archive: the {type, id, data} wrapper, the canonical
// serialization used for content addressing, and the per-category validation
// rules.
//
// # Envelope Format
//
// Every item, regardless of category, is wrapped in the same envelope before
// it touches storage:
//
//	{
//	  "type": "quotes",
//	  "id":   "sha256:ab12...",
//	  "data": { ...full category payload... }
//	}
//
// The id is a pure function of the canonical bytes of data. Re-submitting an
// identical payload always produces the identical id, which is what makes
// creation idempotent end to end.
//
// # Canonical Serialization
//
// Before hashing, data is re-serialized canonically: object keys sorted
// lexicographically at every nesting level, no insignificant whitespace,
// UTF-8, and number literals preserved exactly as received (json.Number).
// See Canonicalize for the precise rules. Changing these rules changes every
// content address, so treat them as frozen.
//
// # Categories
//
// Categories are registered in a static registry (see Registry). Each entry
// carries the category's required fields, its secondary uniqueness field if
// any, and the projection of payload fields into the hot-tier index. Fields
// that are not required and not projected pass through to cold storage
// untouched - the validator is permissive about data it does not index.
package envelope
