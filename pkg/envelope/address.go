package envelope

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressPrefix is the scheme prefix carried by every content address.
const AddressPrefix = "sha256:"

// Canonicalize re-serializes a JSON payload into the canonical byte form
// used for content addressing:
//
//   - object keys sorted lexicographically at every nesting level
//   - no insignificant whitespace
//   - number literals preserved exactly as received
//   - UTF-8 with standard JSON string escaping
//
// Two payloads that differ only in key order or whitespace canonicalize to
// identical bytes. These rules are load-bearing: changing them changes every
// content address and silently breaks deduplication against existing blobs.
func Canonicalize(data json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("payload has trailing data")
	}

	// json.Marshal sorts map keys recursively, and json.Number round-trips
	// the original literal. That combination is the canonical form.
	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return canonical, nil
}

// Address computes the content address of a payload: "sha256:" followed by
// the lowercase hex SHA-256 of the canonical bytes. Deterministic across
// processes and time.
func Address(data json.RawMessage) (string, error) {
	canonical, err := Canonicalize(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return AddressPrefix + hex.EncodeToString(sum[:]), nil
}

// ValidAddress reports whether id is a well-formed content address.
func ValidAddress(id string) bool {
	if !strings.HasPrefix(id, AddressPrefix) {
		return false
	}
	digest := id[len(AddressPrefix):]
	if len(digest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}
