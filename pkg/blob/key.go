package blob

import (
	"fmt"
	"strings"
)

// Key derives the object key for an envelope: "{category}/{id}.json" with
// the ":" in the content address flattened to "_" (object stores and URL
// paths both get awkward around colons). The mapping is bijective because
// content addresses contain exactly one colon.
func Key(category, id string) string {
	return category + "/" + strings.ReplaceAll(id, ":", "_") + ".json"
}

// Prefix returns the listing prefix for a category.
func Prefix(category string) string {
	return category + "/"
}

// ParseKey splits an object key back into category and content address.
func ParseKey(key string) (category, id string, err error) {
	category, rest, ok := strings.Cut(key, "/")
	if !ok || category == "" {
		return "", "", fmt.Errorf("malformed object key %q", key)
	}
	name, ok := strings.CutSuffix(rest, ".json")
	if !ok || name == "" {
		return "", "", fmt.Errorf("malformed object key %q", key)
	}
	return category, strings.Replace(name, "_", ":", 1), nil
}
