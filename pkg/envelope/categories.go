package envelope

import (
	"encoding/json"
	"sort"
)

// Category describes one content category: its validation rules and the
// projection of payload fields into the hot-tier index. The full payload
// always lives in cold storage; the projection is only what the index needs
// for filtering and sorting, so large text fields never appear here.
type Category struct {
	// Name is the type discriminator carried on the wire and in blob keys.
	Name string

	// RequiredFields must be present and non-null in the payload.
	RequiredFields []string

	// UniqueField is a secondary uniqueness key (typically a human-authored
	// slug) enforced by the index independently of the content address.
	// Empty when the category has none.
	UniqueField string

	// IndexFields are the payload fields projected into the index row,
	// in column order. Every index field is scalar.
	IndexFields []string
}

// Registry holds every known category keyed by name.
var Registry = map[string]Category{
	"chatter": {
		Name:           "chatter",
		RequiredFields: []string{"text", "posted_at"},
		IndexFields:    []string{"posted_at", "year", "month"},
	},
	"quotes": {
		Name:           "quotes",
		RequiredFields: []string{"author", "date_added", "year", "month", "slug"},
		UniqueField:    "slug",
		IndexFields:    []string{"author", "date_added", "year", "month", "slug", "publish"},
	},
	"films": {
		Name:           "films",
		RequiredFields: []string{"year", "year_watched", "date_watched", "month", "slug"},
		UniqueField:    "slug",
		IndexFields:    []string{"year", "year_watched", "date_watched", "month", "slug"},
	},
	"shakespeare": {
		Name:           "shakespeare",
		RequiredFields: []string{"work_id", "paragraph_id", "character", "body"},
		IndexFields:    []string{"work_id", "paragraph_id", "character"},
	},
	"photo": {
		Name:           "photo",
		RequiredFields: []string{"taken_at"},
		IndexFields:    []string{"taken_at", "year", "month"},
	},
	"podcast": {
		Name:           "podcast",
		RequiredFields: []string{"show", "title", "published_at", "audio_url", "slug"},
		UniqueField:    "slug",
		IndexFields:    []string{"show", "published_at", "slug"},
	},
}

// Lookup returns the category config for name.
func Lookup(name string) (Category, error) {
	cat, ok := Registry[name]
	if !ok {
		return Category{}, &ValidationError{Category: name, Reason: "unknown category"}
	}
	return cat, nil
}

// Names returns all registered category names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Project extracts the category's index fields from the envelope payload.
// Fields absent from the payload project as nil; the index stores NULL for
// them. Values keep their decoded JSON types (string, float64, bool).
func Project(env *Envelope) (map[string]interface{}, error) {
	cat, err := Lookup(env.Type)
	if err != nil {
		return nil, err
	}

	fields, err := env.Fields()
	if err != nil {
		return nil, err
	}

	row := make(map[string]interface{}, len(cat.IndexFields))
	for _, name := range cat.IndexFields {
		value, ok := fields[name]
		if !ok {
			row[name] = nil
			continue
		}
		switch v := value.(type) {
		case string, bool, float64, nil:
			row[name] = v
		case json.Number:
			row[name] = v.String()
		default:
			return nil, &ValidationError{
				Category: cat.Name,
				Field:    name,
				Reason:   "is not a scalar value",
			}
		}
	}
	return row, nil
}
