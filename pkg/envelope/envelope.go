package envelope

import (
	"encoding/json"
	"fmt"
)

// Envelope is the uniform wrapper for every stored content item.
type Envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// ValidationError describes why an envelope was rejected. It is terminal:
// redelivering the same message cannot make it valid.
type ValidationError struct {
	Category string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s envelope: field %q %s", e.Category, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s envelope: %s", e.Category, e.Reason)
}

// New builds an envelope for the given category payload, computing the
// content address from the canonical bytes of data.
func New(category string, data json.RawMessage) (*Envelope, error) {
	if _, err := Lookup(category); err != nil {
		return nil, err
	}
	id, err := Address(data)
	if err != nil {
		// A payload that cannot be addressed is a malformed submission,
		// not a dependency failure.
		return nil, &ValidationError{
			Category: category,
			Field:    "data",
			Reason:   fmt.Sprintf("cannot be canonicalized: %v", err),
		}
	}
	return &Envelope{
		Type: category,
		ID:   id,
		Data: data,
	}, nil
}

// Decode parses a serialized envelope without validating it.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// Encode serializes the envelope for cold storage.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Fields unmarshals the payload into a generic map. Unknown fields are
// preserved; this is the permissive view used by validation and projection.
func (e *Envelope) Fields() (map[string]interface{}, error) {
	if len(e.Data) == 0 {
		return nil, &ValidationError{Category: e.Type, Reason: "has no data payload"}
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(e.Data, &fields); err != nil {
		return nil, &ValidationError{Category: e.Type, Reason: fmt.Sprintf("data is not a JSON object: %v", err)}
	}
	return fields, nil
}

// Validate checks the envelope against the rules for the given category:
// the type discriminator must match exactly, the id must be present, and
// every required field must be present and non-null in the payload.
// Extra fields are ignored.
func Validate(env *Envelope, category string) error {
	cat, err := Lookup(category)
	if err != nil {
		return err
	}

	if env.Type != cat.Name {
		return &ValidationError{
			Category: cat.Name,
			Field:    "type",
			Reason:   fmt.Sprintf("is %q, expected %q", env.Type, cat.Name),
		}
	}
	if env.ID == "" {
		return &ValidationError{Category: cat.Name, Field: "id", Reason: "is missing"}
	}

	fields, err := env.Fields()
	if err != nil {
		return err
	}

	for _, name := range cat.RequiredFields {
		value, ok := fields[name]
		if !ok {
			return &ValidationError{Category: cat.Name, Field: name, Reason: "is missing"}
		}
		if value == nil {
			return &ValidationError{Category: cat.Name, Field: name, Reason: "is null"}
		}
		if s, ok := value.(string); ok && s == "" {
			return &ValidationError{Category: cat.Name, Field: name, Reason: "is empty"}
		}
	}

	return nil
}
