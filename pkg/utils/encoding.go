package utils

import (
	"encoding/json"
	"fmt"

	"encore.app/pkg/models"
)

// Serialization helpers for the durable tier's JSONB columns. Failures on
// the read side wrap models.ErrCacheCorruption so callers can treat the row
// as a miss and drop it.

// MarshalTerms serializes a term slice for storage.
func MarshalTerms(terms []int64) ([]byte, error) {
	return json.Marshal(terms)
}

// UnmarshalTerms deserializes a stored term slice.
func UnmarshalTerms(data []byte) ([]int64, error) {
	var terms []int64
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("%w: terms column: %v", models.ErrCacheCorruption, err)
	}
	return terms, nil
}

// MarshalStrings serializes a string slice (keywords, result ID lists).
func MarshalStrings(values []string) ([]byte, error) {
	return json.Marshal(values)
}

// UnmarshalStrings deserializes a stored string slice.
func UnmarshalStrings(data []byte) ([]string, error) {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: string list column: %v", models.ErrCacheCorruption, err)
	}
	return values, nil
}
