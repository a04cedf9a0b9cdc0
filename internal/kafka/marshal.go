package kafka

import (
	"encoding/json"
	"fmt"
)

// Decode unmarshals a message value, or an envelope payload, into T.
func Decode[T any](b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
