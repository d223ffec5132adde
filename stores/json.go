package stores

import (
	"encoding/json"
	"errors"
	"fmt"
)

// GetJSON decodes key into v. It reports false when the key is missing or
// the stored value is corrupt.
func GetJSON(c Cache, key string, v any) (bool, error) {
	raw, err := c.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("corrupt value under %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v under key.
func PutJSON(c Cache, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal %s: %v", ErrLocalWrite, key, err)
	}
	return c.Put(key, raw)
}
