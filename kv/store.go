package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is absent or expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps network and protocol failures of the backend.
	ErrUnavailable = errors.New("kv: backend unavailable")
	// ErrCorrupt is returned when a stored value cannot be decoded.
	ErrCorrupt = errors.New("kv: corrupt value")
)

// Store is the minimal key-value contract. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the raw value, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes value under key. A ttl <= 0 means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every live key starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// GetJSON reads key and decodes it into dst. It reports false with a nil
// error when the key does not exist.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// PutJSON encodes value as JSON and writes it with the given ttl.
func PutJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw, ttl)
}

// CeilSeconds rounds d up to whole seconds with a floor of one second,
// matching backends whose expiry granularity is a second.
func CeilSeconds(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	secs := (d + time.Second - 1) / time.Second
	return secs * time.Second
}
