package cookie

import (
	"encoding/json"
	"fmt"
	"sort"
)

const flashPrefix = "__flash_"

// Session is the decoded key/value map of one cookie. It is owned by a
// single request and not safe for concurrent use.
type Session struct {
	data map[string]json.RawMessage
}

func newSession() *Session {
	return &Session{data: map[string]json.RawMessage{}}
}

// NewSession returns an empty session.
func NewSession() *Session { return newSession() }

// Has reports whether key (or a pending flash for key) is set.
func (s *Session) Has(key string) bool {
	_, ok := s.data[key]
	if !ok {
		_, ok = s.data[flashPrefix+key]
	}
	return ok
}

// Get decodes the value under key into dst. A flashed value is removed
// once read, so the next Commit drops it.
func (s *Session) Get(key string, dst any) (bool, error) {
	raw, ok := s.data[key]
	if !ok {
		raw, ok = s.data[flashPrefix+key]
		if ok {
			delete(s.data, flashPrefix+key)
		}
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cookie: decode %q: %w", key, err)
	}
	return true, nil
}

// GetString returns the string under key, or "" when absent or not a string.
func (s *Session) GetString(key string) string {
	var v string
	if ok, err := s.Get(key, &v); !ok || err != nil {
		return ""
	}
	return v
}

// Set stores value under key.
func (s *Session) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cookie: encode %q: %w", key, err)
	}
	s.data[key] = raw
	return nil
}

// Unset removes key.
func (s *Session) Unset(key string) {
	delete(s.data, key)
	delete(s.data, flashPrefix+key)
}

// Flash stores value under key until it is read once.
func (s *Session) Flash(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cookie: encode flash %q: %w", key, err)
	}
	s.data[flashPrefix+key] = raw
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Empty reports whether nothing is stored.
func (s *Session) Empty() bool { return len(s.data) == 0 }
