package verification

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExpired is returned when no usable record exists: it was never
	// created, has expired, or has exhausted its attempts.
	ErrExpired = errors.New("code has expired, please request a new code")
	// ErrIdentifierRequired is returned for an empty identifier.
	ErrIdentifierRequired = errors.New("verification identifier required")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid verification config")
)

// CooldownError reports that a code was sent too recently.
type CooldownError struct {
	// Remaining is the wait time rounded up to whole seconds.
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds before sending again", e.Seconds())
}

// Seconds returns the remaining wait in whole seconds, at least 1.
func (e *CooldownError) Seconds() int {
	secs := int((e.Remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
