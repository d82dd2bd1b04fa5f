package policy

import (
	"errors"
	"fmt"
)

var ErrQuotaExceeded = errors.New("event quota exceeded")

// QuotaError carries the configured limit so callers can tell the host how
// many events they are allowed.
type QuotaError struct {
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("event quota exceeded: at most %d events allowed", e.Limit)
}

func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// MayCreate allows creation when maxEvents is nil or currentCount is below it.
func MayCreate(maxEvents *int, currentCount int64) error {
	if maxEvents == nil {
		return nil
	}
	if currentCount < int64(*maxEvents) {
		return nil
	}
	return &QuotaError{Limit: *maxEvents}
}
