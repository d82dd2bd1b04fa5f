// Package policy holds the pure decisions taken when a host creates an event:
// when the event expires and whether the host may create it at all.
package policy

import (
	"errors"
	"fmt"
	"time"

	"fotobox/eventhub/internal/clock"
)

// DefaultExpiryDays applies when neither the host nor the configuration
// specify a duration.
const DefaultExpiryDays = 14

var ErrInvalidDuration = errors.New("expiry duration must be a positive number of days")

type ExpiryCalculator struct {
	clock clock.Clock
}

func NewExpiryCalculator(clk clock.Clock) ExpiryCalculator {
	if clk == nil {
		clk = clock.Real()
	}
	return ExpiryCalculator{clock: clk}
}

// Compute returns anchor + durationDays calendar days. A nil anchor means now.
// Days are added with AddDate in the anchor's location, so a DST switch inside
// the window keeps the wall-clock time instead of drifting by an hour.
func (c ExpiryCalculator) Compute(anchor *time.Time, durationDays int) (time.Time, error) {
	if durationDays <= 0 {
		return time.Time{}, fmt.Errorf("%w: got %d", ErrInvalidDuration, durationDays)
	}
	base := c.clock.Now()
	if anchor != nil {
		base = *anchor
	}
	return base.AddDate(0, 0, durationDays), nil
}

// DurationOrDefault resolves the per-host setting against the configured default.
func DurationOrDefault(hostDays, configDays int) int {
	if hostDays > 0 {
		return hostDays
	}
	if configDays > 0 {
		return configDays
	}
	return DefaultExpiryDays
}
