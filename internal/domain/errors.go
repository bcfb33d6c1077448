package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidRiskConfig  = errors.New("invalid risk configuration")
	ErrInvalidRangeState  = errors.New("invalid range state")
	ErrSessionUntradeable = errors.New("session untradeable")
	ErrLockHeld           = errors.New("lock already held")
	ErrContextDone        = errors.New("context cancelled")
)

// DataIntegrityError reports corrupt input data: non-monotonic timestamps,
// inconsistent OHLC fields, or negative volume. It aborts the offending
// instrument's run and must never be silently skipped.
type DataIntegrityError struct {
	Instrument string
	BarIndex   int
	Reason     string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s bar %d: %s", e.Instrument, e.BarIndex, e.Reason)
}

// IsDataIntegrity reports whether err is (or wraps) a DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var die *DataIntegrityError
	return errors.As(err, &die)
}
