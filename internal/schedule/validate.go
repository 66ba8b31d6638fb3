package schedule

import (
	"errors"
	"time"
)

const minWindowLength = 15 * time.Minute

var (
	ErrInvalidRange  = errors.New("end time must be after start time")
	ErrTooShort      = errors.New("time window must be at least 15 minutes")
	ErrWindowOverlap = errors.New("time window overlaps with existing availability")
)

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Adjacent intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ValidateWindow checks that a candidate [start, end) window is well formed
// and clear of every existing window on the same provider/date. Pure; must
// run before any window write.
func ValidateWindow(start, end time.Time, existing []AvailabilityWindow) error {
	if !end.After(start) {
		return ErrInvalidRange
	}
	if end.Sub(start) < minWindowLength {
		return ErrTooShort
	}
	for i := range existing {
		if Overlaps(start, end, existing[i].StartTime, existing[i].EndTime) {
			return ErrWindowOverlap
		}
	}
	return nil
}
