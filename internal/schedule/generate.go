package schedule

import (
	"time"

	"github.com/google/uuid"
)

// GenerateSlots expands one availability window into its ordered sequence
// of fixed-duration slots. Deterministic over the window fields apart from
// ids and references: starting at the window start, a slot is emitted while
// it still fits before the window end, then the cursor advances by the slot
// duration plus the break. A window shorter than one slot yields nothing.
func GenerateSlots(w *AvailabilityWindow, newRef RefSource) []Slot {
	if newRef == nil {
		newRef = NewBookingReference
	}

	dur := time.Duration(w.SlotDuration) * time.Minute
	brk := time.Duration(w.BreakDuration) * time.Minute

	var slots []Slot
	for cursor := w.StartTime; !cursor.Add(dur).After(w.EndTime); cursor = cursor.Add(dur + brk) {
		slots = append(slots, Slot{
			ID:               uuid.New(),
			AvailabilityID:   w.ID,
			ProviderID:       w.ProviderID,
			StartTime:        cursor,
			EndTime:          cursor.Add(dur),
			Status:           SlotAvailable,
			AppointmentType:  w.AppointmentType,
			BookingReference: newRef(),
		})
	}
	return slots
}

// ExpandRecurrence returns the window occurrences to materialize: the base
// window itself, plus one copy per matching date up to the recurrence end
// date when the window recurs. Each occurrence gets its own id and must be
// overlap-validated and slot-generated independently.
func ExpandRecurrence(w AvailabilityWindow) []AvailabilityWindow {
	occurrences := []AvailabilityWindow{w}

	if !w.IsRecurring || w.RecurrenceEndDate == nil {
		return occurrences
	}
	if w.RecurrencePattern == RecurrenceNone || w.RecurrencePattern == "" {
		return occurrences
	}

	end := *w.RecurrenceEndDate
	for step := 1; ; step++ {
		var date time.Time
		switch w.RecurrencePattern {
		case RecurrenceDaily:
			date = w.Date.AddDate(0, 0, step)
		case RecurrenceWeekly:
			date = w.Date.AddDate(0, 0, 7*step)
		case RecurrenceMonthly:
			date = addMonthsClamped(w.Date, step)
		default:
			return occurrences
		}
		if date.After(end) {
			return occurrences
		}

		occ := w
		occ.ID = uuid.New()
		occ.Date = date
		occ.StartTime = onDate(date, w.StartTime)
		occ.EndTime = onDate(date, w.EndTime)
		occurrences = append(occurrences, occ)
	}
}

// addMonthsClamped adds months keeping the day-of-month, clamping to the
// last day of shorter months (Jan 31 + 1 month = Feb 28/29) instead of the
// time.AddDate overflow behavior.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// onDate transplants the clock time of src onto the given calendar date.
func onDate(date, src time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		src.Hour(), src.Minute(), src.Second(), 0, src.Location())
}
