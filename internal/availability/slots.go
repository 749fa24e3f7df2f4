package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching endpoints do not overlap: a booking
// ending at 09:30 leaves 09:30 free.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func OverlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// SlotStarts enumerates candidate start times stepping through
// [windowStart, windowEnd). Candidates are emitted while the start lies
// inside the window; whether the probed duration crosses the window end is
// not this function's concern (the booking window constraint only binds the
// start of a consultation).
func SlotStarts(windowStart, windowEnd time.Time, step time.Duration) []time.Time {
	if step <= 0 || !windowEnd.After(windowStart) {
		return nil
	}
	var starts []time.Time
	for t := windowStart; t.Before(windowEnd); t = t.Add(step) {
		starts = append(starts, t)
	}
	return starts
}

// ClockOf returns the offset of t from midnight in t's location.
func ClockOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// ClockWithin reports whether t's time-of-day falls in [start, end).
func ClockWithin(t time.Time, start, end time.Duration) bool {
	c := ClockOf(t)
	return c >= start && c < end
}

// WindowOnDay anchors a recurring window's clock range on a concrete day.
func WindowOnDay(day time.Time, start, end time.Duration, loc *time.Location) (time.Time, time.Time) {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(start), midnight.Add(end)
}
