package remind

import "time"

// Advance computes the occurrence that follows current for the given pattern.
// ok=false means the reminder has no further occurrences and must retire.
//
// The function is pure: it depends only on its inputs, never on the wall
// clock, so repeated application can simulate a reminder's whole lifetime.
func Advance(current time.Time, p Pattern) (next time.Time, ok bool) {
	switch p.Kind {
	case KindDaily:
		return current.AddDate(0, 0, 1), true
	case KindWeekly:
		return current.AddDate(0, 0, 7), true
	case KindMonthly:
		return addMonthClamped(current, 1), true
	case KindHourly:
		return current.Add(time.Hour), true
	case KindEveryHours:
		if p.N <= 0 {
			return time.Time{}, false
		}
		return current.Add(time.Duration(p.N) * time.Hour), true
	case KindEveryDays:
		if p.N <= 0 {
			return time.Time{}, false
		}
		return current.AddDate(0, 0, p.N), true
	default:
		return time.Time{}, false
	}
}

// addMonthClamped adds months keeping the day-of-month, clamping to the last
// valid day of the target month (Jan 31 -> Feb 28/29). time.AddDate would
// normalize the overflow into March instead, which reads as a skipped month
// to the user.
func addMonthClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	first := time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysInMonth(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysInMonth(y int, m time.Month) int {
	// Day 0 of the following month is the last day of m.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
