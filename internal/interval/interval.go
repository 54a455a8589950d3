// Package interval holds the overlap checks shared by slot generation and
// booking validation.
package interval

import "time"

// Interval is a UTC time range. It is used both for internal bookings and for
// busy blocks read from external calendars.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [aStart,aEnd] and [bStart,bEnd] share any instant.
// Touching ranges conflict: a range ending exactly when another starts is
// treated as a double booking.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// OverlapsWithBuffer pads the existing event outward by buffer on both sides
// before checking overlap. The buffer belongs to the service being booked.
func OverlapsWithBuffer(candidateStart, candidateEnd, eventStart, eventEnd time.Time, buffer time.Duration) bool {
	return Overlaps(candidateStart, candidateEnd, eventStart.Add(-buffer), eventEnd.Add(buffer))
}

// AnyOverlap reports whether candidate overlaps any of events after padding
// each event by buffer.
func AnyOverlap(candidate Interval, events []Interval, buffer time.Duration) bool {
	for _, ev := range events {
		if OverlapsWithBuffer(candidate.Start, candidate.End, ev.Start, ev.End, buffer) {
			return true
		}
	}
	return false
}
