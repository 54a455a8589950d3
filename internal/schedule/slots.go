package schedule

import (
	"time"

	"github.com/hackgods/pool-availability/internal/interval"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

// SlotRequest is everything needed to lay out one calendar day for one
// provider.
type SlotRequest struct {
	Date    wallclock.Date
	Rules   []Rule
	Meeting Meeting

	// Bookings are padded by the meeting buffer; Busy blocks from external
	// calendars are checked as-is.
	Bookings []interval.Interval
	Busy     []interval.Interval

	Location      *time.Location
	MinimumNotice time.Duration
	Now           time.Time
}

// GenerateTimeSlots walks every rule for the request's weekday in steps of the
// meeting duration and flags each slot available or not. A slot whose end
// equals the rule end is included. Rules are walked in input order and slots
// from different rules are not merged. Wall-clock starts that fall in a DST
// gap are skipped, so slots within a rule strictly increase.
//
// Blackouts are not consulted here; callers exclude blacked out dates first.
func GenerateTimeSlots(req SlotRequest) []Slot {
	step := req.Meeting.DurationMinutes
	if step <= 0 || req.Location == nil {
		return nil
	}

	day := req.Date.Weekday()
	duration := req.Meeting.Duration()
	buffer := req.Meeting.Buffer()
	cutoff := req.Now.Add(req.MinimumNotice)

	var slots []Slot
	for _, rule := range req.Rules {
		if rule.DayOfWeek != day {
			continue
		}

		endMin := rule.End.Minutes()
		for m := rule.Start.Minutes(); m+step <= endMin; m += step {
			tod := wallclock.TimeOfDay{Hour: m / 60, Minute: m % 60}
			if !wallclock.Exists(req.Date, tod, req.Location) {
				continue
			}
			start := wallclock.ToUTC(req.Date, tod, req.Location)
			candidate := interval.Interval{Start: start, End: start.Add(duration)}

			available := !start.Before(cutoff) &&
				!interval.AnyOverlap(candidate, req.Bookings, buffer) &&
				!interval.AnyOverlap(candidate, req.Busy, 0)

			slots = append(slots, Slot{
				Start:     candidate.Start,
				End:       candidate.End,
				Available: available,
			})
		}
	}
	return slots
}
