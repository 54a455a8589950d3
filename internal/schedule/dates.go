package schedule

import (
	"time"

	"github.com/hackgods/pool-availability/internal/wallclock"
)

// AvailableDates returns the local dates in [today, today+horizonDays) that
// have at least one rule and are not blacked out. It does not look at
// bookings, so a returned date may still turn out fully booked.
func AvailableDates(rules []Rule, loc *time.Location, horizonDays int, blackouts []Blackout, now time.Time) []wallclock.Date {
	if loc == nil || len(rules) == 0 {
		return nil
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	today := wallclock.Today(now, loc)

	var dates []wallclock.Date
	for i := 0; i < horizonDays; i++ {
		d := today.AddDays(i)
		if !HasRuleFor(d.Weekday(), rules) {
			continue
		}
		if IsBlackedOut(d, blackouts) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}
