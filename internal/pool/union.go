package pool

import (
	"sort"
	"time"

	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

// UnionSlots merges per-member slot lists into one combined calendar. Slots
// are keyed by start instant and a combined slot is available when any member
// has that start available. A member with no slot at a key counts as busy
// there but does not remove the key.
func UnionSlots(perMember [][]schedule.Slot) []schedule.Slot {
	merged := make(map[int64]schedule.Slot)
	for _, slots := range perMember {
		for _, s := range slots {
			key := s.Start.UnixNano()
			existing, ok := merged[key]
			if !ok {
				merged[key] = s
				continue
			}
			if s.Available && !existing.Available {
				existing.Available = true
				merged[key] = existing
			}
		}
	}

	out := make([]schedule.Slot, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// MemberCalendar is the date-level view of one member.
type MemberCalendar struct {
	Rules     []schedule.Rule
	Blackouts []schedule.Blackout
}

func (c MemberCalendar) opensOn(d wallclock.Date) bool {
	return schedule.HasRuleFor(d.Weekday(), c.Rules) && !schedule.IsBlackedOut(d, c.Blackouts)
}

// UnionDates returns the dates in [today, today+horizonDays) on which at least
// one member has a rule for the weekday and is not blacked out. Today is taken
// in loc, the pool's display timezone.
func UnionDates(calendars []MemberCalendar, loc *time.Location, horizonDays int, now time.Time) []wallclock.Date {
	if len(calendars) == 0 || loc == nil {
		return nil
	}
	if horizonDays <= 0 {
		horizonDays = schedule.DefaultHorizonDays
	}

	today := wallclock.Today(now, loc)

	var dates []wallclock.Date
	for i := 0; i < horizonDays; i++ {
		d := today.AddDays(i)
		for _, c := range calendars {
			if c.opensOn(d) {
				dates = append(dates, d)
				break
			}
		}
	}
	return dates
}
