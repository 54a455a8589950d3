package schedule

import (
	"time"

	"github.com/hackgods/pool-availability/internal/wallclock"
)

const (
	DefaultMinimumNotice = 2 * time.Hour
	DefaultHorizonDays   = 60
)

// Rule is a recurring weekly open window in the provider's local time.
// Start is assumed to be before End.
type Rule struct {
	DayOfWeek time.Weekday
	Start     wallclock.TimeOfDay
	End       wallclock.TimeOfDay
}

// Blackout is an inclusive range of local calendar dates with no bookings.
type Blackout struct {
	Start wallclock.Date
	End   wallclock.Date
}

func (b Blackout) Contains(d wallclock.Date) bool {
	return !d.Before(b.Start) && !d.After(b.End)
}

// Meeting describes the service being booked.
type Meeting struct {
	DurationMinutes int
	BufferMinutes   int
}

func (m Meeting) Duration() time.Duration {
	return time.Duration(m.DurationMinutes) * time.Minute
}

func (m Meeting) Buffer() time.Duration {
	return time.Duration(m.BufferMinutes) * time.Minute
}

// Slot is a candidate booking window. Slots are computed per request and
// never stored.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// IsBlackedOut reports whether any blackout range covers d.
func IsBlackedOut(d wallclock.Date, blackouts []Blackout) bool {
	for _, b := range blackouts {
		if b.Contains(d) {
			return true
		}
	}
	return false
}

// HasRuleFor reports whether any rule opens on the given weekday.
func HasRuleFor(day time.Weekday, rules []Rule) bool {
	for _, r := range rules {
		if r.DayOfWeek == day {
			return true
		}
	}
	return false
}
