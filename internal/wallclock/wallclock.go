// Package wallclock converts between a provider's local calendar (dates and
// times of day in an IANA zone) and absolute UTC instants.
package wallclock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimezone  = errors.New("invalid timezone")
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
	ErrInvalidDate      = errors.New("invalid date")
)

const dateLayout = "2006-01-02"

// LoadLocation resolves an IANA zone name. An empty name is rejected rather
// than silently mapped to UTC.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:mm" and the "HH:mm:ss" form Postgres uses for
// time columns. Seconds must be zero.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
		}
		nums[i] = n
	}

	if nums[0] > 23 || nums[1] > 59 || (len(nums) == 3 && nums[2] != 0) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay{Hour: nums[0], Minute: nums[1]}, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Date is a calendar date with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) Date {
	return DateOf(now.In(loc))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// anchor is midnight UTC, used only for calendar arithmetic.
func (d Date) anchor() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.anchor().AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.anchor().Weekday()
}

func (d Date) Compare(o Date) int {
	return d.anchor().Compare(o.anchor())
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ToUTC maps a local wall-clock time on a calendar date to a UTC instant.
// Times inside a DST gap or overlap follow time.Date normalization.
func ToUTC(d Date, t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc).UTC()
}

// Exists reports whether the wall-clock time t occurs on d in loc. Times
// skipped by a spring-forward transition do not.
func Exists(d Date, t TimeOfDay, loc *time.Location) bool {
	gotDate, gotTime := FromUTC(ToUTC(d, t, loc), loc)
	return gotDate == d && gotTime == t
}

// StartOfDay returns the instant local midnight begins on d in loc.
func StartOfDay(d Date, loc *time.Location) time.Time {
	return ToUTC(d, TimeOfDay{}, loc)
}

// FromUTC is the inverse of ToUTC.
func FromUTC(instant time.Time, loc *time.Location) (Date, TimeOfDay) {
	local := instant.In(loc)
	return DateOf(local), TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}
}
