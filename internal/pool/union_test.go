package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

func hour(h int) time.Time {
	return time.Date(2026, 1, 12, h, 0, 0, 0, time.UTC)
}

func slot(h int, available bool) schedule.Slot {
	return schedule.Slot{Start: hour(h), End: hour(h + 1), Available: available}
}

func TestUnionSlots_AnyMemberFree(t *testing.T) {
	memberA := []schedule.Slot{slot(9, false), slot(10, true)}
	memberB := []schedule.Slot{slot(9, true), slot(10, false)}

	got := UnionSlots([][]schedule.Slot{memberA, memberB})
	assert.Equal(t, []schedule.Slot{slot(9, true), slot(10, true)}, got)
}

func TestUnionSlots_KeysFromEveryMember(t *testing.T) {
	memberA := []schedule.Slot{slot(9, false), slot(10, false)}
	memberB := []schedule.Slot{slot(13, true), slot(11, false)}

	got := UnionSlots([][]schedule.Slot{memberA, memberB})
	assert.Equal(t, []schedule.Slot{
		slot(9, false),
		slot(10, false),
		slot(11, false),
		slot(13, true),
	}, got)
}

func TestUnionSlots_Empty(t *testing.T) {
	assert.Empty(t, UnionSlots(nil))
	assert.Empty(t, UnionSlots([][]schedule.Slot{nil, {}}))
}

func TestUnionDates(t *testing.T) {
	mondayRule := schedule.Rule{DayOfWeek: time.Monday, Start: wallclock.MustTimeOfDay("09:00"), End: wallclock.MustTimeOfDay("17:00")}
	tuesdayRule := schedule.Rule{DayOfWeek: time.Tuesday, Start: wallclock.MustTimeOfDay("09:00"), End: wallclock.MustTimeOfDay("17:00")}

	a := MemberCalendar{
		Rules:     []schedule.Rule{mondayRule},
		Blackouts: []schedule.Blackout{{Start: wallclock.MustDate("2026-01-19"), End: wallclock.MustDate("2026-01-19")}},
	}
	b := MemberCalendar{
		Rules:     []schedule.Rule{mondayRule, tuesdayRule},
		Blackouts: []schedule.Blackout{{Start: wallclock.MustDate("2026-01-12"), End: wallclock.MustDate("2026-01-13")}},
	}
	c := MemberCalendar{
		Rules:     []schedule.Rule{mondayRule},
		Blackouts: []schedule.Blackout{{Start: wallclock.MustDate("2026-01-19"), End: wallclock.MustDate("2026-01-20")}},
	}

	now := hour(8)
	dates := UnionDates([]MemberCalendar{a, b}, time.UTC, 9, now)

	var got []string
	for _, d := range dates {
		got = append(got, d.String())
	}
	// 01-12: a open. 01-13: only b has Tuesday and b is out. 01-19: b covers for a. 01-20: b.
	assert.Equal(t, []string{"2026-01-12", "2026-01-19", "2026-01-20"}, got)

	dates = UnionDates([]MemberCalendar{a, c}, time.UTC, 9, now)
	require.Len(t, dates, 1, "01-19 drops once every Monday member is blacked out")
	assert.Equal(t, "2026-01-12", dates[0].String())
}

func TestUnionDates_NoMembers(t *testing.T) {
	assert.Empty(t, UnionDates(nil, time.UTC, 30, hour(8)))
}
