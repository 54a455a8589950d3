package availability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/pool-availability/internal/interval"
	"github.com/hackgods/pool-availability/internal/pool"
	redisclient "github.com/hackgods/pool-availability/internal/redis"
	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

var (
	alice     = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	bob       = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	carol     = uuid.MustParse("00000000-0000-0000-0000-000000000003")
	meetingID = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	poolID    = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")

	monday = wallclock.MustDate("2026-01-12")
	now    = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
)

func at(h, m int) time.Time {
	return time.Date(2026, 1, 12, h, m, 0, 0, time.UTC)
}

func rule(day time.Weekday, start, end string) schedule.Rule {
	return schedule.Rule{DayOfWeek: day, Start: wallclock.MustTimeOfDay(start), End: wallclock.MustTimeOfDay(end)}
}

func availability(slots []schedule.Slot) map[string]bool {
	out := make(map[string]bool, len(slots))
	for _, s := range slots {
		out[s.Start.Format("15:04")] = s.Available
	}
	return out
}

type fakeCalendars struct {
	settings  map[uuid.UUID]CalendarSettings
	rules     map[uuid.UUID][]schedule.Rule
	blackouts map[uuid.UUID][]schedule.Blackout
	bookings  map[uuid.UUID][]interval.Interval
	meetings  map[uuid.UUID]Meeting

	bookingsErr  error
	rulesCalls   int
	bookingCalls int
}

func (f *fakeCalendars) CalendarSettings(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]CalendarSettings, error) {
	out := map[uuid.UUID]CalendarSettings{}
	for _, id := range ids {
		if s, ok := f.settings[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakeCalendars) Rules(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]schedule.Rule, error) {
	f.rulesCalls++
	out := map[uuid.UUID][]schedule.Rule{}
	for _, id := range ids {
		out[id] = f.rules[id]
	}
	return out, nil
}

func (f *fakeCalendars) Blackouts(_ context.Context, ids []uuid.UUID, _ wallclock.Date) (map[uuid.UUID][]schedule.Blackout, error) {
	out := map[uuid.UUID][]schedule.Blackout{}
	for _, id := range ids {
		out[id] = f.blackouts[id]
	}
	return out, nil
}

func (f *fakeCalendars) Bookings(_ context.Context, ids []uuid.UUID, _, _ time.Time) (map[uuid.UUID][]interval.Interval, error) {
	f.bookingCalls++
	if f.bookingsErr != nil {
		return nil, f.bookingsErr
	}
	out := map[uuid.UUID][]interval.Interval{}
	for _, id := range ids {
		out[id] = f.bookings[id]
	}
	return out, nil
}

func (f *fakeCalendars) Meeting(_ context.Context, id uuid.UUID) (Meeting, error) {
	m, ok := f.meetings[id]
	if !ok {
		return Meeting{}, ErrMeetingNotFound
	}
	return m, nil
}

type fakePools struct {
	info      PoolInfo
	members   []pool.Member
	conflicts map[uuid.UUID]bool
	recorded  []Assignment
}

func (f *fakePools) Pool(_ context.Context, id uuid.UUID) (PoolInfo, error) {
	if id != f.info.ID {
		return PoolInfo{}, ErrPoolNotFound
	}
	return f.info, nil
}

func (f *fakePools) ListPoolIDs(context.Context) ([]uuid.UUID, error) {
	return []uuid.UUID{f.info.ID}, nil
}

func (f *fakePools) ActiveMembers(context.Context, uuid.UUID) ([]pool.Member, error) {
	return f.members, nil
}

func (f *fakePools) RecordAssignment(_ context.Context, a Assignment) error {
	f.recorded = append(f.recorded, a)
	return nil
}

func (f *fakePools) ConflictingProviders(context.Context, []uuid.UUID, time.Time, time.Time) (map[uuid.UUID]bool, error) {
	return f.conflicts, nil
}

func (f *fakePools) AssignmentStats(context.Context, uuid.UUID, []uuid.UUID, pool.StatsWindow) (map[uuid.UUID]pool.Stats, error) {
	return nil, nil
}

type fakeBusy struct {
	blocks map[uuid.UUID][]interval.Interval
	err    error
}

func (f fakeBusy) BusyTimes(_ context.Context, id uuid.UUID, _, _ time.Time) ([]interval.Interval, error) {
	return f.blocks[id], f.err
}

type fakeLocker struct {
	err   error
	calls int
}

func (l *fakeLocker) WithPoolLock(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	l.calls++
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

type mapCache map[string][]byte

func (c mapCache) Get(_ context.Context, key string, dst any) (bool, error) {
	b, ok := c[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c mapCache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	b, err := json.Marshal(v)
	c[key] = b
	return err
}

func (c mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c, k)
	}
	return nil
}

type fixture struct {
	calendars *fakeCalendars
	pools     *fakePools
	busy      fakeBusy
	locker    *fakeLocker
	cache     mapCache
}

func newFixture() *fixture {
	utc := func(id uuid.UUID) CalendarSettings {
		return CalendarSettings{ProviderID: id, Timezone: "UTC", MinimumNotice: 2 * time.Hour}
	}
	return &fixture{
		calendars: &fakeCalendars{
			settings: map[uuid.UUID]CalendarSettings{alice: utc(alice), bob: utc(bob), carol: utc(carol)},
			rules: map[uuid.UUID][]schedule.Rule{
				alice: {rule(time.Monday, "09:00", "11:00")},
				bob:   {rule(time.Monday, "10:00", "12:00")},
				carol: {rule(time.Monday, "09:00", "10:00"), rule(time.Wednesday, "09:00", "10:00")},
			},
			blackouts: map[uuid.UUID][]schedule.Blackout{},
			bookings:  map[uuid.UUID][]interval.Interval{},
			meetings: map[uuid.UUID]Meeting{
				meetingID: {ID: meetingID, Name: "Intro call", Meeting: schedule.Meeting{DurationMinutes: 60}},
			},
		},
		pools: &fakePools{
			info: PoolInfo{Pool: pool.Pool{ID: poolID, Name: "Sales", Type: pool.TypePriority}, Timezone: "UTC"},
			members: []pool.Member{
				{ProviderID: alice, Priority: 10, IsActive: true},
				{ProviderID: bob, Priority: 5, IsActive: true},
				{ProviderID: carol, Priority: 1, IsActive: true},
			},
		},
		busy:   fakeBusy{blocks: map[uuid.UUID][]interval.Interval{}},
		locker: &fakeLocker{},
		cache:  mapCache{},
	}
}

func (f *fixture) engine() *Engine {
	return NewEngine(f.calendars, f.pools, f.pools, f.busy, f.locker, f.cache, Config{
		ServerLocation: time.UTC,
		DatesTTL:       time.Minute,
		Now:            func() time.Time { return now },
	})
}

func TestTimeSlots(t *testing.T) {
	f := newFixture()
	f.calendars.bookings[alice] = []interval.Interval{{Start: at(10, 15), End: at(10, 45)}}

	slots, err := f.engine().TimeSlots(context.Background(), alice, meetingID, monday)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"09:00": true, "10:00": false}, availability(slots))
}

func TestTimeSlots_BlackoutSkipsConflictReads(t *testing.T) {
	f := newFixture()
	f.calendars.blackouts[alice] = []schedule.Blackout{{Start: monday, End: monday}}

	slots, err := f.engine().TimeSlots(context.Background(), alice, meetingID, monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.Zero(t, f.calendars.bookingCalls)
}

func TestTimeSlots_ExternalBusy(t *testing.T) {
	f := newFixture()
	f.busy.blocks[alice] = []interval.Interval{{Start: at(9, 30), End: at(9, 40)}}

	slots, err := f.engine().TimeSlots(context.Background(), alice, meetingID, monday)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"09:00": false, "10:00": true}, availability(slots))
}

func TestTimeSlots_ConflictReadFailures(t *testing.T) {
	f := newFixture()
	f.calendars.bookingsErr = errors.New("connection refused")
	_, err := f.engine().TimeSlots(context.Background(), alice, meetingID, monday)
	assert.ErrorIs(t, err, ErrCannotDetermineAvailability)

	f = newFixture()
	f.busy.err = errors.New("calendar api 503")
	_, err = f.engine().TimeSlots(context.Background(), alice, meetingID, monday)
	assert.ErrorIs(t, err, ErrCannotDetermineAvailability)
}

func TestTimeSlots_NotFoundAndBadData(t *testing.T) {
	f := newFixture()
	e := f.engine()

	_, err := e.TimeSlots(context.Background(), uuid.New(), meetingID, monday)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	_, err = e.TimeSlots(context.Background(), alice, uuid.New(), monday)
	assert.ErrorIs(t, err, ErrMeetingNotFound)

	f.calendars.settings[alice] = CalendarSettings{ProviderID: alice, Timezone: "Mars/Olympus"}
	_, err = e.TimeSlots(context.Background(), alice, meetingID, monday)
	assert.ErrorIs(t, err, ErrInvalidCalendarData)
}

func TestAvailableDates(t *testing.T) {
	f := newFixture()
	f.calendars.blackouts[carol] = []schedule.Blackout{{Start: wallclock.MustDate("2026-01-05"), End: wallclock.MustDate("2026-01-07")}}

	dates, err := f.engine().AvailableDates(context.Background(), carol, 14)
	require.NoError(t, err)

	var got []string
	for _, d := range dates {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{"2026-01-12", "2026-01-14"}, got)
}

func TestPoolTimeSlots_UnionSkipsBlackedOutMembers(t *testing.T) {
	f := newFixture()
	f.calendars.bookings[alice] = []interval.Interval{{Start: at(9, 15), End: at(9, 30)}}
	f.calendars.blackouts[carol] = []schedule.Blackout{{Start: monday, End: monday}}

	slots, err := f.engine().PoolTimeSlots(context.Background(), poolID, meetingID, monday)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"09:00": false, "10:00": true, "11:00": true}, availability(slots))

	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1].Start.Before(slots[i].Start))
	}
}

func TestPoolTimeSlots_MembersInTheirOwnZones(t *testing.T) {
	f := newFixture()
	f.calendars.settings[bob] = CalendarSettings{ProviderID: bob, Timezone: "America/New_York"}
	f.pools.members = f.pools.members[:2]

	slots, err := f.engine().PoolTimeSlots(context.Background(), poolID, meetingID, monday)
	require.NoError(t, err)

	// Bob's 10:00 and 11:00 New York are 15:00 and 16:00 UTC.
	assert.Equal(t, map[string]bool{"09:00": true, "10:00": true, "15:00": true, "16:00": true}, availability(slots))
}

func TestPoolTimeSlots_UnknownPool(t *testing.T) {
	f := newFixture()
	_, err := f.engine().PoolTimeSlots(context.Background(), uuid.New(), meetingID, monday)
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestPoolAvailableDates_Cached(t *testing.T) {
	f := newFixture()
	f.pools.members = f.pools.members[2:]
	e := f.engine()

	first, err := e.PoolAvailableDates(context.Background(), poolID, 7)
	require.NoError(t, err)
	second, err := e.PoolAvailableDates(context.Background(), poolID, 7)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.calendars.rulesCalls)
	assert.Equal(t, []wallclock.Date{wallclock.MustDate("2026-01-05"), wallclock.MustDate("2026-01-07")}, first)
}

func TestRefreshPoolDates_OverwritesCache(t *testing.T) {
	f := newFixture()
	e := f.engine()

	_, err := e.PoolAvailableDates(context.Background(), poolID, 7)
	require.NoError(t, err)

	f.pools.members = nil
	refreshed, err := e.RefreshPoolDates(context.Background(), poolID, 7)
	require.NoError(t, err)
	assert.Empty(t, refreshed)

	cached, err := e.PoolAvailableDates(context.Background(), poolID, 7)
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestAssignPoolMember(t *testing.T) {
	f := newFixture()
	f.pools.conflicts = map[uuid.UUID]bool{alice: true}

	got, err := f.engine().AssignPoolMember(context.Background(), poolID, at(10, 0), at(11, 0))
	require.NoError(t, err)
	assert.Equal(t, bob, got)
	assert.Equal(t, 1, f.locker.calls)
	require.Len(t, f.pools.recorded, 1)
	assert.Equal(t, Assignment{PoolID: poolID, ProviderID: bob, StartTime: at(10, 0), EndTime: at(11, 0)}, f.pools.recorded[0])
}

func TestAssignPoolMember_NoneFree(t *testing.T) {
	f := newFixture()
	f.pools.conflicts = map[uuid.UUID]bool{alice: true, bob: true, carol: true}

	_, err := f.engine().AssignPoolMember(context.Background(), poolID, at(10, 0), at(11, 0))
	assert.ErrorIs(t, err, ErrNoMemberAvailable)
	assert.Empty(t, f.pools.recorded)
}

func TestAssignPoolMember_LockHeld(t *testing.T) {
	f := newFixture()
	f.locker.err = redisclient.ErrLockNotAcquired

	_, err := f.engine().AssignPoolMember(context.Background(), poolID, at(10, 0), at(11, 0))
	assert.ErrorIs(t, err, ErrPoolBusy)
	assert.Empty(t, f.pools.recorded)
}

func TestSelectPoolMember_BadPoolType(t *testing.T) {
	f := newFixture()
	f.pools.info.Type = "weighted"

	_, _, err := f.engine().SelectPoolMember(context.Background(), poolID, at(10, 0), at(11, 0))
	assert.ErrorIs(t, err, ErrInvalidCalendarData)
	assert.ErrorIs(t, err, pool.ErrUnknownPoolType)
}

func TestCheckBookable(t *testing.T) {
	f := newFixture()
	f.calendars.meetings[meetingID] = Meeting{ID: meetingID, Meeting: schedule.Meeting{DurationMinutes: 60, BufferMinutes: 15}}
	f.calendars.bookings[alice] = []interval.Interval{{Start: at(13, 0), End: at(14, 0)}}
	e := f.engine()

	tests := []struct {
		name  string
		start time.Time
		want  error
	}{
		{"free", at(9, 0), nil},
		{"inside buffer", at(11, 50), ErrSlotUnavailable},
		{"clear of buffer", at(11, 30), nil},
		{"after booking buffer", at(14, 15), ErrSlotUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.CheckBookable(context.Background(), alice, meetingID, tt.start, tt.start.Add(time.Hour))
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestCheckBookable_Blackout(t *testing.T) {
	f := newFixture()
	f.calendars.blackouts[alice] = []schedule.Blackout{{Start: monday, End: monday}}

	err := f.engine().CheckBookable(context.Background(), alice, meetingID, at(9, 0), at(10, 0))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestPoolDatesAndSlots_SkipMemberWithoutSettings(t *testing.T) {
	f := newFixture()
	delete(f.calendars.settings, carol)
	e := f.engine()

	// Carol alone opens on Wednesdays; without settings she cannot offer slots.
	dates, err := e.PoolAvailableDates(context.Background(), poolID, 7)
	require.NoError(t, err)
	assert.Equal(t, []wallclock.Date{wallclock.MustDate("2026-01-05")}, dates)

	slots, err := e.PoolTimeSlots(context.Background(), poolID, meetingID, wallclock.MustDate("2026-01-14"))
	require.NoError(t, err)
	assert.Empty(t, slots)

	slots, err = e.PoolTimeSlots(context.Background(), poolID, meetingID, monday)
	require.NoError(t, err)
	assert.NotEmpty(t, slots)
}
