package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	members    []Member
	conflicts  map[uuid.UUID]bool
	stats      map[uuid.UUID]Stats
	membersErr error

	statsCalls int
	lastWindow StatsWindow
	lastIDs    []uuid.UUID
}

func (f *fakeSource) ActiveMembers(ctx context.Context, poolID uuid.UUID) ([]Member, error) {
	return f.members, f.membersErr
}

func (f *fakeSource) ConflictingProviders(ctx context.Context, ids []uuid.UUID, start, end time.Time) (map[uuid.UUID]bool, error) {
	return f.conflicts, nil
}

func (f *fakeSource) AssignmentStats(ctx context.Context, poolID uuid.UUID, ids []uuid.UUID, w StatsWindow) (map[uuid.UUID]Stats, error) {
	f.statsCalls++
	f.lastWindow = w
	f.lastIDs = ids
	return f.stats, nil
}

var (
	poolID = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	alice  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	bob    = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	carol  = uuid.MustParse("00000000-0000-0000-0000-000000000003")

	slotStart = time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC)
	slotEnd   = slotStart.Add(time.Hour)
)

func member(id uuid.UUID, priority int) Member {
	return Member{ProviderID: id, Priority: priority, IsActive: true}
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func newTestSelector(src Source) *Selector {
	s := NewSelector(src, time.UTC)
	s.now = func() time.Time { return time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestSelect_PriorityPicksHighestFreeMember(t *testing.T) {
	src := &fakeSource{
		members: []Member{member(alice, 1), member(bob, 3), member(carol, 2)},
	}
	sel := newTestSelector(src)

	got, ok, err := sel.Select(context.Background(), poolID, TypePriority, slotStart, slotEnd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bob, got)

	src.conflicts = map[uuid.UUID]bool{bob: true}
	got, ok, err = sel.Select(context.Background(), poolID, TypePriority, slotStart, slotEnd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, carol, got)

	assert.Zero(t, src.statsCalls, "priority pools never load stats")
}

func TestSelect_NoFreeMember(t *testing.T) {
	src := &fakeSource{
		members:   []Member{member(alice, 1), member(bob, 1)},
		conflicts: map[uuid.UUID]bool{alice: true, bob: true},
	}

	for _, typ := range []Type{TypePriority, TypeRoundRobin, TypeLoadBalanced} {
		got, ok, err := newTestSelector(src).Select(context.Background(), poolID, typ, slotStart, slotEnd)
		require.NoError(t, err)
		assert.False(t, ok, typ)
		assert.Equal(t, uuid.Nil, got)
	}
}

func TestSelect_EmptyAndInactiveMembership(t *testing.T) {
	src := &fakeSource{}
	_, ok, err := newTestSelector(src).Select(context.Background(), poolID, TypeRoundRobin, slotStart, slotEnd)
	require.NoError(t, err)
	assert.False(t, ok)

	src.members = []Member{{ProviderID: alice, Priority: 5, IsActive: false}}
	_, ok, err = newTestSelector(src).Select(context.Background(), poolID, TypePriority, slotStart, slotEnd)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelect_RoundRobinRotates(t *testing.T) {
	src := &fakeSource{
		members: []Member{member(alice, 0), member(bob, 0), member(carol, 0)},
		stats:   map[uuid.UUID]Stats{},
	}
	sel := newTestSelector(src)

	var picked []uuid.UUID
	assignedAt := time.Date(2026, 1, 14, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		got, ok, err := sel.Select(context.Background(), poolID, TypeRoundRobin, slotStart, slotEnd)
		require.NoError(t, err)
		require.True(t, ok)
		picked = append(picked, got)

		st := src.stats[got]
		st.LastAssignedAt = timePtr(assignedAt.Add(time.Duration(i) * time.Minute))
		src.stats[got] = st
	}

	assert.Equal(t, []uuid.UUID{alice, bob, carol, alice}, picked)
}

func TestSelect_RoundRobinPrefersLeastRecent(t *testing.T) {
	src := &fakeSource{
		members: []Member{member(alice, 2), member(bob, 1), member(carol, 0)},
		stats: map[uuid.UUID]Stats{
			alice: {LastAssignedAt: timePtr(time.Date(2026, 1, 13, 9, 0, 0, 0, time.UTC))},
			bob:   {LastAssignedAt: timePtr(time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC))},
			carol: {LastAssignedAt: timePtr(time.Date(2026, 1, 13, 8, 0, 0, 0, time.UTC))},
		},
	}

	got, ok, err := newTestSelector(src).Select(context.Background(), poolID, TypeRoundRobin, slotStart, slotEnd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bob, got)
}

func TestSelect_LoadBalancedFewestThisWeek(t *testing.T) {
	src := &fakeSource{
		members: []Member{member(alice, 3), member(bob, 2), member(carol, 1)},
		stats: map[uuid.UUID]Stats{
			alice: {BookingsThisWeek: 5},
			bob:   {BookingsThisWeek: 2},
			carol: {BookingsThisWeek: 2},
		},
	}

	got, ok, err := newTestSelector(src).Select(context.Background(), poolID, TypeLoadBalanced, slotStart, slotEnd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bob, got, "ties keep priority order")
}

func TestSelect_DailyCap(t *testing.T) {
	capped := member(alice, 0)
	capped.MaxBookingsPerDay = intPtr(2)
	roomy := member(bob, 0)
	roomy.MaxBookingsPerDay = intPtr(3)

	src := &fakeSource{
		members: []Member{capped, roomy},
		stats: map[uuid.UUID]Stats{
			alice: {BookingsToday: 2, BookingsThisWeek: 2},
			bob:   {BookingsToday: 2, BookingsThisWeek: 9},
		},
	}

	got, ok, err := newTestSelector(src).Select(context.Background(), poolID, TypeLoadBalanced, slotStart, slotEnd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bob, got)

	src.stats[bob] = Stats{BookingsToday: 3}
	_, ok, err = newTestSelector(src).Select(context.Background(), poolID, TypeLoadBalanced, slotStart, slotEnd)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelect_StatsWindow(t *testing.T) {
	src := &fakeSource{
		members:   []Member{member(alice, 0), member(bob, 0)},
		conflicts: map[uuid.UUID]bool{bob: true},
	}

	_, _, err := newTestSelector(src).Select(context.Background(), poolID, TypeRoundRobin, slotStart, slotEnd)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{alice}, src.lastIDs, "stats only for conflict-free members")
	assert.Equal(t, StatsWindow{
		DayStart:  time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC),
		DayEnd:    time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC),
		WeekStart: time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC),
	}, src.lastWindow)
}

func TestSelect_Errors(t *testing.T) {
	src := &fakeSource{members: []Member{member(alice, 0)}}

	_, _, err := newTestSelector(src).Select(context.Background(), poolID, Type("lottery"), slotStart, slotEnd)
	assert.ErrorIs(t, err, ErrUnknownPoolType)

	boom := errors.New("connection refused")
	src.membersErr = boom
	_, _, err = newTestSelector(src).Select(context.Background(), poolID, TypePriority, slotStart, slotEnd)
	assert.ErrorIs(t, err, boom)
}

type lastMemberPolicy struct{}

func (lastMemberPolicy) NeedsStats() bool { return false }

func (lastMemberPolicy) Pick(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[len(candidates)-1], true
}

func TestSelect_RegisteredPolicy(t *testing.T) {
	src := &fakeSource{members: []Member{member(alice, 2), member(bob, 1)}}
	sel := newTestSelector(src)
	sel.Register("lowest_priority", lastMemberPolicy{})

	got, ok, err := sel.Select(context.Background(), poolID, "lowest_priority", slotStart, slotEnd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bob, got)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("load_balanced")
	require.NoError(t, err)
	assert.Equal(t, TypeLoadBalanced, typ)

	_, err = ParseType("random")
	assert.ErrorIs(t, err, ErrUnknownPoolType)
}
