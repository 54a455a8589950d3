package pool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/pool-availability/internal/wallclock"
)

// Source contains the reads the selector needs. All methods are read-only.
type Source interface {
	// ActiveMembers returns the pool's active members ordered by priority,
	// highest first.
	ActiveMembers(ctx context.Context, poolID uuid.UUID) ([]Member, error)

	// ConflictingProviders returns the providers among ids holding a
	// non-cancelled booking or a pool assignment that overlaps [start, end).
	ConflictingProviders(ctx context.Context, ids []uuid.UUID, start, end time.Time) (map[uuid.UUID]bool, error)

	// AssignmentStats counts pool assignments per provider within w.
	AssignmentStats(ctx context.Context, poolID uuid.UUID, ids []uuid.UUID, w StatsWindow) (map[uuid.UUID]Stats, error)
}

// StatsWindow bounds the assignment counts: BookingsToday covers
// [DayStart, DayEnd) and BookingsThisWeek covers [WeekStart, now].
type StatsWindow struct {
	DayStart  time.Time
	DayEnd    time.Time
	WeekStart time.Time
}

type Selector struct {
	source   Source
	loc      *time.Location
	policies map[Type]Policy
	now      func() time.Time
}

// NewSelector builds a selector whose day and week boundaries are computed in
// loc (the server's zone).
func NewSelector(source Source, loc *time.Location) *Selector {
	if loc == nil {
		loc = time.UTC
	}
	return &Selector{
		source:   source,
		loc:      loc,
		policies: defaultPolicies(),
		now:      time.Now,
	}
}

// Register installs or replaces the policy for a pool type.
func (s *Selector) Register(t Type, p Policy) {
	s.policies[t] = p
}

// Select picks the member a booking over [start, end) should go to. It returns
// false, with no error, when every member is busy or capped. Select has no
// side effects; the caller records the assignment.
func (s *Selector) Select(ctx context.Context, poolID uuid.UUID, poolType Type, start, end time.Time) (uuid.UUID, bool, error) {
	policy, ok := s.policies[poolType]
	if !ok {
		return uuid.Nil, false, fmt.Errorf("%w: %q", ErrUnknownPoolType, poolType)
	}

	members, err := s.source.ActiveMembers(ctx, poolID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("load pool members: %w", err)
	}
	members = activeByPriority(members)
	if len(members) == 0 {
		return uuid.Nil, false, nil
	}

	conflicts, err := s.source.ConflictingProviders(ctx, providerIDs(members), start, end)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("check member conflicts: %w", err)
	}

	candidates := make([]Candidate, 0, len(members))
	for _, m := range members {
		if !conflicts[m.ProviderID] {
			candidates = append(candidates, Candidate{Member: m})
		}
	}
	if len(candidates) == 0 {
		return uuid.Nil, false, nil
	}

	if policy.NeedsStats() {
		candidates, err = s.withStats(ctx, poolID, candidates, start)
		if err != nil {
			return uuid.Nil, false, err
		}
	}

	winner, ok := policy.Pick(candidates)
	if !ok {
		return uuid.Nil, false, nil
	}
	return winner.ProviderID, true, nil
}

// withStats attaches assignment stats and drops members at their daily cap.
func (s *Selector) withStats(ctx context.Context, poolID uuid.UUID, candidates []Candidate, start time.Time) ([]Candidate, error) {
	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ProviderID
	}

	stats, err := s.source.AssignmentStats(ctx, poolID, ids, s.window(start))
	if err != nil {
		return nil, fmt.Errorf("load assignment stats: %w", err)
	}

	kept := candidates[:0]
	for _, c := range candidates {
		c.Stats = stats[c.ProviderID]
		if c.atDailyCap() {
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// window computes the target day in the server zone and the Sunday-anchored
// week containing now.
func (s *Selector) window(start time.Time) StatsWindow {
	day := wallclock.DateOf(start.In(s.loc))
	today := wallclock.Today(s.now(), s.loc)
	weekStart := today.AddDays(-int(today.Weekday()))

	return StatsWindow{
		DayStart:  wallclock.StartOfDay(day, s.loc),
		DayEnd:    wallclock.StartOfDay(day.AddDays(1), s.loc),
		WeekStart: wallclock.StartOfDay(weekStart, s.loc),
	}
}

func activeByPriority(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.IsActive {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

func providerIDs(members []Member) []uuid.UUID {
	ids := make([]uuid.UUID, len(members))
	for i, m := range members {
		ids[i] = m.ProviderID
	}
	return ids
}
