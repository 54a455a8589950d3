package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/pool-availability/internal/busy"
	"github.com/hackgods/pool-availability/internal/cache"
	"github.com/hackgods/pool-availability/internal/interval"
	"github.com/hackgods/pool-availability/internal/pool"
	redisclient "github.com/hackgods/pool-availability/internal/redis"
	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

const poolDatesPrefix = "pool-dates"

// PoolTimeSlots computes each member's slots for date in the member's own
// timezone and merges them. Members blacked out on date are skipped
// entirely.
func (e *Engine) PoolTimeSlots(ctx context.Context, poolID, meetingID uuid.UUID, date wallclock.Date) (_ []schedule.Slot, err error) {
	ctx, span := e.tracer.Start(ctx, "availability.PoolTimeSlots", trace.WithAttributes(
		attribute.String("pool.id", poolID.String()),
		attribute.String("date", date.String()),
	))
	defer func() { endSpan(span, err) }()

	if _, err := e.pool(ctx, poolID); err != nil {
		return nil, err
	}
	meeting, err := e.meeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	settings, ids, err := e.scheduledMembers(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	blackouts, err := e.calendars.Blackouts(ctx, ids, date)
	if err != nil {
		return nil, cannotDetermine("load blackouts", err)
	}
	rules, err := e.calendars.Rules(ctx, ids)
	if err != nil {
		return nil, cannotDetermine("load rules", err)
	}

	type member struct {
		settings CalendarSettings
		loc      *time.Location
		window   interval.Interval
	}
	open := make(map[uuid.UUID]member, len(ids))
	windows := make(map[uuid.UUID]interval.Interval, len(ids))
	var from, to time.Time

	for _, id := range ids {
		if schedule.IsBlackedOut(date, blackouts[id]) || !schedule.HasRuleFor(date.Weekday(), rules[id]) {
			continue
		}
		s := settings[id]
		loc, err := s.location()
		if err != nil {
			return nil, err
		}

		w := dayWindow(date, loc, meeting.Buffer())
		open[id] = member{settings: s, loc: loc, window: w}
		windows[id] = w
		if from.IsZero() || w.Start.Before(from) {
			from = w.Start
		}
		if w.End.After(to) {
			to = w.End
		}
	}
	if len(open) == 0 {
		return nil, nil
	}

	openIDs := make([]uuid.UUID, 0, len(open))
	for _, id := range ids {
		if _, ok := open[id]; ok {
			openIDs = append(openIDs, id)
		}
	}

	bookings, err := e.calendars.Bookings(ctx, openIDs, from, to)
	if err != nil {
		return nil, cannotDetermine("load bookings", err)
	}
	busyBlocks, err := busy.ForProviders(ctx, e.busy, windows)
	if err != nil {
		return nil, cannotDetermine("load external busy times", err)
	}

	now := e.cfg.Now()
	perMember := make([][]schedule.Slot, 0, len(openIDs))
	for _, id := range openIDs {
		m := open[id]
		perMember = append(perMember, schedule.GenerateTimeSlots(schedule.SlotRequest{
			Date:          date,
			Rules:         rules[id],
			Meeting:       meeting.Meeting,
			Bookings:      bookings[id],
			Busy:          busyBlocks[id],
			Location:      m.loc,
			MinimumNotice: m.settings.MinimumNotice,
			Now:           now,
		}))
	}

	span.SetAttributes(attribute.Int("pool.open_members", len(openIDs)))
	return pool.UnionSlots(perMember), nil
}

// PoolAvailableDates lists the dates on which at least one active member
// opens. Results are cached per pool, horizon and local day.
func (e *Engine) PoolAvailableDates(ctx context.Context, poolID uuid.UUID, horizonDays int) (_ []wallclock.Date, err error) {
	ctx, span := e.tracer.Start(ctx, "availability.PoolAvailableDates", trace.WithAttributes(
		attribute.String("pool.id", poolID.String()),
		attribute.Int("horizon_days", horizonDays),
	))
	defer func() { endSpan(span, err) }()

	if horizonDays <= 0 {
		horizonDays = e.cfg.DefaultHorizonDays
	}
	info, loc, err := e.poolWithLocation(ctx, poolID)
	if err != nil {
		return nil, err
	}

	key := poolDatesKey(poolID, horizonDays, wallclock.Today(e.cfg.Now(), loc))
	return cache.GetOrLoad(ctx, e.cache, key, e.cfg.DatesTTL, func(ctx context.Context) ([]wallclock.Date, error) {
		return e.computePoolDates(ctx, info.ID, loc, horizonDays)
	})
}

// RefreshPoolDates recomputes and stores a pool's date list regardless of
// what is cached.
func (e *Engine) RefreshPoolDates(ctx context.Context, poolID uuid.UUID, horizonDays int) (_ []wallclock.Date, err error) {
	ctx, span := e.tracer.Start(ctx, "availability.RefreshPoolDates", trace.WithAttributes(
		attribute.String("pool.id", poolID.String()),
	))
	defer func() { endSpan(span, err) }()

	if horizonDays <= 0 {
		horizonDays = e.cfg.DefaultHorizonDays
	}
	info, loc, err := e.poolWithLocation(ctx, poolID)
	if err != nil {
		return nil, err
	}

	dates, err := e.computePoolDates(ctx, info.ID, loc, horizonDays)
	if err != nil {
		return nil, err
	}
	key := poolDatesKey(poolID, horizonDays, wallclock.Today(e.cfg.Now(), loc))
	if err := e.cache.Set(ctx, key, dates, e.cfg.DatesTTL); err != nil {
		return nil, fmt.Errorf("store pool dates: %w", err)
	}
	return dates, nil
}

// ListPoolIDs exposes the pool listing for background jobs.
func (e *Engine) ListPoolIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := e.pools.ListPoolIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return ids, nil
}

func (e *Engine) computePoolDates(ctx context.Context, poolID uuid.UUID, loc *time.Location, horizonDays int) ([]wallclock.Date, error) {
	_, ids, err := e.scheduledMembers(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := e.cfg.Now()
	rules, err := e.calendars.Rules(ctx, ids)
	if err != nil {
		return nil, cannotDetermine("load rules", err)
	}
	blackouts, err := e.calendars.Blackouts(ctx, ids, wallclock.Today(now, loc))
	if err != nil {
		return nil, cannotDetermine("load blackouts", err)
	}

	calendars := make([]pool.MemberCalendar, 0, len(ids))
	for _, id := range ids {
		calendars = append(calendars, pool.MemberCalendar{Rules: rules[id], Blackouts: blackouts[id]})
	}
	return pool.UnionDates(calendars, loc, horizonDays, now), nil
}

// SelectPoolMember reports which member a booking over [start, end) would go
// to. It records nothing.
func (e *Engine) SelectPoolMember(ctx context.Context, poolID uuid.UUID, start, end time.Time) (_ uuid.UUID, _ bool, err error) {
	ctx, span := e.tracer.Start(ctx, "availability.SelectPoolMember", trace.WithAttributes(
		attribute.String("pool.id", poolID.String()),
	))
	defer func() { endSpan(span, err) }()

	info, err := e.pool(ctx, poolID)
	if err != nil {
		return uuid.Nil, false, err
	}
	span.SetAttributes(attribute.String("pool.type", string(info.Type)))

	id, ok, err := e.selector.Select(ctx, poolID, info.Type, start, end)
	if err != nil {
		if errors.Is(err, pool.ErrUnknownPoolType) {
			return uuid.Nil, false, fmt.Errorf("%w: pool %s: %w", ErrInvalidCalendarData, poolID, err)
		}
		return uuid.Nil, false, cannotDetermine("select pool member", err)
	}
	return id, ok, nil
}

// AssignPoolMember selects a member and records the assignment while holding
// the pool lock, so concurrent assignments see each other's stats.
func (e *Engine) AssignPoolMember(ctx context.Context, poolID uuid.UUID, start, end time.Time) (_ uuid.UUID, err error) {
	ctx, span := e.tracer.Start(ctx, "availability.AssignPoolMember", trace.WithAttributes(
		attribute.String("pool.id", poolID.String()),
	))
	defer func() { endSpan(span, err) }()

	var chosen uuid.UUID
	err = e.locker.WithPoolLock(ctx, poolID, func(ctx context.Context) error {
		id, ok, err := e.SelectPoolMember(ctx, poolID, start, end)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoMemberAvailable
		}

		if err := e.pools.RecordAssignment(ctx, Assignment{
			PoolID:     poolID,
			ProviderID: id,
			StartTime:  start,
			EndTime:    end,
		}); err != nil {
			return fmt.Errorf("record assignment: %w", err)
		}
		chosen = id
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return uuid.Nil, ErrPoolBusy
	}
	if err != nil {
		return uuid.Nil, err
	}

	log.Info().
		Str("pool_id", poolID.String()).
		Str("provider_id", chosen.String()).
		Time("start", start).
		Msg("pool member assigned")
	return chosen, nil
}

func (e *Engine) pool(ctx context.Context, poolID uuid.UUID) (PoolInfo, error) {
	info, err := e.pools.Pool(ctx, poolID)
	if err != nil {
		if errors.Is(err, ErrPoolNotFound) {
			return PoolInfo{}, err
		}
		return PoolInfo{}, cannotDetermine("load pool", err)
	}
	return info, nil
}

func (e *Engine) poolWithLocation(ctx context.Context, poolID uuid.UUID) (PoolInfo, *time.Location, error) {
	info, err := e.pool(ctx, poolID)
	if err != nil {
		return PoolInfo{}, nil, err
	}
	loc, err := wallclock.LoadLocation(info.Timezone)
	if err != nil {
		return PoolInfo{}, nil, fmt.Errorf("%w: pool %s: %w", ErrInvalidCalendarData, poolID, err)
	}
	return info, loc, nil
}

func (e *Engine) activeMemberIDs(ctx context.Context, poolID uuid.UUID) ([]uuid.UUID, error) {
	members, err := e.pools.ActiveMembers(ctx, poolID)
	if err != nil {
		return nil, cannotDetermine("load pool members", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if m.IsActive {
			ids = append(ids, m.ProviderID)
		}
	}
	return ids, nil
}

// scheduledMembers returns the active members that have calendar settings,
// in priority order. Members without settings cannot be laid out and are
// skipped with a warning.
func (e *Engine) scheduledMembers(ctx context.Context, poolID uuid.UUID) (map[uuid.UUID]CalendarSettings, []uuid.UUID, error) {
	ids, err := e.activeMemberIDs(ctx, poolID)
	if err != nil || len(ids) == 0 {
		return nil, nil, err
	}
	settings, err := e.calendars.CalendarSettings(ctx, ids)
	if err != nil {
		return nil, nil, cannotDetermine("load calendar settings", err)
	}

	kept := ids[:0]
	for _, id := range ids {
		if _, ok := settings[id]; !ok {
			log.Warn().Str("pool_id", poolID.String()).Str("provider_id", id.String()).
				Msg("pool member has no calendar settings, skipping")
			continue
		}
		kept = append(kept, id)
	}
	return settings, kept, nil
}

func poolDatesKey(poolID uuid.UUID, horizonDays int, today wallclock.Date) string {
	return fmt.Sprintf("%s:%d:%s", cache.Key(poolDatesPrefix, poolID), horizonDays, today)
}
