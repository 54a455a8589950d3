package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/pool-availability/internal/busy"
	"github.com/hackgods/pool-availability/internal/cache"
	"github.com/hackgods/pool-availability/internal/interval"
	"github.com/hackgods/pool-availability/internal/pool"
	redisclient "github.com/hackgods/pool-availability/internal/redis"
	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

const tracerName = "github.com/hackgods/pool-availability/internal/availability"

type Config struct {
	// ServerLocation bounds the "today" and "this week" counts used by pool
	// selection.
	ServerLocation     *time.Location
	DefaultHorizonDays int
	// DatesTTL is how long computed pool date lists stay cached.
	DatesTTL time.Duration
	Now      func() time.Time
}

// Engine answers slot, date and pool-assignment questions. Everything it
// reports is advisory: the write path must re-check conflicts before insert.
type Engine struct {
	calendars CalendarStore
	pools     PoolStore
	busy      busy.Source
	selector  *pool.Selector
	locker    redisclient.Locker
	cache     cache.Cache
	cfg       Config
	tracer    trace.Tracer
}

func NewEngine(calendars CalendarStore, pools PoolStore, members pool.Source, busySrc busy.Source, locker redisclient.Locker, c cache.Cache, cfg Config) *Engine {
	if cfg.ServerLocation == nil {
		cfg.ServerLocation = time.UTC
	}
	if cfg.DefaultHorizonDays <= 0 {
		cfg.DefaultHorizonDays = schedule.DefaultHorizonDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if busySrc == nil {
		busySrc = busy.None{}
	}
	if c == nil {
		c = cache.Noop{}
	}

	return &Engine{
		calendars: calendars,
		pools:     pools,
		busy:      busySrc,
		selector:  pool.NewSelector(members, cfg.ServerLocation),
		locker:    locker,
		cache:     c,
		cfg:       cfg,
		tracer:    otel.Tracer(tracerName),
	}
}

// TimeSlots lays out one provider's slots on a local date. A blacked out date
// yields no slots.
func (e *Engine) TimeSlots(ctx context.Context, providerID, meetingID uuid.UUID, date wallclock.Date) (_ []schedule.Slot, err error) {
	ctx, span := e.tracer.Start(ctx, "availability.TimeSlots", trace.WithAttributes(
		attribute.String("provider.id", providerID.String()),
		attribute.String("date", date.String()),
	))
	defer func() { endSpan(span, err) }()

	ids := []uuid.UUID{providerID}

	settings, loc, err := e.providerSettings(ctx, providerID)
	if err != nil {
		return nil, err
	}
	meeting, err := e.meeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	blackouts, err := e.calendars.Blackouts(ctx, ids, date)
	if err != nil {
		return nil, cannotDetermine("load blackouts", err)
	}
	if schedule.IsBlackedOut(date, blackouts[providerID]) {
		return nil, nil
	}

	rules, err := e.calendars.Rules(ctx, ids)
	if err != nil {
		return nil, cannotDetermine("load rules", err)
	}
	if !schedule.HasRuleFor(date.Weekday(), rules[providerID]) {
		return nil, nil
	}

	window := dayWindow(date, loc, meeting.Buffer())
	bookings, err := e.calendars.Bookings(ctx, ids, window.Start, window.End)
	if err != nil {
		return nil, cannotDetermine("load bookings", err)
	}
	busyBlocks, err := e.busy.BusyTimes(ctx, providerID, window.Start, window.End)
	if err != nil {
		return nil, cannotDetermine("load external busy times", err)
	}

	return schedule.GenerateTimeSlots(schedule.SlotRequest{
		Date:          date,
		Rules:         rules[providerID],
		Meeting:       meeting.Meeting,
		Bookings:      bookings[providerID],
		Busy:          busyBlocks,
		Location:      loc,
		MinimumNotice: settings.MinimumNotice,
		Now:           e.cfg.Now(),
	}), nil
}

// AvailableDates lists the provider's open dates over the next horizonDays.
func (e *Engine) AvailableDates(ctx context.Context, providerID uuid.UUID, horizonDays int) (_ []wallclock.Date, err error) {
	ctx, span := e.tracer.Start(ctx, "availability.AvailableDates", trace.WithAttributes(
		attribute.String("provider.id", providerID.String()),
		attribute.Int("horizon_days", horizonDays),
	))
	defer func() { endSpan(span, err) }()

	if horizonDays <= 0 {
		horizonDays = e.cfg.DefaultHorizonDays
	}
	ids := []uuid.UUID{providerID}

	_, loc, err := e.providerSettings(ctx, providerID)
	if err != nil {
		return nil, err
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

	return schedule.AvailableDates(rules[providerID], loc, horizonDays, blackouts[providerID], now), nil
}

// CheckBookable re-validates a requested booking against current bookings,
// external busy time and blackouts. It returns ErrSlotUnavailable on any
// conflict.
func (e *Engine) CheckBookable(ctx context.Context, providerID, meetingID uuid.UUID, start, end time.Time) (err error) {
	ctx, span := e.tracer.Start(ctx, "availability.CheckBookable", trace.WithAttributes(
		attribute.String("provider.id", providerID.String()),
		attribute.String("start", start.UTC().Format(time.RFC3339)),
	))
	defer func() { endSpan(span, err) }()

	ids := []uuid.UUID{providerID}

	_, loc, err := e.providerSettings(ctx, providerID)
	if err != nil {
		return err
	}
	meeting, err := e.meeting(ctx, meetingID)
	if err != nil {
		return err
	}

	startDate, _ := wallclock.FromUTC(start, loc)
	blackouts, err := e.calendars.Blackouts(ctx, ids, startDate)
	if err != nil {
		return cannotDetermine("load blackouts", err)
	}
	if schedule.IsBlackedOut(startDate, blackouts[providerID]) {
		return ErrSlotUnavailable
	}

	buffer := meeting.Buffer()
	candidate := interval.Interval{Start: start, End: end}

	bookings, err := e.calendars.Bookings(ctx, ids, start.Add(-buffer), end.Add(buffer))
	if err != nil {
		return cannotDetermine("load bookings", err)
	}
	if interval.AnyOverlap(candidate, bookings[providerID], buffer) {
		return ErrSlotUnavailable
	}

	busyBlocks, err := e.busy.BusyTimes(ctx, providerID, start, end)
	if err != nil {
		return cannotDetermine("load external busy times", err)
	}
	if interval.AnyOverlap(candidate, busyBlocks, 0) {
		return ErrSlotUnavailable
	}
	return nil
}

func (e *Engine) providerSettings(ctx context.Context, providerID uuid.UUID) (CalendarSettings, *time.Location, error) {
	all, err := e.calendars.CalendarSettings(ctx, []uuid.UUID{providerID})
	if err != nil {
		return CalendarSettings{}, nil, cannotDetermine("load calendar settings", err)
	}
	settings, ok := all[providerID]
	if !ok {
		return CalendarSettings{}, nil, ErrProviderNotFound
	}
	loc, err := settings.location()
	if err != nil {
		return CalendarSettings{}, nil, err
	}
	return settings, loc, nil
}

func (e *Engine) meeting(ctx context.Context, meetingID uuid.UUID) (Meeting, error) {
	m, err := e.calendars.Meeting(ctx, meetingID)
	if err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			return Meeting{}, err
		}
		return Meeting{}, cannotDetermine("load meeting", err)
	}
	if m.DurationMinutes <= 0 {
		return Meeting{}, fmt.Errorf("%w: meeting %s has duration %d", ErrInvalidCalendarData, m.ID, m.DurationMinutes)
	}
	return m, nil
}

func (s CalendarSettings) location() (*time.Location, error) {
	loc, err := wallclock.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: provider %s: %w", ErrInvalidCalendarData, s.ProviderID, err)
	}
	return loc, nil
}

// dayWindow covers the local day plus the buffer on both sides, so bookings
// just outside the day still pad into it.
func dayWindow(d wallclock.Date, loc *time.Location, buffer time.Duration) interval.Interval {
	return interval.Interval{
		Start: wallclock.StartOfDay(d, loc).Add(-buffer),
		End:   wallclock.StartOfDay(d.AddDays(1), loc).Add(buffer),
	}
}

func cannotDetermine(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCannotDetermineAvailability, op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
