package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/pool-availability/internal/interval"
	"github.com/hackgods/pool-availability/internal/pool"
	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrMeetingNotFound  = errors.New("meeting not found")
	ErrPoolNotFound     = errors.New("pool not found")

	// ErrCannotDetermineAvailability wraps any failure to read conflict data.
	// Callers must treat it as "unknown", never as "free".
	ErrCannotDetermineAvailability = errors.New("cannot determine availability")

	// ErrInvalidCalendarData means stored rules or settings are malformed.
	ErrInvalidCalendarData = errors.New("invalid calendar data")

	ErrSlotUnavailable   = errors.New("slot is no longer available")
	ErrNoMemberAvailable = errors.New("no pool member available")
	ErrPoolBusy          = errors.New("pool is assigning another booking, please retry")
)

// CalendarSettings are the per-provider knobs the engine reads.
type CalendarSettings struct {
	ProviderID    uuid.UUID     `json:"provider_id"`
	Timezone      string        `json:"timezone"`
	MinimumNotice time.Duration `json:"minimum_notice"`
}

// Meeting is a bookable service.
type Meeting struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	schedule.Meeting
}

// CalendarStore reads provider calendars. Batch methods return one entry per
// requested provider that has data; missing providers have none.
type CalendarStore interface {
	CalendarSettings(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID]CalendarSettings, error)
	Rules(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID][]schedule.Rule, error)
	// Blackouts returns ranges that have not ended before from.
	Blackouts(ctx context.Context, providerIDs []uuid.UUID, from wallclock.Date) (map[uuid.UUID][]schedule.Blackout, error)
	// Bookings returns non-cancelled bookings touching or overlapping [from, to].
	Bookings(ctx context.Context, providerIDs []uuid.UUID, from, to time.Time) (map[uuid.UUID][]interval.Interval, error)
	Meeting(ctx context.Context, meetingID uuid.UUID) (Meeting, error)
}

// PoolStore reads pools and records assignments.
type PoolStore interface {
	Pool(ctx context.Context, poolID uuid.UUID) (PoolInfo, error)
	ListPoolIDs(ctx context.Context) ([]uuid.UUID, error)
	ActiveMembers(ctx context.Context, poolID uuid.UUID) ([]pool.Member, error)
	RecordAssignment(ctx context.Context, a Assignment) error
}

// PoolInfo is a pool plus the zone its date picker is rendered in.
type PoolInfo struct {
	pool.Pool
	Timezone string `json:"timezone"`
}

type Assignment struct {
	PoolID     uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
}
