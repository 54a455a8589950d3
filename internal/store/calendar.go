package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/pool-availability/internal/availability"
	"github.com/hackgods/pool-availability/internal/interval"
	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

func (r *PgRepository) CalendarSettings(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID]availability.CalendarSettings, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider_id, timezone, minimum_notice_minutes
		FROM calendar_settings
		WHERE provider_id = ANY($1)
	`, providerIDs)
	if err != nil {
		return nil, fmt.Errorf("query calendar settings: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]availability.CalendarSettings, len(providerIDs))
	for rows.Next() {
		var s availability.CalendarSettings
		var noticeMinutes *int
		if err := rows.Scan(&s.ProviderID, &s.Timezone, &noticeMinutes); err != nil {
			return nil, fmt.Errorf("scan calendar settings: %w", err)
		}
		s.MinimumNotice = r.defaultNotice
		if noticeMinutes != nil {
			s.MinimumNotice = time.Duration(*noticeMinutes) * time.Minute
		}
		out[s.ProviderID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar settings: %w", err)
	}
	return out, nil
}

func (r *PgRepository) Rules(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID][]schedule.Rule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider_id, day_of_week, start_time::text, end_time::text
		FROM availability_rules
		WHERE provider_id = ANY($1)
		ORDER BY provider_id, day_of_week, start_time
	`, providerIDs)
	if err != nil {
		return nil, fmt.Errorf("query availability rules: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]schedule.Rule, len(providerIDs))
	for rows.Next() {
		var (
			providerID uuid.UUID
			day        int16
			start, end string
		)
		if err := rows.Scan(&providerID, &day, &start, &end); err != nil {
			return nil, fmt.Errorf("scan availability rule: %w", err)
		}
		rule, err := parseRule(day, start, end)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", providerID, err)
		}
		out[providerID] = append(out[providerID], rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability rules: %w", err)
	}
	return out, nil
}

func (r *PgRepository) Blackouts(ctx context.Context, providerIDs []uuid.UUID, from wallclock.Date) (map[uuid.UUID][]schedule.Blackout, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider_id, start_date, end_date
		FROM blackout_dates
		WHERE provider_id = ANY($1) AND end_date >= $2::date
		ORDER BY provider_id, start_date
	`, providerIDs, from.String())
	if err != nil {
		return nil, fmt.Errorf("query blackout dates: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]schedule.Blackout, len(providerIDs))
	for rows.Next() {
		var (
			providerID uuid.UUID
			start, end time.Time
		)
		if err := rows.Scan(&providerID, &start, &end); err != nil {
			return nil, fmt.Errorf("scan blackout: %w", err)
		}
		out[providerID] = append(out[providerID], schedule.Blackout{
			Start: wallclock.DateOf(start),
			End:   wallclock.DateOf(end),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blackout dates: %w", err)
	}
	return out, nil
}

// Bookings treats touching bookings as overlapping to match the slot
// conflict check.
func (r *PgRepository) Bookings(ctx context.Context, providerIDs []uuid.UUID, from, to time.Time) (map[uuid.UUID][]interval.Interval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider_id, start_time, end_time
		FROM bookings
		WHERE provider_id = ANY($1)
		  AND status <> 'cancelled'
		  AND start_time <= $3
		  AND end_time >= $2
		ORDER BY provider_id, start_time
	`, providerIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	out, err := collectIntervals(rows, len(providerIDs))
	if err != nil {
		return nil, fmt.Errorf("bookings: %w", err)
	}
	return out, nil
}

// BusyTimes serves external calendar blocks that a sync job has copied into
// external_busy_blocks.
func (r *PgRepository) BusyTimes(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]interval.Interval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider_id, start_time, end_time
		FROM external_busy_blocks
		WHERE provider_id = $1
		  AND start_time <= $3
		  AND end_time >= $2
		ORDER BY start_time
	`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query external busy blocks: %w", err)
	}
	out, err := collectIntervals(rows, 1)
	if err != nil {
		return nil, fmt.Errorf("external busy blocks: %w", err)
	}
	return out[providerID], nil
}

func collectIntervals(rows pgx.Rows, size int) (map[uuid.UUID][]interval.Interval, error) {
	defer rows.Close()

	out := make(map[uuid.UUID][]interval.Interval, size)
	for rows.Next() {
		var id uuid.UUID
		var iv interval.Interval
		if err := rows.Scan(&id, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[id] = append(out[id], iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

func parseRule(day int16, start, end string) (schedule.Rule, error) {
	if day < 0 || day > 6 {
		return schedule.Rule{}, fmt.Errorf("%w: day of week %d", availability.ErrInvalidCalendarData, day)
	}
	s, err := wallclock.ParseTimeOfDay(start)
	if err != nil {
		return schedule.Rule{}, fmt.Errorf("%w: %w", availability.ErrInvalidCalendarData, err)
	}
	e, err := wallclock.ParseTimeOfDay(end)
	if err != nil {
		return schedule.Rule{}, fmt.Errorf("%w: %w", availability.ErrInvalidCalendarData, err)
	}
	return schedule.Rule{DayOfWeek: time.Weekday(day), Start: s, End: e}, nil
}
