package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/pool-availability/internal/availability"
	"github.com/hackgods/pool-availability/internal/pool"
)

var _ pool.Source = (*PgRepository)(nil)

func (r *PgRepository) ActiveMembers(ctx context.Context, poolID uuid.UUID) ([]pool.Member, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider_id, priority, is_active, max_bookings_per_day
		FROM pool_members
		WHERE pool_id = $1 AND is_active
		ORDER BY priority DESC, created_at
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("query pool members: %w", err)
	}

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pool.Member, error) {
		var m pool.Member
		err := row.Scan(&m.ProviderID, &m.Priority, &m.IsActive, &m.MaxBookingsPerDay)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan pool members: %w", err)
	}
	return members, nil
}

// ConflictingProviders uses half-open overlap: a booking ending exactly at
// start does not block the member. Recorded pool assignments block like
// bookings, so a member handed a range is not handed it again before the
// booking row lands.
func (r *PgRepository) ConflictingProviders(ctx context.Context, ids []uuid.UUID, start, end time.Time) (map[uuid.UUID]bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider_id
		FROM bookings
		WHERE provider_id = ANY($1)
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
		UNION
		SELECT provider_id
		FROM pool_assignments
		WHERE provider_id = ANY($1)
		  AND start_time < $3
		  AND end_time > $2
	`, ids, start, end)
	if err != nil {
		return nil, fmt.Errorf("query conflicting bookings: %w", err)
	}

	busy, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan conflicting bookings: %w", err)
	}

	out := make(map[uuid.UUID]bool, len(busy))
	for _, id := range busy {
		out[id] = true
	}
	return out, nil
}

// AssignmentStats sends the three stats queries in one round trip.
// BookingsToday counts assignments whose booking starts inside the day;
// BookingsThisWeek counts assignments made since the week start.
func (r *PgRepository) AssignmentStats(ctx context.Context, poolID uuid.UUID, ids []uuid.UUID, w pool.StatsWindow) (map[uuid.UUID]pool.Stats, error) {
	batch := &pgx.Batch{}
	batch.Queue(`
		SELECT provider_id, count(*)
		FROM pool_assignments
		WHERE pool_id = $1 AND provider_id = ANY($2)
		  AND start_time >= $3 AND start_time < $4
		GROUP BY provider_id
	`, poolID, ids, w.DayStart, w.DayEnd)
	batch.Queue(`
		SELECT provider_id, count(*)
		FROM pool_assignments
		WHERE pool_id = $1 AND provider_id = ANY($2)
		  AND assigned_at >= $3
		GROUP BY provider_id
	`, poolID, ids, w.WeekStart)
	batch.Queue(`
		SELECT provider_id, max(assigned_at)
		FROM pool_assignments
		WHERE pool_id = $1 AND provider_id = ANY($2)
		GROUP BY provider_id
	`, poolID, ids)

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	stats := make(map[uuid.UUID]pool.Stats, len(ids))

	today, err := readCounts(results)
	if err != nil {
		return nil, fmt.Errorf("bookings today: %w", err)
	}
	week, err := readCounts(results)
	if err != nil {
		return nil, fmt.Errorf("bookings this week: %w", err)
	}

	rows, err := results.Query()
	if err != nil {
		return nil, fmt.Errorf("last assigned: %w", err)
	}
	defer rows.Close()
	last := make(map[uuid.UUID]time.Time)
	for rows.Next() {
		var id uuid.UUID
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan last assigned: %w", err)
		}
		last[id] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("last assigned: %w", err)
	}

	for _, id := range ids {
		s := pool.Stats{
			BookingsToday:    today[id],
			BookingsThisWeek: week[id],
		}
		if at, ok := last[id]; ok {
			s.LastAssignedAt = &at
		}
		stats[id] = s
	}
	return stats, nil
}

func readCounts(results pgx.BatchResults) (map[uuid.UUID]int, error) {
	rows, err := results.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = int(n)
	}
	return counts, rows.Err()
}

func (r *PgRepository) RecordAssignment(ctx context.Context, a availability.Assignment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pool_assignments (pool_id, provider_id, start_time, end_time)
		VALUES ($1, $2, $3, $4)
	`, a.PoolID, a.ProviderID, a.StartTime, a.EndTime)
	if err != nil {
		return fmt.Errorf("insert pool assignment: %w", err)
	}
	return nil
}
