// Package store reads calendars and pools from Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/pool-availability/internal/availability"
	"github.com/hackgods/pool-availability/internal/pool"
	"github.com/hackgods/pool-availability/internal/schedule"
)

// querier is the subset of *pgxpool.Pool the repository uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type PgRepository struct {
	db querier
	// defaultNotice applies to providers whose minimum notice is NULL.
	defaultNotice time.Duration
}

func NewPgRepository(pool *pgxpool.Pool, defaultNotice time.Duration) *PgRepository {
	if defaultNotice <= 0 {
		defaultNotice = schedule.DefaultMinimumNotice
	}
	return &PgRepository{db: pool, defaultNotice: defaultNotice}
}

var (
	_ availability.CalendarStore = (*PgRepository)(nil)
	_ availability.PoolStore     = (*PgRepository)(nil)
)

// Helpers

func scanMeeting(row pgx.Row) (availability.Meeting, error) {
	var m availability.Meeting

	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.DurationMinutes,
		&m.BufferMinutes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return availability.Meeting{}, availability.ErrMeetingNotFound
		}
		return availability.Meeting{}, err
	}
	return m, nil
}

func scanPool(row pgx.Row) (availability.PoolInfo, error) {
	var p availability.PoolInfo
	var poolType string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&poolType,
		&p.Timezone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return availability.PoolInfo{}, availability.ErrPoolNotFound
		}
		return availability.PoolInfo{}, err
	}

	// Unknown types are left for the selector to reject so pool slots and
	// dates still render.
	p.Type = pool.Type(poolType)
	return p, nil
}

// Interface methods

func (r *PgRepository) Meeting(ctx context.Context, id uuid.UUID) (availability.Meeting, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, duration_minutes, buffer_minutes
		FROM meeting_types
		WHERE id = $1
	`, id)
	m, err := scanMeeting(row)
	if err != nil && !errors.Is(err, availability.ErrMeetingNotFound) {
		return availability.Meeting{}, fmt.Errorf("get meeting %s: %w", id, err)
	}
	return m, err
}

func (r *PgRepository) Pool(ctx context.Context, id uuid.UUID) (availability.PoolInfo, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, pool_type, timezone
		FROM provider_pools
		WHERE id = $1
	`, id)
	p, err := scanPool(row)
	if err != nil && !errors.Is(err, availability.ErrPoolNotFound) {
		return availability.PoolInfo{}, fmt.Errorf("get pool %s: %w", id, err)
	}
	return p, err
}

func (r *PgRepository) ListPoolIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM provider_pools ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return ids, nil
}
