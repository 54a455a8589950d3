package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/pool-availability/internal/db"
	"github.com/hackgods/pool-availability/internal/logging"
	"github.com/hackgods/pool-availability/internal/pool"
)

var timezones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Berlin",
	"Asia/Kolkata",
	"Australia/Sydney",
}

type meetingType struct {
	name     string
	duration int
	buffer   int
}

var meetingTypes = []meetingType{
	{"Quick check-in", 15, 0},
	{"Consultation", 30, 5},
	{"Deep dive", 60, 15},
}

func main() {
	logging.Setup("dev", "info", "seed")
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, dsn, db.Options{MaxConns: 4})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	bg := context.Background()

	meetings, err := seedMeetingTypes(bg, pgPool)
	if err != nil {
		log.Fatal().Err(err).Msg("seed meeting types")
	}
	providers, err := seedProviders(bg, pgPool, 60)
	if err != nil {
		log.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedBookings(bg, pgPool, providers, 1500); err != nil {
		log.Fatal().Err(err).Msg("seed bookings")
	}
	pools, err := seedPools(bg, pgPool, providers)
	if err != nil {
		log.Fatal().Err(err).Msg("seed pools")
	}

	log.Info().
		Int("providers", len(providers)).
		Int("pools", len(pools)).
		Str("sample_pool", pools[0].String()).
		Str("sample_meeting", meetings[1].String()).
		Msg("seed complete")
}

func seedMeetingTypes(ctx context.Context, pgPool *pgxpool.Pool) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(meetingTypes))
	for _, m := range meetingTypes {
		id := uuid.New()
		_, err := pgPool.Exec(ctx, `
			INSERT INTO meeting_types (id, name, duration_minutes, buffer_minutes)
			VALUES ($1, $2, $3, $4)
		`, id, m.name, m.duration, m.buffer)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	log.Info().Int("count", len(ids)).Msg("meeting types seeded")
	return ids, nil
}

// seedProviders inserts providers with weekday hours (some split around
// lunch), calendar settings and the occasional blackout.
func seedProviders(ctx context.Context, pgPool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding providers")

	tx, err := pgPool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		if _, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, email) VALUES ($1, $2, $3)
		`, id, gofakeit.Name(), gofakeit.Email()); err != nil {
			return nil, err
		}

		var notice *int
		if gofakeit.Bool() {
			n := gofakeit.RandomInt([]int{0, 60, 240, 1440})
			notice = &n
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO calendar_settings (provider_id, timezone, minimum_notice_minutes)
			VALUES ($1, $2, $3)
		`, id, gofakeit.RandomString(timezones), notice); err != nil {
			return nil, err
		}

		if err := insertRules(ctx, tx, id); err != nil {
			return nil, err
		}

		if gofakeit.Number(1, 4) == 1 {
			start := time.Now().AddDate(0, 0, gofakeit.Number(1, 40))
			end := start.AddDate(0, 0, gofakeit.Number(0, 6))
			if _, err := tx.Exec(ctx, `
				INSERT INTO blackout_dates (provider_id, start_date, end_date, reason)
				VALUES ($1, $2::date, $3::date, $4)
			`, id, start.Format("2006-01-02"), end.Format("2006-01-02"), gofakeit.RandomString([]string{"Vacation", "Conference", "Training"})); err != nil {
				return nil, err
			}
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	log.Info().Msg("providers seeded")
	return ids, nil
}

func insertRules(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) error {
	split := gofakeit.Bool()
	startHour := gofakeit.Number(7, 10)
	endHour := gofakeit.Number(15, 19)

	for day := 1; day <= 5; day++ {
		windows := [][2]string{{hhmm(startHour), hhmm(endHour)}}
		if split {
			windows = [][2]string{{hhmm(startHour), "12:00"}, {"13:00", hhmm(endHour)}}
		}
		for _, w := range windows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO availability_rules (provider_id, day_of_week, start_time, end_time)
				VALUES ($1, $2, $3::time, $4::time)
			`, providerID, day, w[0], w[1]); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedBookings(ctx context.Context, pgPool *pgxpool.Pool, providers []uuid.UUID, count int) error {
	log.Info().Int("count", count).Msg("seeding bookings")

	const batchSize = 500
	statuses := []string{"confirmed", "confirmed", "confirmed", "pending", "cancelled"}

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			start := time.Now().UTC().Truncate(time.Hour).
				AddDate(0, 0, gofakeit.Number(0, 30)).
				Add(time.Duration(gofakeit.Number(0, 23)) * time.Hour)
			length := time.Duration(gofakeit.RandomInt([]int{15, 30, 60})) * time.Minute

			providerID := providers[gofakeit.Number(0, len(providers)-1)]

			// Roughly one in five rows is an external calendar block.
			if gofakeit.Number(1, 5) > 1 {
				batch.Queue(`
					INSERT INTO bookings (provider_id, start_time, end_time, status)
					VALUES ($1, $2, $3, $4)
				`, providerID, start, start.Add(length), gofakeit.RandomString(statuses))
			} else {
				batch.Queue(`
					INSERT INTO external_busy_blocks (provider_id, source, start_time, end_time)
					VALUES ($1, $2, $3, $4)
				`, providerID, "google", start, start.Add(length))
			}
		}

		if err := pgPool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		log.Info().Msgf("bookings seeded: %d/%d", end, count)
	}
	return nil
}

func seedPools(ctx context.Context, pgPool *pgxpool.Pool, providers []uuid.UUID) ([]uuid.UUID, error) {
	types := []pool.Type{pool.TypeRoundRobin, pool.TypeLoadBalanced, pool.TypePriority}

	var ids []uuid.UUID
	for i := 0; i < 6; i++ {
		id := uuid.New()
		poolType := types[i%len(types)]
		name := fmt.Sprintf("%s %s", gofakeit.Company(), gofakeit.RandomString([]string{"Sales", "Support", "Onboarding"}))

		tx, err := pgPool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO provider_pools (id, name, pool_type, timezone)
			VALUES ($1, $2, $3, $4)
		`, id, name, string(poolType), gofakeit.RandomString(timezones)); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}

		members := gofakeit.Number(3, 8)
		offset := gofakeit.Number(0, len(providers)-members)
		for j, providerID := range providers[offset : offset+members] {
			var maxPerDay *int
			if gofakeit.Number(1, 3) == 1 {
				n := gofakeit.Number(2, 6)
				maxPerDay = &n
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO pool_members (pool_id, provider_id, priority, is_active, max_bookings_per_day)
				VALUES ($1, $2, $3, $4, $5)
			`, id, providerID, members-j, gofakeit.Number(1, 10) > 1, maxPerDay); err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		log.Info().Str("pool_id", id.String()).Str("type", string(poolType)).Int("members", members).Msg("pool seeded")
		ids = append(ids, id)
	}
	return ids, nil
}

func hhmm(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}
