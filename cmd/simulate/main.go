package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/pool-availability/internal/config"
	"github.com/hackgods/pool-availability/internal/db"
	"github.com/hackgods/pool-availability/internal/logging"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	AssignRatio float64
	SelectRatio float64
	ReadRatio   float64
	PostgresDSN string
}

// Fixtures are the ids the workers pick from.
type Fixtures struct {
	Providers []uuid.UUID
	Pools     []uuid.UUID
	Meetings  []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		atomic.AddInt64(&om.Error, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status < 300:
		atomic.AddInt64(&om.Success, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (avg, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	at := func(pct int) time.Duration {
		return latencies[min(len(latencies)*pct/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), at(50), at(95), at(99)
}

type Metrics struct {
	ProviderSlots OperationMetrics
	ProviderDates OperationMetrics
	PoolSlots     OperationMetrics
	PoolDates     OperationMetrics
	Select        OperationMetrics
	Assign        OperationMetrics
}

type Simulator struct {
	config   SimConfig
	fixtures *Fixtures
	client   *http.Client
	metrics  Metrics
}

func main() {
	logging.Setup("dev", "info", "simulate")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("assign", cfg.AssignRatio).
		Float64("select", cfg.SelectRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.Options{MaxConns: 2})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	fixtures, err := loadFixtures(ctx, pgPool)
	if err != nil {
		log.Fatal().Err(err).Msg("load fixtures")
	}
	log.Info().
		Int("providers", len(fixtures.Providers)).
		Int("pools", len(fixtures.Pools)).
		Int("meetings", len(fixtures.Meetings)).
		Msg("fixtures loaded")

	sim := &Simulator{
		config:   cfg,
		fixtures: fixtures,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		AssignRatio: getFloat("SIM_ASSIGN_RATIO", 0.1),
		SelectRatio: getFloat("SIM_SELECT_RATIO", 0.2),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.7),
		PostgresDSN: baseCfg.PostgresDSN,
	}

	total := cfg.AssignRatio + cfg.SelectRatio + cfg.ReadRatio
	if total > 0 {
		cfg.AssignRatio /= total
		cfg.SelectRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadFixtures(ctx context.Context, pgPool *pgxpool.Pool) (*Fixtures, error) {
	ids := func(sql string) ([]uuid.UUID, error) {
		rows, err := pgPool.Query(ctx, sql)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	}

	var f Fixtures
	var err error
	if f.Providers, err = ids(`SELECT provider_id FROM calendar_settings LIMIT 1000`); err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if f.Pools, err = ids(`SELECT id FROM provider_pools`); err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}
	if f.Meetings, err = ids(`SELECT id FROM meeting_types`); err != nil {
		return nil, fmt.Errorf("load meetings: %w", err)
	}

	if len(f.Providers) == 0 || len(f.Pools) == 0 || len(f.Meetings) == 0 {
		return nil, fmt.Errorf("nothing to simulate against, run cmd/seed first")
	}
	return &f, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.AssignRatio:
			s.doPoolRange(ctx, rng, "assign", &s.metrics.Assign)
		case r < s.config.AssignRatio+s.config.SelectRatio:
			s.doPoolRange(ctx, rng, "select", &s.metrics.Select)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	date := time.Now().AddDate(0, 0, rng.Intn(14)).Format("2006-01-02")
	meeting := pick(rng, s.fixtures.Meetings)

	switch rng.Intn(4) {
	case 0:
		url := fmt.Sprintf("%s/providers/%s/slots?date=%s&meeting_id=%s", s.config.APIBaseURL, pick(rng, s.fixtures.Providers), date, meeting)
		s.call(ctx, http.MethodGet, url, nil, &s.metrics.ProviderSlots)
	case 1:
		url := fmt.Sprintf("%s/providers/%s/dates?days=30", s.config.APIBaseURL, pick(rng, s.fixtures.Providers))
		s.call(ctx, http.MethodGet, url, nil, &s.metrics.ProviderDates)
	case 2:
		url := fmt.Sprintf("%s/pools/%s/slots?date=%s&meeting_id=%s", s.config.APIBaseURL, pick(rng, s.fixtures.Pools), date, meeting)
		s.call(ctx, http.MethodGet, url, nil, &s.metrics.PoolSlots)
	case 3:
		url := fmt.Sprintf("%s/pools/%s/dates", s.config.APIBaseURL, pick(rng, s.fixtures.Pools))
		s.call(ctx, http.MethodGet, url, nil, &s.metrics.PoolDates)
	}
}

// doPoolRange posts a one-hour range on the hour within the next week.
func (s *Simulator) doPoolRange(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	start := time.Now().UTC().Truncate(time.Hour).Add(time.Duration(rng.Intn(7*24)+3) * time.Hour)
	body, _ := json.Marshal(map[string]time.Time{
		"start": start,
		"end":   start.Add(time.Hour),
	})
	url := fmt.Sprintf("%s/pools/%s/%s", s.config.APIBaseURL, pick(rng, s.fixtures.Pools), action)
	s.call(ctx, http.MethodPost, url, body, om)
}

func (s *Simulator) call(ctx context.Context, method, url string, body []byte, om *OperationMetrics) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if ctx.Err() != nil {
		// The run ended mid-request; do not count it.
		if resp != nil {
			resp.Body.Close()
		}
		return
	}

	status := 0
	if err == nil {
		status = resp.StatusCode
		resp.Body.Close()
	}
	om.Record(latency, status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	printOperationReport("Provider slots", &s.metrics.ProviderSlots, s.config.Duration)
	printOperationReport("Provider dates", &s.metrics.ProviderDates, s.config.Duration)
	printOperationReport("Pool slots", &s.metrics.PoolSlots, s.config.Duration)
	printOperationReport("Pool dates", &s.metrics.PoolDates, s.config.Duration)
	printOperationReport("Pool select", &s.metrics.Select, s.config.Duration)
	printOperationReport("Pool assign", &s.metrics.Assign, s.config.Duration)
}

func printOperationReport(name string, om *OperationMetrics, elapsed time.Duration) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, p99 := om.Percentiles()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d (%.1f/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s p99=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), p99.Round(time.Millisecond))
}

func pick(rng *rand.Rand, ids []uuid.UUID) uuid.UUID {
	return ids[rng.Intn(len(ids))]
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
