// Package busy abstracts the external calendars a provider has connected.
package busy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/pool-availability/internal/interval"
)

// Source returns the busy blocks of one provider's external calendars
// overlapping [from, to).
type Source interface {
	BusyTimes(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]interval.Interval, error)
}

// None is used when no external calendar is connected.
type None struct{}

func (None) BusyTimes(context.Context, uuid.UUID, time.Time, time.Time) ([]interval.Interval, error) {
	return nil, nil
}

// Multi queries several sources concurrently and returns all their blocks
// sorted by start. Any failing source fails the whole lookup; a silent miss
// would show busy time as free.
type Multi []Source

func (m Multi) BusyTimes(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]interval.Interval, error) {
	results := make([][]interval.Interval, len(m))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m {
		g.Go(func() error {
			blocks, err := src.BusyTimes(gctx, providerID, from, to)
			if err != nil {
				return fmt.Errorf("busy source %d: %w", i, err)
			}
			results[i] = blocks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []interval.Interval
	for _, r := range results {
		all = append(all, r...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Start.Before(all[j].Start)
	})
	return all, nil
}

// ForProviders fans BusyTimes out over several providers and waits for all of
// them. windows gives each provider's own lookup range.
func ForProviders(ctx context.Context, src Source, windows map[uuid.UUID]interval.Interval) (map[uuid.UUID][]interval.Interval, error) {
	ids := make([]uuid.UUID, 0, len(windows))
	for id := range windows {
		ids = append(ids, id)
	}
	results := make([][]interval.Interval, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		w := windows[id]
		g.Go(func() error {
			blocks, err := src.BusyTimes(gctx, id, w.Start, w.End)
			if err != nil {
				return fmt.Errorf("busy times for %s: %w", id, err)
			}
			results[i] = blocks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]interval.Interval, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out, nil
}
