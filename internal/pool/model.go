package pool

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownPoolType = errors.New("unknown pool type")

type Type string

const (
	TypeRoundRobin   Type = "round_robin"
	TypeLoadBalanced Type = "load_balanced"
	TypePriority     Type = "priority"
)

func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeRoundRobin, TypeLoadBalanced, TypePriority:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPoolType, s)
	}
}

type Pool struct {
	ID   uuid.UUID
	Name string
	Type Type
}

type Member struct {
	ProviderID        uuid.UUID
	Priority          int
	IsActive          bool
	MaxBookingsPerDay *int
}

// Stats is a member's assignment history relative to the booking being placed.
type Stats struct {
	BookingsToday    int
	BookingsThisWeek int
	LastAssignedAt   *time.Time
}

// Candidate is a member that survived the conflict filter, with its stats.
type Candidate struct {
	Member
	Stats
}

func (c Candidate) atDailyCap() bool {
	return c.MaxBookingsPerDay != nil && c.BookingsToday >= *c.MaxBookingsPerDay
}
