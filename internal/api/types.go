package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/pool-availability/internal/schedule"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

type SlotsResponse struct {
	Date  wallclock.Date  `json:"date"`
	Slots []schedule.Slot `json:"slots"`
}

type DatesResponse struct {
	Dates []wallclock.Date `json:"dates"`
}

type TimeRangeRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type ValidateBookingRequest struct {
	MeetingID string    `json:"meeting_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

type ValidateBookingResponse struct {
	Available bool `json:"available"`
}

type SelectionResponse struct {
	Available  bool       `json:"available"`
	ProviderID *uuid.UUID `json:"provider_id,omitempty"`
}

type AssignmentResponse struct {
	PoolID     uuid.UUID `json:"pool_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
