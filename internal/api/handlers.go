package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/pool-availability/internal/availability"
	"github.com/hackgods/pool-availability/internal/wallclock"
)

const maxHorizonDays = 365

func providerSlotsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathID(w, r, "invalid_provider_id")
		if !ok {
			return
		}
		meetingID, date, ok := slotQuery(w, r)
		if !ok {
			return
		}

		slots, err := svc.TimeSlots(r.Context(), providerID, meetingID, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Date: date, Slots: nonNil(slots)})
	}
}

func providerDatesHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathID(w, r, "invalid_provider_id")
		if !ok {
			return
		}
		days, ok := horizonQuery(w, r)
		if !ok {
			return
		}

		dates, err := svc.AvailableDates(r.Context(), providerID, days)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, DatesResponse{Dates: nonNil(dates)})
	}
}

func validateBookingHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathID(w, r, "invalid_provider_id")
		if !ok {
			return
		}

		var req ValidateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		meetingID, err := uuid.Parse(req.MeetingID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_meeting_id", "meeting_id must be a valid UUID")
			return
		}
		if !validRange(w, TimeRangeRequest{Start: req.Start, End: req.End}) {
			return
		}

		err = svc.CheckBookable(r.Context(), providerID, meetingID, req.Start, req.End)
		if errors.Is(err, availability.ErrSlotUnavailable) {
			writeJSON(w, http.StatusConflict, ValidateBookingResponse{Available: false})
			return
		}
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ValidateBookingResponse{Available: true})
	}
}

func poolSlotsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poolID, ok := pathID(w, r, "invalid_pool_id")
		if !ok {
			return
		}
		meetingID, date, ok := slotQuery(w, r)
		if !ok {
			return
		}

		slots, err := svc.PoolTimeSlots(r.Context(), poolID, meetingID, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Date: date, Slots: nonNil(slots)})
	}
}

func poolDatesHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poolID, ok := pathID(w, r, "invalid_pool_id")
		if !ok {
			return
		}
		days, ok := horizonQuery(w, r)
		if !ok {
			return
		}

		dates, err := svc.PoolAvailableDates(r.Context(), poolID, days)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, DatesResponse{Dates: nonNil(dates)})
	}
}

func selectMemberHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poolID, ok := pathID(w, r, "invalid_pool_id")
		if !ok {
			return
		}
		req, ok := decodeRange(w, r)
		if !ok {
			return
		}

		id, found, err := svc.SelectPoolMember(r.Context(), poolID, req.Start, req.End)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		resp := SelectionResponse{Available: found}
		if found {
			resp.ProviderID = &id
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func assignMemberHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poolID, ok := pathID(w, r, "invalid_pool_id")
		if !ok {
			return
		}
		req, ok := decodeRange(w, r)
		if !ok {
			return
		}

		id, err := svc.AssignPoolMember(r.Context(), poolID, req.Start, req.End)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, AssignmentResponse{
			PoolID:     poolID,
			ProviderID: id,
			Start:      req.Start,
			End:        req.End,
		})
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, availability.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", "provider does not exist or has no calendar")
	case errors.Is(err, availability.ErrMeetingNotFound):
		writeError(w, http.StatusNotFound, "meeting_not_found", "meeting does not exist")
	case errors.Is(err, availability.ErrPoolNotFound):
		writeError(w, http.StatusNotFound, "pool_not_found", "pool does not exist")
	case errors.Is(err, availability.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "requested time is no longer available")
	case errors.Is(err, availability.ErrNoMemberAvailable):
		writeError(w, http.StatusConflict, "no_member_available", "no pool member is free for the requested time")
	case errors.Is(err, availability.ErrPoolBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "pool_busy", "pool is busy, please retry")
	case errors.Is(err, availability.ErrInvalidCalendarData):
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("invalid calendar data")
		writeError(w, http.StatusInternalServerError, "invalid_calendar_data", "stored calendar data is invalid")
	case errors.Is(err, availability.ErrCannotDetermineAvailability):
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("availability unknown")
		writeError(w, http.StatusServiceUnavailable, "availability_unknown", "availability could not be determined, please retry")
	default:
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func slotQuery(w http.ResponseWriter, r *http.Request) (uuid.UUID, wallclock.Date, bool) {
	q := r.URL.Query()

	meetingID, err := uuid.Parse(q.Get("meeting_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_meeting_id", "meeting_id must be a valid UUID")
		return uuid.Nil, wallclock.Date{}, false
	}
	date, err := wallclock.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return uuid.Nil, wallclock.Date{}, false
	}
	return meetingID, date, true
}

// horizonQuery returns 0 when days is absent so the engine default applies.
func horizonQuery(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > maxHorizonDays {
		writeError(w, http.StatusBadRequest, "invalid_days", "days must be between 1 and 365")
		return 0, false
	}
	return days, true
}

func decodeRange(w http.ResponseWriter, r *http.Request) (TimeRangeRequest, bool) {
	var req TimeRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return req, false
	}
	return req, validRange(w, req)
}

func validRange(w http.ResponseWriter, req TimeRangeRequest) bool {
	if req.Start.IsZero() || req.End.IsZero() || !req.End.After(req.Start) {
		writeError(w, http.StatusBadRequest, "invalid_time_range", "start and end are required and end must be after start")
		return false
	}
	return true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
