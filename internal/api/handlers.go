package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthfirst/provider-scheduling/internal/schedule"
)

func createAvailabilityHandler(svc *schedule.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID", "invalid_provider_id")
		if !ok {
			return
		}

		var req CreateAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := buildCreateInput(providerID, req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		result, err := svc.CreateAvailability(r.Context(), in)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateAvailabilityResponse{
			AvailabilityIDs: result.WindowIDs,
			SlotsCreated:    result.SlotsCreated,
			DateRange: DateRange{
				Start: result.FirstDate.Format("2006-01-02"),
				End:   result.LastDate.Format("2006-01-02"),
			},
			TotalAppointments: result.TotalAppointments,
		})
	}
}

func buildCreateInput(providerID uuid.UUID, req CreateAvailabilityRequest) (schedule.CreateWindowInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return schedule.CreateWindowInput{}, errors.New("date must be YYYY-MM-DD")
	}
	start, err := parseTimeOfDay(date, req.StartTime)
	if err != nil {
		return schedule.CreateWindowInput{}, errors.New("start_time must be HH:MM")
	}
	end, err := parseTimeOfDay(date, req.EndTime)
	if err != nil {
		return schedule.CreateWindowInput{}, errors.New("end_time must be HH:MM")
	}

	in := schedule.CreateWindowInput{
		ProviderID:        providerID,
		Date:              date,
		StartTime:         start,
		EndTime:           end,
		Timezone:          req.Timezone,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: schedule.RecurrencePattern(req.RecurrencePattern),
		SlotDuration:      req.SlotDuration,
		BreakDuration:     req.BreakDuration,
		MaxPerSlot:        req.MaxPerSlot,
		AppointmentType:   schedule.AppointmentType(req.AppointmentType),
		Notes:             req.Notes,
		SpecialReqs:       req.SpecialRequirements,
	}

	if req.RecurrenceEndDate != "" {
		endDate, err := parseDate(req.RecurrenceEndDate)
		if err != nil {
			return schedule.CreateWindowInput{}, errors.New("recurrence_end_date must be YYYY-MM-DD")
		}
		in.RecurrenceEndDate = &endDate
	}
	if req.Location != nil {
		in.Location = schedule.Location{
			Type:       schedule.LocationType(req.Location.Type),
			Address:    req.Location.Address,
			RoomNumber: req.Location.RoomNumber,
		}
	}
	if req.Pricing != nil {
		in.Pricing = &schedule.Pricing{
			BaseFee:           req.Pricing.BaseFee,
			InsuranceAccepted: req.Pricing.InsuranceAccepted,
			Currency:          req.Pricing.Currency,
		}
	}
	return in, nil
}

func getProviderScheduleHandler(svc *schedule.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID", "invalid_provider_id")
		if !ok {
			return
		}

		q := r.URL.Query()
		from, to, err := parseDateRange(q.Get("start_date"), q.Get("end_date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
			return
		}

		var filter schedule.WindowFilter
		if v := q.Get("status"); v != "" {
			st := schedule.AvailabilityStatus(v)
			filter.Status = &st
		}
		if v := q.Get("appointment_type"); v != "" {
			t := schedule.AppointmentType(v)
			filter.AppointmentType = &t
		}

		sched, err := svc.GetProviderSchedule(r.Context(), providerID, from, to, filter)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := ProviderScheduleResponse{
			ProviderID: sched.ProviderID,
			Summary: SlotSummaryResponse{
				Total:     sched.Summary.Total,
				Available: sched.Summary.Available,
				Booked:    sched.Summary.Booked,
				Cancelled: sched.Summary.Cancelled,
				Blocked:   sched.Summary.Blocked,
			},
		}
		for _, day := range sched.Days {
			dayResp := DayScheduleResponse{Date: day.Date.Format("2006-01-02")}
			for i := range day.Windows {
				dayResp.Windows = append(dayResp.Windows,
					toWindowResponse(&day.Windows[i].Window, day.Windows[i].Slots))
			}
			resp.Days = append(resp.Days, dayResp)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateSlotHandler(svc *schedule.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID", "invalid_provider_id")
		if !ok {
			return
		}
		slotID, ok := parseUUIDParam(w, r, "slotID", "invalid_slot_id")
		if !ok {
			return
		}

		var req UpdateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patch := schedule.SlotPatch{
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Notes:     req.Notes,
		}
		if req.Status != nil {
			st := schedule.SlotStatus(*req.Status)
			patch.Status = &st
		}

		slot, err := svc.UpdateSlot(r.Context(), providerID, slotID, patch)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func deleteSlotHandler(svc *schedule.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID", "invalid_provider_id")
		if !ok {
			return
		}
		slotID, ok := parseUUIDParam(w, r, "slotID", "invalid_slot_id")
		if !ok {
			return
		}

		deleteRecurring := r.URL.Query().Get("delete_recurring") == "true"
		if err := svc.DeleteSlot(r.Context(), providerID, slotID, deleteRecurring); err != nil {
			handleScheduleError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteWindowHandler(svc *schedule.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID", "invalid_provider_id")
		if !ok {
			return
		}
		windowID, ok := parseUUIDParam(w, r, "availabilityID", "invalid_availability_id")
		if !ok {
			return
		}

		cascade := r.URL.Query().Get("cascade") == "true"
		if err := svc.DeleteWindow(r.Context(), providerID, windowID, cascade); err != nil {
			handleScheduleError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func bookAppointmentHandler(svc *schedule.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date", "appointment_date must be YYYY-MM-DD")
			return
		}
		at, err := parseTimeOfDay(date, req.AppointmentTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_time", "appointment_time must be HH:MM")
			return
		}

		conf, err := svc.Book(r.Context(), providerID, patientID, at, schedule.AppointmentType(req.AppointmentType))
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(&schedule.AppointmentDetail{
			Slot:          conf.Slot,
			Patient:       conf.Patient,
			Provider:      conf.Provider,
			EstimatedCost: &conf.EstimatedCost,
			Currency:      conf.Currency,
		}))
	}
}

func cancelAppointmentHandler(svc *schedule.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "reference")

		slot, err := svc.Cancel(r.Context(), ref)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func getAppointmentHandler(svc *schedule.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "reference")

		detail, err := svc.GetByReference(r.Context(), ref)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func listAppointmentsHandler(svc *schedule.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f schedule.AppointmentFilter

		if v := q.Get("provider_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			f.ProviderID = &id
		}
		if v := q.Get("patient_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			f.PatientID = &id
		}
		if v := q.Get("status"); v != "" {
			st := schedule.SlotStatus(v)
			f.Status = &st
		}
		if v := q.Get("appointment_type"); v != "" {
			t := schedule.AppointmentType(v)
			f.AppointmentType = &t
		}
		if v := q.Get("start_date"); v != "" {
			d, err := parseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_range", "start_date must be YYYY-MM-DD")
				return
			}
			f.From = &d
		}
		if v := q.Get("end_date"); v != "" {
			d, err := parseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_range", "end_date must be YYYY-MM-DD")
				return
			}
			end := d.AddDate(0, 0, 1)
			f.To = &end
		}
		f.Limit, _ = strconv.Atoi(q.Get("limit"))
		f.Offset, _ = strconv.Atoi(q.Get("offset"))

		slots, total, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := AppointmentListResponse{Total: total, Limit: f.Limit, Offset: f.Offset}
		for i := range slots {
			resp.Appointments = append(resp.Appointments, toSlotResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func searchAvailabilityHandler(svc *schedule.SearchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := schedule.SearchQuery{Specialization: q.Get("specialization")}

		if v := q.Get("date"); v != "" {
			d, err := parseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_range", "date must be YYYY-MM-DD")
				return
			}
			query.StartDate = d
			query.EndDate = d
		} else if q.Get("start_date") != "" || q.Get("end_date") != "" {
			from, to, err := parseDateRange(q.Get("start_date"), q.Get("end_date"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
				return
			}
			query.StartDate = from
			query.EndDate = to
		}
		if v := q.Get("appointment_type"); v != "" {
			t := schedule.AppointmentType(v)
			query.AppointmentType = &t
		}
		if v := q.Get("insurance_accepted"); v != "" {
			accepted := v == "true"
			query.InsuranceOnly = &accepted
		}
		if v := q.Get("max_price"); v != "" {
			fee, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_max_price", "max_price must be numeric")
				return
			}
			query.MaxFee = &fee
		}

		results, err := svc.Search(r.Context(), query)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := SearchResponse{TotalResults: results.TotalWindows}
		for _, pr := range results.Results {
			item := SearchResultResponse{
				Provider: PartyResponse{
					ID:             pr.Provider.ID,
					Name:           pr.Provider.Name,
					Specialization: pr.Provider.Specialization,
					Email:          pr.Provider.Email,
					Phone:          pr.Provider.Phone,
				},
			}
			for i := range pr.Slots {
				offer := pr.Slots[i]
				item.Slots = append(item.Slots, SlotOfferResponse{
					Slot: toSlotResponse(&offer.Slot),
					Location: LocationPayload{
						Type:       string(offer.Location.Type),
						Address:    offer.Location.Address,
						RoomNumber: offer.Location.RoomNumber,
					},
					Pricing: PricingPayload{
						BaseFee:           offer.Pricing.BaseFee,
						InsuranceAccepted: offer.Pricing.InsuranceAccepted,
						Currency:          offer.Pricing.Currency,
					},
					SpecialRequirements: offer.SpecialReqs,
				})
			}
			resp.Results = append(resp.Results, item)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDateRange(startStr, endStr string) (time.Time, time.Time, error) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := now, now.AddDate(0, 0, 30)

	if startStr != "" {
		d, err := parseDate(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("start_date must be YYYY-MM-DD")
		}
		from = d
	}
	if endStr != "" {
		d, err := parseDate(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("end_date must be YYYY-MM-DD")
		}
		to = d
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("end_date must not be before start_date")
	}
	return from, to, nil
}

// handleScheduleError maps domain errors to HTTP responses. Validation,
// not-found, ownership, and state-conflict failures each get distinct
// status codes so callers can tell them apart.
func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
	case errors.Is(err, schedule.ErrTooShort):
		writeError(w, http.StatusBadRequest, "window_too_short", err.Error())
	case errors.Is(err, schedule.ErrSlotDurationOutOfRange),
		errors.Is(err, schedule.ErrBreakDurationOutOfRange),
		errors.Is(err, schedule.ErrMaxPerSlotOutOfRange):
		writeError(w, http.StatusBadRequest, "invalid_slot_configuration", err.Error())
	case errors.Is(err, schedule.ErrPastAppointment):
		writeError(w, http.StatusBadRequest, "past_appointment", err.Error())

	case errors.Is(err, schedule.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, schedule.ErrWindowNotFound):
		writeError(w, http.StatusNotFound, "availability_not_found", err.Error())
	case errors.Is(err, schedule.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, schedule.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())

	case errors.Is(err, schedule.ErrNotSlotOwner):
		writeError(w, http.StatusForbidden, "not_slot_owner", err.Error())

	case errors.Is(err, schedule.ErrWindowOverlap):
		writeError(w, http.StatusConflict, "availability_overlap", err.Error())
	case errors.Is(err, schedule.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", "this time slot is already booked, please choose another")
	case errors.Is(err, schedule.ErrNoAvailableSlot):
		writeError(w, http.StatusConflict, "no_available_slot", err.Error())
	case errors.Is(err, schedule.ErrOutOfBounds):
		writeError(w, http.StatusConflict, "out_of_bounds", err.Error())
	case errors.Is(err, schedule.ErrSlotNotBooked):
		writeError(w, http.StatusConflict, "not_booked", err.Error())
	case errors.Is(err, schedule.ErrHasBookedSlots):
		writeError(w, http.StatusConflict, "has_booked_slots", err.Error())
	case errors.Is(err, schedule.ErrCannotDeleteBooked):
		writeError(w, http.StatusConflict, "cannot_delete_booked", err.Error())
	case errors.Is(err, schedule.ErrCascadeRequired):
		writeError(w, http.StatusConflict, "cascade_required", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
