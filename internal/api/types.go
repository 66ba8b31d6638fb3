package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/healthfirst/provider-scheduling/internal/schedule"
)

type LocationPayload struct {
	Type       string `json:"type"`
	Address    string `json:"address"`
	RoomNumber string `json:"room_number,omitempty"`
}

type PricingPayload struct {
	BaseFee           float64 `json:"base_fee"`
	InsuranceAccepted bool    `json:"insurance_accepted"`
	Currency          string  `json:"currency"`
}

type CreateAvailabilityRequest struct {
	Date                string           `json:"date"`       // 2006-01-02
	StartTime           string           `json:"start_time"` // 15:04
	EndTime             string           `json:"end_time"`
	Timezone            string           `json:"timezone"`
	IsRecurring         bool             `json:"is_recurring"`
	RecurrencePattern   string           `json:"recurrence_pattern,omitempty"`
	RecurrenceEndDate   string           `json:"recurrence_end_date,omitempty"`
	SlotDuration        int              `json:"slot_duration"`
	BreakDuration       int              `json:"break_duration"`
	MaxPerSlot          int              `json:"max_appointments_per_slot"`
	AppointmentType     string           `json:"appointment_type,omitempty"`
	Location            *LocationPayload `json:"location,omitempty"`
	Pricing             *PricingPayload  `json:"pricing,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	SpecialRequirements []string         `json:"special_requirements,omitempty"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type CreateAvailabilityResponse struct {
	AvailabilityIDs   []uuid.UUID `json:"availability_ids"`
	SlotsCreated      int         `json:"slots_created"`
	DateRange         DateRange   `json:"date_range"`
	TotalAppointments int         `json:"total_appointments_available"`
}

type SlotResponse struct {
	ID               uuid.UUID  `json:"id"`
	AvailabilityID   uuid.UUID  `json:"availability_id"`
	ProviderID       uuid.UUID  `json:"provider_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          time.Time  `json:"end_time"`
	Status           string     `json:"status"`
	PatientID        *uuid.UUID `json:"patient_id,omitempty"`
	AppointmentType  string     `json:"appointment_type,omitempty"`
	BookingReference string     `json:"booking_reference"`
}

type WindowResponse struct {
	ID              uuid.UUID       `json:"id"`
	ProviderID      uuid.UUID       `json:"provider_id"`
	Date            string          `json:"date"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	Timezone        string          `json:"timezone"`
	Status          string          `json:"status"`
	SlotDuration    int             `json:"slot_duration"`
	BreakDuration   int             `json:"break_duration"`
	AppointmentType string          `json:"appointment_type"`
	Location        LocationPayload `json:"location"`
	Pricing         PricingPayload  `json:"pricing"`
	Notes           string          `json:"notes,omitempty"`
	Slots           []SlotResponse  `json:"slots,omitempty"`
}

type DayScheduleResponse struct {
	Date    string           `json:"date"`
	Windows []WindowResponse `json:"windows"`
}

type SlotSummaryResponse struct {
	Total     int `json:"total_slots"`
	Available int `json:"available_slots"`
	Booked    int `json:"booked_slots"`
	Cancelled int `json:"cancelled_slots"`
	Blocked   int `json:"blocked_slots"`
}

type ProviderScheduleResponse struct {
	ProviderID uuid.UUID             `json:"provider_id"`
	Summary    SlotSummaryResponse   `json:"summary"`
	Days       []DayScheduleResponse `json:"availability"`
}

type UpdateSlotRequest struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Status    *string    `json:"status,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
}

type BookAppointmentRequest struct {
	ProviderID      string `json:"provider_id"`
	PatientID       string `json:"patient_id"`
	AppointmentDate string `json:"appointment_date"` // 2006-01-02
	AppointmentTime string `json:"appointment_time"` // 15:04
	AppointmentType string `json:"appointment_type,omitempty"`
}

type PartyResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization,omitempty"`
	Email          *string   `json:"email,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
}

type AppointmentResponse struct {
	BookingReference string         `json:"booking_reference"`
	SlotID           uuid.UUID      `json:"slot_id"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	Status           string         `json:"status"`
	AppointmentType  string         `json:"appointment_type,omitempty"`
	Patient          *PartyResponse `json:"patient,omitempty"`
	Provider         *PartyResponse `json:"provider,omitempty"`
	EstimatedCost    *float64       `json:"estimated_cost,omitempty"`
	Currency         string         `json:"currency,omitempty"`
}

type AppointmentListResponse struct {
	Appointments []SlotResponse `json:"appointments"`
	Total        int            `json:"total"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}

type SlotOfferResponse struct {
	Slot                SlotResponse    `json:"slot"`
	Location            LocationPayload `json:"location"`
	Pricing             PricingPayload  `json:"pricing"`
	SpecialRequirements []string        `json:"special_requirements,omitempty"`
}

type SearchResultResponse struct {
	Provider PartyResponse       `json:"provider"`
	Slots    []SlotOfferResponse `json:"available_slots"`
}

type SearchResponse struct {
	TotalResults int                    `json:"total_results"`
	Results      []SearchResultResponse `json:"results"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// parseDate parses a calendar day as midnight UTC.
func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// parseTimeOfDay combines a 15:04 clock time with a calendar date.
func parseTimeOfDay(date time.Time, s string) (time.Time, error) {
	clock, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), 0, 0, time.UTC), nil
}

func toSlotResponse(s *schedule.Slot) SlotResponse {
	return SlotResponse{
		ID:               s.ID,
		AvailabilityID:   s.AvailabilityID,
		ProviderID:       s.ProviderID,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Status:           string(s.Status),
		PatientID:        s.PatientID,
		AppointmentType:  string(s.AppointmentType),
		BookingReference: s.BookingReference,
	}
}

func toWindowResponse(w *schedule.AvailabilityWindow, slots []schedule.Slot) WindowResponse {
	resp := WindowResponse{
		ID:              w.ID,
		ProviderID:      w.ProviderID,
		Date:            w.Date.Format("2006-01-02"),
		StartTime:       w.StartTime,
		EndTime:         w.EndTime,
		Timezone:        w.Timezone,
		Status:          string(w.Status),
		SlotDuration:    w.SlotDuration,
		BreakDuration:   w.BreakDuration,
		AppointmentType: string(w.AppointmentType),
		Location: LocationPayload{
			Type:       string(w.Location.Type),
			Address:    w.Location.Address,
			RoomNumber: w.Location.RoomNumber,
		},
		Pricing: PricingPayload{
			BaseFee:           w.Pricing.BaseFee,
			InsuranceAccepted: w.Pricing.InsuranceAccepted,
			Currency:          w.Pricing.Currency,
		},
		Notes: w.Notes,
	}
	for i := range slots {
		resp.Slots = append(resp.Slots, toSlotResponse(&slots[i]))
	}
	return resp
}

func toAppointmentResponse(d *schedule.AppointmentDetail) AppointmentResponse {
	resp := AppointmentResponse{
		BookingReference: d.Slot.BookingReference,
		SlotID:           d.Slot.ID,
		StartTime:        d.Slot.StartTime,
		EndTime:          d.Slot.EndTime,
		Status:           string(d.Slot.Status),
		AppointmentType:  string(d.Slot.AppointmentType),
		EstimatedCost:    d.EstimatedCost,
		Currency:         d.Currency,
	}
	if d.Patient != nil {
		resp.Patient = &PartyResponse{
			ID:    d.Patient.ID,
			Name:  d.Patient.Name,
			Email: d.Patient.Email,
			Phone: d.Patient.Phone,
		}
	}
	if d.Provider != nil {
		resp.Provider = &PartyResponse{
			ID:             d.Provider.ID,
			Name:           d.Provider.Name,
			Specialization: d.Provider.Specialization,
			Email:          d.Provider.Email,
			Phone:          d.Provider.Phone,
		}
	}
	return resp
}
