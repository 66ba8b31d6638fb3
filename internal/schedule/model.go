package schedule

import (
	"time"

	"github.com/google/uuid"
)

type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "AVAILABLE"
	AvailabilityBooked      AvailabilityStatus = "BOOKED"
	AvailabilityCancelled   AvailabilityStatus = "CANCELLED"
	AvailabilityBlocked     AvailabilityStatus = "BLOCKED"
	AvailabilityMaintenance AvailabilityStatus = "MAINTENANCE"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotCancelled SlotStatus = "CANCELLED"
	SlotBlocked   SlotStatus = "BLOCKED"
)

type RecurrencePattern string

const (
	RecurrenceNone    RecurrencePattern = "NONE"
	RecurrenceDaily   RecurrencePattern = "DAILY"
	RecurrenceWeekly  RecurrencePattern = "WEEKLY"
	RecurrenceMonthly RecurrencePattern = "MONTHLY"
)

type AppointmentType string

const (
	TypeConsultation AppointmentType = "CONSULTATION"
	TypeFollowUp     AppointmentType = "FOLLOW_UP"
	TypeEmergency    AppointmentType = "EMERGENCY"
	TypeTelemedicine AppointmentType = "TELEMEDICINE"
)

// costMultipliers scales the window's base fee per appointment type.
var costMultipliers = map[AppointmentType]float64{
	TypeConsultation: 1.0,
	TypeFollowUp:     0.9,
	TypeEmergency:    1.5,
	TypeTelemedicine: 0.8,
}

// EstimatedCost returns baseFee scaled for the appointment type.
// Unknown types price as a plain consultation.
func EstimatedCost(baseFee float64, t AppointmentType) float64 {
	if m, ok := costMultipliers[t]; ok {
		return baseFee * m
	}
	return baseFee
}

type LocationType string

const (
	LocationClinic       LocationType = "CLINIC"
	LocationHospital     LocationType = "HOSPITAL"
	LocationTelemedicine LocationType = "TELEMEDICINE"
	LocationHomeVisit    LocationType = "HOME_VISIT"
)

type Location struct {
	Type       LocationType
	Address    string
	RoomNumber string
}

type Pricing struct {
	BaseFee           float64
	InsuranceAccepted bool
	Currency          string
}

const DefaultBaseFee = 100.00

func DefaultPricing() Pricing {
	return Pricing{BaseFee: DefaultBaseFee, InsuranceAccepted: false, Currency: "USD"}
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	Email          *string
	Phone          *string
	ClinicAddress  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AvailabilityWindow is a provider-declared block of calendar time from
// which bookable slots are carved. Date is the calendar day at midnight
// UTC; StartTime/EndTime are absolute timestamps on that day. Timezone is
// stored verbatim and never interpreted.
type AvailabilityWindow struct {
	ID                uuid.UUID
	ProviderID        uuid.UUID
	Date              time.Time
	StartTime         time.Time
	EndTime           time.Time
	Timezone          string
	IsRecurring       bool
	RecurrencePattern RecurrencePattern
	RecurrenceEndDate *time.Time
	SlotDuration      int // minutes
	BreakDuration     int // minutes
	Status            AvailabilityStatus
	MaxPerSlot        int
	CurrentCount      int
	AppointmentType   AppointmentType
	Location          Location
	Pricing           Pricing
	Notes             string
	SpecialReqs       []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Slot is the smallest bookable unit. A BOOKED slot always carries a
// patient; AVAILABLE and CANCELLED slots never do. The booking reference
// is assigned once at creation and is stable for the slot's lifetime.
type Slot struct {
	ID               uuid.UUID
	AvailabilityID   uuid.UUID
	ProviderID       uuid.UUID
	StartTime        time.Time
	EndTime          time.Time
	Status           SlotStatus
	PatientID        *uuid.UUID
	AppointmentType  AppointmentType // empty when no booking holds the slot
	BookingReference string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Contains reports whether t falls inside the slot's [start, end) interval.
func (s *Slot) Contains(t time.Time) bool {
	return !t.Before(s.StartTime) && t.Before(s.EndTime)
}

// BookingConfirmation is the fully assembled result of a successful Book.
type BookingConfirmation struct {
	Slot          *Slot
	Patient       *Patient
	Provider      *Provider
	EstimatedCost float64
	Currency      string
}

// ScheduleEvent is an audit-trail row written on state transitions.
type ScheduleEvent struct {
	ID        int64
	EventType string
	SlotID    *uuid.UUID
	WindowID  *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
