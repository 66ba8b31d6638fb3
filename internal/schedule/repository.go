package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrProviderNotFound = errors.New("provider not found")
	ErrWindowNotFound   = errors.New("availability window not found")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrBookingNotFound  = errors.New("no appointment with that booking reference")
	ErrSlotNotAvailable = errors.New("slot is not available")
	ErrSlotNotBooked    = errors.New("slot is not booked")
)

// WindowFilter narrows provider availability listings.
type WindowFilter struct {
	Status          *AvailabilityStatus
	AppointmentType *AppointmentType
}

// SlotPatch carries the restricted field set a provider may change on a
// slot. Notes delegate to the parent window.
type SlotPatch struct {
	StartTime *time.Time
	EndTime   *time.Time
	Status    *SlotStatus
	Notes     *string
}

// SearchQuery drives patient-facing slot discovery.
type SearchQuery struct {
	Specialization  string
	StartDate       time.Time
	EndDate         time.Time
	AppointmentType *AppointmentType
	InsuranceOnly   *bool
	MaxFee          *float64
	Limit           int
}

// AppointmentFilter narrows booked/cancelled appointment listings.
type AppointmentFilter struct {
	ProviderID      *uuid.UUID
	PatientID       *uuid.UUID
	Status          *SlotStatus
	AppointmentType *AppointmentType
	From            *time.Time
	To              *time.Time
	Limit           int
	Offset          int
}

// SlotSummary counts a provider's slots per status over a date range.
type SlotSummary struct {
	Total     int
	Available int
	Booked    int
	Cancelled int
	Blocked   int
}

// Directory resolves patient and provider references for response
// assembly. It never authenticates.
type Directory interface {
	ResolvePatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	ResolveProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
}

// Repository contains all store interactions needed by the scheduling
// services. The implementation must support atomic multi-row commit for
// CreateWindowWithSlots and compare-and-swap semantics for the slot
// transition methods.
type Repository interface {
	// Windows
	CreateWindowWithSlots(ctx context.Context, w *AvailabilityWindow, slots []Slot) error
	GetWindowByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	ListWindows(ctx context.Context, providerID uuid.UUID, from, to time.Time, f WindowFilter) ([]AvailabilityWindow, error)
	FindOverlapping(ctx context.Context, providerID uuid.UUID, date time.Time, start, end time.Time) ([]AvailabilityWindow, error)
	UpdateWindowNotes(ctx context.Context, id uuid.UUID, notes string) error
	DeleteWindowWithSlots(ctx context.Context, id uuid.UUID) error

	// Slots
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	GetSlotByReference(ctx context.Context, ref string) (*Slot, error)
	ListSlotsByWindow(ctx context.Context, windowID uuid.UUID) ([]Slot, error)
	CountBookedAt(ctx context.Context, providerID uuid.UUID, at time.Time) (int, error)
	FindOpenSlotAt(ctx context.Context, providerID uuid.UUID, at time.Time) (*Slot, error)
	CountBookedByWindow(ctx context.Context, windowID uuid.UUID) (int, error)
	UpdateSlot(ctx context.Context, id uuid.UUID, patch SlotPatch) (*Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// State transitions. Both are conditional writes: they fail with
	// ErrSlotNotAvailable / ErrSlotNotBooked when the slot is no longer in
	// the expected source state.
	BookSlot(ctx context.Context, id, patientID uuid.UUID, t AppointmentType) (*Slot, error)
	CancelSlot(ctx context.Context, id uuid.UUID) (*Slot, error)

	// Discovery and reporting
	SearchOpenWindows(ctx context.Context, q SearchQuery) ([]AvailabilityWindow, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Slot, int, error)
	SummarizeSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) (SlotSummary, error)

	// Maintenance
	BlockPastOpenSlots(ctx context.Context, now time.Time) (int64, error)

	// Audit trail
	InsertEvent(ctx context.Context, ev ScheduleEvent) error
}
