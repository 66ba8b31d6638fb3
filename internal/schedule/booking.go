package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthfirst/provider-scheduling/internal/metrics"
	redisclient "github.com/healthfirst/provider-scheduling/internal/redis"
)

var (
	ErrPastAppointment = errors.New("appointment cannot be scheduled in the past")
	ErrSlotConflict    = errors.New("this time slot is already booked")
	ErrNoAvailableSlot = errors.New("no available slot found for the requested time")
	ErrOutOfBounds     = errors.New("requested time is outside the slot bounds")
)

// Clock is injected so past-appointment checks are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// AppointmentDetail is a slot assembled with its parties and pricing for
// read endpoints.
type AppointmentDetail struct {
	Slot          *Slot
	Patient       *Patient
	Provider      *Provider
	EstimatedCost *float64
	Currency      string
}

// BookingService is the state machine governing individual slots:
// AVAILABLE -> BOOKED -> CANCELLED, with BLOCKED as an administrative dead
// end. Book and Cancel serialize per slot through the locker, and every
// transition is additionally a conditional store write, so at most one
// concurrent Book can ever succeed for a slot.
type BookingService struct {
	repo    Repository
	dir     Directory
	locker  redisclient.Locker
	clock   Clock
	metrics *metrics.SchedulingMetrics
	log     zerolog.Logger
}

func NewBookingService(repo Repository, dir Directory, locker redisclient.Locker, clock Clock, m *metrics.SchedulingMetrics, log zerolog.Logger) *BookingService {
	if clock == nil {
		clock = SystemClock()
	}
	return &BookingService{
		repo:    repo,
		dir:     dir,
		locker:  locker,
		clock:   clock,
		metrics: m,
		log:     log,
	}
}

// Book reserves the AVAILABLE slot containing the requested time for the
// patient and returns the assembled confirmation. Validation failures come
// back as typed errors; a lost race surfaces as ErrSlotConflict and the
// caller may retry with a different slot.
func (s *BookingService) Book(ctx context.Context, providerID, patientID uuid.UUID, at time.Time, apptType AppointmentType) (*BookingConfirmation, error) {
	if apptType == "" {
		apptType = TypeConsultation
	}

	patient, err := s.dir.ResolvePatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	provider, err := s.dir.ResolveProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	if at.Before(s.clock.Now()) {
		s.metrics.ObserveBooking("book", "past")
		return nil, ErrPastAppointment
	}

	booked, err := s.repo.CountBookedAt(ctx, providerID, at)
	if err != nil {
		return nil, fmt.Errorf("check booked slots: %w", err)
	}
	if booked > 0 {
		s.metrics.ObserveBooking("book", "conflict")
		return nil, ErrSlotConflict
	}

	slot, err := s.repo.FindOpenSlotAt(ctx, providerID, at)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			s.metrics.ObserveBooking("book", "no_slot")
			return nil, ErrNoAvailableSlot
		}
		return nil, fmt.Errorf("find open slot: %w", err)
	}

	// The lookup could have returned a stale row; re-check the bounds
	// against the slot itself before committing anything.
	if !slot.Contains(at) {
		return nil, ErrOutOfBounds
	}

	var confirmed *Slot
	err = s.locker.WithSlotLock(ctx, slot.ID, func(lockCtx context.Context) error {
		b, err := s.repo.BookSlot(lockCtx, slot.ID, patientID, apptType)
		if err != nil {
			return err
		}
		confirmed = b

		writeEvent(lockCtx, s.repo, s.log, EventSlotBooked, &b.ID, &b.AvailabilityID, map[string]any{
			"patient_id":        patientID.String(),
			"provider_id":       providerID.String(),
			"booking_reference": b.BookingReference,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) || errors.Is(err, ErrSlotNotAvailable) {
			s.metrics.ObserveBooking("book", "conflict")
			return nil, ErrSlotConflict
		}
		return nil, err
	}

	window, err := s.repo.GetWindowByID(ctx, confirmed.AvailabilityID)
	if err != nil {
		return nil, fmt.Errorf("load parent window: %w", err)
	}
	cost := EstimatedCost(window.Pricing.BaseFee, apptType)

	s.metrics.ObserveBooking("book", "success")
	s.log.Info().
		Str("booking_reference", confirmed.BookingReference).
		Str("slot_id", confirmed.ID.String()).
		Str("patient_id", patientID.String()).
		Msg("appointment booked")

	return &BookingConfirmation{
		Slot:          confirmed,
		Patient:       patient,
		Provider:      provider,
		EstimatedCost: cost,
		Currency:      window.Pricing.Currency,
	}, nil
}

// Cancel transitions a BOOKED slot to CANCELLED, unbinding the patient.
// CANCELLED is terminal: the slot is never offered again, and a second
// cancel fails cleanly with ErrSlotNotBooked.
func (s *BookingService) Cancel(ctx context.Context, bookingReference string) (*Slot, error) {
	slot, err := s.repo.GetSlotByReference(ctx, bookingReference)
	if err != nil {
		return nil, err
	}
	if slot.Status != SlotBooked {
		s.metrics.ObserveBooking("cancel", "not_booked")
		return nil, ErrSlotNotBooked
	}

	var cancelled *Slot
	err = s.locker.WithSlotLock(ctx, slot.ID, func(lockCtx context.Context) error {
		c, err := s.repo.CancelSlot(lockCtx, slot.ID)
		if err != nil {
			return err
		}
		cancelled = c

		writeEvent(lockCtx, s.repo, s.log, EventSlotCancelled, &c.ID, &c.AvailabilityID, map[string]any{
			"booking_reference": bookingReference,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.metrics.ObserveBooking("cancel", "contended")
			return nil, ErrSlotNotBooked
		}
		if errors.Is(err, ErrSlotNotBooked) {
			s.metrics.ObserveBooking("cancel", "not_booked")
		}
		return nil, err
	}

	s.metrics.ObserveBooking("cancel", "success")
	s.log.Info().Str("booking_reference", bookingReference).Msg("appointment cancelled")
	return cancelled, nil
}

// GetByReference returns the fully assembled appointment for a booking
// reference, resolving the patient and provider and re-deriving the
// estimated cost from the parent window's pricing.
func (s *BookingService) GetByReference(ctx context.Context, bookingReference string) (*AppointmentDetail, error) {
	slot, err := s.repo.GetSlotByReference(ctx, bookingReference)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, slot)
}

// ListAppointments returns filtered slots newest-first with the total
// match count for pagination.
func (s *BookingService) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Slot, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListAppointments(ctx, f)
}

func (s *BookingService) assemble(ctx context.Context, slot *Slot) (*AppointmentDetail, error) {
	detail := &AppointmentDetail{Slot: slot}

	provider, err := s.dir.ResolveProvider(ctx, slot.ProviderID)
	if err != nil && !errors.Is(err, ErrProviderNotFound) {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}
	detail.Provider = provider

	if slot.PatientID != nil {
		patient, err := s.dir.ResolvePatient(ctx, *slot.PatientID)
		if err != nil && !errors.Is(err, ErrPatientNotFound) {
			return nil, fmt.Errorf("resolve patient: %w", err)
		}
		detail.Patient = patient
	}

	if slot.AppointmentType != "" {
		window, err := s.repo.GetWindowByID(ctx, slot.AvailabilityID)
		if err != nil {
			return nil, fmt.Errorf("load parent window: %w", err)
		}
		cost := EstimatedCost(window.Pricing.BaseFee, slot.AppointmentType)
		detail.EstimatedCost = &cost
		detail.Currency = window.Pricing.Currency
	}

	return detail, nil
}
