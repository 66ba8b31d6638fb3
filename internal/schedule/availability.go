package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthfirst/provider-scheduling/internal/metrics"
)

const (
	EventWindowCreated = "WINDOW_CREATED"
	EventSlotBooked    = "SLOT_BOOKED"
	EventSlotCancelled = "SLOT_CANCELLED"
)

var (
	ErrSlotDurationOutOfRange  = errors.New("slot duration must be between 15 and 480 minutes")
	ErrBreakDurationOutOfRange = errors.New("break duration must be between 0 and 120 minutes")
	ErrMaxPerSlotOutOfRange    = errors.New("max appointments per slot must be between 1 and 10")
	ErrNotSlotOwner            = errors.New("slot does not belong to provider")
	ErrHasBookedSlots          = errors.New("availability window still has booked slots")
	ErrCannotDeleteBooked      = errors.New("cannot delete a booked slot")
	ErrCascadeRequired         = errors.New("window has generated slots, cascade deletion must be requested")
)

// CreateWindowInput carries a provider's new availability declaration.
// Zero values fall back to the same defaults the booking flow assumes:
// 30 minute slots, no break, one appointment per slot, consultation type.
type CreateWindowInput struct {
	ProviderID        uuid.UUID
	Date              time.Time
	StartTime         time.Time
	EndTime           time.Time
	Timezone          string
	IsRecurring       bool
	RecurrencePattern RecurrencePattern
	RecurrenceEndDate *time.Time
	SlotDuration      int
	BreakDuration     int
	MaxPerSlot        int
	AppointmentType   AppointmentType
	Location          Location
	Pricing           *Pricing
	Notes             string
	SpecialReqs       []string
}

// CreateWindowResult summarizes what a create call materialized.
type CreateWindowResult struct {
	WindowIDs         []uuid.UUID
	SlotsCreated      int
	FirstDate         time.Time
	LastDate          time.Time
	TotalAppointments int
}

// WindowSlots pairs a window with its generated slots.
type WindowSlots struct {
	Window AvailabilityWindow
	Slots  []Slot
}

// DaySchedule groups a provider's windows for one calendar date.
type DaySchedule struct {
	Date    time.Time
	Windows []WindowSlots
}

// ProviderSchedule is the provider-facing availability listing.
type ProviderSchedule struct {
	ProviderID uuid.UUID
	Summary    SlotSummary
	Days       []DaySchedule
}

// AvailabilityService owns the window lifecycle: validation, slot
// generation, listing, and administrative slot/window edits.
type AvailabilityService struct {
	repo    Repository
	dir     Directory
	newRef  RefSource
	metrics *metrics.SchedulingMetrics
	log     zerolog.Logger
}

func NewAvailabilityService(repo Repository, dir Directory, m *metrics.SchedulingMetrics, log zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{
		repo:    repo,
		dir:     dir,
		newRef:  NewBookingReference,
		metrics: m,
		log:     log,
	}
}

// CreateAvailability validates the window, expands its recurrence, and
// persists every occurrence together with its generated slots. Each
// occurrence is committed atomically with its own slots; all occurrences
// are overlap-checked up front so a predictable conflict rejects the whole
// request before anything is written.
func (s *AvailabilityService) CreateAvailability(ctx context.Context, in CreateWindowInput) (*CreateWindowResult, error) {
	if _, err := s.dir.ResolveProvider(ctx, in.ProviderID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	base, err := s.buildWindow(in)
	if err != nil {
		return nil, err
	}

	occurrences := ExpandRecurrence(*base)

	generated := make([][]Slot, len(occurrences))
	for i := range occurrences {
		occ := &occurrences[i]
		existing, err := s.repo.FindOverlapping(ctx, occ.ProviderID, occ.Date, occ.StartTime, occ.EndTime)
		if err != nil {
			return nil, fmt.Errorf("overlap check: %w", err)
		}
		if err := ValidateWindow(occ.StartTime, occ.EndTime, existing); err != nil {
			return nil, err
		}
		generated[i] = GenerateSlots(occ, s.newRef)
	}

	result := &CreateWindowResult{
		FirstDate: occurrences[0].Date,
		LastDate:  occurrences[len(occurrences)-1].Date,
	}

	for i := range occurrences {
		occ := &occurrences[i]
		if err := s.repo.CreateWindowWithSlots(ctx, occ, generated[i]); err != nil {
			return nil, fmt.Errorf("persist window: %w", err)
		}

		s.metrics.ObserveWindowCreated()
		s.metrics.ObserveSlotsGenerated(len(generated[i]))
		s.logEvent(ctx, EventWindowCreated, nil, &occ.ID, map[string]any{
			"provider_id":   occ.ProviderID.String(),
			"date":          occ.Date.Format("2006-01-02"),
			"slots_created": len(generated[i]),
		})

		result.WindowIDs = append(result.WindowIDs, occ.ID)
		result.SlotsCreated += len(generated[i])
		result.TotalAppointments += len(generated[i]) * occ.MaxPerSlot
	}

	s.log.Info().
		Str("provider_id", in.ProviderID.String()).
		Int("windows", len(occurrences)).
		Int("slots", result.SlotsCreated).
		Msg("availability created")

	return result, nil
}

func (s *AvailabilityService) buildWindow(in CreateWindowInput) (*AvailabilityWindow, error) {
	if in.SlotDuration == 0 {
		in.SlotDuration = 30
	}
	if in.MaxPerSlot == 0 {
		in.MaxPerSlot = 1
	}
	if in.AppointmentType == "" {
		in.AppointmentType = TypeConsultation
	}

	if in.SlotDuration < 15 || in.SlotDuration > 480 {
		return nil, ErrSlotDurationOutOfRange
	}
	if in.BreakDuration < 0 || in.BreakDuration > 120 {
		return nil, ErrBreakDurationOutOfRange
	}
	if in.MaxPerSlot < 1 || in.MaxPerSlot > 10 {
		return nil, ErrMaxPerSlotOutOfRange
	}

	pricing := DefaultPricing()
	if in.Pricing != nil {
		pricing = *in.Pricing
		if pricing.BaseFee == 0 {
			pricing.BaseFee = DefaultBaseFee
		}
		if pricing.Currency == "" {
			pricing.Currency = "USD"
		}
	}

	pattern := in.RecurrencePattern
	if !in.IsRecurring {
		pattern = RecurrenceNone
	}

	return &AvailabilityWindow{
		ID:                uuid.New(),
		ProviderID:        in.ProviderID,
		Date:              in.Date,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		Timezone:          in.Timezone,
		IsRecurring:       in.IsRecurring,
		RecurrencePattern: pattern,
		RecurrenceEndDate: in.RecurrenceEndDate,
		SlotDuration:      in.SlotDuration,
		BreakDuration:     in.BreakDuration,
		Status:            AvailabilityAvailable,
		MaxPerSlot:        in.MaxPerSlot,
		CurrentCount:      0,
		AppointmentType:   in.AppointmentType,
		Location:          in.Location,
		Pricing:           pricing,
		Notes:             in.Notes,
		SpecialReqs:       in.SpecialReqs,
	}, nil
}

// GetProviderSchedule lists a provider's windows and their slots over a
// date range, grouped by day, with a per-status summary.
func (s *AvailabilityService) GetProviderSchedule(ctx context.Context, providerID uuid.UUID, from, to time.Time, f WindowFilter) (*ProviderSchedule, error) {
	windows, err := s.repo.ListWindows(ctx, providerID, from, to, f)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}

	schedule := &ProviderSchedule{ProviderID: providerID}
	for i := range windows {
		w := windows[i]
		slots, err := s.repo.ListSlotsByWindow(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("list slots for window %s: %w", w.ID, err)
		}

		n := len(schedule.Days)
		if n == 0 || !schedule.Days[n-1].Date.Equal(w.Date) {
			schedule.Days = append(schedule.Days, DaySchedule{Date: w.Date})
			n++
		}
		schedule.Days[n-1].Windows = append(schedule.Days[n-1].Windows, WindowSlots{Window: w, Slots: slots})
	}

	summary, err := s.repo.SummarizeSlots(ctx, providerID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("summarize slots: %w", err)
	}
	schedule.Summary = summary

	return schedule, nil
}

// UpdateSlot applies a provider-initiated patch. Times and status change
// on the slot itself; a notes patch delegates to the parent window.
func (s *AvailabilityService) UpdateSlot(ctx context.Context, providerID, slotID uuid.UUID, patch SlotPatch) (*Slot, error) {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.ProviderID != providerID {
		return nil, ErrNotSlotOwner
	}

	if patch.Notes != nil {
		if err := s.repo.UpdateWindowNotes(ctx, slot.AvailabilityID, *patch.Notes); err != nil {
			return nil, fmt.Errorf("update window notes: %w", err)
		}
	}

	if patch.StartTime == nil && patch.EndTime == nil && patch.Status == nil {
		return slot, nil
	}
	return s.repo.UpdateSlot(ctx, slotID, patch)
}

// DeleteSlot removes one slot, or the slot's whole recurring window when
// deleteRecurring is set. Booked slots are never deleted.
func (s *AvailabilityService) DeleteSlot(ctx context.Context, providerID, slotID uuid.UUID, deleteRecurring bool) error {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.ProviderID != providerID {
		return ErrNotSlotOwner
	}
	if slot.Status == SlotBooked {
		return ErrCannotDeleteBooked
	}

	if deleteRecurring {
		window, err := s.repo.GetWindowByID(ctx, slot.AvailabilityID)
		if err != nil {
			return err
		}
		if window.IsRecurring {
			booked, err := s.repo.CountBookedByWindow(ctx, window.ID)
			if err != nil {
				return fmt.Errorf("count booked slots: %w", err)
			}
			if booked > 0 {
				return ErrHasBookedSlots
			}
			return s.repo.DeleteWindowWithSlots(ctx, window.ID)
		}
	}

	return s.repo.DeleteSlot(ctx, slotID)
}

// DeleteWindow removes an availability window and its slots. It refuses
// while any slot is BOOKED, and requires an explicit cascade confirmation
// when non-booked slots would be swept along.
func (s *AvailabilityService) DeleteWindow(ctx context.Context, providerID, windowID uuid.UUID, cascade bool) error {
	window, err := s.repo.GetWindowByID(ctx, windowID)
	if err != nil {
		return err
	}
	if window.ProviderID != providerID {
		return ErrNotSlotOwner
	}

	booked, err := s.repo.CountBookedByWindow(ctx, windowID)
	if err != nil {
		return fmt.Errorf("count booked slots: %w", err)
	}
	if booked > 0 {
		return ErrHasBookedSlots
	}

	if !cascade {
		slots, err := s.repo.ListSlotsByWindow(ctx, windowID)
		if err != nil {
			return fmt.Errorf("list slots: %w", err)
		}
		if len(slots) > 0 {
			return ErrCascadeRequired
		}
	}

	return s.repo.DeleteWindowWithSlots(ctx, windowID)
}

func (s *AvailabilityService) logEvent(ctx context.Context, eventType string, slotID, windowID *uuid.UUID, payload map[string]any) {
	writeEvent(ctx, s.repo, s.log, eventType, slotID, windowID, payload)
}

// writeEvent appends an audit row; failures are logged, never surfaced.
func writeEvent(ctx context.Context, repo Repository, log zerolog.Logger, eventType string, slotID, windowID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := ScheduleEvent{
		EventType: eventType,
		SlotID:    slotID,
		WindowID:  windowID,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if err := repo.InsertEvent(ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("insert schedule event")
	}
}
