package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAvailabilityFixture(t *testing.T) (*fakeRepository, *AvailabilityService, *Provider) {
	t.Helper()
	repo := newFakeRepository()
	svc := NewAvailabilityService(repo, repo, nil, zerolog.Nop())
	return repo, svc, repo.addProvider("Dermatology")
}

func dayInput(providerID uuid.UUID, startHour, endHour int) CreateWindowInput {
	return CreateWindowInput{
		ProviderID: providerID,
		Date:       time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		StartTime:  time.Date(2026, 9, 14, startHour, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 9, 14, endHour, 0, 0, 0, time.UTC),
	}
}

func TestCreateAvailabilityDefaults(t *testing.T) {
	repo, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	result, err := svc.CreateAvailability(ctx, dayInput(provider.ID, 9, 10))
	require.NoError(t, err)

	require.Len(t, result.WindowIDs, 1)
	assert.Equal(t, 2, result.SlotsCreated) // 30 minute default duration
	assert.Equal(t, 2, result.TotalAppointments)

	w, err := repo.GetWindowByID(ctx, result.WindowIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 30, w.SlotDuration)
	assert.Equal(t, 0, w.BreakDuration)
	assert.Equal(t, 1, w.MaxPerSlot)
	assert.Equal(t, TypeConsultation, w.AppointmentType)
	assert.Equal(t, AvailabilityAvailable, w.Status)
	assert.InDelta(t, DefaultBaseFee, w.Pricing.BaseFee, 1e-9)
	assert.Equal(t, "USD", w.Pricing.Currency)
}

func TestCreateAvailabilityUnknownProvider(t *testing.T) {
	_, svc, _ := newAvailabilityFixture(t)

	_, err := svc.CreateAvailability(context.Background(), dayInput(uuid.New(), 9, 10))
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestCreateAvailabilityValidatesConfiguration(t *testing.T) {
	_, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	in := dayInput(provider.ID, 9, 17)
	in.SlotDuration = 10
	_, err := svc.CreateAvailability(ctx, in)
	assert.ErrorIs(t, err, ErrSlotDurationOutOfRange)

	in = dayInput(provider.ID, 9, 17)
	in.BreakDuration = 180
	_, err = svc.CreateAvailability(ctx, in)
	assert.ErrorIs(t, err, ErrBreakDurationOutOfRange)

	in = dayInput(provider.ID, 9, 17)
	in.MaxPerSlot = 11
	_, err = svc.CreateAvailability(ctx, in)
	assert.ErrorIs(t, err, ErrMaxPerSlotOutOfRange)

	in = dayInput(provider.ID, 12, 9)
	_, err = svc.CreateAvailability(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestCreateAvailabilityRejectsOverlap(t *testing.T) {
	repo, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	_, err := svc.CreateAvailability(ctx, dayInput(provider.ID, 9, 12))
	require.NoError(t, err)

	_, err = svc.CreateAvailability(ctx, dayInput(provider.ID, 11, 13))
	assert.ErrorIs(t, err, ErrWindowOverlap)

	// Adjacent windows are fine; another provider's windows never clash.
	_, err = svc.CreateAvailability(ctx, dayInput(provider.ID, 12, 13))
	assert.NoError(t, err)

	other := repo.addProvider("Neurology")
	_, err = svc.CreateAvailability(ctx, dayInput(other.ID, 9, 12))
	assert.NoError(t, err)
}

func TestCreateAvailabilityRecurringExpansion(t *testing.T) {
	repo, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	in := dayInput(provider.ID, 9, 10)
	in.IsRecurring = true
	in.RecurrencePattern = RecurrenceDaily
	end := in.Date.AddDate(0, 0, 2)
	in.RecurrenceEndDate = &end

	result, err := svc.CreateAvailability(ctx, in)
	require.NoError(t, err)

	assert.Len(t, result.WindowIDs, 3)
	assert.Equal(t, 6, result.SlotsCreated)
	assert.Equal(t, in.Date, result.FirstDate)
	assert.Equal(t, end, result.LastDate)

	for _, id := range result.WindowIDs {
		slots, err := repo.ListSlotsByWindow(ctx, id)
		require.NoError(t, err)
		assert.Len(t, slots, 2)
	}
}

func TestCreateAvailabilityRecurringConflictWritesNothing(t *testing.T) {
	repo, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	// Occupy the second occurrence's date ahead of time.
	blocker := dayInput(provider.ID, 9, 10)
	blocker.Date = blocker.Date.AddDate(0, 0, 1)
	blocker.StartTime = blocker.StartTime.AddDate(0, 0, 1)
	blocker.EndTime = blocker.EndTime.AddDate(0, 0, 1)
	_, err := svc.CreateAvailability(ctx, blocker)
	require.NoError(t, err)

	in := dayInput(provider.ID, 9, 10)
	in.IsRecurring = true
	in.RecurrencePattern = RecurrenceDaily
	end := in.Date.AddDate(0, 0, 3)
	in.RecurrenceEndDate = &end

	_, err = svc.CreateAvailability(ctx, in)
	require.ErrorIs(t, err, ErrWindowOverlap)

	// Only the blocker exists; no partial occurrence leaked through.
	windows, err := repo.ListWindows(ctx, provider.ID, in.Date, end, WindowFilter{})
	require.NoError(t, err)
	assert.Len(t, windows, 1)
}

func TestGetProviderScheduleGroupsByDay(t *testing.T) {
	_, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	in := dayInput(provider.ID, 9, 10)
	in.IsRecurring = true
	in.RecurrencePattern = RecurrenceDaily
	end := in.Date.AddDate(0, 0, 1)
	in.RecurrenceEndDate = &end
	_, err := svc.CreateAvailability(ctx, in)
	require.NoError(t, err)

	sched, err := svc.GetProviderSchedule(ctx, provider.ID, in.Date, end, WindowFilter{})
	require.NoError(t, err)

	assert.Equal(t, provider.ID, sched.ProviderID)
	assert.Len(t, sched.Days, 2)
	assert.Equal(t, 4, sched.Summary.Total)
	assert.Equal(t, 4, sched.Summary.Available)
}

func TestUpdateSlotOwnershipAndNotes(t *testing.T) {
	repo, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	result, err := svc.CreateAvailability(ctx, dayInput(provider.ID, 9, 10))
	require.NoError(t, err)
	slots, err := repo.ListSlotsByWindow(ctx, result.WindowIDs[0])
	require.NoError(t, err)
	slot := slots[0]

	_, err = svc.UpdateSlot(ctx, uuid.New(), slot.ID, SlotPatch{})
	assert.ErrorIs(t, err, ErrNotSlotOwner)

	notes := "bring referral letter"
	_, err = svc.UpdateSlot(ctx, provider.ID, slot.ID, SlotPatch{Notes: &notes})
	require.NoError(t, err)

	w, err := repo.GetWindowByID(ctx, result.WindowIDs[0])
	require.NoError(t, err)
	assert.Equal(t, notes, w.Notes)

	blocked := SlotBlocked
	updated, err := svc.UpdateSlot(ctx, provider.ID, slot.ID, SlotPatch{Status: &blocked})
	require.NoError(t, err)
	assert.Equal(t, SlotBlocked, updated.Status)
}

func TestDeleteSlotGuardsBooked(t *testing.T) {
	repo, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	result, err := svc.CreateAvailability(ctx, dayInput(provider.ID, 9, 10))
	require.NoError(t, err)
	slots, err := repo.ListSlotsByWindow(ctx, result.WindowIDs[0])
	require.NoError(t, err)

	patient := repo.addPatient()
	_, err = repo.BookSlot(ctx, slots[0].ID, patient.ID, TypeConsultation)
	require.NoError(t, err)

	err = svc.DeleteSlot(ctx, provider.ID, slots[0].ID, false)
	assert.ErrorIs(t, err, ErrCannotDeleteBooked)

	require.NoError(t, svc.DeleteSlot(ctx, provider.ID, slots[1].ID, false))
	_, err = repo.GetSlotByID(ctx, slots[1].ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestDeleteSlotRecurringCascades(t *testing.T) {
	repo, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	in := dayInput(provider.ID, 9, 10)
	in.IsRecurring = true
	in.RecurrencePattern = RecurrenceWeekly
	end := in.Date.AddDate(0, 0, 7)
	in.RecurrenceEndDate = &end

	result, err := svc.CreateAvailability(ctx, in)
	require.NoError(t, err)
	slots, err := repo.ListSlotsByWindow(ctx, result.WindowIDs[0])
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSlot(ctx, provider.ID, slots[0].ID, true))

	_, err = repo.GetWindowByID(ctx, result.WindowIDs[0])
	assert.ErrorIs(t, err, ErrWindowNotFound)
	// The other occurrence is untouched.
	_, err = repo.GetWindowByID(ctx, result.WindowIDs[1])
	assert.NoError(t, err)
}

func TestDeleteWindowGuards(t *testing.T) {
	repo, svc, provider := newAvailabilityFixture(t)
	ctx := context.Background()

	result, err := svc.CreateAvailability(ctx, dayInput(provider.ID, 9, 10))
	require.NoError(t, err)
	windowID := result.WindowIDs[0]

	err = svc.DeleteWindow(ctx, uuid.New(), windowID, true)
	assert.ErrorIs(t, err, ErrNotSlotOwner)

	// Slots exist, so cascade must be explicit.
	err = svc.DeleteWindow(ctx, provider.ID, windowID, false)
	assert.ErrorIs(t, err, ErrCascadeRequired)

	// A booked slot blocks deletion outright.
	slots, err := repo.ListSlotsByWindow(ctx, windowID)
	require.NoError(t, err)
	patient := repo.addPatient()
	_, err = repo.BookSlot(ctx, slots[0].ID, patient.ID, TypeConsultation)
	require.NoError(t, err)

	err = svc.DeleteWindow(ctx, provider.ID, windowID, true)
	assert.ErrorIs(t, err, ErrHasBookedSlots)

	// After cancelling, cascade deletion goes through.
	_, err = repo.CancelSlot(ctx, slots[0].ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteWindow(ctx, provider.ID, windowID, true))

	_, err = repo.GetWindowByID(ctx, windowID)
	assert.ErrorIs(t, err, ErrWindowNotFound)
}
