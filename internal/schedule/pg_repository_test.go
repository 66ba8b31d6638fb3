package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slotColNames = []string{
	"id", "availability_id", "provider_id", "slot_start_time", "slot_end_time",
	"status", "patient_id", "appointment_type", "booking_reference", "created_at", "updated_at",
}

// anyArgs returns n pgxmock.AnyArg matchers; pgxmock requires the
// expected argument count to match even when values are not asserted.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgRepository(mock)
}

func slotRow(id, availabilityID, providerID uuid.UUID, patientID *uuid.UUID, status SlotStatus, apptType *string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(slotColNames).AddRow(
		id, availabilityID, providerID,
		now, now.Add(30*time.Minute),
		status, patientID, apptType, "APT-AB12CD34", now, now,
	)
}

func TestBookSlotClaimsAvailableSlot(t *testing.T) {
	mock, repo := newMockRepo(t)

	slotID := uuid.New()
	patientID := uuid.New()
	apptType := string(TypeConsultation)

	mock.ExpectQuery("UPDATE appointment_slots").
		WithArgs(slotID, patientID, TypeConsultation).
		WillReturnRows(slotRow(slotID, uuid.New(), uuid.New(), &patientID, SlotBooked, &apptType))

	slot, err := repo.BookSlot(context.Background(), slotID, patientID, TypeConsultation)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, slot.Status)
	require.NotNil(t, slot.PatientID)
	assert.Equal(t, patientID, *slot.PatientID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The conditional UPDATE matches zero rows when the slot is no longer
// AVAILABLE; that must surface as ErrSlotNotAvailable, never a raw
// pgx.ErrNoRows.
func TestBookSlotLosesRace(t *testing.T) {
	mock, repo := newMockRepo(t)

	slotID := uuid.New()
	patientID := uuid.New()

	mock.ExpectQuery("UPDATE appointment_slots").
		WithArgs(slotID, patientID, TypeConsultation).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.BookSlot(context.Background(), slotID, patientID, TypeConsultation)
	assert.ErrorIs(t, err, ErrSlotNotAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelSlotRequiresBookedState(t *testing.T) {
	mock, repo := newMockRepo(t)

	slotID := uuid.New()
	mock.ExpectQuery("UPDATE appointment_slots").
		WithArgs(slotID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.CancelSlot(context.Background(), slotID)
	assert.ErrorIs(t, err, ErrSlotNotBooked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelSlotClearsPatient(t *testing.T) {
	mock, repo := newMockRepo(t)

	slotID := uuid.New()
	mock.ExpectQuery("UPDATE appointment_slots").
		WithArgs(slotID).
		WillReturnRows(slotRow(slotID, uuid.New(), uuid.New(), nil, SlotCancelled, nil))

	slot, err := repo.CancelSlot(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, SlotCancelled, slot.Status)
	assert.Nil(t, slot.PatientID)
	assert.Empty(t, slot.AppointmentType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSlotByReferenceNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM appointment_slots").
		WithArgs("APT-MISSING1").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetSlotByReference(context.Background(), "APT-MISSING1")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWindowNotesNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	windowID := uuid.New()
	mock.ExpectExec("UPDATE provider_availability").
		WithArgs(windowID, "notes").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateWindowNotes(context.Background(), windowID, "notes")
	assert.ErrorIs(t, err, ErrWindowNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWindowWithSlotsCommitsTogether(t *testing.T) {
	mock, repo := newMockRepo(t)

	w := testWindow(9, 10, 30, 0)
	w.Status = AvailabilityAvailable
	w.Pricing = DefaultPricing()
	slots := GenerateSlots(w, nil)
	require.Len(t, slots, 2)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO provider_availability").
		WithArgs(anyArgs(23)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for range slots {
		mock.ExpectExec("INSERT INTO appointment_slots").
			WithArgs(anyArgs(9)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()
	mock.ExpectRollback() // deferred rollback after commit is a no-op

	err := repo.CreateWindowWithSlots(context.Background(), w, slots)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWindowWithSlotsRollsBackOnSlotFailure(t *testing.T) {
	mock, repo := newMockRepo(t)

	w := testWindow(9, 10, 30, 0)
	slots := GenerateSlots(w, nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO provider_availability").
		WithArgs(anyArgs(23)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO appointment_slots").
		WithArgs(anyArgs(9)...).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.CreateWindowWithSlots(context.Background(), w, slots)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockPastOpenSlotsReportsCount(t *testing.T) {
	mock, repo := newMockRepo(t)

	now := time.Now()
	mock.ExpectExec("UPDATE appointment_slots").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))

	n, err := repo.BlockPastOpenSlots(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
