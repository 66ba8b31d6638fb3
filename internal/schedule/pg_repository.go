package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool the repository needs. Declared as
// an interface so tests can inject a pgxmock pool.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool PgxPool
}

func NewPgRepository(pool PgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

const windowCols = `id, provider_id, date, start_time, end_time, timezone,
	is_recurring, recurrence_pattern, recurrence_end_date,
	slot_duration, break_duration, status, max_per_slot, current_count,
	appointment_type, location_type, location_address, location_room,
	base_fee, insurance_accepted, currency, notes, special_requirements,
	created_at, updated_at`

const slotCols = `id, availability_id, provider_id, slot_start_time, slot_end_time,
	status, patient_id, appointment_type, booking_reference, created_at, updated_at`

// Helpers

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var pattern, notes *string
	var reqs []string

	err := row.Scan(
		&w.ID,
		&w.ProviderID,
		&w.Date,
		&w.StartTime,
		&w.EndTime,
		&w.Timezone,
		&w.IsRecurring,
		&pattern,
		&w.RecurrenceEndDate,
		&w.SlotDuration,
		&w.BreakDuration,
		&w.Status,
		&w.MaxPerSlot,
		&w.CurrentCount,
		&w.AppointmentType,
		&w.Location.Type,
		&w.Location.Address,
		&w.Location.RoomNumber,
		&w.Pricing.BaseFee,
		&w.Pricing.InsuranceAccepted,
		&w.Pricing.Currency,
		&notes,
		&reqs,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	if pattern != nil {
		w.RecurrencePattern = RecurrencePattern(*pattern)
	} else {
		w.RecurrencePattern = RecurrenceNone
	}
	if notes != nil {
		w.Notes = *notes
	}
	w.SpecialReqs = reqs
	return &w, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var patientID *uuid.UUID
	var apptType *string

	err := row.Scan(
		&s.ID,
		&s.AvailabilityID,
		&s.ProviderID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&patientID,
		&apptType,
		&s.BookingReference,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.PatientID = patientID
	if apptType != nil {
		s.AppointmentType = AppointmentType(*apptType)
	}
	return &s, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Specialization, &p.Email, &p.Phone,
		&p.ClinicAddress, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func collectWindows(rows pgx.Rows) ([]AvailabilityWindow, error) {
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableString[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

// Directory

func (r *PgRepository) ResolvePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) ResolveProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialization, email, phone, clinic_address, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

// Windows

// CreateWindowWithSlots persists the window and every generated slot in a
// single transaction so a window can never be observed without its slots.
func (r *PgRepository) CreateWindowWithSlots(ctx context.Context, w *AvailabilityWindow, slots []Slot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin window tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO provider_availability (
			id, provider_id, date, start_time, end_time, timezone,
			is_recurring, recurrence_pattern, recurrence_end_date,
			slot_duration, break_duration, status, max_per_slot, current_count,
			appointment_type, location_type, location_address, location_room,
			base_fee, insurance_accepted, currency, notes, special_requirements,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, now(), now())
	`,
		w.ID, w.ProviderID, w.Date, w.StartTime, w.EndTime, w.Timezone,
		w.IsRecurring, recurrenceOrNull(w.RecurrencePattern), w.RecurrenceEndDate,
		w.SlotDuration, w.BreakDuration, w.Status, w.MaxPerSlot, w.CurrentCount,
		w.AppointmentType, w.Location.Type, w.Location.Address, w.Location.RoomNumber,
		w.Pricing.BaseFee, w.Pricing.InsuranceAccepted, w.Pricing.Currency,
		w.Notes, w.SpecialReqs,
	)
	if err != nil {
		return fmt.Errorf("insert window: %w", err)
	}

	for i := range slots {
		s := &slots[i]
		_, err = tx.Exec(ctx, `
			INSERT INTO appointment_slots (
				id, availability_id, provider_id, slot_start_time, slot_end_time,
				status, patient_id, appointment_type, booking_reference,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		`,
			s.ID, s.AvailabilityID, s.ProviderID, s.StartTime, s.EndTime,
			s.Status, s.PatientID, s.AppointmentType, s.BookingReference,
		)
		if err != nil {
			return fmt.Errorf("insert slot %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit window tx: %w", err)
	}
	return nil
}

func recurrenceOrNull(p RecurrencePattern) *string {
	if p == "" || p == RecurrenceNone {
		return nil
	}
	s := string(p)
	return &s
}

func (r *PgRepository) GetWindowByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+windowCols+`
		FROM provider_availability
		WHERE id = $1
	`, id)
	return scanWindow(row)
}

func (r *PgRepository) ListWindows(ctx context.Context, providerID uuid.UUID, from, to time.Time, f WindowFilter) ([]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowCols+`
		FROM provider_availability
		WHERE provider_id = $1
		  AND date BETWEEN $2 AND $3
		  AND ($4::text IS NULL OR status = $4)
		  AND ($5::text IS NULL OR appointment_type = $5)
		ORDER BY date ASC, start_time ASC
	`, providerID, from, to, nullableString(f.Status), nullableString(f.AppointmentType))
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r *PgRepository) FindOverlapping(ctx context.Context, providerID uuid.UUID, date, start, end time.Time) ([]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowCols+`
		FROM provider_availability
		WHERE provider_id = $1
		  AND date = $2
		  AND ((start_time <= $3 AND end_time > $3)
		    OR (start_time < $4 AND end_time >= $4)
		    OR (start_time >= $3 AND end_time <= $4))
	`, providerID, date, start, end)
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r *PgRepository) UpdateWindowNotes(ctx context.Context, id uuid.UUID, notes string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE provider_availability
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

// DeleteWindowWithSlots removes the window and its slots atomically. The
// caller is responsible for refusing windows that still hold bookings.
func (r *PgRepository) DeleteWindowWithSlots(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM appointment_slots WHERE availability_id = $1
	`, id); err != nil {
		return fmt.Errorf("delete slots: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM provider_availability WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// Slots

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotCols+`
		FROM appointment_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) GetSlotByReference(ctx context.Context, ref string) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotCols+`
		FROM appointment_slots
		WHERE booking_reference = $1
	`, ref)
	s, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrBookingNotFound
	}
	return s, err
}

func (r *PgRepository) ListSlotsByWindow(ctx context.Context, windowID uuid.UUID) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotCols+`
		FROM appointment_slots
		WHERE availability_id = $1
		ORDER BY slot_start_time ASC
	`, windowID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CountBookedAt(ctx context.Context, providerID uuid.UUID, at time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointment_slots
		WHERE provider_id = $1
		  AND slot_start_time = $2
		  AND status = 'BOOKED'
	`, providerID, at).Scan(&n)
	return n, err
}

func (r *PgRepository) FindOpenSlotAt(ctx context.Context, providerID uuid.UUID, at time.Time) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotCols+`
		FROM appointment_slots
		WHERE provider_id = $1
		  AND slot_start_time <= $2
		  AND slot_end_time > $2
		  AND status = 'AVAILABLE'
		ORDER BY slot_start_time ASC
		LIMIT 1
	`, providerID, at)
	return scanSlot(row)
}

func (r *PgRepository) CountBookedByWindow(ctx context.Context, windowID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointment_slots
		WHERE availability_id = $1
		  AND status = 'BOOKED'
	`, windowID).Scan(&n)
	return n, err
}

func (r *PgRepository) UpdateSlot(ctx context.Context, id uuid.UUID, patch SlotPatch) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointment_slots
		SET slot_start_time = COALESCE($2, slot_start_time),
		    slot_end_time = COALESCE($3, slot_end_time),
		    status = COALESCE($4, status),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotCols+`
	`, id, patch.StartTime, patch.EndTime, nullableString(patch.Status))
	return scanSlot(row)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointment_slots WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// BookSlot is the compare-and-swap half of the booking path: the UPDATE
// only matches while the slot is still AVAILABLE, so two concurrent
// transactions can never both claim it.
func (r *PgRepository) BookSlot(ctx context.Context, id, patientID uuid.UUID, t AppointmentType) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointment_slots
		SET status = 'BOOKED',
		    patient_id = $2,
		    appointment_type = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'AVAILABLE'
		RETURNING `+slotCols+`
	`, id, patientID, t)
	s, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrSlotNotAvailable
	}
	return s, err
}

func (r *PgRepository) CancelSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointment_slots
		SET status = 'CANCELLED',
		    patient_id = NULL,
		    appointment_type = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'BOOKED'
		RETURNING `+slotCols+`
	`, id)
	s, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrSlotNotBooked
	}
	return s, err
}

// Discovery and reporting

func (r *PgRepository) SearchOpenWindows(ctx context.Context, q SearchQuery) ([]AvailabilityWindow, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var spec *string
	if q.Specialization != "" {
		spec = &q.Specialization
	}

	rows, err := r.pool.Query(ctx, `
		SELECT pa.id, pa.provider_id, pa.date, pa.start_time, pa.end_time, pa.timezone,
			pa.is_recurring, pa.recurrence_pattern, pa.recurrence_end_date,
			pa.slot_duration, pa.break_duration, pa.status, pa.max_per_slot, pa.current_count,
			pa.appointment_type, pa.location_type, pa.location_address, pa.location_room,
			pa.base_fee, pa.insurance_accepted, pa.currency, pa.notes, pa.special_requirements,
			pa.created_at, pa.updated_at
		FROM provider_availability pa
		JOIN providers p ON p.id = pa.provider_id
		WHERE pa.status = 'AVAILABLE'
		  AND pa.date BETWEEN $1 AND $2
		  AND ($3::text IS NULL OR p.specialization = $3)
		  AND ($4::text IS NULL OR pa.appointment_type = $4)
		  AND ($5::boolean IS NULL OR pa.insurance_accepted = $5)
		  AND ($6::numeric IS NULL OR pa.base_fee <= $6)
		ORDER BY pa.date ASC, pa.start_time ASC
		LIMIT $7
	`, q.StartDate, q.EndDate, spec, nullableString(q.AppointmentType), q.InsuranceOnly, q.MaxFee, limit)
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Slot, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+slotCols+`, count(*) OVER() AS total
		FROM appointment_slots
		WHERE ($1::uuid IS NULL OR provider_id = $1)
		  AND ($2::uuid IS NULL OR patient_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::text IS NULL OR appointment_type = $4)
		  AND ($5::timestamptz IS NULL OR slot_start_time >= $5)
		  AND ($6::timestamptz IS NULL OR slot_start_time <= $6)
		ORDER BY slot_start_time DESC
		LIMIT $7 OFFSET $8
	`, f.ProviderID, f.PatientID, nullableString(f.Status), nullableString(f.AppointmentType),
		f.From, f.To, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Slot
	var total int
	for rows.Next() {
		var s Slot
		var patientID *uuid.UUID
		var apptType *string
		err := rows.Scan(
			&s.ID, &s.AvailabilityID, &s.ProviderID, &s.StartTime, &s.EndTime,
			&s.Status, &patientID, &apptType, &s.BookingReference,
			&s.CreatedAt, &s.UpdatedAt, &total,
		)
		if err != nil {
			return nil, 0, err
		}
		s.PatientID = patientID
		if apptType != nil {
			s.AppointmentType = AppointmentType(*apptType)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PgRepository) SummarizeSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) (SlotSummary, error) {
	var sum SlotSummary
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'AVAILABLE'),
		       count(*) FILTER (WHERE status = 'BOOKED'),
		       count(*) FILTER (WHERE status = 'CANCELLED'),
		       count(*) FILTER (WHERE status = 'BLOCKED')
		FROM appointment_slots
		WHERE provider_id = $1
		  AND slot_start_time >= $2
		  AND slot_start_time < $3
	`, providerID, from, to).Scan(&sum.Total, &sum.Available, &sum.Booked, &sum.Cancelled, &sum.Blocked)
	if err != nil {
		return SlotSummary{}, err
	}
	return sum, nil
}

// Maintenance

func (r *PgRepository) BlockPastOpenSlots(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointment_slots
		SET status = 'BLOCKED',
		    updated_at = now()
		WHERE status = 'AVAILABLE'
		  AND slot_end_time <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Audit trail

func (r *PgRepository) InsertEvent(ctx context.Context, ev ScheduleEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_events (event_type, slot_id, window_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.SlotID, ev.WindowID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert schedule event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
