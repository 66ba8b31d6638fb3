package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepository is an in-memory Repository and Directory. The mutex makes
// BookSlot and CancelSlot genuine compare-and-swap operations, which the
// concurrency tests rely on.
type fakeRepository struct {
	mu        sync.Mutex
	patients  map[uuid.UUID]*Patient
	providers map[uuid.UUID]*Provider
	windows   map[uuid.UUID]*AvailabilityWindow
	slots     map[uuid.UUID]*Slot
	events    []ScheduleEvent
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		patients:  make(map[uuid.UUID]*Patient),
		providers: make(map[uuid.UUID]*Provider),
		windows:   make(map[uuid.UUID]*AvailabilityWindow),
		slots:     make(map[uuid.UUID]*Slot),
	}
}

func (f *fakeRepository) addPatient() *Patient {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &Patient{ID: uuid.New(), Name: "Test Patient"}
	f.patients[p.ID] = p
	return p
}

func (f *fakeRepository) addProvider(specialization string) *Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &Provider{ID: uuid.New(), Name: "Dr. Test", Specialization: specialization}
	f.providers[p.ID] = p
	return p
}

func (f *fakeRepository) ResolvePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.patients[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrPatientNotFound
}

func (f *fakeRepository) ResolveProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.providers[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrProviderNotFound
}

func (f *fakeRepository) CreateWindowWithSlots(ctx context.Context, w *AvailabilityWindow, slots []Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cw := *w
	f.windows[w.ID] = &cw
	for i := range slots {
		cs := slots[i]
		f.slots[cs.ID] = &cs
	}
	return nil
}

func (f *fakeRepository) GetWindowByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[id]; ok {
		cw := *w
		return &cw, nil
	}
	return nil, ErrWindowNotFound
}

func (f *fakeRepository) ListWindows(ctx context.Context, providerID uuid.UUID, from, to time.Time, filter WindowFilter) ([]AvailabilityWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AvailabilityWindow
	for _, w := range f.windows {
		if w.ProviderID != providerID || w.Date.Before(from) || w.Date.After(to) {
			continue
		}
		if filter.Status != nil && w.Status != *filter.Status {
			continue
		}
		if filter.AppointmentType != nil && w.AppointmentType != *filter.AppointmentType {
			continue
		}
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (f *fakeRepository) FindOverlapping(ctx context.Context, providerID uuid.UUID, date time.Time, start, end time.Time) ([]AvailabilityWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AvailabilityWindow
	for _, w := range f.windows {
		if w.ProviderID != providerID || !w.Date.Equal(date) {
			continue
		}
		if Overlaps(start, end, w.StartTime, w.EndTime) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeRepository) UpdateWindowNotes(ctx context.Context, id uuid.UUID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[id]
	if !ok {
		return ErrWindowNotFound
	}
	w.Notes = notes
	return nil
}

func (f *fakeRepository) DeleteWindowWithSlots(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[id]; !ok {
		return ErrWindowNotFound
	}
	delete(f.windows, id)
	for slotID, s := range f.slots {
		if s.AvailabilityID == id {
			delete(f.slots, slotID)
		}
	}
	return nil
}

func (f *fakeRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.slots[id]; ok {
		cs := *s
		return &cs, nil
	}
	return nil, ErrSlotNotFound
}

func (f *fakeRepository) GetSlotByReference(ctx context.Context, ref string) (*Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.slots {
		if s.BookingReference == ref {
			cs := *s
			return &cs, nil
		}
	}
	return nil, ErrBookingNotFound
}

func (f *fakeRepository) ListSlotsByWindow(ctx context.Context, windowID uuid.UUID) ([]Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Slot
	for _, s := range f.slots {
		if s.AvailabilityID == windowID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (f *fakeRepository) CountBookedAt(ctx context.Context, providerID uuid.UUID, atTime time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.slots {
		if s.ProviderID == providerID && s.Status == SlotBooked && s.Contains(atTime) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) FindOpenSlotAt(ctx context.Context, providerID uuid.UUID, atTime time.Time) (*Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.slots {
		if s.ProviderID == providerID && s.Status == SlotAvailable && s.Contains(atTime) {
			cs := *s
			return &cs, nil
		}
	}
	return nil, ErrSlotNotFound
}

func (f *fakeRepository) CountBookedByWindow(ctx context.Context, windowID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.slots {
		if s.AvailabilityID == windowID && s.Status == SlotBooked {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) UpdateSlot(ctx context.Context, id uuid.UUID, patch SlotPatch) (*Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if patch.StartTime != nil {
		s.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		s.EndTime = *patch.EndTime
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	cs := *s
	return &cs, nil
}

func (f *fakeRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(f.slots, id)
	return nil
}

func (f *fakeRepository) BookSlot(ctx context.Context, id, patientID uuid.UUID, t AppointmentType) (*Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != SlotAvailable {
		return nil, ErrSlotNotAvailable
	}
	s.Status = SlotBooked
	s.PatientID = &patientID
	s.AppointmentType = t
	cs := *s
	return &cs, nil
}

func (f *fakeRepository) CancelSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != SlotBooked {
		return nil, ErrSlotNotBooked
	}
	s.Status = SlotCancelled
	s.PatientID = nil
	s.AppointmentType = ""
	cs := *s
	return &cs, nil
}

func (f *fakeRepository) SearchOpenWindows(ctx context.Context, q SearchQuery) ([]AvailabilityWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AvailabilityWindow
	for _, w := range f.windows {
		if w.Status != AvailabilityAvailable {
			continue
		}
		if w.Date.Before(q.StartDate) || w.Date.After(q.EndDate) {
			continue
		}
		if q.Specialization != "" {
			p, ok := f.providers[w.ProviderID]
			if !ok || p.Specialization != q.Specialization {
				continue
			}
		}
		if q.AppointmentType != nil && w.AppointmentType != *q.AppointmentType {
			continue
		}
		if q.InsuranceOnly != nil && *q.InsuranceOnly && !w.Pricing.InsuranceAccepted {
			continue
		}
		if q.MaxFee != nil && w.Pricing.BaseFee > *q.MaxFee {
			continue
		}
		out = append(out, *w)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepository) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Slot, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []Slot
	for _, s := range f.slots {
		if filter.ProviderID != nil && s.ProviderID != *filter.ProviderID {
			continue
		}
		if filter.PatientID != nil && (s.PatientID == nil || *s.PatientID != *filter.PatientID) {
			continue
		}
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		if filter.AppointmentType != nil && s.AppointmentType != *filter.AppointmentType {
			continue
		}
		if filter.From != nil && s.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !s.StartTime.Before(*filter.To) {
			continue
		}
		matched = append(matched, *s)
	}

	total := len(matched)
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (f *fakeRepository) SummarizeSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) (SlotSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum SlotSummary
	for _, s := range f.slots {
		if s.ProviderID != providerID || s.StartTime.Before(from) || !s.StartTime.Before(to) {
			continue
		}
		sum.Total++
		switch s.Status {
		case SlotAvailable:
			sum.Available++
		case SlotBooked:
			sum.Booked++
		case SlotCancelled:
			sum.Cancelled++
		case SlotBlocked:
			sum.Blocked++
		}
	}
	return sum, nil
}

func (f *fakeRepository) BlockPastOpenSlots(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.slots {
		if s.Status == SlotAvailable && s.EndTime.Before(now) {
			s.Status = SlotBlocked
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) InsertEvent(ctx context.Context, ev ScheduleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// fakeLocker grants every lock immediately. The repository's own
// compare-and-swap still guarantees at most one winner per slot.
type fakeLocker struct{}

func (fakeLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fixedClock pins time for past-appointment checks.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }
