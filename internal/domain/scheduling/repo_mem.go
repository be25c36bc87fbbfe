package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/db"
)

type shiftRepoMem struct {
	mu     sync.RWMutex
	shifts map[uuid.UUID]DoctorShift
}

func NewShiftRepoMem() ShiftRepository {
	return &shiftRepoMem{shifts: make(map[uuid.UUID]DoctorShift)}
}

func (r *shiftRepoMem) Upsert(ctx context.Context, s *DoctorShift) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.UpdatedAt = time.Now()
	prev, had := r.shifts[s.DoctorID]
	r.shifts[s.DoctorID] = *s
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if had {
			r.shifts[s.DoctorID] = prev
		} else {
			delete(r.shifts, s.DoctorID)
		}
	})
	return nil
}

func (r *shiftRepoMem) Get(_ context.Context, doctorID uuid.UUID) (*DoctorShift, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shifts[doctorID]
	if !ok {
		return nil, apperr.NotFound("shift for doctor", doctorID.String())
	}
	return &s, nil
}

// bookingRepoMem mirrors the slot_booking unique constraints.
type bookingRepoMem struct {
	mu      sync.RWMutex
	byVisit map[uuid.UUID]Booking
	taken   map[string]map[string]uuid.UUID // doctor|date -> slot -> visit
}

func NewBookingRepoMem() BookingRepository {
	return &bookingRepoMem{
		byVisit: make(map[uuid.UUID]Booking),
		taken:   make(map[string]map[string]uuid.UUID),
	}
}

func (r *bookingRepoMem) day(b *Booking) map[string]uuid.UUID {
	k := sameDayKey(b.DoctorID, b.Date)
	m, ok := r.taken[k]
	if !ok {
		m = make(map[string]uuid.UUID)
		r.taken[k] = m
	}
	return m
}

func (r *bookingRepoMem) Create(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byVisit[b.VisitID]; ok {
		return apperr.SlotConflict("visit %s already holds a slot", b.VisitID)
	}
	day := r.day(b)
	if _, ok := day[b.Slot]; ok {
		return apperr.SlotConflict("slot %s is already booked", b.Slot)
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	r.byVisit[b.VisitID] = *b
	day[b.Slot] = b.VisitID

	snapshot := *b
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.remove(&snapshot)
	})
	return nil
}

func (r *bookingRepoMem) remove(b *Booking) {
	delete(r.byVisit, b.VisitID)
	day := r.day(b)
	if day[b.Slot] == b.VisitID {
		delete(day, b.Slot)
	}
}

func (r *bookingRepoMem) restore(b Booking) {
	r.byVisit[b.VisitID] = b
	r.day(&b)[b.Slot] = b.VisitID
}

func (r *bookingRepoMem) GetByVisit(_ context.Context, visitID uuid.UUID) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byVisit[visitID]
	if !ok {
		return nil, apperr.NotFound("booking for visit", visitID.String())
	}
	return &b, nil
}

func (r *bookingRepoMem) UpdateSlot(ctx context.Context, visitID uuid.UUID, slot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.byVisit[visitID]
	if !ok {
		return apperr.NotFound("booking for visit", visitID.String())
	}
	if holder, taken := r.day(&prev)[slot]; taken && holder != visitID {
		return apperr.SlotConflict("slot %s is already booked", slot)
	}
	r.remove(&prev)
	next := prev
	next.Slot = slot
	r.restore(next)
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.remove(&next)
		r.restore(prev)
	})
	return nil
}

func (r *bookingRepoMem) DeleteByVisit(ctx context.Context, visitID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.byVisit[visitID]
	if !ok {
		return nil
	}
	r.remove(&prev)
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.restore(prev)
	})
	return nil
}

func (r *bookingRepoMem) ListByDoctorDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []*Booking
	for _, visitID := range r.taken[sameDayKey(doctorID, date)] {
		b := r.byVisit[visitID]
		items = append(items, &b)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Slot < items[j].Slot })
	return items, nil
}
