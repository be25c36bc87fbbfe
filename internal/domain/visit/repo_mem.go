package visit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/domain/registry"
	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/db"
	"github.com/ehr/hms-scheduler/pkg/pagination"
)

// =========== Visit Repository ===========

type visitRepoMem struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Visit
}

func NewVisitRepoMem() VisitRepository {
	return &visitRepoMem{items: make(map[uuid.UUID]Visit)}
}

func (r *visitRepoMem) put(ctx context.Context, v Visit) {
	prev, had := r.items[v.ID]
	r.items[v.ID] = v
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if had {
			r.items[v.ID] = prev
		} else {
			delete(r.items, v.ID)
		}
	})
}

func (r *visitRepoMem) Create(ctx context.Context, v *Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	r.put(ctx, *v)
	return nil
}

func (r *visitRepoMem) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	if !ok {
		return nil, apperr.NotFound("visit", id.String())
	}
	return &v, nil
}

func (r *visitRepoMem) Update(ctx context.Context, v *Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[v.ID]; !ok {
		return apperr.NotFound("visit", v.ID.String())
	}
	v.UpdatedAt = time.Now()
	r.put(ctx, *v)
	return nil
}

func (r *visitRepoMem) List(_ context.Context, f VisitFilter, limit, offset int) ([]*Visit, int, error) {
	r.mu.RLock()
	var matched []*Visit
	for _, v := range r.items {
		if f.matches(&v) {
			v := v
			matched = append(matched, &v)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	total := len(matched)
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(total)
	return matched[start:end], total, nil
}

// =========== Admission Repository ===========

// admissionRepoMem mirrors the partial unique indexes on open admissions.
type admissionRepoMem struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Admission
}

func NewAdmissionRepoMem() AdmissionRepository {
	return &admissionRepoMem{items: make(map[uuid.UUID]Admission)}
}

func (r *admissionRepoMem) conflict(a *Admission) error {
	if !a.Open() {
		return nil
	}
	for id, other := range r.items {
		if id == a.ID || !other.Open() {
			continue
		}
		if other.ResourceID == a.ResourceID {
			return apperr.ResourceOccupied("resource %s already has an open admission", a.ResourceID)
		}
		if other.VisitID == a.VisitID {
			return apperr.Validation("visit %s already has an open admission", a.VisitID)
		}
	}
	return nil
}

func (r *admissionRepoMem) put(ctx context.Context, a Admission) {
	prev, had := r.items[a.ID]
	r.items[a.ID] = a
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if had {
			r.items[a.ID] = prev
		} else {
			delete(r.items, a.ID)
		}
	})
}

func (r *admissionRepoMem) Create(ctx context.Context, a *Admission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.New()
	if err := r.conflict(a); err != nil {
		return err
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.put(ctx, *a)
	return nil
}

func (r *admissionRepoMem) GetByID(_ context.Context, id uuid.UUID) (*Admission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, apperr.NotFound("admission", id.String())
	}
	return &a, nil
}

func (r *admissionRepoMem) findOpen(match func(*Admission) bool) (*Admission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.items {
		if a.Open() && match(&a) {
			return &a, true
		}
	}
	return nil, false
}

func (r *admissionRepoMem) OpenByResource(_ context.Context, resourceID uuid.UUID) (*Admission, error) {
	if a, ok := r.findOpen(func(a *Admission) bool { return a.ResourceID == resourceID }); ok {
		return a, nil
	}
	return nil, apperr.NotFound("open admission for resource", resourceID.String())
}

func (r *admissionRepoMem) OpenByVisit(_ context.Context, visitID uuid.UUID) (*Admission, error) {
	if a, ok := r.findOpen(func(a *Admission) bool { return a.VisitID == visitID }); ok {
		return a, nil
	}
	return nil, apperr.NotFound("open admission for visit", visitID.String())
}

func (r *admissionRepoMem) Update(ctx context.Context, a *Admission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID]; !ok {
		return apperr.NotFound("admission", a.ID.String())
	}
	if err := r.conflict(a); err != nil {
		return err
	}
	a.UpdatedAt = time.Now()
	r.put(ctx, *a)
	return nil
}

func (r *admissionRepoMem) List(_ context.Context, f AdmissionFilter, limit, offset int) ([]*Admission, int, error) {
	r.mu.RLock()
	var matched []*Admission
	for _, a := range r.items {
		if f.matches(&a) {
			a := a
			matched = append(matched, &a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].AdmittedAt.After(matched[j].AdmittedAt) })
	total := len(matched)
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(total)
	return matched[start:end], total, nil
}

func (r *admissionRepoMem) ResourceUsage(_ context.Context, resourceID uuid.UUID) (registry.Usage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var u registry.Usage
	for _, a := range r.items {
		if a.ResourceID != resourceID {
			continue
		}
		u.Referenced = true
		if a.Open() {
			u.Holding = true
		}
	}
	switch {
	case u.Holding:
		u.By = "an open admission"
	case u.Referenced:
		u.By = "admission history"
	}
	return u, nil
}
