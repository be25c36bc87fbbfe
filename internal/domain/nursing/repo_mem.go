package nursing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/pkg/pagination"
)

type repoMem struct {
	mu    sync.RWMutex
	items map[uuid.UUID]VitalReading
}

func NewRepoMem() Repository {
	return &repoMem{items: make(map[uuid.UUID]VitalReading)}
}

func (r *repoMem) Create(_ context.Context, v *VitalReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.ID = uuid.New()
	v.UpdatedAt = time.Now()
	r.items[v.ID] = *v
	return nil
}

func (r *repoMem) GetByID(_ context.Context, id uuid.UUID) (*VitalReading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	if !ok {
		return nil, apperr.NotFound("vital reading", id.String())
	}
	return &v, nil
}

func (r *repoMem) Update(_ context.Context, v *VitalReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[v.ID]; !ok {
		return apperr.NotFound("vital reading", v.ID.String())
	}
	v.UpdatedAt = time.Now()
	r.items[v.ID] = *v
	return nil
}

func (r *repoMem) ListByVisit(_ context.Context, visitID uuid.UUID, limit, offset int) ([]*VitalReading, int, error) {
	r.mu.RLock()
	var matched []*VitalReading
	for _, v := range r.items {
		if v.VisitID == visitID {
			v := v
			matched = append(matched, &v)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].RecordedAt.After(matched[j].RecordedAt) })
	total := len(matched)
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(total)
	return matched[start:end], total, nil
}
