package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/db"
	"github.com/ehr/hms-scheduler/pkg/pagination"
)

type resourceRepoMem struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Resource
	now   func() time.Time
}

// NewRepoMem returns a process-local Repository. Writes inside a
// db.MemTransactor unit of work are undone if the unit fails.
func NewRepoMem() Repository {
	return &resourceRepoMem{items: make(map[uuid.UUID]Resource), now: time.Now}
}

func (r *resourceRepoMem) put(ctx context.Context, res Resource) {
	prev, had := r.items[res.ID]
	r.items[res.ID] = res
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if had {
			r.items[res.ID] = prev
		} else {
			delete(r.items, res.ID)
		}
	})
}

func (r *resourceRepoMem) duplicate(res *Resource) bool {
	for id, other := range r.items {
		if id != res.ID && other.Ward == res.Ward && other.Number == res.Number {
			return true
		}
	}
	return false
}

func (r *resourceRepoMem) Create(ctx context.Context, res *Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.ID = uuid.New()
	if r.duplicate(res) {
		return apperr.Validation("a resource with ward %d and number %d already exists", res.Ward, res.Number)
	}
	res.CreatedAt = r.now()
	res.UpdatedAt = res.CreatedAt
	r.put(ctx, *res)
	return nil
}

func (r *resourceRepoMem) GetByID(_ context.Context, id uuid.UUID) (*Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.items[id]
	if !ok {
		return nil, apperr.NotFound("resource", id.String())
	}
	return &res, nil
}

func (r *resourceRepoMem) Update(ctx context.Context, res *Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[res.ID]; !ok {
		return apperr.NotFound("resource", res.ID.String())
	}
	if r.duplicate(res) {
		return apperr.Validation("a resource with ward %d and number %d already exists", res.Ward, res.Number)
	}
	res.UpdatedAt = r.now()
	r.put(ctx, *res)
	return nil
}

func (r *resourceRepoMem) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.items[id]
	if !ok {
		return apperr.NotFound("resource", id.String())
	}
	delete(r.items, id)
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.items[id] = prev
	})
	return nil
}

func (r *resourceRepoMem) List(_ context.Context, f Filter, limit, offset int) ([]*Resource, int, error) {
	r.mu.RLock()
	var matched []*Resource
	for _, res := range r.items {
		if f.matches(&res) {
			res := res
			matched = append(matched, &res)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Ward != matched[j].Ward {
			return matched[i].Ward < matched[j].Ward
		}
		return matched[i].Number < matched[j].Number
	})
	total := len(matched)
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(total)
	return matched[start:end], total, nil
}
