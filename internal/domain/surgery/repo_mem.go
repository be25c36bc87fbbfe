package surgery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/domain/registry"
	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
	"github.com/ehr/hms-scheduler/internal/platform/db"
	"github.com/ehr/hms-scheduler/pkg/pagination"
)

type repoMem struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Operation
}

func NewRepoMem() Repository {
	return &repoMem{items: make(map[uuid.UUID]Operation)}
}

func cloneOperation(o Operation) Operation {
	if o.Checklist != nil {
		c := make(Checklist, len(o.Checklist))
		for k, v := range o.Checklist {
			c[k] = v
		}
		o.Checklist = c
	}
	return o
}

func (r *repoMem) put(ctx context.Context, o Operation) {
	prev, had := r.items[o.ID]
	r.items[o.ID] = cloneOperation(o)
	db.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if had {
			r.items[o.ID] = prev
		} else {
			delete(r.items, o.ID)
		}
	})
}

// overlapping must be called with mu held.
func (r *repoMem) overlapping(roomID uuid.UUID, w clock.Window, exclude uuid.UUID) []*Operation {
	var out []*Operation
	for _, o := range r.items {
		if o.ID == exclude || !o.Reserves() || *o.ResourceID != roomID {
			continue
		}
		if ow, _ := o.Window(); ow.Overlaps(w) {
			o := cloneOperation(o)
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(*out[j].ScheduledTime) })
	return out
}

func (r *repoMem) conflict(o *Operation) error {
	if !o.Reserves() {
		return nil
	}
	w, _ := o.Window()
	if clash := r.overlapping(*o.ResourceID, w, o.ID); len(clash) > 0 {
		return apperr.OTRoomConflict("operating room already booked by operation %s", clash[0].ID)
	}
	return nil
}

func (r *repoMem) Create(ctx context.Context, o *Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.ID = uuid.New()
	if err := r.conflict(o); err != nil {
		return err
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	r.put(ctx, *o)
	return nil
}

func (r *repoMem) GetByID(_ context.Context, id uuid.UUID) (*Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.items[id]
	if !ok {
		return nil, apperr.NotFound("operation", id.String())
	}
	o = cloneOperation(o)
	return &o, nil
}

func (r *repoMem) Update(ctx context.Context, o *Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[o.ID]; !ok {
		return apperr.NotFound("operation", o.ID.String())
	}
	if err := r.conflict(o); err != nil {
		return err
	}
	o.UpdatedAt = time.Now()
	r.put(ctx, *o)
	return nil
}

func (r *repoMem) List(_ context.Context, f Filter, limit, offset int) ([]*Operation, int, error) {
	r.mu.RLock()
	var matched []*Operation
	for _, o := range r.items {
		if f.matches(&o) {
			o := cloneOperation(o)
			matched = append(matched, &o)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch {
		case a.ScheduledTime == nil && b.ScheduledTime == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.ScheduledTime == nil:
			return false
		case b.ScheduledTime == nil:
			return true
		}
		return a.ScheduledTime.Before(*b.ScheduledTime)
	})
	total := len(matched)
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(total)
	return matched[start:end], total, nil
}

func (r *repoMem) Overlapping(_ context.Context, roomID uuid.UUID, w clock.Window, exclude uuid.UUID) ([]*Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.overlapping(roomID, w, exclude), nil
}

func (r *repoMem) ResourceUsage(_ context.Context, resourceID uuid.UUID) (registry.Usage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total, active int
	for _, o := range r.items {
		if o.ResourceID == nil || *o.ResourceID != resourceID {
			continue
		}
		total++
		if o.Status.Active() {
			active++
		}
	}
	return usage(total, active), nil
}
