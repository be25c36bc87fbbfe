package registry

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/db"
	"github.com/ehr/hms-scheduler/internal/platform/enum"
	"github.com/ehr/hms-scheduler/internal/platform/lock"
	"github.com/ehr/hms-scheduler/internal/platform/telemetry"
)

var (
	resourceTypes    = []ResourceType{TypeGeneral, TypeICU, TypeOT}
	availabilities   = []Availability{Available, Occupied, Maintenance}
	cleaningStatuses = []CleaningStatus{Cleaned, NotCleaned, UnderCleaning}
)

func ParseResourceType(s string) (ResourceType, error) {
	if t, ok := enum.Parse(s, resourceTypes...); ok {
		return t, nil
	}
	return "", apperr.Validation("invalid resource type %q, expected one of %s", s, enum.Join(resourceTypes...))
}

func ParseAvailability(s string) (Availability, error) {
	if a, ok := enum.Parse(s, availabilities...); ok {
		return a, nil
	}
	return "", apperr.Validation("invalid availability %q, expected one of %s", s, enum.Join(availabilities...))
}

func ParseCleaningStatus(s string) (CleaningStatus, error) {
	if c, ok := enum.Parse(s, cleaningStatuses...); ok {
		return c, nil
	}
	return "", apperr.Validation("invalid cleaning status %q, expected one of %s", s, enum.Join(cleaningStatuses...))
}

type Service struct {
	repo    Repository
	tx      db.Transactor
	locker  lock.Locker
	usage   []UsageChecker
	metrics *telemetry.Collector
}

// NewService wires the registry. checkers report references held by other
// stores and are consulted before deletes and availability changes.
func NewService(repo Repository, tx db.Transactor, locker lock.Locker, checkers ...UsageChecker) *Service {
	return &Service{repo: repo, tx: tx, locker: locker, usage: checkers}
}

// WithMetrics records availability transitions on c.
func (s *Service) WithMetrics(c *telemetry.Collector) *Service {
	s.metrics = c
	return s
}

func (s *Service) usageOf(ctx context.Context, id uuid.UUID) (Usage, error) {
	var out Usage
	for _, c := range s.usage {
		u, err := c.ResourceUsage(ctx, id)
		if err != nil {
			return Usage{}, err
		}
		if u.Referenced && !out.Referenced {
			out.Referenced, out.By = true, u.By
		}
		if u.Holding && !out.Holding {
			out.Holding, out.By = true, u.By
		}
	}
	return out, nil
}

// Create adds a resource. Availability defaults to AVAILABLE and cleaning
// status to CLEANED; a new resource cannot start OCCUPIED.
func (s *Service) Create(ctx context.Context, r *Resource) error {
	if r.Ward <= 0 {
		return apperr.Validation("ward must be a positive number")
	}
	if r.Number <= 0 {
		return apperr.Validation("number must be a positive number")
	}
	t, err := ParseResourceType(string(r.Type))
	if err != nil {
		return err
	}
	r.Type = t

	if r.Availability == "" {
		r.Availability = Available
	} else if r.Availability, err = ParseAvailability(string(r.Availability)); err != nil {
		return err
	}
	if r.Availability == Occupied {
		return apperr.Validation("a resource can only become OCCUPIED through an admission")
	}
	if r.CleaningStatus == "" {
		r.CleaningStatus = Cleaned
	} else if r.CleaningStatus, err = ParseCleaningStatus(string(r.CleaningStatus)); err != nil {
		return err
	}
	return s.repo.Create(ctx, r)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Resource, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Resource, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, r *Resource) error) (*Resource, error) {
	ctx, unlock, err := lock.Acquire(ctx, s.locker, lock.ResourceKey(id.String()))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *Resource
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, r); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// SetAvailability changes a resource's availability. OCCUPIED is reserved
// for admissions; a resource something is holding cannot be released or put
// into maintenance.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, a Availability) (*Resource, error) {
	a, err := ParseAvailability(string(a))
	if err != nil {
		return nil, err
	}
	r, err := s.mutate(ctx, id, func(ctx context.Context, r *Resource) error {
		if r.Availability == a {
			return nil
		}
		if a == Occupied {
			return apperr.Validation("a resource can only become OCCUPIED through an admission")
		}
		if r.Availability == Occupied || a == Maintenance {
			u, err := s.usageOf(ctx, r.ID)
			if err != nil {
				return err
			}
			if u.Holding {
				return apperr.ResourceInUse("resource %d/%d is held by %s", r.Ward, r.Number, u.By)
			}
		}
		r.Availability = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition("resource", string(r.Availability))
	zerolog.Ctx(ctx).Info().Str("resource_id", id.String()).Str("availability", string(a)).Msg("resource availability changed")
	return r, nil
}

func (s *Service) SetCleaningStatus(ctx context.Context, id uuid.UUID, c CleaningStatus) (*Resource, error) {
	c, err := ParseCleaningStatus(string(c))
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(_ context.Context, r *Resource) error {
		r.CleaningStatus = c
		return nil
	})
}

// Delete removes a resource nothing references.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, unlock, err := lock.Acquire(ctx, s.locker, lock.ResourceKey(id.String()))
	if err != nil {
		return err
	}
	defer unlock()

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		u, err := s.usageOf(ctx, id)
		if err != nil {
			return err
		}
		if u.Referenced || u.Holding || r.Availability == Occupied {
			by := u.By
			if by == "" {
				by = "an admission"
			}
			return apperr.ResourceInUse("resource %d/%d is referenced by %s", r.Ward, r.Number, by)
		}
		return s.repo.Delete(ctx, id)
	})
}
