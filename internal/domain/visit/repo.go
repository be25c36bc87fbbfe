package visit

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/domain/registry"
)

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	List(ctx context.Context, f VisitFilter, limit, offset int) ([]*Visit, int, error)
}

// AdmissionRepository stores admissions. Create fails with
// apperr.KindResourceOccupied when the resource already has an open
// admission. The Open* lookups return apperr.KindNotFound when none is open.
type AdmissionRepository interface {
	Create(ctx context.Context, a *Admission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	Update(ctx context.Context, a *Admission) error
	OpenByResource(ctx context.Context, resourceID uuid.UUID) (*Admission, error)
	OpenByVisit(ctx context.Context, visitID uuid.UUID) (*Admission, error)
	List(ctx context.Context, f AdmissionFilter, limit, offset int) ([]*Admission, int, error)
	registry.UsageChecker
}
