package registry

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores resources. GetByID returns an apperr.KindNotFound error
// for unknown ids; Create rejects a duplicate ward and number.
type Repository interface {
	Create(ctx context.Context, r *Resource) error
	GetByID(ctx context.Context, id uuid.UUID) (*Resource, error)
	Update(ctx context.Context, r *Resource) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Resource, int, error)
}

// UsageChecker is implemented by the stores that reference resources
// (admissions, operations).
type UsageChecker interface {
	ResourceUsage(ctx context.Context, resourceID uuid.UUID) (Usage, error)
}
