package nursing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *VitalReading) error
	GetByID(ctx context.Context, id uuid.UUID) (*VitalReading, error)
	Update(ctx context.Context, r *VitalReading) error
	ListByVisit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]*VitalReading, int, error)
}
