package surgery

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/domain/registry"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
)

// Repository stores operations. Create and Update fail with
// apperr.KindOTRoomConflict when an active operation would overlap another
// on the same room.
type Repository interface {
	Create(ctx context.Context, o *Operation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Operation, error)
	Update(ctx context.Context, o *Operation) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Operation, int, error)
	// Overlapping returns active operations on the room whose window
	// intersects w, excluding the operation with id exclude.
	Overlapping(ctx context.Context, roomID uuid.UUID, w clock.Window, exclude uuid.UUID) ([]*Operation, error)
	registry.UsageChecker
}
