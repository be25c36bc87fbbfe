package surgery

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ehr/hms-scheduler/internal/domain/registry"
	"github.com/ehr/hms-scheduler/internal/domain/visit"
	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/clock"
	"github.com/ehr/hms-scheduler/internal/platform/db"
	"github.com/ehr/hms-scheduler/internal/platform/enum"
	"github.com/ehr/hms-scheduler/internal/platform/lock"
	"github.com/ehr/hms-scheduler/internal/platform/telemetry"
)

// Duration bounds in minutes.
const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 24 * 60
)

var (
	statuses = []Status{StatusOrdered, StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled}
	results  = []Result{ResultSuccessful, ResultComplications, ResultFailed}
)

func ParseStatus(s string) (Status, error) {
	if st, ok := enum.Parse(s, statuses...); ok {
		return st, nil
	}
	return "", apperr.Validation("invalid operation status %q, expected one of %s", s, enum.Join(statuses...))
}

func ParseResult(s string) (Result, error) {
	if r, ok := enum.Parse(s, results...); ok {
		return r, nil
	}
	return "", apperr.Validation("invalid operation result %q, expected one of %s", s, enum.Join(results...))
}

// VisitLookup resolves the visit an operation is ordered under.
type VisitLookup interface {
	GetVisit(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
}

type Service struct {
	ops             Repository
	resources       registry.Repository
	visits          VisitLookup
	tx              db.Transactor
	locker          lock.Locker
	defaultDuration int
	clock           clock.Clock
	metrics         *telemetry.Collector
}

// NewService wires operation scheduling. defaultDuration applies when an
// operation is created without one.
func NewService(ops Repository, resources registry.Repository, visits VisitLookup,
	tx db.Transactor, locker lock.Locker, defaultDuration time.Duration) *Service {
	minutes := int(defaultDuration / time.Minute)
	if minutes <= 0 {
		minutes = 60
	}
	return &Service{
		ops: ops, resources: resources, visits: visits, tx: tx, locker: locker,
		defaultDuration: minutes, clock: clock.System{},
	}
}

func (s *Service) WithClock(c clock.Clock) *Service {
	s.clock = c
	return s
}

func (s *Service) WithMetrics(c *telemetry.Collector) *Service {
	s.metrics = c
	return s
}

func roomKey(id uuid.UUID) string { return lock.ResourceKey(id.String()) }

func checkDuration(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return apperr.Validation("duration_minutes must be between %d and %d, got %d",
			MinDurationMinutes, MaxDurationMinutes, minutes)
	}
	return nil
}

func (s *Service) requireActiveVisit(ctx context.Context, id uuid.UUID) error {
	v, err := s.visits.GetVisit(ctx, id)
	if err != nil {
		return err
	}
	if v.Status != visit.StatusActive {
		return apperr.New(apperr.KindInvalidTransition, "visit %s is %s; operations need an ACTIVE visit", id, v.Status)
	}
	return nil
}

// checkRoom validates the assigned room and, when the operation reserves
// it, that the window is free.
func (s *Service) checkRoom(ctx context.Context, o *Operation) error {
	if o.ResourceID == nil {
		return nil
	}
	room, err := s.resources.GetByID(ctx, *o.ResourceID)
	if err != nil {
		return err
	}
	if room.Type != registry.TypeOT {
		return apperr.Validation("resource %d/%d is a %s bed, not an operating room", room.Ward, room.Number, room.Type)
	}
	if !o.Reserves() {
		return nil
	}
	if room.Availability == registry.Maintenance {
		return apperr.OTRoomConflict("operating room %d/%d is under maintenance", room.Ward, room.Number)
	}
	w, _ := o.Window()
	clash, err := s.ops.Overlapping(ctx, room.ID, w, o.ID)
	if err != nil {
		return err
	}
	if len(clash) > 0 {
		cw, _ := clash[0].Window()
		return apperr.OTRoomConflict("operating room %d/%d is booked %s-%s by operation %s",
			room.Ward, room.Number, cw.Start.Format("15:04"), cw.End.Format("15:04"), clash[0].ID)
	}
	return nil
}

// CreateOperation records an ORDERED operation under an ACTIVE visit. When
// both a room and a time are supplied the operation is scheduled at once.
func (s *Service) CreateOperation(ctx context.Context, o *Operation) error {
	return s.create(ctx, o, "create_operation")
}

// Schedule creates an operation directly in SCHEDULED state. It fails with
// OTRoomConflict when the window overlaps an active operation on the room.
func (s *Service) Schedule(ctx context.Context, o *Operation) error {
	if o.ResourceID == nil || o.ScheduledTime == nil {
		return apperr.Validation("resource_id and scheduled_time are required to schedule an operation")
	}
	return s.create(ctx, o, "schedule_operation")
}

func (s *Service) create(ctx context.Context, o *Operation, command string) (err error) {
	defer func() { s.metrics.Allocation(command, err) }()

	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return apperr.Validation("name is required")
	}
	if o.VisitID == uuid.Nil {
		return apperr.Validation("visit_id is required")
	}
	if o.SurgeonID == uuid.Nil {
		return apperr.Validation("surgeon_id is required")
	}
	if o.DurationMinutes == 0 {
		o.DurationMinutes = s.defaultDuration
	}
	if err := checkDuration(o.DurationMinutes); err != nil {
		return err
	}
	checklist := defaultChecklist()
	for k, v := range o.Checklist {
		checklist[k] = v
	}
	o.Checklist = checklist
	o.Result, o.StartedAt, o.PerformedAt = "", nil, nil
	o.Status = StatusOrdered
	if o.ResourceID != nil && o.ScheduledTime != nil {
		o.Status = StatusScheduled
	}

	ctx, end := telemetry.StartSpan(ctx, "surgery."+command, attribute.String("visit.id", o.VisitID.String()))
	defer func() { end(err) }()

	var keys []string
	if o.ResourceID != nil {
		keys = append(keys, roomKey(*o.ResourceID))
	}
	ctx, unlock, err := lock.Acquire(ctx, s.locker, keys...)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireActiveVisit(ctx, o.VisitID); err != nil {
			return err
		}
		if err := s.checkRoom(ctx, o); err != nil {
			return err
		}
		return s.ops.Create(ctx, o)
	})
	if err != nil {
		o.ID = uuid.Nil
		zerolog.Ctx(ctx).Debug().Err(err).Str("visit_id", o.VisitID.String()).Msg("operation rejected")
		return err
	}
	s.metrics.Transition("operation", string(o.Status))
	zerolog.Ctx(ctx).Info().Str("operation_id", o.ID.String()).Str("status", string(o.Status)).Msg("operation created")
	return nil
}

func (s *Service) GetOperation(ctx context.Context, id uuid.UUID) (*Operation, error) {
	return s.ops.GetByID(ctx, id)
}

func (s *Service) ListOperations(ctx context.Context, f Filter, limit, offset int) ([]*Operation, int, error) {
	return s.ops.List(ctx, f, limit, offset)
}

// UpdateOperation applies a partial update. Moving the room, time or
// duration re-validates the room window. Assigning a room and a time to an
// ORDERED operation schedules it. A result may only be recorded on a
// COMPLETED operation.
func (s *Service) UpdateOperation(ctx context.Context, id uuid.UUID, p Patch) (out *Operation, err error) {
	defer func() { s.metrics.Allocation("update_operation", err) }()

	if p.Status != nil {
		st, err := ParseStatus(string(*p.Status))
		if err != nil {
			return nil, err
		}
		p.Status = &st
	}
	if p.Result != nil {
		res, err := ParseResult(string(*p.Result))
		if err != nil {
			return nil, err
		}
		p.Result = &res
	}
	if p.DurationMinutes != nil {
		if err := checkDuration(*p.DurationMinutes); err != nil {
			return nil, err
		}
	}

	current, err := s.ops.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx, end := telemetry.StartSpan(ctx, "surgery.update_operation", attribute.String("operation.id", id.String()))
	defer func() { end(err) }()

	keys := []string{lock.OperationKey(id.String())}
	if current.ResourceID != nil {
		keys = append(keys, roomKey(*current.ResourceID))
	}
	if p.ResourceID != nil {
		keys = append(keys, roomKey(*p.ResourceID))
	}
	ctx, unlock, err := lock.Acquire(ctx, s.locker, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var changed bool
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.ops.GetByID(ctx, id)
		if err != nil {
			return err
		}
		from := o.Status

		if p.movesRoom() {
			if o.Status.Terminal() || (o.Status == StatusInProgress && (p.ResourceID != nil || p.ScheduledTime != nil)) {
				return apperr.New(apperr.KindInvalidTransition, "operation in %s cannot be moved", o.Status)
			}
			if p.ResourceID != nil {
				o.ResourceID = p.ResourceID
			}
			if p.ScheduledTime != nil {
				t := *p.ScheduledTime
				o.ScheduledTime = &t
			}
			if p.DurationMinutes != nil {
				o.DurationMinutes = *p.DurationMinutes
			}
		}

		target := o.Status
		if p.Status != nil {
			target = *p.Status
		}
		if target == StatusOrdered && o.ResourceID != nil && o.ScheduledTime != nil {
			target = StatusScheduled
		}
		if target != o.Status {
			if !CanTransition(o.Status, target) {
				return apperr.InvalidTransition(string(o.Status), string(target))
			}
			now := s.clock.Now()
			switch target {
			case StatusScheduled:
				if o.ResourceID == nil || o.ScheduledTime == nil {
					return apperr.Validation("resource_id and scheduled_time are required to schedule an operation")
				}
			case StatusInProgress:
				o.StartedAt = &now
			case StatusCompleted:
				if o.PerformedAt == nil {
					o.PerformedAt = &now
				}
			}
			o.Status = target
		}

		if p.Result != nil {
			if o.Status != StatusCompleted {
				return apperr.Validation("result can only be recorded on a COMPLETED operation")
			}
			o.Result = *p.Result
		}
		if p.Notes != nil {
			o.Notes = *p.Notes
		}
		if len(p.Checklist) > 0 {
			if o.Checklist == nil {
				o.Checklist = defaultChecklist()
			}
			for k, v := range p.Checklist {
				o.Checklist[k] = v
			}
		}

		if p.movesRoom() || (!from.Active() && o.Status.Active()) {
			if err := s.checkRoom(ctx, o); err != nil {
				return err
			}
		}
		if err := s.ops.Update(ctx, o); err != nil {
			return err
		}
		changed = from != o.Status
		out = o
		return nil
	})
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("operation_id", id.String()).Msg("operation update rejected")
		return nil, err
	}
	if changed {
		s.metrics.Transition("operation", string(out.Status))
		zerolog.Ctx(ctx).Info().Str("operation_id", id.String()).Str("status", string(out.Status)).Msg("operation status changed")
	}
	return out, nil
}
