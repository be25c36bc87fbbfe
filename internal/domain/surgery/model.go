package surgery

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/platform/clock"
)

type Status string

const (
	StatusOrdered    Status = "ORDERED"
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Active operations hold their room for the scheduled window.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusInProgress
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var operationTransitions = map[Status][]Status{
	StatusOrdered:    {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range operationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Result string

const (
	ResultSuccessful    Result = "SUCCESSFUL"
	ResultComplications Result = "COMPLICATIONS"
	ResultFailed        Result = "FAILED"
)

// Checklist records the surgical safety checks by name.
type Checklist map[string]bool

// Standard checks seeded on every new operation.
const (
	CheckSignIn  = "sign_in"
	CheckTimeOut = "time_out"
	CheckSignOut = "sign_out"
)

func defaultChecklist() Checklist {
	return Checklist{CheckSignIn: false, CheckTimeOut: false, CheckSignOut: false}
}

// Operation maps to the operation table.
type Operation struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	VisitID         uuid.UUID  `db:"visit_id" json:"visit_id"`
	Name            string     `db:"name" json:"name"`
	SurgeonID       uuid.UUID  `db:"surgeon_id" json:"surgeon_id"`
	ResourceID      *uuid.UUID `db:"resource_id" json:"resource_id,omitempty"`
	ScheduledTime   *time.Time `db:"scheduled_time" json:"scheduled_time,omitempty"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Status          Status     `db:"status" json:"status"`
	Result          Result     `db:"result" json:"result,omitempty"`
	Notes           string     `db:"notes" json:"notes,omitempty"`
	Checklist       Checklist  `db:"checklist" json:"checklist"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	PerformedAt     *time.Time `db:"performed_at" json:"performed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Window is the room reservation. ok is false until a time is assigned.
func (o *Operation) Window() (w clock.Window, ok bool) {
	if o.ScheduledTime == nil {
		return clock.Window{}, false
	}
	return clock.NewWindow(*o.ScheduledTime, time.Duration(o.DurationMinutes)*time.Minute), true
}

// Reserves reports whether the operation currently blocks its room.
func (o *Operation) Reserves() bool {
	return o.Status.Active() && o.ResourceID != nil && o.ScheduledTime != nil
}

type Filter struct {
	ResourceID *uuid.UUID
	VisitID    *uuid.UUID
	SurgeonID  *uuid.UUID
	Status     *Status
}

func (f Filter) matches(o *Operation) bool {
	if f.ResourceID != nil && (o.ResourceID == nil || *o.ResourceID != *f.ResourceID) {
		return false
	}
	if f.VisitID != nil && o.VisitID != *f.VisitID {
		return false
	}
	if f.SurgeonID != nil && o.SurgeonID != *f.SurgeonID {
		return false
	}
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	return true
}

// Patch is a partial update. Nil fields are left unchanged; checklist
// entries are merged.
type Patch struct {
	Status          *Status    `json:"status"`
	Result          *Result    `json:"result"`
	Notes           *string    `json:"notes"`
	ScheduledTime   *time.Time `json:"scheduled_time"`
	ResourceID      *uuid.UUID `json:"resource_id"`
	DurationMinutes *int       `json:"duration_minutes"`
	Checklist       Checklist  `json:"checklist"`
}

func (p Patch) movesRoom() bool {
	return p.ScheduledTime != nil || p.ResourceID != nil || p.DurationMinutes != nil
}
