package visit

import (
	"time"

	"github.com/google/uuid"
)

type VisitType string

const (
	TypeOPD       VisitType = "OPD"
	TypeIPD       VisitType = "IPD"
	TypeEmergency VisitType = "EMERGENCY"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusOnHold    Status = "ON_HOLD"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// visitTransitions lists every permitted status change.
var visitTransitions = map[Status][]Status{
	StatusActive: {StatusOnHold, StatusCompleted, StatusCancelled},
	StatusOnHold: {StatusActive, StatusCancelled},
}

// CanTransition reports whether a visit may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range visitTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ColorCode is the emergency triage colour.
type ColorCode string

const (
	ColorRed    ColorCode = "RED"
	ColorOrange ColorCode = "ORANGE"
	ColorYellow ColorCode = "YELLOW"
	ColorGreen  ColorCode = "GREEN"
	ColorBlack  ColorCode = "BLACK"
)

// Visit is one patient encounter. OPD visits hold exactly one slot of their
// doctor's day while not cancelled.
type Visit struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID       *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	Type           VisitType  `db:"type" json:"type"`
	Date           time.Time  `db:"visit_date" json:"date"`
	Slot           string     `db:"slot" json:"slot,omitempty"`
	Status         Status     `db:"status" json:"status"`
	ColorCoding    ColorCode  `db:"color_coding" json:"color_coding,omitempty"`
	ChiefComplaint string     `db:"chief_complaint" json:"chief_complaint,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// HoldsSlot reports whether the visit is bound to an appointment slot.
func (v *Visit) HoldsSlot() bool {
	return v.DoctorID != nil && v.Slot != "" && v.Status != StatusCancelled
}

// Admission binds a visit to a bed. It is open until DischargedAt is set.
type Admission struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	VisitID      uuid.UUID  `db:"visit_id" json:"visit_id"`
	ResourceID   uuid.UUID  `db:"resource_id" json:"resource_id"`
	AdmittedAt   time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	BedPrice     int        `db:"bed_price" json:"bed_price"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Open reports whether the admission has not been discharged.
func (a *Admission) Open() bool { return a.DischargedAt == nil }

// VisitFilter narrows visit listings. Nil fields match everything.
type VisitFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Date      *time.Time
	Status    *Status
	Type      *VisitType
}

func (f VisitFilter) matches(v *Visit) bool {
	if f.DoctorID != nil && (v.DoctorID == nil || *v.DoctorID != *f.DoctorID) {
		return false
	}
	if f.PatientID != nil && v.PatientID != *f.PatientID {
		return false
	}
	if f.Date != nil && !v.Date.Equal(*f.Date) {
		return false
	}
	if f.Status != nil && v.Status != *f.Status {
		return false
	}
	if f.Type != nil && v.Type != *f.Type {
		return false
	}
	return true
}

// AdmissionFilter narrows admission listings.
type AdmissionFilter struct {
	ResourceID *uuid.UUID
	VisitID    *uuid.UUID
	Open       *bool
}

func (f AdmissionFilter) matches(a *Admission) bool {
	if f.ResourceID != nil && a.ResourceID != *f.ResourceID {
		return false
	}
	if f.VisitID != nil && a.VisitID != *f.VisitID {
		return false
	}
	if f.Open != nil && a.Open() != *f.Open {
		return false
	}
	return true
}

// AdmissionPatch carries the fields UpdateAdmission may change.
type AdmissionPatch struct {
	ResourceID   *uuid.UUID `json:"resource_id"`
	AdmittedAt   *time.Time `json:"admitted_at"`
	DischargedAt *time.Time `json:"discharged_at"`
	BedPrice     *int       `json:"bed_price"`
}
