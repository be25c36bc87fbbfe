package registry

import (
	"time"

	"github.com/google/uuid"
)

type ResourceType string

const (
	TypeGeneral ResourceType = "GENERAL"
	TypeICU     ResourceType = "ICU"
	TypeOT      ResourceType = "OT"
)

type Availability string

const (
	Available   Availability = "AVAILABLE"
	Occupied    Availability = "OCCUPIED"
	Maintenance Availability = "MAINTENANCE"
)

type CleaningStatus string

const (
	Cleaned       CleaningStatus = "CLEANED"
	NotCleaned    CleaningStatus = "NOT_CLEANED"
	UnderCleaning CleaningStatus = "UNDER_CLEANING"
)

// Resource is a bed (GENERAL or ICU) or an operating room (OT), identified
// for humans by ward and number.
type Resource struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	Ward           int            `db:"ward" json:"ward"`
	Number         int            `db:"number" json:"number"`
	Type           ResourceType   `db:"type" json:"type"`
	Availability   Availability   `db:"availability" json:"availability"`
	CleaningStatus CleaningStatus `db:"cleaning_status" json:"cleaning_status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// IsBed reports whether patients can be admitted to the resource.
func (r *Resource) IsBed() bool {
	return r.Type == TypeGeneral || r.Type == TypeICU
}

// Filter narrows List. Nil fields match everything.
type Filter struct {
	Type         *ResourceType
	Availability *Availability
	Ward         *int
}

func (f Filter) matches(r *Resource) bool {
	if f.Type != nil && r.Type != *f.Type {
		return false
	}
	if f.Availability != nil && r.Availability != *f.Availability {
		return false
	}
	if f.Ward != nil && r.Ward != *f.Ward {
		return false
	}
	return true
}

// Usage describes how other records reference a resource. Referenced blocks
// deletion; Holding means the resource is in use right now.
type Usage struct {
	Referenced bool
	Holding    bool
	By         string
}
