package nursing

import (
	"time"

	"github.com/google/uuid"
)

type VitalType string

const (
	VitalBP          VitalType = "BP"
	VitalPulse       VitalType = "PULSE"
	VitalTemperature VitalType = "TEMP"
	VitalSpO2        VitalType = "SPO2"
)

type Level string

const (
	LevelNormal   Level = "NORMAL"
	LevelCritical Level = "CRITICAL"
)

// VitalReading maps to the vital_reading table. Temperature is in °F.
type VitalReading struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	VisitID      uuid.UUID  `db:"visit_id" json:"visit_id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	NurseID      *uuid.UUID `db:"nurse_id" json:"nurse_id,omitempty"`
	Systolic     int        `db:"systolic" json:"systolic"`
	Diastolic    int        `db:"diastolic" json:"diastolic"`
	Pulse        int        `db:"pulse" json:"pulse"`
	TemperatureF float64    `db:"temperature_f" json:"temperature_f"`
	SpO2         int        `db:"spo2" json:"spo2"`
	RecordedAt   time.Time  `db:"recorded_at" json:"recorded_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Assessment is the per-vital classification of a reading.
type Assessment struct {
	BP          Level       `json:"bp"`
	Pulse       Level       `json:"pulse"`
	Temperature Level       `json:"temp"`
	SpO2        Level       `json:"spo2"`
	Critical    bool        `json:"critical"`
	Flagged     []VitalType `json:"critical_vitals,omitempty"`
}

// AssessedReading is a reading as returned to callers.
type AssessedReading struct {
	*VitalReading
	Assessment Assessment `json:"assessment"`
}
