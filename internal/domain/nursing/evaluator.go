package nursing

import (
	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/enum"
)

var vitalTypes = []VitalType{VitalBP, VitalPulse, VitalTemperature, VitalSpO2}

var vitalAliases = map[string]VitalType{
	"HR":             VitalPulse,
	"HEART_RATE":     VitalPulse,
	"TEMPERATURE":    VitalTemperature,
	"BLOOD_PRESSURE": VitalBP,
}

func ParseVitalType(s string) (VitalType, error) {
	if v, ok := enum.Parse(s, vitalTypes...); ok {
		return v, nil
	}
	if v, ok := vitalAliases[enum.Normalize(s)]; ok {
		return v, nil
	}
	return "", apperr.Validation("invalid vital type %q, expected one of %s", s, enum.Join(vitalTypes...))
}

func level(critical bool) Level {
	if critical {
		return LevelCritical
	}
	return LevelNormal
}

func bpCritical(systolic, diastolic float64, hasDiastolic bool) bool {
	if systolic < 90 || systolic >= 180 {
		return true
	}
	return hasDiastolic && (diastolic < 60 || diastolic >= 120)
}

func pulseCritical(bpm float64) bool { return bpm < 40 || bpm > 130 }

func temperatureCritical(f float64) bool { return f < 95 || f >= 104 }

func spo2Critical(pct float64) bool { return pct < 90 }

// Classify applies the fixed critical thresholds. For BP, value is the
// systolic and value2 the diastolic pressure; a missing diastolic is
// judged on the systolic alone.
func Classify(vital VitalType, value float64, value2 ...float64) (Level, error) {
	switch vital {
	case VitalBP:
		var diastolic float64
		if len(value2) > 0 {
			diastolic = value2[0]
		}
		return level(bpCritical(value, diastolic, len(value2) > 0)), nil
	case VitalPulse:
		return level(pulseCritical(value)), nil
	case VitalTemperature:
		return level(temperatureCritical(value)), nil
	case VitalSpO2:
		return level(spo2Critical(value)), nil
	}
	return "", apperr.Validation("invalid vital type %q, expected one of %s", vital, enum.Join(vitalTypes...))
}

// Assess classifies every vital of a reading.
func Assess(r *VitalReading) Assessment {
	a := Assessment{
		BP:          level(bpCritical(float64(r.Systolic), float64(r.Diastolic), true)),
		Pulse:       level(pulseCritical(float64(r.Pulse))),
		Temperature: level(temperatureCritical(r.TemperatureF)),
		SpO2:        level(spo2Critical(float64(r.SpO2))),
	}
	for _, v := range []struct {
		vital VitalType
		level Level
	}{{VitalBP, a.BP}, {VitalPulse, a.Pulse}, {VitalTemperature, a.Temperature}, {VitalSpO2, a.SpO2}} {
		if v.level == LevelCritical {
			a.Critical = true
			a.Flagged = append(a.Flagged, v.vital)
		}
	}
	return a
}
