package nursing

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		vital  VitalType
		value  float64
		value2 []float64
		want   Level
	}{
		{"bp low systolic", VitalBP, 85, []float64{70}, LevelCritical},
		{"bp normal", VitalBP, 120, []float64{80}, LevelNormal},
		{"spo2 low", VitalSpO2, 88, nil, LevelCritical},
		{"temp normal", VitalTemperature, 98.6, nil, LevelNormal},

		{"bp low diastolic", VitalBP, 110, []float64{59}, LevelCritical},
		{"bp high systolic edge", VitalBP, 180, []float64{80}, LevelCritical},
		{"bp high diastolic edge", VitalBP, 150, []float64{120}, LevelCritical},
		{"bp just below high", VitalBP, 179, []float64{119}, LevelNormal},
		{"bp systolic only", VitalBP, 85, nil, LevelCritical},
		{"bp systolic only normal", VitalBP, 120, nil, LevelNormal},
		{"pulse low", VitalPulse, 39, nil, LevelCritical},
		{"pulse edge low", VitalPulse, 40, nil, LevelNormal},
		{"pulse edge high", VitalPulse, 130, nil, LevelNormal},
		{"pulse high", VitalPulse, 131, nil, LevelCritical},
		{"temp low", VitalTemperature, 94.9, nil, LevelCritical},
		{"temp edge low", VitalTemperature, 95, nil, LevelNormal},
		{"temp high edge", VitalTemperature, 104, nil, LevelCritical},
		{"spo2 edge", VitalSpO2, 90, nil, LevelNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.vital, tt.value, tt.value2...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify(%s, %v, %v) = %s, want %s", tt.vital, tt.value, tt.value2, got, tt.want)
			}
		})
	}
}

func TestClassify_UnknownVital(t *testing.T) {
	if _, err := Classify("GLUCOSE", 100); err == nil {
		t.Error("expected error for unknown vital")
	}
}

func TestParseVitalType(t *testing.T) {
	for raw, want := range map[string]VitalType{
		"bp": VitalBP, "SpO2": VitalSpO2, "HR": VitalPulse, "heart-rate": VitalPulse,
		"temperature": VitalTemperature, "Pulse": VitalPulse,
	} {
		got, err := ParseVitalType(raw)
		if err != nil || got != want {
			t.Errorf("ParseVitalType(%q) = %s, %v", raw, got, err)
		}
	}
	if _, err := ParseVitalType("weight"); err == nil {
		t.Error("expected error for unknown vital type")
	}
}

func TestAssess(t *testing.T) {
	normal := Assess(&VitalReading{Systolic: 120, Diastolic: 80, Pulse: 72, TemperatureF: 98.6, SpO2: 98})
	if normal.Critical || len(normal.Flagged) != 0 {
		t.Errorf("expected normal reading, got %+v", normal)
	}

	a := Assess(&VitalReading{Systolic: 85, Diastolic: 70, Pulse: 72, TemperatureF: 104.2, SpO2: 88})
	if !a.Critical {
		t.Fatal("expected critical assessment")
	}
	if a.BP != LevelCritical || a.Pulse != LevelNormal || a.Temperature != LevelCritical || a.SpO2 != LevelCritical {
		t.Errorf("unexpected levels %+v", a)
	}
	want := []VitalType{VitalBP, VitalTemperature, VitalSpO2}
	if len(a.Flagged) != len(want) {
		t.Fatalf("flagged = %v", a.Flagged)
	}
	for i := range want {
		if a.Flagged[i] != want[i] {
			t.Errorf("flagged[%d] = %s, want %s", i, a.Flagged[i], want[i])
		}
	}
}
