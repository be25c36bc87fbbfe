package clock

import (
	"reflect"
	"testing"
	"time"
)

func TestWindow_Overlaps(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	w := NewWindow(base, time.Hour)

	tests := []struct {
		name  string
		other Window
		want  bool
	}{
		{"identical", NewWindow(base, time.Hour), true},
		{"starts inside", NewWindow(base.Add(30*time.Minute), time.Hour), true},
		{"encloses", NewWindow(base.Add(-time.Hour), 3*time.Hour), true},
		{"touches end", NewWindow(base.Add(time.Hour), time.Hour), false},
		{"touches start", NewWindow(base.Add(-time.Hour), time.Hour), false},
		{"disjoint", NewWindow(base.Add(5*time.Hour), time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Overlaps(tt.other); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := tt.other.Overlaps(w); got != tt.want {
				t.Errorf("Overlaps not symmetric")
			}
		})
	}
}

func TestWindow_Contains(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	w := NewWindow(base, time.Hour)
	if !w.Contains(base) {
		t.Error("start should be contained")
	}
	if w.Contains(base.Add(time.Hour)) {
		t.Error("end should be excluded")
	}
}

func TestGenerateSlots_BreakExcluded(t *testing.T) {
	shift, err := ParseShift("09:00", "13:00", "12:00", "12:30")
	if err != nil {
		t.Fatalf("ParseShift: %v", err)
	}
	got := Labels(GenerateSlots(shift, 30*time.Minute))
	want := []string{
		"09:00 - 09:30",
		"09:30 - 10:00",
		"10:00 - 10:30",
		"10:30 - 11:00",
		"11:00 - 11:30",
		"11:30 - 12:00",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("slots = %v, want %v", got, want)
	}
}

func TestGenerateSlots_NoBreak(t *testing.T) {
	shift, err := ParseShift("09:00", "10:00", "", "")
	if err != nil {
		t.Fatalf("ParseShift: %v", err)
	}
	got := Labels(GenerateSlots(shift, 15*time.Minute))
	if len(got) != 4 || got[0] != "09:00 - 09:15" || got[3] != "09:45 - 10:00" {
		t.Errorf("unexpected slots %v", got)
	}
}

func TestGenerateSlots_DropsShortRemainder(t *testing.T) {
	shift, _ := ParseShift("09:00", "10:10", "", "")
	if got := GenerateSlots(shift, 30*time.Minute); len(got) != 2 {
		t.Errorf("expected 2 slots, got %d", len(got))
	}
}

func TestGenerateSlots_Overnight(t *testing.T) {
	shift, err := ParseShift("22:00", "01:00", "", "")
	if err != nil {
		t.Fatalf("ParseShift: %v", err)
	}
	got := Labels(GenerateSlots(shift, time.Hour))
	want := []string{"22:00 - 23:00", "23:00 - 00:00", "00:00 - 01:00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("slots = %v, want %v", got, want)
	}
}

func TestGenerateSlots_OvernightBreakAfterMidnight(t *testing.T) {
	shift, _ := ParseShift("22:00", "02:00", "00:00", "00:30")
	got := Labels(GenerateSlots(shift, time.Hour))
	want := []string{"22:00 - 23:00", "23:00 - 00:00", "01:00 - 02:00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("slots = %v, want %v", got, want)
	}
}

func TestParseShift_Errors(t *testing.T) {
	if _, err := ParseShift("9am", "13:00", "", ""); err == nil {
		t.Error("expected error for bad start")
	}
	if _, err := ParseShift("09:00", "13:00", "12:30", "12:00"); err == nil {
		t.Error("expected error for inverted break")
	}
	if _, err := ParseShift("09:00", "13:00", "12:00", ""); err == nil {
		t.Error("expected error for half-specified break")
	}
}

func TestNormalizeSlotLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"11:30", "11:30 - 12:00", false},
		{"11:30 - 12:00", "11:30 - 12:00", false},
		{"11:30-12:00", "11:30 - 12:00", false},
		{" 9:00 –  9:30 ", "09:00 - 09:30", false},
		{"", "", true},
		{"11:30-12:00-12:30", "", true},
		{"lunch", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeSlotLabel(tt.in, 30*time.Minute)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeSlotLabel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeSlotLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
