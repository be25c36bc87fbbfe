package clock

import (
	"fmt"
	"strings"
	"time"
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a window of the given duration starting at start.
func NewWindow(start time.Time, d time.Duration) Window {
	return Window{Start: start, End: start.Add(d)}
}

// Overlaps reports whether two half-open windows share any instant.
// Windows that merely touch (one ends when the other starts) do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Shift is a doctor's daily working template.
type Shift struct {
	Start      TimeOfDay
	End        TimeOfDay
	BreakStart TimeOfDay
	BreakEnd   TimeOfDay
	HasBreak   bool
}

// ParseShift builds a Shift from "HH:MM" strings. Break fields may be empty.
func ParseShift(start, end, breakStart, breakEnd string) (Shift, error) {
	var s Shift
	var err error
	if s.Start, err = ParseTimeOfDay(start); err != nil {
		return Shift{}, fmt.Errorf("shift start: %w", err)
	}
	if s.End, err = ParseTimeOfDay(end); err != nil {
		return Shift{}, fmt.Errorf("shift end: %w", err)
	}
	if strings.TrimSpace(breakStart) == "" && strings.TrimSpace(breakEnd) == "" {
		return s, nil
	}
	if s.BreakStart, err = ParseTimeOfDay(breakStart); err != nil {
		return Shift{}, fmt.Errorf("break start: %w", err)
	}
	if s.BreakEnd, err = ParseTimeOfDay(breakEnd); err != nil {
		return Shift{}, fmt.Errorf("break end: %w", err)
	}
	if s.BreakEnd < s.BreakStart {
		return Shift{}, fmt.Errorf("break end %s is before break start %s", s.BreakEnd, s.BreakStart)
	}
	s.HasBreak = true
	return s, nil
}

// Slot is one bookable interval of a shift.
type Slot struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Label renders the slot as "HH:MM - HH:MM".
func (s Slot) Label() string {
	return s.Start.String() + " - " + s.End.String()
}

// GenerateSlots partitions the shift into consecutive slots of the given width.
// A shift whose end is not after its start runs past midnight. Slots that
// touch the break (start inside the closed interval [BreakStart, BreakEnd] or
// overlap it) are skipped. A trailing remainder shorter than width is dropped.
func GenerateSlots(shift Shift, width time.Duration) []Slot {
	w := TimeOfDay(width / time.Minute)
	if w <= 0 {
		return nil
	}
	start, end := shift.Start, shift.End
	if end <= start {
		end += minutesPerDay
	}
	bs, be := shift.BreakStart, shift.BreakEnd
	if shift.HasBreak && bs < start {
		// break belongs to the post-midnight side of an overnight shift
		bs += minutesPerDay
		be += minutesPerDay
	}

	var slots []Slot
	for cur := start; cur+w <= end; cur += w {
		slot := Slot{Start: cur, End: cur + w}
		if shift.HasBreak && slot.Start <= be && bs < slot.End {
			continue
		}
		slots = append(slots, slot)
	}
	return slots
}

// Labels renders a slot list as labels, preserving order.
func Labels(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Label()
	}
	return out
}

// NormalizeSlotLabel canonicalises user input. "11:30" becomes
// "11:30 - 12:00" for a 30 minute width; "11:30-12:00" and "11:30 – 12:00"
// become "11:30 - 12:00".
func NormalizeSlotLabel(raw string, width time.Duration) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), "–", "-")
	if s == "" {
		return "", fmt.Errorf("slot is required")
	}
	parts := strings.Split(s, "-")
	switch len(parts) {
	case 1:
		start, err := ParseTimeOfDay(parts[0])
		if err != nil {
			return "", err
		}
		return Slot{Start: start, End: start + TimeOfDay(width/time.Minute)}.Label(), nil
	case 2:
		start, err := ParseTimeOfDay(parts[0])
		if err != nil {
			return "", err
		}
		end, err := ParseTimeOfDay(parts[1])
		if err != nil {
			return "", err
		}
		return start.String() + " - " + end.String(), nil
	default:
		return "", fmt.Errorf("invalid slot %q", raw)
	}
}
