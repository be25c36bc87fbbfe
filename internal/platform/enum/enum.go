// Package enum normalises status strings arriving at the API boundary.
package enum

import "strings"

// Normalize upper-cases s and folds spaces and dashes to underscores, so
// "on-hold", "On Hold" and "ON_HOLD" compare equal.
func Normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return '_'
		}
		return r
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

// Parse normalises raw and returns it if it is one of allowed.
func Parse[T ~string](raw string, allowed ...T) (T, bool) {
	n := T(Normalize(raw))
	for _, a := range allowed {
		if a == n {
			return a, true
		}
	}
	return "", false
}

// Join renders allowed values for error messages.
func Join[T ~string](allowed ...T) string {
	parts := make([]string, len(allowed))
	for i, a := range allowed {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}
