// Package time holds the pointer helpers nullable timestamp columns need
package time

import "time"

// Ptr returns a pointer to t in UTC, or nil when t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// UTC copies *t normalised to UTC; nil and zero stay nil
func UTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return Ptr(*t)
}
