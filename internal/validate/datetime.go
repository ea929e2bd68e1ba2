package validate

import (
	"fmt"
	"time"
)

// Layouts used by the protocols
const (
	LayoutDateTime  = "2006-01-02T15:04:05-0700"
	LayoutTimeLimit = "2006-01-02 15:04:05"
	LayoutDate      = "02.01.2006"
	LayoutCompact   = "20060102150405"
	LayoutPaidDate  = "20060102"
)

// MaxDrift is the allowed difference between a message timestamp and server time.
const MaxDrift = 5 * time.Minute

// WithinDrift reports whether t is within MaxDrift of now.
func WithinDrift(t, now time.Time) bool {
	d := t.Sub(now)
	return d >= -MaxDrift && d <= MaxDrift
}

// ParseLocal parses a zone-less timestamp in the server location.
func ParseLocal(layout, value string) (time.Time, error) {
	t, err := time.ParseInLocation(layout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", value, err)
	}
	return t, nil
}
