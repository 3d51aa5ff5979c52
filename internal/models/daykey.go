package models

import (
	"fmt"
	"time"
)

// DayKeyLayout is the canonical YYYY-MM-DD format for day document keys.
const DayKeyLayout = "2006-01-02"

// DefaultSchoolTimezone pins which calendar day a write lands on. Every
// device must agree on "today", so the zone is a deployment constant rather
// than the caller's locale.
const DefaultSchoolTimezone = "America/Detroit"

// DayKeyAt returns the day key for the given instant in the school timezone.
func DayKeyAt(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayKeyLayout)
}

// ParseDayKey validates a day key and returns its calendar date.
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.Parse(DayKeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day key %q: %w", key, err)
	}
	return t, nil
}

// ValidDayKey reports whether key is a well-formed day key.
func ValidDayKey(key string) bool {
	_, err := ParseDayKey(key)
	return err == nil
}
