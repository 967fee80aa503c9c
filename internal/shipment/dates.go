package shipment

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrAmbiguousDate rejects datetimes without an explicit timezone marker: a
// bare local-looking instant would silently shift by the server timezone.
var ErrAmbiguousDate = errors.New("datetime must carry a timezone (Z or +HH:MM) or be a date-only string")

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseScheduleDate normalizes an incoming schedule date string to UTC.
// A date-only string becomes UTC midnight of that calendar day; a datetime
// must carry an explicit Z or offset marker.
func ParseScheduleDate(s string) (time.Time, error) {
	if dateOnlyRe.MatchString(s) {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// RFC3339 requires the offset, so a bare local datetime lands here.
		if _, bareErr := time.Parse("2006-01-02T15:04:05", s); bareErr == nil {
			return time.Time{}, fmt.Errorf("%q: %w", s, ErrAmbiguousDate)
		}
		return time.Time{}, fmt.Errorf("invalid datetime %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ParseRangeStart normalizes a range start: date-only strings become
// start-of-day UTC.
func ParseRangeStart(s string) (time.Time, error) {
	return ParseScheduleDate(s)
}

// ParseRangeEnd normalizes a range end: date-only strings become end-of-day
// UTC so the range stays inclusive.
func ParseRangeEnd(s string) (time.Time, error) {
	t, err := ParseScheduleDate(s)
	if err != nil {
		return time.Time{}, err
	}
	if dateOnlyRe.MatchString(s) {
		return t.Add(24*time.Hour - time.Nanosecond), nil
	}
	return t, nil
}
