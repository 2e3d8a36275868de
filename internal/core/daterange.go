package core

import (
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// DateRange is an inclusive span of calendar days in a location. The zero
// value means "no restriction".
type DateRange struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// ParseDateRange parses two YYYY-MM-DD days. Both empty yields the zero
// range; exactly one empty is ErrMissingDateRange.
func ParseDateRange(start, end string, loc *time.Location) (DateRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return DateRange{}, nil
	}
	if start == "" || end == "" {
		return DateRange{}, ErrMissingDateRange
	}
	if loc == nil {
		loc = time.UTC
	}

	s, err := ParseDay(start, loc)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDay(end, loc)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(s, e)
}

// NewDateRange normalises both ends to midnight and checks ordering.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: startOfDay(start), End: startOfDay(end)}
	if r.Start.After(r.End) {
		return DateRange{}, ErrInvalidDateRange
	}
	return r, nil
}

// MonthRange returns the first through last day of a YYYY-MM month.
func MonthRange(month string, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	m, err := time.ParseInLocation("2006-01", strings.TrimSpace(month), loc)
	if err != nil {
		return DateRange{}, ErrInvalidMonth
	}
	return DateRange{Start: m, End: m.AddDate(0, 1, -1)}, nil
}

// ParseDay parses a YYYY-MM-DD day, also accepting a full RFC 3339 timestamp
// whose calendar day is taken in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if d, err := time.ParseInLocation(dayLayout, s, loc); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return startOfDay(ts.In(loc)), nil
	}
	return time.Time{}, ErrInvalidDate
}

func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Bounds returns the half-open instant interval [start, end+1day).
func (r DateRange) Bounds() (time.Time, time.Time) {
	return r.Start, r.End.AddDate(0, 0, 1)
}

// Contains reports whether t falls on one of the range's days. The zero
// range contains everything.
func (r DateRange) Contains(t time.Time) bool {
	if r.IsZero() {
		return true
	}
	from, until := r.Bounds()
	return !t.Before(from) && t.Before(until)
}

func (r DateRange) String() string {
	if r.IsZero() {
		return "all time"
	}
	return r.Start.Format(dayLayout) + ".." + r.End.Format(dayLayout)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
