package stats

import (
	"errors"
	"fmt"
	"time"
)

// RangeClass selects how a date range is presented
type RangeClass string

const (
	ShortRange RangeClass = "short"
	LongRange  RangeClass = "long"
)

// shortRangeMaxDays is the longest span, in whole days, still treated as short
const shortRangeMaxDays = 7

// ErrInvalidRange is returned when a range ends before it starts
var ErrInvalidRange = errors.New("invalid date range")

// ClassifyRange returns ShortRange for spans of at most seven whole days and LongRange otherwise
func ClassifyRange(start, end time.Time) (RangeClass, error) {
	if end.Before(start) {
		return "", fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	days := int(end.Sub(start) / (24 * time.Hour))
	if days <= shortRangeMaxDays {
		return ShortRange, nil
	}
	return LongRange, nil
}

// DateRange is an inclusive range of calendar days
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange truncates both bounds to their calendar day and validates the order
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: truncateDay(start), End: truncateDay(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange,
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return r, nil
}

// LastDays returns the range covering the n calendar days ending on now
func LastDays(now time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	end := truncateDay(now)
	return DateRange{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

// Class classifies the range
func (r DateRange) Class() RangeClass {
	// NewDateRange and LastDays guarantee order
	class, err := ClassifyRange(r.Start, r.End)
	if err != nil {
		return LongRange
	}
	return class
}

// Contains reports whether t falls on one of the range's days
func (r DateRange) Contains(t time.Time) bool {
	d := truncateDay(t.In(r.Start.Location()))
	return !d.Before(r.Start) && !d.After(r.End)
}

// Key identifies the range in cache keys and logs
func (r DateRange) Key() string {
	return r.Start.Format(time.DateOnly) + "_" + r.End.Format(time.DateOnly)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
