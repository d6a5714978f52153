package stats

import (
	"fmt"
	"time"
)

// Period is the bucket width of a period report
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

const (
	weeklyTopLimit  = 10
	monthlyTopLimit = 15
)

// ParsePeriod validates a period name
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodWeekly, PeriodMonthly:
		return Period(s), nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// TopLimit is how many bucketed items a report of this period keeps
func (p Period) TopLimit() int {
	if p == PeriodMonthly {
		return monthlyTopLimit
	}
	return weeklyTopLimit
}

// Key returns the bucket key of t: ISO week for weekly, year-month for monthly
func (p Period) Key(t time.Time) string {
	if p == PeriodMonthly {
		return MonthKey(t)
	}
	return WeekKey(t)
}

// WeekKey formats the ISO week of t, e.g. 2025-W03
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// MonthKey formats the month of t, e.g. 2025-01
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Event is one occurrence of a tag or food on a given day
type Event struct {
	Date time.Time
	ID   int32
	Name string
}

// BucketCounts groups events by period bucket and item, producing one TagCount per
// (bucket, item) pair named "<bucket>-<item>". Pairs are emitted in order of first
// appearance so ties stay deterministic after Aggregate.
func BucketCounts(p Period, events []Event) []TagCount {
	type pairKey struct {
		bucket string
		id     int32
	}

	index := make(map[pairKey]int)
	var out []TagCount
	for _, e := range events {
		bucket := p.Key(e.Date)
		k := pairKey{bucket: bucket, id: e.ID}
		if i, ok := index[k]; ok {
			out[i].Count++
			continue
		}
		index[k] = len(out)
		out = append(out, TagCount{
			TagID:   e.ID,
			TagName: bucket + "-" + e.Name,
			Count:   1,
		})
	}
	return out
}
