package stats

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestPeriodKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		period Period
		date   time.Time
		want   string
	}{
		{name: "weekly mid year", period: PeriodWeekly, date: day(2025, 3, 5), want: "2025-W10"},
		{name: "weekly iso year rollover", period: PeriodWeekly, date: day(2024, 12, 30), want: "2025-W01"},
		{name: "monthly", period: PeriodMonthly, date: day(2025, 3, 5), want: "2025-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.period.Key(tt.date); got != tt.want {
				t.Errorf("Key() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	if p, err := ParsePeriod("weekly"); err != nil || p != PeriodWeekly {
		t.Errorf("ParsePeriod(weekly) = %s, %v", p, err)
	}
	if p, err := ParsePeriod("monthly"); err != nil || p != PeriodMonthly {
		t.Errorf("ParsePeriod(monthly) = %s, %v", p, err)
	}
	if _, err := ParsePeriod("daily"); err == nil {
		t.Error("ParsePeriod(daily) expected error")
	}
	if PeriodWeekly.TopLimit() != 10 || PeriodMonthly.TopLimit() != 15 {
		t.Errorf("TopLimit() = %d/%d, want 10/15", PeriodWeekly.TopLimit(), PeriodMonthly.TopLimit())
	}
}

func TestBucketCounts(t *testing.T) {
	t.Parallel()

	events := []Event{
		{Date: day(2025, 3, 3), ID: 1, Name: "rice"},
		{Date: day(2025, 3, 4), ID: 2, Name: "egg"},
		{Date: day(2025, 3, 5), ID: 1, Name: "rice"},
		{Date: day(2025, 3, 11), ID: 1, Name: "rice"},
	}

	got := BucketCounts(PeriodWeekly, events)
	want := []TagCount{
		{TagID: 1, TagName: "2025-W10-rice", Count: 2},
		{TagID: 2, TagName: "2025-W10-egg", Count: 1},
		{TagID: 1, TagName: "2025-W11-rice", Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("BucketCounts() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BucketCounts()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	monthly := BucketCounts(PeriodMonthly, events)
	if len(monthly) != 2 || monthly[0].Count != 3 || monthly[0].TagName != "2025-03-rice" {
		t.Errorf("BucketCounts(monthly) = %+v", monthly)
	}

	if got := BucketCounts(PeriodWeekly, nil); len(got) != 0 {
		t.Errorf("BucketCounts(nil) = %+v, want empty", got)
	}
}
