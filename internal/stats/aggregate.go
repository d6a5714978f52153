package stats

import (
	"cmp"
	"slices"
)

// MaxTagNameLength is the longest tag or food name the store accepts
const MaxTagNameLength = 100

// TagCount is the raw occurrence count of one tag for one user within a date range
type TagCount struct {
	TagID   int32  `json:"tag_id"`
	TagName string `json:"tag_name"`
	Count   int32  `json:"count"`
}

// TagStatistic is a TagCount annotated with its share of the total
type TagStatistic struct {
	TagID      int32   `json:"tag_id"`
	TagName    string  `json:"tag_name"`
	Count      int32   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Aggregate turns per-tag counts into statistics ranked by count.
//
// Percentages are count/total and are all zero when the total is zero. Ties keep
// their input order. The input slice is not modified and the result always has the
// same length as the input.
func Aggregate(counts []TagCount) []TagStatistic {
	out := make([]TagStatistic, len(counts))

	var total int64
	for _, c := range counts {
		if c.Count > 0 {
			total += int64(c.Count)
		}
	}

	for i, c := range counts {
		out[i] = TagStatistic{
			TagID:   c.TagID,
			TagName: c.TagName,
			Count:   c.Count,
		}
		if total > 0 && c.Count > 0 {
			out[i].Percentage = float64(c.Count) / float64(total)
		}
	}

	slices.SortStableFunc(out, func(a, b TagStatistic) int {
		return cmp.Compare(b.Count, a.Count)
	})

	return out
}

// Total returns the sum of the non-negative counts in stats
func Total(stats []TagStatistic) int64 {
	var total int64
	for _, s := range stats {
		if s.Count > 0 {
			total += int64(s.Count)
		}
	}
	return total
}

// Top returns at most n leading entries of an already ranked slice.
// A non-positive n returns the whole slice.
func Top(stats []TagStatistic, n int) []TagStatistic {
	if n <= 0 || n >= len(stats) {
		return stats
	}
	return stats[:n]
}
