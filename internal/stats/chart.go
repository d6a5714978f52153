package stats

import (
	"fmt"
	"math"
)

// ChartKind is the chart a set of statistics should be drawn with
type ChartKind string

const (
	ChartPie    ChartKind = "pie"
	ChartColumn ChartKind = "column"
	ChartNone   ChartKind = "none"
)

// maxPieSlices is the largest item count still drawn as a pie
const maxPieSlices = 8

// ChartKindFor picks a pie for small sets and a column chart otherwise
func ChartKindFor(items int) ChartKind {
	switch {
	case items == 0:
		return ChartNone
	case items <= maxPieSlices:
		return ChartPie
	default:
		return ChartColumn
	}
}

// Summary describes a ranked statistics set in a few numbers
type Summary struct {
	Total    int64  `json:"total"`
	TopName  string `json:"top_name,omitempty"`
	TopCount int32  `json:"top_count,omitempty"`
	Items    int    `json:"items"`
}

// Summarize expects stats ranked by Aggregate
func Summarize(stats []TagStatistic) Summary {
	s := Summary{Total: Total(stats), Items: len(stats)}
	if len(stats) > 0 {
		s.TopName = stats[0].TagName
		s.TopCount = stats[0].Count
	}
	return s
}

func (s Summary) String() string {
	if s.Items == 0 {
		return "no records in the selected range"
	}
	return fmt.Sprintf("%d records, most frequent %s (%d), %d distinct items",
		s.Total, s.TopName, s.TopCount, s.Items)
}

// DisplayPercent is the rounded percentage shown on chart labels
func DisplayPercent(p float64) float64 {
	return math.Round(p*1000) / 10
}
