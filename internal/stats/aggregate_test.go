package stats

import (
	"math"
	"reflect"
	"testing"
)

func TestAggregate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []TagCount
		want  []TagStatistic
	}{
		{
			name:  "nil input",
			input: nil,
			want:  []TagStatistic{},
		},
		{
			name:  "empty input",
			input: []TagCount{},
			want:  []TagStatistic{},
		},
		{
			name: "zero total yields zero percentages",
			input: []TagCount{
				{TagID: 1, TagName: "a", Count: 0},
				{TagID: 2, TagName: "b", Count: 0},
			},
			want: []TagStatistic{
				{TagID: 1, TagName: "a", Count: 0, Percentage: 0},
				{TagID: 2, TagName: "b", Count: 0, Percentage: 0},
			},
		},
		{
			name: "ties keep input order",
			input: []TagCount{
				{TagID: 1, TagName: "a", Count: 3},
				{TagID: 2, TagName: "b", Count: 10},
				{TagID: 3, TagName: "c", Count: 10},
			},
			want: []TagStatistic{
				{TagID: 2, TagName: "b", Count: 10, Percentage: 10.0 / 23},
				{TagID: 3, TagName: "c", Count: 10, Percentage: 10.0 / 23},
				{TagID: 1, TagName: "a", Count: 3, Percentage: 3.0 / 23},
			},
		},
		{
			name: "vegetables and meat",
			input: []TagCount{
				{TagID: 10, TagName: "蔬菜", Count: 4},
				{TagID: 11, TagName: "肉类", Count: 6},
			},
			want: []TagStatistic{
				{TagID: 11, TagName: "肉类", Count: 6, Percentage: 0.6},
				{TagID: 10, TagName: "蔬菜", Count: 4, Percentage: 0.4},
			},
		},
		{
			name: "negative count never yields negative percentage",
			input: []TagCount{
				{TagID: 1, TagName: "a", Count: -2},
				{TagID: 2, TagName: "b", Count: 4},
			},
			want: []TagStatistic{
				{TagID: 2, TagName: "b", Count: 4, Percentage: 1},
				{TagID: 1, TagName: "a", Count: -2, Percentage: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Aggregate(tt.input)
			if got == nil {
				t.Fatal("Aggregate() returned nil, want non-nil slice")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Aggregate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAggregate_Properties(t *testing.T) {
	t.Parallel()

	inputs := [][]TagCount{
		{{TagID: 1, TagName: "a", Count: 1}},
		{{TagID: 1, TagName: "a", Count: 1}, {TagID: 2, TagName: "b", Count: 2}, {TagID: 3, TagName: "c", Count: 3}},
		{{TagID: 1, TagName: "a", Count: 7}, {TagID: 2, TagName: "b", Count: 11}, {TagID: 3, TagName: "c", Count: 13}, {TagID: 4, TagName: "d", Count: 0}},
		{{TagID: 5, TagName: "x", Count: 1 << 30}, {TagID: 6, TagName: "y", Count: 1 << 30}, {TagID: 7, TagName: "z", Count: 3}},
	}

	for i, input := range inputs {
		got := Aggregate(input)

		if len(got) != len(input) {
			t.Errorf("case %d: len(Aggregate()) = %d, want %d", i, len(got), len(input))
		}

		sum := 0.0
		for _, s := range got {
			if s.Percentage < 0 || s.Percentage > 1 {
				t.Errorf("case %d: percentage %v out of [0,1]", i, s.Percentage)
			}
			sum += s.Percentage
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("case %d: percentages sum to %v, want 1", i, sum)
		}

		for j := 1; j < len(got); j++ {
			if got[j-1].Count < got[j].Count {
				t.Errorf("case %d: result not sorted descending at %d: %d < %d", i, j, got[j-1].Count, got[j].Count)
			}
		}

		again := Aggregate(input)
		if !reflect.DeepEqual(got, again) {
			t.Errorf("case %d: Aggregate() not deterministic: %+v vs %+v", i, got, again)
		}
	}
}

func TestAggregate_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	input := []TagCount{
		{TagID: 1, TagName: "a", Count: 1},
		{TagID: 2, TagName: "b", Count: 5},
	}
	snapshot := append([]TagCount(nil), input...)

	_ = Aggregate(input)

	if !reflect.DeepEqual(input, snapshot) {
		t.Errorf("Aggregate() modified its input: %+v", input)
	}
}

func TestTop(t *testing.T) {
	t.Parallel()

	stats := Aggregate([]TagCount{
		{TagID: 1, TagName: "a", Count: 1},
		{TagID: 2, TagName: "b", Count: 2},
		{TagID: 3, TagName: "c", Count: 3},
	})

	tests := []struct {
		name     string
		n        int
		wantLen  int
		wantHead string
	}{
		{name: "zero keeps all", n: 0, wantLen: 3, wantHead: "c"},
		{name: "negative keeps all", n: -1, wantLen: 3, wantHead: "c"},
		{name: "limit", n: 2, wantLen: 2, wantHead: "c"},
		{name: "limit above length", n: 10, wantLen: 3, wantHead: "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Top(stats, tt.n)
			if len(got) != tt.wantLen {
				t.Errorf("len(Top(%d)) = %d, want %d", tt.n, len(got), tt.wantLen)
			}
			if got[0].TagName != tt.wantHead {
				t.Errorf("Top(%d)[0] = %s, want %s", tt.n, got[0].TagName, tt.wantHead)
			}
		})
	}
}
