// Package charts renders statistics reports as standalone ECharts HTML pages.
package charts

import (
	"errors"
	"fmt"
	"io"

	"github.com/benvon/wte-api/internal/services/statistics"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartWidth  = "100%"
	chartHeight = "520px"
	pieRadius   = "60%"
	// Column labels are rotated once there are more bars than fit side by side
	rotateAfter = 12
)

// ContentSecurityPolicy lets the rendered page load the ECharts bundle and run its inline setup script
const ContentSecurityPolicy = "default-src 'none'; script-src 'unsafe-inline' https://go-echarts.github.io; style-src 'unsafe-inline'"

var titles = map[statistics.Kind]string{
	statistics.KindTags:  "标签统计",
	statistics.KindFoods: "食物统计",
}

// Title is the page heading used for a report kind
func Title(kind statistics.Kind) string {
	return titles[kind]
}

// ErrNoData is returned for reports without items
var ErrNoData = errors.New("report has no items to chart")

// Renderer is a chart that writes itself as HTML
type Renderer interface {
	Render(w io.Writer) error
}

// ForReport builds the chart the report asks for: a pie for small sets, columns otherwise
func ForReport(report *statistics.Report, title string) (Renderer, error) {
	switch report.Chart {
	case stats.ChartPie:
		return Pie(title, subtitle(report), report.Items), nil
	case stats.ChartColumn:
		return Column(title, subtitle(report), report.Items), nil
	default:
		return nil, ErrNoData
	}
}

// RenderReport writes the report's chart page to w
func RenderReport(w io.Writer, report *statistics.Report, title string) error {
	chart, err := ForReport(report, title)
	if err != nil {
		return err
	}
	if err := chart.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// Pie draws the share of every item
func Pie(title, sub string, items []stats.TagStatistic) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight, PageTitle: title}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: sub, Left: "center"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll", Top: "bottom"}),
	)

	data := make([]opts.PieData, len(items))
	for i, it := range items {
		data[i] = opts.PieData{Name: it.TagName, Value: it.Count}
	}

	pie.AddSeries(title, data).
		SetSeriesOptions(
			charts.WithLabelOpts(opts.Label{
				Show:      opts.Bool(true),
				Formatter: "{b}: {c} ({d}%)",
			}),
			charts.WithPieChartOpts(opts.PieChart{Radius: pieRadius}),
		)
	return pie
}

// Column draws one bar per item, highest count first
func Column(title, sub string, items []stats.TagStatistic) *charts.Bar {
	bar := charts.NewBar()

	var rotate float64
	if len(items) > rotateAfter {
		rotate = 45
	}
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight, PageTitle: title}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: sub, Left: "center"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithGridOpts(opts.Grid{Top: "20%", Bottom: "15%", Left: "5%", Right: "5%", ContainLabel: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: rotate, Interval: "0"}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "次数"}),
	)

	labels := make([]string, len(items))
	data := make([]opts.BarData, len(items))
	for i, it := range items {
		labels[i] = it.TagName
		data[i] = opts.BarData{Name: it.TagName, Value: it.Count}
	}

	bar.SetXAxis(labels).
		AddSeries(title, data).
		SetSeriesOptions(charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

func subtitle(report *statistics.Report) string {
	return fmt.Sprintf("%s ~ %s  %s",
		report.Range.Start.Format("2006-01-02"),
		report.Range.End.Format("2006-01-02"),
		report.SummaryText,
	)
}
