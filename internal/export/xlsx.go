// Package export writes statistics reports as spreadsheets.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/services/statistics"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of the workbooks written by this package
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const defaultSheet = "Sheet1"

// Sheet names of an overview workbook
const (
	SheetTags  = "标签统计"
	SheetFoods = "食物统计"
	SheetDaily = "每日饮食"
)

var (
	reportHeader = []any{"排名", "名称", "次数", "占比(%)"}
	dailyHeader  = []any{"日期", "用餐次数", "食物"}
)

// Workbook collects report sheets before they are written out
type Workbook struct {
	f      *excelize.File
	bold   int
	sheets int
}

// NewWorkbook creates an empty workbook
func NewWorkbook() (*Workbook, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	return &Workbook{f: f, bold: bold}, nil
}

// AddReport appends a sheet with the ranked items of a report
func (wb *Workbook) AddReport(name string, report *statistics.Report) error {
	sheet, err := wb.sheet(name)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s ~ %s", report.Range.Start.Format("2006-01-02"), report.Range.End.Format("2006-01-02"))
	if report.Period != "" {
		title += " (" + string(report.Period) + ")"
	}
	if err := wb.f.SetCellValue(sheet, "A1", title); err != nil {
		return err
	}
	if err := wb.f.SetCellValue(sheet, "A2", report.SummaryText); err != nil {
		return err
	}
	if err := wb.header(sheet, 4, reportHeader); err != nil {
		return err
	}

	for i, it := range report.Items {
		row := []any{i + 1, it.TagName, it.Count, stats.DisplayPercent(it.Percentage)}
		if err := wb.row(sheet, 5+i, row); err != nil {
			return err
		}
	}

	return wb.f.SetColWidth(sheet, "B", "B", 24)
}

// AddDaily appends a calendar sheet listing the foods of every day
func (wb *Workbook) AddDaily(name string, days []models.DailyFoods) error {
	sheet, err := wb.sheet(name)
	if err != nil {
		return err
	}
	if err := wb.header(sheet, 1, dailyHeader); err != nil {
		return err
	}
	for i, d := range days {
		row := []any{d.Date.Format("2006-01-02"), d.MealCount, strings.Join(d.FoodNames, "、")}
		if err := wb.row(sheet, 2+i, row); err != nil {
			return err
		}
	}
	return wb.f.SetColWidth(sheet, "C", "C", 60)
}

// WriteTo writes the workbook as xlsx
func (wb *Workbook) WriteTo(w io.Writer) (int64, error) {
	if wb.sheets == 0 {
		return 0, fmt.Errorf("workbook has no sheets")
	}
	return wb.f.WriteTo(w)
}

// Close releases the workbook
func (wb *Workbook) Close() error {
	return wb.f.Close()
}

// sheet renames the default sheet for the first report and adds new ones after it
func (wb *Workbook) sheet(name string) (string, error) {
	if wb.sheets == 0 {
		if err := wb.f.SetSheetName(defaultSheet, name); err != nil {
			return "", fmt.Errorf("failed to name sheet %q: %w", name, err)
		}
	} else if _, err := wb.f.NewSheet(name); err != nil {
		return "", fmt.Errorf("failed to add sheet %q: %w", name, err)
	}
	wb.sheets++
	return name, nil
}

func (wb *Workbook) header(sheet string, rowNum int, values []any) error {
	if err := wb.row(sheet, rowNum, values); err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, rowNum)
	last, _ := excelize.CoordinatesToCellName(len(values), rowNum)
	return wb.f.SetCellStyle(sheet, first, last, wb.bold)
}

func (wb *Workbook) row(sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return wb.f.SetSheetRow(sheet, cell, &values)
}

// WriteOverview writes the tag, food and daily sheets of an overview to w
func WriteOverview(w io.Writer, overview *statistics.Overview) error {
	wb, err := NewWorkbook()
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	if err := wb.AddReport(SheetTags, overview.Tags); err != nil {
		return err
	}
	if err := wb.AddReport(SheetFoods, overview.Foods); err != nil {
		return err
	}
	if err := wb.AddDaily(SheetDaily, overview.Daily); err != nil {
		return err
	}
	if _, err := wb.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
