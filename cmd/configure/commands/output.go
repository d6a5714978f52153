package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/services/statistics"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// writeReport prints a statistics report in the requested format
func writeReport(w io.Writer, report *statistics.Report, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, report)
	case formatYAML:
		return writeYAML(w, report)
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(fmt.Sprintf("%s %s ~ %s", report.Kind,
		report.Range.Start.Format(dateLayout), report.Range.End.Format(dateLayout)))
	tbl.AppendHeader(table.Row{"#", "Name", "Count", "Share"})
	for i, it := range report.Items {
		tbl.AppendRow(table.Row{i + 1, it.TagName, it.Count, fmt.Sprintf("%.1f%%", stats.DisplayPercent(it.Percentage))})
	}
	tbl.AppendFooter(table.Row{"", "Total", report.Total, ""})
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	tbl.Render()

	_, err := fmt.Fprintln(w, report.SummaryText)
	return err
}

// writeSnapshots prints the stored trailing-window statistics
func writeSnapshots(w io.Writer, snaps []*models.TagStatisticsSnapshot, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, snaps)
	case formatYAML:
		return writeYAML(w, snaps)
	}

	if len(snaps) == 0 {
		_, err := fmt.Fprintln(w, "No tag statistics computed yet")
		return err
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Window", "Range", "Tags", "Tainted", "Computed", "Version"})
	for _, s := range snaps {
		computed := "never"
		if s.LastComputedAt != nil {
			computed = s.LastComputedAt.Format("2006-01-02 15:04")
		}
		tbl.AppendRow(table.Row{
			fmt.Sprintf("%dd", s.RangeDays),
			s.RangeStart.Format(dateLayout) + " ~ " + s.RangeEnd.Format(dateLayout),
			len(s.Stats),
			s.Tainted,
			computed,
			s.Version,
		})
	}
	tbl.Render()
	return nil
}

func writeUser(w io.Writer, user *models.User) error {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendRows([]table.Row{
		{"ID", user.ID},
		{"Username", user.Username},
		{"Email", user.Email},
		{"Height", optional(user.Height)},
		{"Weight", optional(user.Weight)},
		{"Health goal", optional(user.HealthGoal)},
		{"Allergies", optional(user.Allergies)},
		{"Created", user.CreatedAt.Format("2006-01-02 15:04")},
	})
	tbl.Render()
	return nil
}

func optional[T any](v *T) any {
	if v == nil {
		return "-"
	}
	return *v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
