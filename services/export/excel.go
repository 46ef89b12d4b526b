package exportsvc

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/piyuguide/core/report"
)

const statsSheet = "Statistics"

// Excel writes each table of a report to its own worksheet, followed by a statistics sheet.
type Excel struct {
	loc *time.Location
}

var _ report.Renderer = (*Excel)(nil) // interface compliance check

func NewExcel(loc *time.Location) *Excel {
	return &Excel{loc: loc}
}

func (*Excel) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (*Excel) Extension() string { return "xlsx" }

func (x *Excel) Render(w io.Writer, d report.Data) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}

	first := f.GetSheetName(0)
	for i, tbl := range d.Tables {
		name := sheetName(tbl.Title)
		if i == 0 {
			if err = f.SetSheetName(first, name); err != nil {
				return errors.Wrapf(err, "renaming sheet to %q", name)
			}
		} else if _, err = f.NewSheet(name); err != nil {
			return errors.Wrapf(err, "creating sheet %q", name)
		}
		if err = writeSheet(f, name, bold, tbl.Columns, tbl.Rows); err != nil {
			return err
		}
	}

	if _, err = f.NewSheet(statsSheet); err != nil {
		return errors.Wrap(err, "creating statistics sheet")
	}
	if err = writeSheet(f, statsSheet, bold, []string{"Metric", "Value"}, statsRows(d, x.loc)); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	return errors.Wrap(f.Write(w), "writing workbook")
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, columns []string, rows [][]string) error {
	if err := f.SetSheetRow(sheet, "A1", &columns); err != nil {
		return errors.Wrapf(err, "writing %s header", sheet)
	}
	last, err := excelize.ColumnNumberToName(max(len(columns), 1))
	if err != nil {
		return errors.Wrap(err, "naming last column")
	}
	if err = f.SetCellStyle(sheet, "A1", last+"1", headerStyle); err != nil {
		return errors.Wrapf(err, "styling %s header", sheet)
	}
	if err = f.SetColWidth(sheet, "A", last, 20); err != nil {
		return errors.Wrapf(err, "sizing %s columns", sheet)
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err = f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return errors.Wrapf(err, "writing %s row %d", sheet, i+1)
		}
	}
	return nil
}

// sheetName fits a table title into worksheet naming rules.
func sheetName(title string) string {
	if title == "" {
		return "Report"
	}
	if r := []rune(title); len(r) > 31 {
		return string(r[:31])
	}
	return title
}

// statsRows flattens report metadata and statistics into metric/value pairs.
func statsRows(d report.Data, loc *time.Location) [][]string {
	rows := [][]string{
		{"Report", d.Title},
		{"Office", d.OfficeName},
		{"Period", fmt.Sprintf("%s to %s", d.Range.From.In(loc).Format("2006-01-02"), d.Range.To.In(loc).Format("2006-01-02"))},
		{"Generated", d.GeneratedAt.In(loc).Format("2006-01-02 15:04")},
		{"Total", strconv.Itoa(d.Stats.Total)},
	}
	if d.Kind == report.KindInquiries || d.Kind == report.KindSummary {
		rows = append(rows,
			[]string{"Response rate (%)", strconv.FormatFloat(d.Stats.ResponseRate, 'f', 1, 64)},
			[]string{"Average resolution (hours)", strconv.FormatFloat(d.Stats.AvgResolutionHours, 'f', 1, 64)},
		)
	}

	keys := make([]string, 0, len(d.Stats.StatusBreakdown))
	for k := range d.Stats.StatusBreakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(d.Stats.StatusBreakdown[k])})
	}

	for _, m := range d.Stats.Monthly {
		change := strconv.Itoa(m.Delta)
		if m.Delta > 0 {
			change = "+" + change
		}
		rows = append(rows, []string{m.Month, fmt.Sprintf("%d (%s)", m.Count, change)})
	}
	return rows
}
