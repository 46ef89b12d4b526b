package exportsvc

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/report"
)

func inquiriesData() report.Data {
	return report.Data{
		Kind:       report.KindInquiries,
		Title:      "Inquiries Report",
		OfficeName: "Guidance Office",
		Range: report.Range{
			Preset: report.RangeLast7Days,
			From:   time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC),
			To:     time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		},
		GeneratedAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Tables: []report.Table{{
			Title:   "Inquiries",
			Columns: []string{"Created", "Subject", "Student"},
			Rows: [][]string{
				{"2025-06-10 09:00", `Fees, "late"`, "Uma"},
				{"2025-06-09 09:00", "Señor Año", "Théo"},
			},
		}},
		Stats: report.Stats{
			Total:              2,
			StatusBreakdown:    map[string]int{"pending": 1, "resolved": 1},
			Monthly:            []report.MonthCount{{Month: "2025-06", Count: 2, Delta: 2}},
			ResponseRate:       50,
			AvgResolutionHours: 12.5,
		},
	}
}

func TestCSV_Render(t *testing.T) {
	r := NewCSV()
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, inquiriesData()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Created", "Subject", "Student"},
		{"2025-06-10 09:00", `Fees, "late"`, "Uma"},
		{"2025-06-09 09:00", "Señor Año", "Théo"},
	}, records)

	summary := inquiriesData()
	summary.Tables = append(summary.Tables, report.Table{Title: "Other"})
	assert.Error(t, r.Render(&buf, summary))
}

func TestExcel_Render(t *testing.T) {
	r := NewExcel(time.UTC)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, inquiriesData()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Inquiries", statsSheet}, f.GetSheetList())

	rows, err := f.GetRows("Inquiries")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Created", "Subject", "Student"}, rows[0])
	assert.Equal(t, "Señor Año", rows[2][1])

	stats, err := f.GetRows(statsSheet)
	require.NoError(t, err)
	got := map[string]string{}
	for _, row := range stats[1:] {
		got[row[0]] = row[1]
	}
	assert.Equal(t, "Guidance Office", got["Office"])
	assert.Equal(t, "2025-06-08 to 2025-06-15", got["Period"])
	assert.Equal(t, "50.0", got["Response rate (%)"])
	assert.Equal(t, "12.5", got["Average resolution (hours)"])
	assert.Equal(t, "1", got["pending"])
	assert.Equal(t, "2 (+2)", got["2025-06"])
}

func TestExcel_RenderSummary(t *testing.T) {
	d := inquiriesData()
	d.Kind = report.KindSummary
	d.Tables = []report.Table{
		{Title: "Overview", Columns: []string{"Metric", "Value"}, Rows: [][]string{{"Total inquiries", "2"}}},
		{Title: "Inquiries by Status", Columns: []string{"Status", "Count"}, Rows: [][]string{{"pending", "1"}}},
	}
	var buf bytes.Buffer
	require.NoError(t, NewExcel(time.UTC).Render(&buf, d))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Overview", "Inquiries by Status", statsSheet}, f.GetSheetList())
}

func TestPDF_Render(t *testing.T) {
	conf := &core.Config{Timezone: "UTC"}
	r := NewPDF(conf)

	d := inquiriesData()
	for i := 0; i < 120; i++ {
		d.Tables[0].Rows = append(d.Tables[0].Rows, []string{"2025-06-09 09:00", strings.Repeat("long subject ", 10), "Uma"})
	}
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, d))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, bytes.Count(buf.Bytes(), []byte("/Type /Page\n")), 1, "rows flow onto more pages")
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Report", sheetName(""))
	assert.Equal(t, "Monthly Trend", sheetName("Monthly Trend"))
	assert.Len(t, sheetName(strings.Repeat("x", 40)), 31)
}

func TestRenderers(t *testing.T) {
	rs := Renderers(&core.Config{})
	for format, ext := range map[string]string{report.FormatCSV: "csv", report.FormatExcel: "xlsx", report.FormatPDF: "pdf"} {
		require.Contains(t, rs, format)
		assert.Equal(t, ext, rs[format].Extension())
	}
}
