package report

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"
)

// Report kinds
const (
	KindInquiries  = "inquiries"
	KindCounseling = "counseling"
	KindActivity   = "activity"
	KindSummary    = "summary"
)

// Formats
const (
	FormatCSV   = "csv"
	FormatExcel = "excel"
	FormatPDF   = "pdf"
)

// Date range presets
const (
	RangeLast7Days    = "last_7_days"
	RangeLast30Days   = "last_30_days"
	RangeLast90Days   = "last_90_days"
	RangeCurrentMonth = "current_month"
	RangeCurrentYear  = "current_year"
)

var (
	Kinds  = []string{KindInquiries, KindCounseling, KindActivity, KindSummary}
	Ranges = []string{RangeLast7Days, RangeLast30Days, RangeLast90Days, RangeCurrentMonth, RangeCurrentYear}
)

// Formats returns the formats `kind` can be rendered to.
func Formats(kind string) []string {
	return append([]string(nil), formats[kind]...)
}

// formats lists the formats each kind can be rendered to.
var formats = map[string][]string{
	KindInquiries:  {FormatCSV, FormatExcel, FormatPDF},
	KindCounseling: {FormatCSV, FormatExcel, FormatPDF},
	KindActivity:   {FormatCSV, FormatExcel, FormatPDF},
	KindSummary:    {FormatExcel, FormatPDF},
}

type Filters struct {
	Status        string `json:"status"`
	ConcernTypeID string `json:"concern_type_id"`
}

type Request struct {
	ReportType string  `json:"report_type" validate:"required"`
	DateRange  string  `json:"date_range" validate:"required"`
	Format     string  `json:"format" validate:"required"`
	Filters    Filters `json:"filters"`
}

func (r Request) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// Range is a half-open [From, To) interval in UTC.
type Range struct {
	Preset string
	From   time.Time
	To     time.Time
}

// Table is a titled record set.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
	Delta int    `json:"delta"` // change from the previous month
}

type Stats struct {
	Total           int            `json:"total"`
	StatusBreakdown map[string]int `json:"status_breakdown"`
	Monthly         []MonthCount   `json:"monthly"`
	// ResponseRate is the percentage of inquiries that got a first response.
	ResponseRate float64 `json:"response_rate"`
	// AvgResolutionHours is averaged over resolved inquiries; zero when none are.
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
}

// Data is the format-agnostic result of an aggregation.
// Tabular kinds have a single table; the summary has one per section.
type Data struct {
	Kind        string
	Title       string
	OfficeName  string
	Range       Range
	GeneratedAt time.Time
	Tables      []Table
	Stats       Stats
}

// Renderer writes Data in one file format.
type Renderer interface {
	Render(w io.Writer, d Data) error
	ContentType() string
	Extension() string
}

// File is a rendered report.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}
