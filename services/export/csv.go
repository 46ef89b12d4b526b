package exportsvc

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/report"
)

// Renderers returns one renderer per supported format.
func Renderers(conf *core.Config) map[string]report.Renderer {
	return map[string]report.Renderer{
		report.FormatCSV:   NewCSV(),
		report.FormatExcel: NewExcel(conf.Location()),
		report.FormatPDF:   NewPDF(conf),
	}
}

// CSV writes the first table of a report as RFC 4180 records, header first.
type CSV struct{}

var _ report.Renderer = (*CSV)(nil) // interface compliance check

func NewCSV() *CSV {
	return &CSV{}
}

func (*CSV) ContentType() string { return "text/csv" }
func (*CSV) Extension() string   { return "csv" }

func (*CSV) Render(w io.Writer, d report.Data) error {
	if len(d.Tables) != 1 {
		return errors.Errorf("%s report has %d tables, csv needs exactly one", d.Kind, len(d.Tables))
	}
	tbl := d.Tables[0]

	cw := csv.NewWriter(w)
	if err := cw.Write(tbl.Columns); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	if err := cw.WriteAll(tbl.Rows); err != nil {
		return errors.Wrap(err, "writing csv rows")
	}
	return nil
}
