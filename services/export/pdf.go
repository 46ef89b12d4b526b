package exportsvc

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/report"
)

const (
	pdfMargin    = 1.0 // inches
	pdfRowHeight = 0.22
	pdfFont      = "Helvetica"
)

// PDF lays a report out on A4 pages: a header band with the office logo and title,
// the statistics, then every table. Each page footer carries the page number and
// a confidentiality notice.
type PDF struct {
	logoPath string
	loc      *time.Location
}

var _ report.Renderer = (*PDF)(nil) // interface compliance check

func NewPDF(conf *core.Config) *PDF {
	return &PDF{logoPath: conf.Reports.LogoPath, loc: conf.Location()}
}

func (*PDF) ContentType() string { return "application/pdf" }
func (*PDF) Extension() string   { return "pdf" }

func (p *PDF) Render(w io.Writer, d report.Data) error {
	doc := fpdf.New("P", "in", "A4", "")
	doc.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	doc.SetAutoPageBreak(true, pdfMargin)
	doc.SetTitle(d.Title, true)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	logo := ""
	if p.logoPath != "" {
		if _, err := os.Stat(p.logoPath); err == nil {
			logo = p.logoPath
		}
	}
	period := fmt.Sprintf("%s to %s", d.Range.From.In(p.loc).Format("2006-01-02"), d.Range.To.In(p.loc).Format("2006-01-02"))

	doc.SetHeaderFunc(func() {
		if logo != "" {
			doc.ImageOptions(logo, pdfMargin, 0.35, 0, 0.5, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
		}
		doc.SetXY(pdfMargin, 0.4)
		doc.SetFont(pdfFont, "B", 14)
		doc.CellFormat(0, 0.25, tr(d.Title), "", 1, "C", false, 0, "")
		doc.SetFont(pdfFont, "", 9)
		doc.CellFormat(0, 0.2, tr(d.OfficeName+"  |  "+period), "", 1, "C", false, 0, "")
		doc.SetY(pdfMargin)
	})
	doc.SetFooterFunc(func() {
		doc.SetY(-0.7)
		doc.SetFont(pdfFont, "I", 8)
		doc.CellFormat(0, 0.2, fmt.Sprintf("Page %d", doc.PageNo()), "", 0, "L", false, 0, "")
		doc.SetX(pdfMargin)
		doc.CellFormat(0, 0.2, "Confidential", "", 0, "R", false, 0, "")
	})

	doc.AddPage()
	p.table(doc, tr, report.Table{Title: "Statistics", Columns: []string{"Metric", "Value"}, Rows: statsRows(d, p.loc)})
	for _, tbl := range d.Tables {
		p.table(doc, tr, tbl)
	}

	return errors.Wrap(doc.Output(w), "writing pdf")
}

func (p *PDF) table(doc *fpdf.Fpdf, tr func(string) string, tbl report.Table) {
	if len(tbl.Columns) == 0 {
		return
	}
	pageW, pageH := doc.GetPageSize()
	colW := (pageW - 2*pdfMargin) / float64(len(tbl.Columns))

	header := func() {
		doc.SetFont(pdfFont, "B", 8)
		doc.SetFillColor(230, 230, 230)
		for _, col := range tbl.Columns {
			doc.CellFormat(colW, pdfRowHeight, fit(doc, tr(col), colW), "1", 0, "L", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont(pdfFont, "", 8)
	}

	doc.Ln(0.15)
	doc.SetFont(pdfFont, "B", 11)
	doc.CellFormat(0, 0.3, tr(tbl.Title), "", 1, "L", false, 0, "")
	header()
	for _, row := range tbl.Rows {
		if doc.GetY()+pdfRowHeight > pageH-pdfMargin {
			doc.AddPage()
			header()
		}
		for i := range tbl.Columns {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			doc.CellFormat(colW, pdfRowHeight, fit(doc, tr(val), colW), "1", 0, "L", false, 0, "")
		}
		doc.Ln(-1)
	}
}

// fit truncates s so that it fits in a cell of width w at the current font.
// s is already translated to the single-byte font encoding.
func fit(doc *fpdf.Fpdf, s string, w float64) string {
	const pad = 0.08
	if doc.GetStringWidth(s) <= w-pad {
		return s
	}
	for len(s) > 0 && doc.GetStringWidth(s+"...") > w-pad {
		s = s[:len(s)-1]
	}
	return s + "..."
}
