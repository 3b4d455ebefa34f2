// Package reportpdf lays out a blood report as a printable A4 document.
package reportpdf

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/bloodlab/bloodlab/internal/domain/bloodreport"
)

// Options customise the letterhead and signature block.
type Options struct {
	LabName       string
	Technician    string
	Pathologist   string
	Qualification string
	RegNo         string
}

func (o Options) withDefaults() Options {
	if o.LabName == "" {
		o.LabName = "Blood Lab"
	}
	if o.Technician == "" {
		o.Technician = "Lab Technician"
	}
	if o.Pathologist == "" {
		o.Pathologist = "Dr. [Name]"
	}
	if o.Qualification == "" {
		o.Qualification = "MBBS, DCP"
	}
	if o.RegNo == "" {
		o.RegNo = "-"
	}
	return o
}

const (
	marginLeft   = 15.0
	marginTop    = 15.0
	marginBottom = 20.0
	rowHeight    = 6.0
	noteHeight   = 5.5
	contentWidth = 180.0
)

// column widths: description, observed value, reference range & units
var colWidths = [3]float64{80, 40, 60}

// Renderer writes reports as PDF. It is safe for concurrent use; each call
// builds its own document.
type Renderer struct {
	opts Options
	now  func() time.Time
}

func New(opts Options) *Renderer {
	return &Renderer{opts: opts.withDefaults(), now: time.Now}
}

// Category is a run of tests sharing a category, in first-seen order.
type Category struct {
	Name  string
	Tests []bloodreport.Test
}

// GroupByCategory buckets tests by category keeping the order in which each
// category first appears. Blank categories fall under the default one.
func GroupByCategory(tests []bloodreport.Test) []Category {
	var out []Category
	index := map[string]int{}
	for _, t := range tests {
		name := strings.TrimSpace(t.Category)
		if name == "" {
			name = bloodreport.DefaultCategory
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, Category{Name: name})
		}
		out[i].Tests = append(out[i].Tests, t)
	}
	return out
}

// Render writes r as a PDF document to w.
func (p *Renderer) Render(w io.Writer, r *bloodreport.Report) error {
	if r == nil {
		return fmt.Errorf("render report: nil report")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginLeft, marginTop, marginLeft)
	pdf.SetAutoPageBreak(false, marginBottom)
	pdf.SetTitle(fmt.Sprintf("Blood Report %s", r.ReportNumber), true)
	pdf.SetCreator(p.opts.LabName, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("%s  |  %s  |  Page %d", p.opts.LabName, r.ReportNumber, pdf.PageNo())), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()
	p.header(pdf, tr, r)

	for _, cat := range GroupByCategory(r.Tests) {
		p.ensureSpace(pdf, rowHeight*4)
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "BU", 13)
		pdf.CellFormat(0, 8, tr(strings.ToUpper(cat.Name)), "", 1, "L", false, 0, "")
		tableHeader(pdf, tr)

		for _, t := range cat.Tests {
			row := layoutRow(pdf, tr, t)
			if p.ensureSpace(pdf, row.height) {
				tableHeader(pdf, tr)
			}
			drawRow(pdf, row)
		}
	}

	if r.DoctorNotes != nil && strings.TrimSpace(*r.DoctorNotes) != "" {
		p.notes(pdf, tr, *r.DoctorNotes)
	}

	p.signature(pdf, tr)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render report %s: %w", r.ReportNumber, err)
	}
	return pdf.Output(w)
}

func (p *Renderer) header(pdf *fpdf.Fpdf, tr func(string) string, r *bloodreport.Report) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, tr(p.opts.LabName), "", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "Lab Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	var name, ageSex string
	if r.Patient != nil {
		name = r.Patient.Name
		age := "-"
		if r.Patient.Age != nil {
			age = strconv.Itoa(*r.Patient.Age) + " yrs"
		}
		ageSex = fmt.Sprintf("%s, %s", age, r.Patient.Gender)
	}

	rows := [][2]string{
		{"Name : " + name, "Visit ID : " + r.ReportNumber},
		{"Age & Sex : " + ageSex, "Collected on : " + r.ReportDate.Format("02 Jan 2006")},
		{"Ref by : -", "Reported on : " + p.now().Format("02 Jan 2006 15:04")},
		{"Outlet : -", "Status : " + r.Status},
	}
	pdf.SetFont("Helvetica", "", 11)
	for _, row := range rows {
		pdf.CellFormat(95, 6, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(row[1]), "", 1, "L", false, 0, "")
	}

	pdf.Ln(2)
	y := pdf.GetY()
	pageW, _ := pdf.GetPageSize()
	pdf.SetDrawColor(160, 160, 160)
	pdf.Line(marginLeft, y, pageW-marginLeft, y)
	pdf.Ln(2)
}

func tableHeader(pdf *fpdf.Fpdf, tr func(string) string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(colWidths[0], 7, tr("Test Description"), "B", 0, "L", true, 0, "")
	pdf.CellFormat(colWidths[1], 7, tr("Observed Value"), "B", 0, "L", true, 0, "")
	pdf.CellFormat(colWidths[2], 7, tr("Reference Range & Units"), "B", 1, "L", true, 0, "")
}

// row is a test line with every column already wrapped to its width.
type row struct {
	cols     [3][]string
	abnormal bool
	height   float64
}

func layoutRow(pdf *fpdf.Fpdf, tr func(string) string, t bloodreport.Test) row {
	value := t.ResultValue
	if t.IsAbnormal {
		value += " *"
	}

	r := row{abnormal: t.IsAbnormal}
	pdf.SetFont("Helvetica", "", 10)
	r.cols[0] = wrap(pdf, tr(t.TestName), colWidths[0])
	r.cols[2] = wrap(pdf, tr(referenceText(t)), colWidths[2])
	if t.IsAbnormal {
		pdf.SetFont("Helvetica", "B", 10)
	}
	r.cols[1] = wrap(pdf, tr(value), colWidths[1])
	pdf.SetFont("Helvetica", "", 10)

	lines := max(len(r.cols[0]), len(r.cols[1]), len(r.cols[2]))
	r.height = float64(lines) * rowHeight
	return r
}

// drawRow prints r at the cursor, abnormal values bold red, and moves the
// cursor below its tallest column.
func drawRow(pdf *fpdf.Fpdf, r row) {
	x, y := pdf.GetXY()
	for i, lines := range r.cols {
		if i == 1 && r.abnormal {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.SetTextColor(200, 30, 30)
		}
		for j, line := range lines {
			pdf.SetXY(x, y+float64(j)*rowHeight)
			pdf.CellFormat(colWidths[i], rowHeight, line, "", 0, "L", false, 0, "")
		}
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "", 10)
		x += colWidths[i]
	}
	pdf.SetXY(marginLeft, y+r.height)
}

// wrap splits already translated text into lines no wider than w in the
// current font. It never returns an empty slice.
func wrap(pdf *fpdf.Fpdf, s string, w float64) []string {
	var out []string
	for _, l := range pdf.SplitLines([]byte(s), w) {
		out = append(out, string(l))
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

func (p *Renderer) notes(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	p.ensureSpace(pdf, 14+noteHeight*2)
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "BU", 13)
	pdf.CellFormat(0, 8, "Doctor Notes", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, line := range wrap(pdf, tr(text), contentWidth) {
		if p.ensureSpace(pdf, noteHeight) {
			pdf.SetFont("Helvetica", "", 11)
		}
		pdf.CellFormat(contentWidth, noteHeight, line, "", 1, "L", false, 0, "")
	}
}

func referenceText(t bloodreport.Test) string {
	rng := "-"
	if t.NormalRange != nil && strings.TrimSpace(*t.NormalRange) != "" {
		rng = *t.NormalRange
	}
	if t.Unit != nil && *t.Unit != "" {
		return rng + " " + *t.Unit
	}
	return rng
}

func (p *Renderer) signature(pdf *fpdf.Fpdf, tr func(string) string) {
	p.ensureSpace(pdf, 55)
	pdf.Ln(14)
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 5.5, "Issued By", "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5.5, tr(p.opts.Technician), "", 1, "L", false, 0, "")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 5.5, "Clinical Pathologist", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 5.5, tr(p.opts.Pathologist), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5.5, tr(p.opts.Qualification), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5.5, tr("Reg.No: "+p.opts.RegNo), "", 1, "L", false, 0, "")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 5, "** End of report **", "", 1, "C", false, 0, "")
}

// ensureSpace starts a new page when fewer than h millimetres remain above
// the bottom margin and reports whether it did.
func (p *Renderer) ensureSpace(pdf *fpdf.Fpdf, h float64) bool {
	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+h <= pageH-marginBottom {
		return false
	}
	pdf.AddPage()
	return true
}
