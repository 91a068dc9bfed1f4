// Package printing renders the hospital's printable documents (OP tickets,
// prescriptions and bills) as PDF.
package printing

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
)

// Letterhead is printed at the top of every document.
type Letterhead struct {
	Name     string
	Address  string
	Phone    string
	Currency string
}

// Field is one label/value line in a document header or totals block.
type Field struct {
	Label string
	Value string
}

// Column describes one table column. Width is in millimetres; Align is an
// fpdf alignment string ("L", "C" or "R").
type Column struct {
	Header string
	Width  float64
	Align  string
}

type Table struct {
	Columns []Column
	Rows    [][]string
}

// Document is a single printable page set.
type Document struct {
	Title    string
	PageSize string // fpdf size name, A4 when empty
	Fields   []Field
	Sections []Section
	Totals   []Field
	Footer   string
}

// Section is a titled block holding either a table or free text.
type Section struct {
	Heading string
	Table   *Table
	Text    string
}

type Printer struct {
	head Letterhead
	now  func() time.Time
}

func NewPrinter(head Letterhead) *Printer {
	return &Printer{head: head, now: time.Now}
}

// Money formats an amount with the configured currency code.
func (p *Printer) Money(v float64) string {
	if p.head.Currency == "" {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return p.head.Currency + " " + strconv.FormatFloat(v, 'f', 2, 64)
}

// Render writes doc as a PDF to w.
func (p *Printer) Render(w io.Writer, doc Document) error {
	size := doc.PageSize
	if size == "" {
		size = "A4"
	}
	pdf := fpdf.New("P", "mm", size, "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator(p.head.Name, true)
	pdf.SetAutoPageBreak(true, 15)

	printed := p.now().Format("02 Jan 2006 15:04")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 7)
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("%s  |  printed %s  |  page %d", doc.Footer, printed, pdf.PageNo())), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := pageW - left - right

	// Letterhead
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(width, 7, tr(p.head.Name), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	if p.head.Address != "" {
		pdf.CellFormat(width, 4, tr(p.head.Address), "", 1, "C", false, 0, "")
	}
	if p.head.Phone != "" {
		pdf.CellFormat(width, 4, tr("Phone: "+p.head.Phone), "", 1, "C", false, 0, "")
	}
	y := pdf.GetY() + 1
	pdf.Line(left, y, left+width, y)
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(width, 7, tr(doc.Title), "", 1, "C", false, 0, "")
	pdf.Ln(1)

	writeFields(pdf, tr, doc.Fields, width, "L")

	for _, sec := range doc.Sections {
		pdf.Ln(3)
		if sec.Heading != "" {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.CellFormat(width, 6, tr(sec.Heading), "", 1, "L", false, 0, "")
		}
		if sec.Table != nil {
			writeTable(pdf, tr, sec.Table)
		}
		if sec.Text != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(width, 5, tr(sec.Text), "", "L", false)
		}
	}

	if len(doc.Totals) > 0 {
		pdf.Ln(2)
		writeFields(pdf, tr, doc.Totals, width, "R")
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render %s: %w", doc.Title, err)
	}
	return pdf.Output(w)
}

func writeFields(pdf *fpdf.Fpdf, tr func(string) string, fields []Field, width float64, align string) {
	labelW := width * 0.3
	if align == "R" {
		labelW = width * 0.75
	}
	for _, f := range fields {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(labelW, 5, tr(f.Label+":"), "", 0, align, false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(width-labelW, 5, tr(" "+f.Value), "", 1, align, false, 0, "")
	}
}

func writeTable(pdf *fpdf.Fpdf, tr func(string) string, t *Table) {
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range t.Columns {
		pdf.CellFormat(col.Width, 6, tr(col.Header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			align := col.Align
			if align == "" {
				align = "L"
			}
			pdf.CellFormat(col.Width, 6, tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}
