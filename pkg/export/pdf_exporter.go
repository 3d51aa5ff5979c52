package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// LabeledText pairs a caption with free-form body text.
type LabeledText struct {
	Label string
	Text  string
}

// DaySheet describes a printable one-day summary: the goal matrix, score
// totals, comments and logged incidents.
type DaySheet struct {
	Title     string
	Subtitle  string
	Table     Dataset
	Summary   []string
	Comments  []LabeledText
	Incidents []string
}

// PDFExporter renders datasets into a basic tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	e.writeTable(pdf, data)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderDaySheet creates a one-page PDF for a single school day.
func (e *PDFExporter) RenderDaySheet(sheet DaySheet) ([]byte, error) {
	if len(sheet.Table.Headers) == 0 {
		return nil, fmt.Errorf("day sheet requires a goal matrix")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(sheet.Title), "", 1, "C", false, 0, "")
	if sheet.Subtitle != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, sheet.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	e.writeTable(pdf, sheet.Table)

	if len(sheet.Summary) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 11)
		for _, line := range sheet.Summary {
			pdf.CellFormat(0, 7, line, "", 1, "L", false, 0, "")
		}
	}

	if len(sheet.Comments) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, "Comments", "", 1, "L", false, 0, "")
		for _, comment := range sheet.Comments {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(0, 6, comment.Label, "", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			pdf.MultiCell(0, 5, comment.Text, "", "L", false)
			pdf.Ln(1)
		}
	}

	if len(sheet.Incidents) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, "Incidents", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, incident := range sheet.Incidents {
			pdf.MultiCell(0, 5, "- "+incident, "", "L", false)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render day sheet pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) writeTable(pdf *gofpdf.Fpdf, data Dataset) {
	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			value := row[header]
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
