package report

import (
	"context"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"

	"home_energy/internal/model"
)

// DefaultPDFMaxRows caps the rows printed per report table. Hourly reports
// run to thousands of rows; the full data is in the other formats.
const DefaultPDFMaxRows = 400

// PDFSink renders a summary document with one table per report.
type PDFSink struct {
	path    string
	run     Run
	maxRows int
	reports []pdfReport
}

type pdfReport struct {
	label   string
	rows    []model.IntervalEnergy
	omitted int
	totals  Totals
}

func NewPDFSink(path string, run Run, maxRows int) (*PDFSink, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create %s: %w", path, os.ErrExist)
	}
	if maxRows <= 0 {
		maxRows = DefaultPDFMaxRows
	}
	return &PDFSink{path: path, run: run, maxRows: maxRows}, nil
}

func (s *PDFSink) Name() string { return "pdf" }

func (s *PDFSink) WriteReport(_ context.Context, label string, rows iter.Seq[model.IntervalEnergy]) error {
	r := pdfReport{label: label}
	for row := range rows {
		r.totals.Add(row)
		if len(r.rows) < s.maxRows {
			r.rows = append(r.rows, row)
		} else {
			r.omitted++
		}
	}
	s.reports = append(s.reports, r)
	return nil
}

// Close renders the document and writes it to disk.
func (s *PDFSink) Close() error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Home Energy Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", s.run.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", s.run.Started.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Production: %d sources, %d records", s.run.Stats.ProdSources, s.run.Stats.ProdRecords))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Net usage: %d sources, %d records", s.run.Stats.UsageSources, s.run.Stats.UsageRecords))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Warnings: %d", s.run.Stats.Warnings))
	pdf.Ln(8)

	for _, r := range s.reports {
		s.renderTable(pdf, r)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", s.path, err)
	}
	if err := pdf.Output(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return f.Close()
}

func (s *PDFSink) renderTable(pdf *gofpdf.Fpdf, r pdfReport) {
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, fmt.Sprintf("%s report", r.label))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(45, 6, "Interval start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Produced (Wh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Net used (Wh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Consumed (Wh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Consumed (kWh)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range r.rows {
		pdf.CellFormat(45, 6, formatStart(row.IntervalStart), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", row.Produced), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", row.NetUsed), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", row.Consumed), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, row.Consumed.KWh().StringFixed(3), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(45, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, fmt.Sprintf("%d", r.totals.Produced), "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, fmt.Sprintf("%d", r.totals.NetUsed), "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, fmt.Sprintf("%d", r.totals.Consumed), "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 6, r.totals.Consumed.KWh().StringFixed(3), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	if r.omitted > 0 {
		pdf.SetFont("Arial", "I", 9)
		pdf.Cell(0, 6, fmt.Sprintf("%d more rows not shown", r.omitted))
		pdf.Ln(5)
	}
	pdf.Ln(6)
}

// Discard drops the buffered reports without rendering the document.
func (s *PDFSink) Discard() error {
	s.reports = nil
	return nil
}
