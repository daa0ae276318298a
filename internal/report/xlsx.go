package report

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"home_energy/internal/model"
)

const summarySheet = "summary"

// XLSXSink collects every report into one workbook, one sheet per report,
// and writes it on Close.
type XLSXSink struct {
	path   string
	run    Run
	f      *excelize.File
	totals []labeledTotals
}

type labeledTotals struct {
	label string
	Totals
}

func NewXLSXSink(path string, run Run) (*XLSXSink, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create %s: %w", path, os.ErrExist)
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	return &XLSXSink{path: path, run: run, f: f}, nil
}

func (s *XLSXSink) Name() string { return "xlsx" }

func (s *XLSXSink) WriteReport(_ context.Context, label string, rows iter.Seq[model.IntervalEnergy]) error {
	if _, err := s.f.NewSheet(label); err != nil {
		return fmt.Errorf("new sheet %s: %w", label, err)
	}

	headers := []any{"interval_start", "produced_wh", "net_used_wh", "consumed_wh", "consumed_kwh"}
	if err := s.f.SetSheetRow(label, "A1", &headers); err != nil {
		return err
	}

	var t Totals
	r := 2
	for row := range rows {
		kwh, _ := row.Consumed.KWh().Float64()
		values := []any{
			formatStart(row.IntervalStart),
			int64(row.Produced),
			int64(row.NetUsed),
			int64(row.Consumed),
			kwh,
		}
		cell, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		if err := s.f.SetSheetRow(label, cell, &values); err != nil {
			return err
		}
		t.Add(row)
		r++
	}
	s.totals = append(s.totals, labeledTotals{label: label, Totals: t})
	return nil
}

// Close fills the summary sheet and writes the workbook. Nothing is written
// if the summary cannot be filled.
func (s *XLSXSink) Close() error {
	defer s.f.Close()

	var errs []error
	set := func(cell string, value any) {
		if err := s.f.SetCellValue(summarySheet, cell, value); err != nil {
			errs = append(errs, fmt.Errorf("summary %s: %w", cell, err))
		}
	}
	setRow := func(row int, values []any) {
		cell := fmt.Sprintf("A%d", row)
		if err := s.f.SetSheetRow(summarySheet, cell, &values); err != nil {
			errs = append(errs, fmt.Errorf("summary %s: %w", cell, err))
		}
	}

	set("A1", "Home energy report")
	set("A3", "Run ID")
	set("B3", s.run.ID.String())
	set("A4", "Generated")
	set("B4", s.run.Started.Format(time.RFC3339))

	counters := []struct {
		name  string
		value int
	}{
		{"Warnings", s.run.Stats.Warnings},
		{"Production sources", s.run.Stats.ProdSources},
		{"Production records", s.run.Stats.ProdRecords},
		{"Production duplicate hours", s.run.Stats.ProdDupsOK},
		{"Net usage sources", s.run.Stats.UsageSources},
		{"Net usage records", s.run.Stats.UsageRecords},
		{"Net usage duplicate hours", s.run.Stats.UsageDupsOK},
	}
	row := 6
	for _, c := range counters {
		setRow(row, []any{c.name, c.value})
		row++
	}

	row++
	setRow(row, []any{"report", "rows", "produced_wh", "net_used_wh", "consumed_wh"})
	for _, t := range s.totals {
		row++
		setRow(row, []any{t.label, t.Rows, int64(t.Produced), int64(t.NetUsed), int64(t.Consumed)})
	}
	if len(errs) > 0 {
		return fmt.Errorf("fill %s: %w", s.path, errors.Join(errs...))
	}

	out, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", s.path, err)
	}
	if err := s.f.Write(out); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return out.Close()
}

// Discard releases the workbook without writing it.
func (s *XLSXSink) Discard() error {
	s.totals = nil
	return s.f.Close()
}
