package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"

	"home_energy/internal/model"
)

// CSVSink writes each report to <dir>/<label>.csv. Existing files are never
// overwritten.
type CSVSink struct {
	dir string
}

// NewCSVSink creates dir if needed.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &CSVSink{dir: dir}, nil
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) WriteReport(_ context.Context, label string, rows iter.Seq[model.IntervalEnergy]) error {
	path := filepath.Join(s.dir, label+".csv")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := writeCSV(w, rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeCSV(w *csv.Writer, rows iter.Seq[model.IntervalEnergy]) error {
	if err := w.Write(Columns); err != nil {
		return err
	}
	for row := range rows {
		if err := w.Write([]string{
			formatStart(row.IntervalStart),
			strconv.FormatInt(int64(row.Produced), 10),
			strconv.FormatInt(int64(row.NetUsed), 10),
			strconv.FormatInt(int64(row.Consumed), 10),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *CSVSink) Close() error { return nil }
