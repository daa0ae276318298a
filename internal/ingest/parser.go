// Package ingest reads energy data files into lazy record streams and writes
// the normalized CSV formats produced by the fetch and munge tools.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"home_energy/internal/model"
)

// ErrHeader is returned when a file does not start with the expected columns.
var ErrHeader = errors.New("unexpected CSV header")

// RecordError describes one record that could not be used. Readers yield it
// and keep going.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Record is anything that can be handed to the aggregator as a reading.
type Record interface {
	Reading() model.Reading
}

// Readings adapts a typed record stream to the aggregator's input.
func Readings[T Record](records iter.Seq2[T, error]) iter.Seq2[model.Reading, error] {
	return func(yield func(model.Reading, error) bool) {
		for rec, err := range records {
			if err != nil {
				if !yield(model.Reading{}, err) {
					return
				}
				continue
			}
			if !yield(rec.Reading(), nil) {
				return
			}
		}
	}
}

// columns validates header against the expected column names and returns
// each name's index. Extra columns are allowed; expected ones must come
// first and in order.
func columns(header []string, expected ...string) (map[string]int, error) {
	if len(header) < len(expected) {
		return nil, fmt.Errorf("%w: expected columns %q, got %q", ErrHeader, expected, header)
	}

	idx := make(map[string]int, len(expected))
	for i, col := range expected {
		got := strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
		if got != col {
			return nil, fmt.Errorf("%w: expected column %d to be %q, got %q (expected columns %q)", ErrHeader, i, col, header[i], expected)
		}
		idx[col] = i
	}
	return idx, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

func readHeader(cr *csv.Reader, expected ...string) (map[string]int, error) {
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	return columns(header, expected...)
}

// rows yields parsed records from cr. Malformed rows become *RecordError
// values; an I/O error ends the stream after being yielded.
func rows[T any](cr *csv.Reader, firstLine, width int, parse func([]string) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		lineNum := firstLine - 1
		for {
			lineNum++
			record, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				var pe *csv.ParseError
				if errors.As(err, &pe) {
					if !yield(zero, &RecordError{Line: lineNum, Err: err}) {
						return
					}
					continue
				}
				yield(zero, fmt.Errorf("reading CSV line %d: %w", lineNum, err))
				return
			}
			if len(record) < width {
				if !yield(zero, &RecordError{Line: lineNum, Err: fmt.Errorf("expected %d fields, got %d", width, len(record))}) {
					return
				}
				continue
			}

			v, err := parse(record)
			if err != nil {
				if !yield(zero, &RecordError{Line: lineNum, Err: err}) {
					return
				}
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return ts, nil
}
