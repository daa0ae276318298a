package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"home_energy/internal/model"
)

var statsHeader = []string{"sensor_id", "start_time", "avg", "min_val", "max_val"}

// StatsReader reads Home Assistant long-term statistics CSV exports and turns
// the hourly mean power of one entity into the energy for that hour.
//
// Expected format:
//
//	sensor_id,start_time,avg,min_val,max_val
//	sensor.xxx_power,1732186800.0,-368.85,-810.0,-162.0
//
// Rows for other entities are skipped without error.
type StatsReader struct {
	cr     *csv.Reader
	entity string
	invert bool
}

// StatsOption configures a StatsReader.
type StatsOption func(*StatsReader)

// WithInvert flips the sign of every value, for meters that report export
// as positive power.
func WithInvert(invert bool) StatsOption {
	return func(s *StatsReader) { s.invert = invert }
}

func NewStatsReader(r io.Reader, entity string, opts ...StatsOption) (*StatsReader, error) {
	if entity == "" {
		return nil, fmt.Errorf("stats reader: entity is required")
	}
	cr := newCSVReader(r)
	if _, err := readHeader(cr, statsHeader...); err != nil {
		return nil, err
	}
	s := &StatsReader{cr: cr, entity: entity}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type statsRow struct {
	keep    bool
	reading model.Reading
}

func (s *StatsReader) Readings() iter.Seq2[model.Reading, error] {
	return func(yield func(model.Reading, error) bool) {
		for row, err := range rows(s.cr, 2, len(statsHeader), s.parseRecord) {
			if err != nil {
				if !yield(model.Reading{}, err) {
					return
				}
				continue
			}
			if !row.keep {
				continue
			}
			if !yield(row.reading, nil) {
				return
			}
		}
	}
}

func (s *StatsReader) parseRecord(record []string) (statsRow, error) {
	if strings.TrimSpace(record[0]) != s.entity {
		return statsRow{}, nil
	}

	ts, err := parseUnixTimestamp(strings.TrimSpace(record[1]))
	if err != nil {
		return statsRow{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	if !ts.Equal(ts.Truncate(time.Hour)) {
		return statsRow{}, fmt.Errorf("start_time %s is not on an hour boundary", ts.Format(time.RFC3339))
	}

	// Mean watts over one hour is watt-hours.
	avg, err := decimal.NewFromString(strings.TrimSpace(record[2]))
	if err != nil {
		return statsRow{}, fmt.Errorf("parsing avg: %w", err)
	}
	wh := model.WattHours(avg.Round(0).IntPart())
	if s.invert {
		wh = -wh
	}

	return statsRow{keep: true, reading: model.Reading{Timestamp: ts, Energy: wh}}, nil
}

// parseUnixTimestamp parses a Unix epoch float (seconds) into a time.Time.
func parseUnixTimestamp(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q as unix timestamp: %w", s, err)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
