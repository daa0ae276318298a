package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"home_energy/internal/model"
)

// pgeMetadataLines is the number of account description lines PG&E puts
// above the CSV header.
const pgeMetadataLines = 5

// pgeRecordSpan is the wall-clock span of one hourly record. PG&E times are
// to the minute, so 01:00-01:59 covers the hour starting at 01:00.
const pgeRecordSpan = 59 * time.Minute

var pgeHeader = []string{"TYPE", "DATE", "START TIME", "END TIME", "USAGE", "UNITS", "COST", "NOTES"}

// ErrNoSuchLocalTime is returned for wall-clock times skipped by a daylight
// saving transition.
var ErrNoSuchLocalTime = errors.New("local time does not exist")

// PGEReader reads PG&E "Green Button" electricity interval exports.
//
// Expected format, after five lines of account metadata:
//
//	TYPE,DATE,START TIME,END TIME,USAGE,UNITS,COST,NOTES
//	Electric usage,2021-11-07,01:00,01:59,0.31,kWh,$0.08,
//
// Times are local wall-clock times in the reader's location. When a
// daylight saving transition repeats an hour, the second record for that
// wall-clock hour is placed on the later instant.
type PGEReader struct {
	cr   *csv.Reader
	loc  *time.Location
	last time.Time
}

// NewPGEReader skips the metadata lines and validates the header. loc is the
// zone of the export's wall-clock times; nil means time.Local.
func NewPGEReader(r io.Reader, loc *time.Location) (*PGEReader, error) {
	if loc == nil {
		loc = time.Local
	}

	br := bufio.NewReader(r)
	for i := 0; i < pgeMetadataLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: file ends within metadata (line %d)", ErrHeader, i+1)
			}
			return nil, fmt.Errorf("reading line %d: %w", i+1, err)
		}
	}

	cr := newCSVReader(br)
	if _, err := readHeader(cr, pgeHeader...); err != nil {
		return nil, err
	}
	return &PGEReader{cr: cr, loc: loc}, nil
}

// Records streams the hourly net usage records. It can be ranged over once.
func (p *PGEReader) Records() iter.Seq2[model.NetUsageRecord, error] {
	// header is line 6; USAGE through UNITS are required, COST and NOTES may
	// be cut off on some exports.
	return rows(p.cr, pgeMetadataLines+2, 6, p.parseRecord)
}

func (p *PGEReader) Readings() iter.Seq2[model.Reading, error] {
	return Readings(p.Records())
}

func (p *PGEReader) parseRecord(record []string) (model.NetUsageRecord, error) {
	if typ := strings.TrimSpace(record[0]); typ != "Electric usage" {
		return model.NetUsageRecord{}, fmt.Errorf("unsupported TYPE %q", typ)
	}
	if units := strings.TrimSpace(record[5]); units != "kWh" {
		return model.NetUsageRecord{}, fmt.Errorf("unsupported UNITS %q", units)
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[1]))
	if err != nil {
		return model.NetUsageRecord{}, fmt.Errorf("parsing DATE: %w", err)
	}
	start, err := wallClock(date, record[2])
	if err != nil {
		return model.NetUsageRecord{}, fmt.Errorf("parsing START TIME: %w", err)
	}
	end, err := wallClock(date, record[3])
	if err != nil {
		return model.NetUsageRecord{}, fmt.Errorf("parsing END TIME: %w", err)
	}
	if span := end.Sub(start); span != pgeRecordSpan {
		return model.NetUsageRecord{}, fmt.Errorf("unexpected interval covered by record (expected %s, found %s)", pgeRecordSpan, span)
	}

	usage, err := model.ParseKWh(record[4])
	if err != nil {
		return model.NetUsageRecord{}, fmt.Errorf("parsing USAGE: %w", err)
	}

	ts, err := resolveLocal(start, p.loc, p.last)
	if err != nil {
		return model.NetUsageRecord{}, err
	}
	p.last = ts

	return model.NetUsageRecord{HourStartUTC: ts, NetUsed: usage}, nil
}

// wallClock combines a date and an "HH:MM" clock reading into a naive time
// (fields held in UTC, no zone meaning).
func wallClock(date time.Time, clock string) (time.Time, error) {
	c, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, time.UTC), nil
}

// resolveLocal maps a naive wall-clock time to a UTC instant in loc. An
// ambiguous time resolves to the earlier instant unless that would not move
// past prev, the instant of the previous record.
func resolveLocal(wall time.Time, loc *time.Location, prev time.Time) (time.Time, error) {
	candidates := localCandidates(wall, loc)
	switch len(candidates) {
	case 0:
		return time.Time{}, fmt.Errorf("%w: %s in %s", ErrNoSuchLocalTime, wall.Format("2006-01-02 15:04"), loc)
	case 1:
		return candidates[0], nil
	}
	if !prev.IsZero() && !candidates[0].After(prev) {
		return candidates[1], nil
	}
	return candidates[0], nil
}

// localCandidates returns every UTC instant, in ascending order, whose
// wall-clock time in loc equals wall.
func localCandidates(wall time.Time, loc *time.Location) []time.Time {
	var out []time.Time
	for _, probe := range []time.Duration{-12 * time.Hour, 12 * time.Hour} {
		_, offset := wall.Add(probe).In(loc).Zone()
		t := wall.Add(-time.Duration(offset) * time.Second)
		if !sameWallClock(t.In(loc), wall) {
			continue
		}
		if len(out) > 0 && out[0].Equal(t) {
			continue
		}
		out = append(out, t.UTC())
	}
	if len(out) == 2 && out[1].Before(out[0]) {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

func sameWallClock(local, wall time.Time) bool {
	y, m, d := local.Date()
	wy, wm, wd := wall.Date()
	return y == wy && m == wm && d == wd &&
		local.Hour() == wall.Hour() && local.Minute() == wall.Minute()
}
