package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strconv"
	"time"

	"home_energy/internal/model"
)

var netUsageHeader = []string{"timestamp_start_utc", "net_used_wh"}

// NetUsageReader reads the normalized net usage CSV written by pge-munge.
//
// Expected format:
//
//	timestamp_start_utc,net_used_wh
//	2021-11-07T08:00:00Z,310
type NetUsageReader struct {
	cr *csv.Reader
}

func NewNetUsageReader(r io.Reader) (*NetUsageReader, error) {
	cr := newCSVReader(r)
	if _, err := readHeader(cr, netUsageHeader...); err != nil {
		return nil, err
	}
	return &NetUsageReader{cr: cr}, nil
}

func (n *NetUsageReader) Records() iter.Seq2[model.NetUsageRecord, error] {
	return rows(n.cr, 2, len(netUsageHeader), func(record []string) (model.NetUsageRecord, error) {
		ts, err := parseTimestamp(record[0])
		if err != nil {
			return model.NetUsageRecord{}, fmt.Errorf("timestamp_start_utc: %w", err)
		}
		wh, err := model.ParseWattHours(record[1])
		if err != nil {
			return model.NetUsageRecord{}, fmt.Errorf("net_used_wh: %w", err)
		}
		return model.NetUsageRecord{HourStartUTC: ts.UTC(), NetUsed: wh}, nil
	})
}

func (n *NetUsageReader) Readings() iter.Seq2[model.Reading, error] {
	return Readings(n.Records())
}

// NetUsageWriter writes records in the format NetUsageReader reads.
type NetUsageWriter struct {
	cw *csv.Writer
}

func NewNetUsageWriter(w io.Writer) (*NetUsageWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(netUsageHeader); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return &NetUsageWriter{cw: cw}, nil
}

func (n *NetUsageWriter) Write(rec model.NetUsageRecord) error {
	return n.cw.Write([]string{
		rec.HourStartUTC.UTC().Format(time.RFC3339),
		strconv.FormatInt(int64(rec.NetUsed), 10),
	})
}

func (n *NetUsageWriter) Flush() error {
	n.cw.Flush()
	return n.cw.Error()
}
