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

var productionHeader = []string{"datetime_utc", "datetime_local", "energy_wh"}

// ProductionReader reads solar production CSV files as written by
// enphase-fetch.
//
// Expected format:
//
//	datetime_utc,datetime_local,energy_wh
//	2021-11-06T17:00:00Z,2021-11-06T10:00:00-07:00,312
type ProductionReader struct {
	cr *csv.Reader
}

// NewProductionReader validates the header and returns a reader positioned
// at the first record.
func NewProductionReader(r io.Reader) (*ProductionReader, error) {
	cr := newCSVReader(r)
	if _, err := readHeader(cr, productionHeader...); err != nil {
		return nil, err
	}
	return &ProductionReader{cr: cr}, nil
}

// Records streams the file's records. It can be ranged over once.
func (p *ProductionReader) Records() iter.Seq2[model.ProductionRecord, error] {
	return rows(p.cr, 2, len(productionHeader), parseProductionRecord)
}

func (p *ProductionReader) Readings() iter.Seq2[model.Reading, error] {
	return Readings(p.Records())
}

func parseProductionRecord(record []string) (model.ProductionRecord, error) {
	utc, err := parseTimestamp(record[0])
	if err != nil {
		return model.ProductionRecord{}, fmt.Errorf("datetime_utc: %w", err)
	}
	local, err := parseTimestamp(record[1])
	if err != nil {
		return model.ProductionRecord{}, fmt.Errorf("datetime_local: %w", err)
	}
	if !utc.Equal(local) {
		return model.ProductionRecord{}, fmt.Errorf("datetime_local %s is not the same instant as datetime_utc %s",
			local.Format(time.RFC3339), utc.Format(time.RFC3339))
	}
	wh, err := model.ParseWattHours(record[2])
	if err != nil {
		return model.ProductionRecord{}, fmt.Errorf("energy_wh: %w", err)
	}
	return model.ProductionRecord{
		TimestampUTC:   utc.UTC(),
		TimestampLocal: local,
		Energy:         wh,
	}, nil
}

// ProductionWriter writes records in the format ProductionReader reads.
type ProductionWriter struct {
	cw *csv.Writer
}

func NewProductionWriter(w io.Writer) (*ProductionWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(productionHeader); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return &ProductionWriter{cw: cw}, nil
}

func (p *ProductionWriter) Write(rec model.ProductionRecord) error {
	return p.cw.Write([]string{
		rec.TimestampUTC.UTC().Format(time.RFC3339),
		rec.TimestampLocal.Format(time.RFC3339),
		strconv.FormatInt(int64(rec.Energy), 10),
	})
}

// Flush writes any buffered records and reports the first write error.
func (p *ProductionWriter) Flush() error {
	p.cw.Flush()
	return p.cw.Error()
}
