package ingest

import (
	"errors"
	"io"
	"iter"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home_energy/internal/model"
)

type loadCall struct {
	category string
	src      model.Source
	readings int
	errs     int
}

type fakeLoader struct {
	calls []loadCall
	fail  error
}

func (f *fakeLoader) record(category string, src model.Source, seq iter.Seq2[model.Reading, error]) error {
	if f.fail != nil {
		return f.fail
	}
	c := loadCall{category: category, src: src}
	for _, err := range seq {
		if err != nil {
			c.errs++
			continue
		}
		c.readings++
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeLoader) LoadProduction(src model.Source, seq iter.Seq2[model.Reading, error]) error {
	return f.record("production", src, seq)
}

func (f *fakeLoader) LoadNetUsage(src model.Source, seq iter.Seq2[model.Reading, error]) error {
	return f.record("net_usage", src, seq)
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("b.csv", "datetime_utc,datetime_local,energy_wh\n2021-11-06T17:00:00Z,2021-11-06T17:00:00Z,5\n")
	write("a.csv", "datetime_utc,datetime_local,energy_wh\n2021-11-06T18:00:00Z,2021-11-06T18:00:00Z,6\nbad,row,x\n")
	write("usage.csv", "timestamp_start_utc,net_used_wh\n2021-11-06T17:00:00Z,-3\n")

	l := &fakeLoader{}
	err := LoadAll(l, []Spec{
		{Kind: KindProduction, Glob: filepath.Join(dir, "*.csv")},
		{Kind: KindNetUsage, Glob: filepath.Join(dir, "usage.csv")},
		{Kind: KindPGE, Glob: filepath.Join(dir, "pge_*.csv")},
	}, time.UTC, quietLogger())

	// usage.csv matches the production glob too and has the wrong header.
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeader)
	assert.Contains(t, err.Error(), "usage.csv")

	require.Len(t, l.calls, 2)
	assert.Equal(t, model.Source(filepath.Join(dir, "a.csv")), l.calls[0].src)
	assert.Equal(t, 1, l.calls[0].readings)
	assert.Equal(t, 1, l.calls[0].errs)
	assert.Equal(t, model.Source(filepath.Join(dir, "b.csv")), l.calls[1].src)
}

func TestLoad_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		spec     Spec
		input    string
		category string
	}{
		{
			name:     "production",
			spec:     Spec{Kind: KindProduction},
			input:    "datetime_utc,datetime_local,energy_wh\n2021-11-06T17:00:00Z,2021-11-06T17:00:00Z,5\n",
			category: "production",
		},
		{
			name:     "pge",
			spec:     Spec{Kind: KindPGE},
			input:    pgeMeta + "TYPE,DATE,START TIME,END TIME,USAGE,UNITS,COST,NOTES\nElectric usage,2021-06-01,10:00,10:59,0.5,kWh,,\n",
			category: "net_usage",
		},
		{
			name:     "net usage",
			spec:     Spec{Kind: KindNetUsage},
			input:    "timestamp_start_utc,net_used_wh\n2021-11-06T17:00:00Z,-3\n",
			category: "net_usage",
		},
		{
			name:     "ha stats as production",
			spec:     Spec{Kind: KindHAStats, Entity: "sensor.pv", Category: "production"},
			input:    "sensor_id,start_time,avg,min_val,max_val\nsensor.pv,1732186800.0,1500,0,0\n",
			category: "production",
		},
		{
			name:     "ha stats defaults to net usage",
			spec:     Spec{Kind: KindHAStats, Entity: "sensor.grid"},
			input:    "sensor_id,start_time,avg,min_val,max_val\nsensor.grid,1732186800.0,-20,0,0\n",
			category: "net_usage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLoader{}
			err := Load(l, tt.spec, "stdin", strings.NewReader(tt.input), time.UTC)
			require.NoError(t, err)
			require.Len(t, l.calls, 1)
			assert.Equal(t, tt.category, l.calls[0].category)
			assert.Equal(t, 1, l.calls[0].readings)
			assert.Equal(t, 0, l.calls[0].errs)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	l := &fakeLoader{}
	err := Load(l, Spec{Kind: "xml"}, "stdin", strings.NewReader(""), time.UTC)
	assert.ErrorContains(t, err, "unknown source kind")

	err = Load(l, Spec{Kind: KindHAStats, Entity: "sensor.x", Category: "weather"}, "stdin",
		strings.NewReader("sensor_id,start_time,avg,min_val,max_val\n"), time.UTC)
	assert.ErrorContains(t, err, "unknown category")

	dup := errors.New("source already loaded")
	l = &fakeLoader{fail: dup}
	err = Load(l, Spec{Kind: KindNetUsage}, "stdin", strings.NewReader("timestamp_start_utc,net_used_wh\n"), time.UTC)
	assert.ErrorIs(t, err, dup)

	err = LoadFile(l, Spec{Kind: KindNetUsage}, filepath.Join(t.TempDir(), "missing.csv"), time.UTC)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
