package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home_energy/internal/ingest"
)

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

func TestMunge_Sample(t *testing.T) {
	f, err := os.Open("../../internal/ingest/testdata/pge_electric_interval_data_sample.csv")
	require.NoError(t, err)
	defer f.Close()

	var out bytes.Buffer
	require.NoError(t, munge(f, &out, losAngeles(t)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 6)
	assert.Equal(t, "timestamp_start_utc,net_used_wh", lines[0])
	assert.Equal(t, "2021-11-07T06:00:00Z,420", lines[1])
	assert.Equal(t, "2021-11-07T07:00:00Z,380", lines[2])
	// 01:00 appears twice on the fall-back day: PDT first, then PST.
	assert.Equal(t, "2021-11-07T08:00:00Z,310", lines[3])
	assert.Equal(t, "2021-11-07T09:00:00Z,290", lines[4])
	assert.Equal(t, "2021-11-07T10:00:00Z,270", lines[5])
}

func TestMunge_BadRecordIsFatal(t *testing.T) {
	input := "Name,X\nAddress,Y\nAccount Number,1\nService,Service 1\n\n" +
		"TYPE,DATE,START TIME,END TIME,USAGE,UNITS,COST,NOTES\n" +
		"Electric usage,2021-11-06,23:00,23:59,0.42,kWh,$0.11,\n" +
		"Electric usage,2021-11-07,00:00,00:30,0.38,kWh,$0.10,\n"

	var out bytes.Buffer
	err := munge(strings.NewReader(input), &out, losAngeles(t))
	require.Error(t, err)

	var recErr *ingest.RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, 8, recErr.Line)
}

func TestMunge_BadHeader(t *testing.T) {
	err := munge(strings.NewReader("not a pge file\n"), &bytes.Buffer{}, time.UTC)
	assert.ErrorIs(t, err, ingest.ErrHeader)
}
