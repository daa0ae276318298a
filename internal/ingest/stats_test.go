package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home_energy/internal/model"
)

const gridEntity = "sensor.0x943469fffed2bf71_power"

func readStats(t *testing.T, input string, opts ...StatsOption) ([]model.Reading, []error) {
	t.Helper()
	r, err := NewStatsReader(strings.NewReader(input), gridEntity, opts...)
	require.NoError(t, err)

	var readings []model.Reading
	var errs []error
	for rd, err := range r.Readings() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		readings = append(readings, rd)
	}
	return readings, errs
}

func TestStatsReader_Parse(t *testing.T) {
	input := `sensor_id,start_time,avg,min_val,max_val
sensor.0x943469fffed2bf71_power,1732186800.0,-368.85,-810.0,-162.0
sensor.0x943469fffed2bf71_power,1732190400.0,759.5,-286.0,2214.0`

	readings, errs := readStats(t, input)

	require.Empty(t, errs)
	require.Len(t, readings, 2)
	assert.Equal(t, time.Date(2024, 11, 21, 11, 0, 0, 0, time.UTC), readings[0].Timestamp)
	assert.Equal(t, model.WattHours(-369), readings[0].Energy)
	assert.Equal(t, model.WattHours(760), readings[1].Energy)
}

func TestStatsReader_SkipsOtherEntities(t *testing.T) {
	input := `sensor_id,start_time,avg,min_val,max_val
sensor.0x943469fffed2bf71_power,1732186800.0,-368.85,-810.0,-162.0
sensor.unknown_entity,1732186800.0,100.0,50.0,150.0
sensor.hoymiles_gateway_solarh_3054300_real_power,1732186800.0,1500.0,200.0,3000.0`

	readings, errs := readStats(t, input)

	require.Empty(t, errs)
	require.Len(t, readings, 1)
}

func TestStatsReader_Invert(t *testing.T) {
	input := `sensor_id,start_time,avg,min_val,max_val
sensor.0x943469fffed2bf71_power,1732186800.0,-368.85,-810.0,-162.0`

	readings, _ := readStats(t, input, WithInvert(true))
	require.Len(t, readings, 1)
	assert.Equal(t, model.WattHours(369), readings[0].Energy)
}

func TestStatsReader_RecordErrors(t *testing.T) {
	input := `sensor_id,start_time,avg,min_val,max_val
sensor.0x943469fffed2bf71_power,1732186800.0,unavailable,0,0
sensor.0x943469fffed2bf71_power,1732187100.0,12.0,0,0
sensor.0x943469fffed2bf71_power,yesterday,12.0,0,0
sensor.0x943469fffed2bf71_power,1732190400.0,12.0,0,0`

	readings, errs := readStats(t, input)

	require.Len(t, readings, 1)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Error(), "avg")
	assert.Contains(t, errs[1].Error(), "hour boundary")
	assert.Contains(t, errs[2].Error(), "timestamp")
}

func TestStatsReader_InvalidHeader(t *testing.T) {
	input := `wrong_col,start_time,avg,min_val,max_val
sensor.0x943469fffed2bf71_power,1732186800.0,-368.85,-810.0,-162.0`

	_, err := NewStatsReader(strings.NewReader(input), gridEntity)

	assert.ErrorIs(t, err, ErrHeader)
	assert.Contains(t, err.Error(), "sensor_id")
}

func TestStatsReader_EmptyInput(t *testing.T) {
	_, err := NewStatsReader(strings.NewReader(""), gridEntity)
	assert.Error(t, err)

	_, err = NewStatsReader(strings.NewReader("sensor_id,start_time,avg,min_val,max_val\n"), "")
	assert.Error(t, err)
}

func TestParseUnixTimestamp(t *testing.T) {
	ts, err := parseUnixTimestamp("1770896300.5")
	require.NoError(t, err)
	assert.Equal(t, int64(1770896300), ts.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts.Nanosecond()))
	assert.Equal(t, time.UTC, ts.Location())

	_, err = parseUnixTimestamp("soon")
	assert.Error(t, err)
}
