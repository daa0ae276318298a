package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"home_energy/internal/ingest"
)

func TestStatsEntities(t *testing.T) {
	specs := []ingest.Spec{
		{Kind: ingest.KindProduction, Glob: "production/*.csv"},
		{Kind: ingest.KindHAStats, Glob: "ha/grid.csv", Entity: "sensor.grid_power"},
		{Kind: ingest.KindHAStats, Glob: "ha/pv.csv", Entity: "sensor.pv_power", Category: "production"},
		{Kind: ingest.KindHAStats, Glob: "ha/grid-old.csv", Entity: "sensor.grid_power"},
	}
	assert.Equal(t, []string{"sensor.grid_power", "sensor.pv_power"}, statsEntities(specs))
	assert.Empty(t, statsEntities(specs[:1]))
}

func TestStatsQuery(t *testing.T) {
	q := statsQuery([]string{"sensor.grid_power", "sensor.o'brien"})
	assert.Contains(t, q, "statistics.mean AS avg")
	assert.Contains(t, q, "WHERE statistics_meta.statistic_id IN (\n  'sensor.grid_power'\n  ,  'sensor.o''brien'\n)")
	assert.Contains(t, q, "ORDER BY statistics_meta.statistic_id, statistics.start_ts;")
}
