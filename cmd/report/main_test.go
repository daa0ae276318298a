package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home_energy/internal/config"
	"home_energy/internal/ingest"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// testConfig lays out one production file and one net usage file under a
// temp dir and returns a config pointing at them.
func testConfig(t *testing.T, netUsage string) config.Config {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "production", "2021-11.csv"), `datetime_utc,datetime_local,energy_wh
2021-11-06T17:00:00Z,2021-11-06T17:00:00Z,100
2021-11-06T17:05:00Z,2021-11-06T17:05:00Z,50
2021-11-06T19:00:00Z,2021-11-06T19:00:00Z,200
`)
	writeFile(t, filepath.Join(dir, "usage", "2021-11.csv"), netUsage)

	return config.Config{
		Timezone: "UTC",
		Sources: []ingest.Spec{
			{Kind: ingest.KindProduction, Glob: filepath.Join(dir, "production", "*.csv")},
			{Kind: ingest.KindNetUsage, Glob: filepath.Join(dir, "usage", "*.csv")},
		},
		Output: config.Output{
			Dir:     filepath.Join(dir, "generated-reports"),
			Formats: []string{config.FormatCSV, config.FormatXLSX},
		},
	}
}

func TestRun_WritesReports(t *testing.T) {
	cfg := testConfig(t, `timestamp_start_utc,net_used_wh
2021-11-06T17:00:00Z,-100
2021-11-06T19:00:00Z,25
`)
	metricsFile := filepath.Join(t.TempDir(), "report.prom")

	var out bytes.Buffer
	err := run(context.Background(), cfg, options{metricsFile: metricsFile}, &out, quiet())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "warnings: 0\n")
	assert.Contains(t, out.String(), "production records: 3\n")
	assert.Contains(t, out.String(), "net usage  sources: 1\n")

	for _, name := range []string{"yearly.csv", "monthly.csv", "daily.csv", "hourly.csv", "report.xlsx"} {
		assert.FileExists(t, filepath.Join(cfg.Output.Dir, name))
	}

	hourly, err := os.ReadFile(filepath.Join(cfg.Output.Dir, "hourly.csv"))
	require.NoError(t, err)
	assert.Equal(t, "interval_start,produced,net_used,consumed\n"+
		"2021-11-06T17:00:00,150,-100,50\n"+
		"2021-11-06T19:00:00,200,25,225\n", string(hourly))

	yearly, err := os.ReadFile(filepath.Join(cfg.Output.Dir, "yearly.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(yearly), "2021-01-01T00:00:00,350,-75,275\n")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `home_energy_records_total{category="production"} 3`)
}

func TestRun_RefusesToOverwrite(t *testing.T) {
	cfg := testConfig(t, "timestamp_start_utc,net_used_wh\n2021-11-06T17:00:00Z,1\n")
	cfg.Output.Formats = []string{config.FormatCSV}
	require.NoError(t, run(context.Background(), cfg, options{}, io.Discard, quiet()))

	err := run(context.Background(), cfg, options{}, io.Discard, quiet())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestRun_BailsOnWarnings(t *testing.T) {
	cfg := testConfig(t, `timestamp_start_utc,net_used_wh
2021-11-06T17:00:00Z,-100
2021-11-06T18:00:00Z,not-a-number
`)

	var out bytes.Buffer
	err := run(context.Background(), cfg, options{}, &out, quiet())
	require.EqualError(t, err, "bailing after 1 warning")
	assert.Contains(t, out.String(), "warnings: 1\n")
	assert.NoDirExists(t, cfg.Output.Dir)
}

func TestRun_BailsOnConflicts(t *testing.T) {
	cfg := testConfig(t, "timestamp_start_utc,net_used_wh\n2021-11-06T17:00:00Z,-100\n")
	dir := filepath.Dir(filepath.Dir(cfg.Sources[1].Glob))
	writeFile(t, filepath.Join(dir, "usage", "2021-11-b.csv"), "timestamp_start_utc,net_used_wh\n2021-11-06T17:00:00Z,-90\n")

	err := run(context.Background(), cfg, options{}, io.Discard, quiet())
	require.EqualError(t, err, "bailing after 1 warning")
}

func TestRun_LoadError(t *testing.T) {
	cfg := testConfig(t, "hour,wh\n")
	err := run(context.Background(), cfg, options{}, io.Discard, quiet())
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrHeader)
	assert.True(t, strings.HasPrefix(err.Error(), "loading data: "))
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Config{Output: config.Output{Dir: "generated-reports", Formats: []string{"csv"}}}

	got, err := applyFlags(cfg, options{outputDir: "out", formats: "csv, pdf", timezone: "America/Los_Angeles"})
	require.NoError(t, err)
	assert.Equal(t, "out", got.Output.Dir)
	assert.Equal(t, []string{"csv", "pdf"}, got.Output.Formats)
	assert.Equal(t, "America/Los_Angeles", got.Timezone)

	_, err = applyFlags(cfg, options{formats: "docx"})
	assert.ErrorContains(t, err, `unknown output format "docx"`)
}

func TestBailOnWarnings(t *testing.T) {
	assert.NoError(t, bailOnWarnings(0))
	assert.EqualError(t, bailOnWarnings(1), "bailing after 1 warning")
	assert.EqualError(t, bailOnWarnings(3), "bailing after 3 warnings")
}

func TestLogGaps(t *testing.T) {
	cfg := testConfig(t, "timestamp_start_utc,net_used_wh\n2021-11-06T17:00:00Z,1\n")
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	require.NoError(t, run(context.Background(), cfg, options{}, io.Discard, logger))
	assert.Contains(t, buf.String(), "production data missing for 1 hour(s) from 2021-11-06T18:00Z to 2021-11-06T19:00Z")
}
