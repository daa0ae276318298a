// Package metrics exposes aggregation counters and report timings to
// Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"home_energy/internal/aggregate"
)

const metricPrefix = "home_energy_"

const (
	categoryProduction = "production"
	categoryNetUsage   = "net_usage"

	ResultSuccess = "success"
	ResultError   = "error"
)

// StatsFunc returns the counters of the aggregator currently being served.
type StatsFunc func() aggregate.Stats

// Collector turns an aggregator's Stats snapshot into metrics at scrape time.
type Collector struct {
	stats StatsFunc

	warnings  *prometheus.Desc
	conflicts *prometheus.Desc
	sources   *prometheus.Desc
	records   *prometheus.Desc
	dupsOK    *prometheus.Desc
	merged    *prometheus.Desc
}

func NewCollector(stats StatsFunc) *Collector {
	category := []string{"category"}
	return &Collector{
		stats: stats,
		warnings: prometheus.NewDesc(metricPrefix+"warnings_total",
			"Warnings raised while loading and summarizing data", nil, nil),
		conflicts: prometheus.NewDesc(metricPrefix+"conflicts_total",
			"Hour summaries that found two sources disagreeing", nil, nil),
		sources: prometheus.NewDesc(metricPrefix+"sources",
			"Sources loaded by category", category, nil),
		records: prometheus.NewDesc(metricPrefix+"records_total",
			"Valid records ingested by category", category, nil),
		dupsOK: prometheus.NewDesc(metricPrefix+"duplicate_hours_total",
			"Hours where a source exactly matched an earlier source", category, nil),
		merged: prometheus.NewDesc(metricPrefix+"merged_records_total",
			"Records added to an hour the same source already reported", category, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.warnings
	ch <- c.conflicts
	ch <- c.sources
	ch <- c.records
	ch <- c.dupsOK
	ch <- c.merged
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()

	ch <- prometheus.MustNewConstMetric(c.warnings, prometheus.CounterValue, float64(s.Warnings))
	ch <- prometheus.MustNewConstMetric(c.conflicts, prometheus.CounterValue, float64(s.Conflicts))

	perCategory := []struct {
		desc      *prometheus.Desc
		kind      prometheus.ValueType
		prod, use int
	}{
		{c.sources, prometheus.GaugeValue, s.ProdSources, s.UsageSources},
		{c.records, prometheus.CounterValue, s.ProdRecords, s.UsageRecords},
		{c.dupsOK, prometheus.CounterValue, s.ProdDupsOK, s.UsageDupsOK},
		{c.merged, prometheus.CounterValue, s.ProdMerged, s.UsageMerged},
	}
	for _, m := range perCategory {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, float64(m.prod), categoryProduction)
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, float64(m.use), categoryNetUsage)
	}
}

// Metrics bundles the report pipeline's own instruments.
type Metrics struct {
	ReportsTotal   *prometheus.CounterVec
	RowsTotal      *prometheus.CounterVec
	ReportDuration *prometheus.HistogramVec
	LoadsTotal     *prometheus.CounterVec
}

// New constructs the instruments and registers them, together with the
// collector if one is given, on reg.
func New(reg prometheus.Registerer, collector *Collector) *Metrics {
	m := &Metrics{
		ReportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reports_total",
				Help: "Reports written by sink and result",
			},
			[]string{"sink", "result"},
		),
		RowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_rows_total",
				Help: "Report rows produced by granularity",
			},
			[]string{"granularity"},
		),
		ReportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_duration_seconds",
				Help:    "Time to produce one report in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"granularity"},
		),
		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "loads_total",
				Help: "Full data loads by result",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.ReportsTotal, m.RowsTotal, m.ReportDuration, m.LoadsTotal)
	if collector != nil {
		reg.MustRegister(collector)
	}
	return m
}
