// Package report writes rolled-up interval reports to files and databases.
package report

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"

	"home_energy/internal/aggregate"
	"home_energy/internal/metrics"
	"home_energy/internal/model"
)

// TimestampLayout is how interval starts are written: wall-clock time in
// the interval's own zone, with no offset.
const TimestampLayout = "2006-01-02T15:04:05"

// Columns is the header shared by every tabular sink.
var Columns = []string{"interval_start", "produced", "net_used", "consumed"}

// Sink receives finished reports. WriteReport is called once per report
// label; Close flushes anything buffered.
type Sink interface {
	Name() string
	WriteReport(ctx context.Context, label string, rows iter.Seq[model.IntervalEnergy]) error
	Close() error
}

// Discarder is implemented by sinks that buffer a whole run and write it on
// Close. After a failed run the generator calls Discard instead of Close so
// no partial file is left behind.
type Discarder interface {
	Discard() error
}

// Run identifies one report generation and carries the load counters that
// sinks include in their summaries.
type Run struct {
	ID      uuid.UUID
	Started time.Time
	Stats   aggregate.Stats
}

func NewRun(stats aggregate.Stats) Run {
	return Run{ID: uuid.New(), Started: time.Now(), Stats: stats}
}

// Totals sums a report's rows.
type Totals struct {
	Rows     int
	Produced model.WattHours
	NetUsed  model.WattHours
	Consumed model.WattHours
}

func (t *Totals) Add(row model.IntervalEnergy) {
	t.Rows++
	t.Produced += row.Produced
	t.NetUsed += row.NetUsed
	t.Consumed += row.Consumed
}

func formatStart(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Generator drives the report granularities through a set of sinks.
type Generator struct {
	sinks   []Sink
	logger  *log.Logger
	metrics *metrics.Metrics
}

type Option func(*Generator)

func WithLogger(logger *log.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

func NewGenerator(sinks []Sink, opts ...Option) *Generator {
	g := &Generator{sinks: sinks, logger: log.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate writes the yearly, monthly, daily and hourly reports of agg to
// every sink, then closes the sinks. Each report is summarized once and
// replayed to all sinks. If any report fails, buffering sinks are discarded
// rather than closed.
func (g *Generator) Generate(ctx context.Context, agg *aggregate.Aggregator) error {
	var errs []error
	for _, gran := range model.ReportGranularities {
		if err := g.generateOne(ctx, agg, gran); err != nil {
			errs = append(errs, err)
			break
		}
	}
	failed := len(errs) > 0
	for _, s := range g.sinks {
		if d, ok := s.(Discarder); ok && failed {
			if err := d.Discard(); err != nil {
				errs = append(errs, fmt.Errorf("discarding %s sink: %w", s.Name(), err))
			}
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (g *Generator) generateOne(ctx context.Context, agg *aggregate.Aggregator, gran model.Granularity) error {
	label := gran.Label()
	g.logger.Printf("creating %s report", label)
	start := time.Now()

	it, err := agg.Intervals(gran)
	if err != nil {
		return err
	}
	rows := slices.Collect(it.All())

	if g.metrics != nil {
		g.metrics.RowsTotal.WithLabelValues(string(gran)).Add(float64(len(rows)))
	}

	for _, s := range g.sinks {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.WriteReport(ctx, label, slices.Values(rows))
		g.observe(s.Name(), err)
		if err != nil {
			return fmt.Errorf("creating %s report (%s): %w", label, s.Name(), err)
		}
	}

	if g.metrics != nil {
		g.metrics.ReportDuration.WithLabelValues(string(gran)).Observe(time.Since(start).Seconds())
	}
	g.logger.Printf("created %s report: %d rows", label, len(rows))
	return nil
}

func (g *Generator) observe(sink string, err error) {
	if g.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	g.metrics.ReportsTotal.WithLabelValues(sink, result).Inc()
}
