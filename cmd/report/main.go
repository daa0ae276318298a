// Command report loads solar production and PG&E net usage data and writes
// yearly, monthly, daily and hourly energy reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"home_energy/internal/aggregate"
	"home_energy/internal/config"
	"home_energy/internal/ingest"
	"home_energy/internal/metrics"
	"home_energy/internal/model"
	"home_energy/internal/report"
)

type options struct {
	outputDir   string
	formats     string
	timezone    string
	metricsFile string
	pdfMaxRows  int
}

func main() {
	configPath := flag.String("config", "", "YAML config file (default $HOME_ENERGY_CONFIG)")
	var opts options
	flag.StringVar(&opts.outputDir, "output-dir", "", "directory for generated reports (overrides config)")
	flag.StringVar(&opts.formats, "formats", "", "comma-separated output formats: csv, xlsx, pdf, postgres")
	flag.StringVar(&opts.timezone, "tz", "", "time zone for calendar reports and PG&E data (overrides config)")
	flag.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
	flag.IntVar(&opts.pdfMaxRows, "pdf-max-rows", report.DefaultPDFMaxRows, "rows printed per PDF table")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("warn: reading .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg, err = applyFlags(cfg, opts)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stderr, log.Default()); err != nil {
		log.Fatal(err)
	}
}

// applyFlags overrides cfg with any flags that were set.
func applyFlags(cfg config.Config, opts options) (config.Config, error) {
	if opts.outputDir != "" {
		cfg.Output.Dir = opts.outputDir
	}
	if opts.formats != "" {
		cfg.Output.Formats = nil
		for _, f := range strings.Split(opts.formats, ",") {
			if f = strings.TrimSpace(f); f != "" {
				cfg.Output.Formats = append(cfg.Output.Formats, f)
			}
		}
	}
	if opts.timezone != "" {
		cfg.Timezone = opts.timezone
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, opts options, w io.Writer, logger *log.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	agg := aggregate.New(aggregate.WithLogger(logger), aggregate.WithLocation(loc))
	m := metrics.New(reg, metrics.NewCollector(agg.Stats))
	if opts.metricsFile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
				logger.Printf("warn: writing metrics: %v", err)
			}
		}()
	}

	err = ingest.LoadAll(agg, cfg.Sources, loc, logger)
	observeLoad(m, err)
	if err != nil {
		return fmt.Errorf("loading data: %w", err)
	}

	printStats(w, agg.Stats())
	if err := bailOnWarnings(agg.Stats().Warnings); err != nil {
		return err
	}
	agg.Validate()
	if err := bailOnWarnings(agg.Stats().Warnings); err != nil {
		return err
	}
	logGaps(logger, agg)

	reportRun := report.NewRun(agg.Stats())
	logger.Printf("report run %s", reportRun.ID)
	sinks, cleanup, err := buildSinks(ctx, cfg, reportRun, opts.pdfMaxRows)
	if err != nil {
		return err
	}
	defer cleanup()

	gen := report.NewGenerator(sinks, report.WithLogger(logger), report.WithMetrics(m))
	return gen.Generate(ctx, agg)
}

func observeLoad(m *metrics.Metrics, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	m.LoadsTotal.WithLabelValues(result).Inc()
}

func printStats(w io.Writer, s aggregate.Stats) {
	fmt.Fprintf(w, "warnings: %d\n", s.Warnings)
	fmt.Fprintf(w, "production sources: %d\n", s.ProdSources)
	fmt.Fprintf(w, "production records: %d\n", s.ProdRecords)
	fmt.Fprintf(w, "production duplicate records skipped: %d\n", s.ProdDupsOK)
	fmt.Fprintf(w, "net usage  sources: %d\n", s.UsageSources)
	fmt.Fprintf(w, "net usage  records: %d\n", s.UsageRecords)
	fmt.Fprintf(w, "net usage  duplicate records skipped: %d\n", s.UsageDupsOK)
}

func bailOnWarnings(n int) error {
	switch {
	case n == 1:
		return errors.New("bailing after 1 warning")
	case n > 1:
		return fmt.Errorf("bailing after %d warnings", n)
	}
	return nil
}

func logGaps(logger *log.Logger, agg *aggregate.Aggregator) {
	for _, c := range []model.Category{model.Production, model.NetUsage} {
		for _, g := range agg.Gaps(c) {
			logger.Printf("%s data missing for %d hour(s) from %s to %s",
				c, g.Hours(), g.Start.Format("2006-01-02T15:04Z"), g.End.Format("2006-01-02T15:04Z"))
		}
	}
}

// buildSinks opens one sink per configured format. cleanup releases
// resources the sinks borrow, such as the database handle.
func buildSinks(ctx context.Context, cfg config.Config, run report.Run, pdfMaxRows int) ([]report.Sink, func(), error) {
	var sinks []report.Sink
	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	for _, format := range cfg.Output.Formats {
		var s report.Sink
		var err error
		switch format {
		case config.FormatCSV:
			s, err = report.NewCSVSink(cfg.Output.Dir)
		case config.FormatXLSX:
			if err = os.MkdirAll(cfg.Output.Dir, 0o755); err == nil {
				s, err = report.NewXLSXSink(filepath.Join(cfg.Output.Dir, "report.xlsx"), run)
			}
		case config.FormatPDF:
			if err = os.MkdirAll(cfg.Output.Dir, 0o755); err == nil {
				s, err = report.NewPDFSink(filepath.Join(cfg.Output.Dir, "report.pdf"), run, pdfMaxRows)
			}
		case config.FormatPostgres:
			db, dbErr := report.OpenPostgres(ctx, cfg.Postgres.DSN)
			if dbErr != nil {
				err = dbErr
				break
			}
			closers = append(closers, db)
			ps := report.NewPostgresSink(db, run)
			err = ps.EnsureSchema(ctx)
			s = ps
		default:
			err = fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("%s output: %w", format, err)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		cleanup()
		return nil, nil, errors.New("no output formats configured")
	}
	return sinks, cleanup, nil
}
