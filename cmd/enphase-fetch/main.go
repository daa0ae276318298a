// Command enphase-fetch downloads solar production data from the Enlighten
// API and writes it as CSV on stdout.
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
	"syscall"
	"time"

	"home_energy/internal/config"
	"home_energy/internal/enphase"
	"home_energy/internal/ingest"
	"home_energy/internal/model"
)

const dateLayout = "2006-01-02"

func main() {
	configPath := flag.String("config", "", "YAML config file (default $HOME_ENERGY_CONFIG)")
	startFlag := flag.String("start-date", "", "first day to fetch, YYYY-MM-DD (overrides config)")
	endFlag := flag.String("end-date", "", "stop before this day, YYYY-MM-DD (default today, UTC)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("warn: reading .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *startFlag != "" {
		cfg.Enphase.StartDate = *startFlag
	}

	start, end, err := dateRange(cfg.Enphase.StartDate, *endFlag, time.Now())
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fetch(ctx, cfg, start, end, os.Stdout, log.Default()); err != nil {
		log.Fatal(err)
	}
}

// dateRange parses the fetch window. An empty end means the start of the
// current UTC day.
func dateRange(startDate, endDate string, now time.Time) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start date: %w", err)
	}
	var end time.Time
	if endDate == "" {
		u := now.UTC()
		end = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	} else if end, err = time.Parse(dateLayout, endDate); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end date: %w", err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date %s is not before end date %s",
			start.Format(dateLayout), end.Format(dateLayout))
	}
	return start, end, nil
}

func fetch(ctx context.Context, cfg config.Config, start, end time.Time, w io.Writer, logger *log.Logger) error {
	if cfg.Enphase.APIKey == "" || cfg.Enphase.UserID == "" {
		return errors.New("ENLIGHTEN_API_KEY and ENLIGHTEN_USER_ID must be set (environment, .env or config)")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	client := enphase.New(cfg.Enphase.BaseURL, cfg.Enphase.APIKey, cfg.Enphase.UserID,
		enphase.WithLogger(logger),
		enphase.WithRequestDelay(cfg.Enphase.RequestDelay),
	)

	writer, err := ingest.NewProductionWriter(w)
	if err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	n := 0
	err = client.FetchProduction(ctx, start, end, loc, func(rec model.ProductionRecord) error {
		n++
		return writer.Write(rec)
	})
	if flushErr := writer.Flush(); err == nil && flushErr != nil {
		err = fmt.Errorf("flushing writer: %w", flushErr)
	}
	if err != nil {
		return err
	}
	logger.Printf("wrote %d production records", n)
	return nil
}
