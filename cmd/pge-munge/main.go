// Command pge-munge converts a PG&E electricity usage export read from stdin
// into a net usage CSV with UTC timestamps on stdout.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"home_energy/internal/ingest"
)

func main() {
	tz := flag.String("tz", os.Getenv("HOME_ENERGY_TZ"), "time zone of the export's wall-clock times (default local)")
	flag.Parse()

	loc := time.Local
	if *tz != "" {
		var err error
		if loc, err = time.LoadLocation(*tz); err != nil {
			log.Fatalf("timezone: %v", err)
		}
	}

	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		log.Printf("note: reading from stdin")
	}

	if err := munge(os.Stdin, os.Stdout, loc); err != nil {
		log.Fatal(err)
	}
}

// munge stops at the first bad record; the output is only useful complete.
func munge(r io.Reader, w io.Writer, loc *time.Location) error {
	reader, err := ingest.NewPGEReader(r, loc)
	if err != nil {
		return fmt.Errorf("setup reader from stdin: %w", err)
	}
	writer, err := ingest.NewNetUsageWriter(w)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	for rec, err := range reader.Records() {
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
