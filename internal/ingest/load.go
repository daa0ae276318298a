package ingest

import (
	"fmt"
	"io"
	"iter"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"home_energy/internal/model"
)

// Kind names a supported input file format.
type Kind string

const (
	KindProduction Kind = "production"
	KindPGE        Kind = "pge"
	KindNetUsage   Kind = "net_usage"
	KindHAStats    Kind = "ha_stats"
)

// Spec describes one group of input files.
type Spec struct {
	Kind Kind   `yaml:"kind"`
	Glob string `yaml:"glob"`

	// Home Assistant statistics only.
	Entity   string `yaml:"entity,omitempty"`
	Category string `yaml:"category,omitempty"` // "production" or "net_usage"
	Invert   bool   `yaml:"invert,omitempty"`
}

// Loader is the ingestion surface of the aggregator.
type Loader interface {
	LoadProduction(src model.Source, readings iter.Seq2[model.Reading, error]) error
	LoadNetUsage(src model.Source, readings iter.Seq2[model.Reading, error]) error
}

// LoadAll expands every spec's glob in sorted order and loads each file into
// l. loc is the zone of PG&E wall-clock times. The first fatal error stops
// the run; per-record problems are left to the loader to count.
func LoadAll(l Loader, specs []Spec, loc *time.Location, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	for _, spec := range specs {
		paths, err := filepath.Glob(spec.Glob)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", spec.Glob, err)
		}
		if len(paths) == 0 {
			logger.Printf("no %s files match %q", spec.Kind, spec.Glob)
			continue
		}
		sort.Strings(paths)
		for _, path := range paths {
			logger.Printf("loading %s data from %s", spec.Kind, path)
			if err := LoadFile(l, spec, path, loc); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadFile loads a single file according to spec.
func LoadFile(l Loader, spec Spec, path string, loc *time.Location) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := Load(l, spec, model.Source(path), f, loc); err != nil {
		return fmt.Errorf("loading data from %s: %w", path, err)
	}
	return nil
}

// Load reads r in the format named by spec and hands it to l as src.
func Load(l Loader, spec Spec, src model.Source, r io.Reader, loc *time.Location) error {
	switch spec.Kind {
	case KindProduction:
		pr, err := NewProductionReader(r)
		if err != nil {
			return err
		}
		return l.LoadProduction(src, pr.Readings())

	case KindPGE:
		pr, err := NewPGEReader(r, loc)
		if err != nil {
			return err
		}
		return l.LoadNetUsage(src, pr.Readings())

	case KindNetUsage:
		nr, err := NewNetUsageReader(r)
		if err != nil {
			return err
		}
		return l.LoadNetUsage(src, nr.Readings())

	case KindHAStats:
		sr, err := NewStatsReader(r, spec.Entity, WithInvert(spec.Invert))
		if err != nil {
			return err
		}
		switch spec.Category {
		case "production":
			return l.LoadProduction(src, sr.Readings())
		case "net_usage", "":
			return l.LoadNetUsage(src, sr.Readings())
		default:
			return fmt.Errorf("unknown category %q for %s source", spec.Category, spec.Kind)
		}
	}
	return fmt.Errorf("unknown source kind %q", spec.Kind)
}
