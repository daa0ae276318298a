// Package aggregate merges energy readings from named sources into one
// canonical hourly series and rolls that series up into report intervals.
package aggregate

import (
	"fmt"
	"iter"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"home_energy/internal/model"
	"home_energy/internal/store"
)

// Stats is a snapshot of the aggregator's audit counters.
type Stats struct {
	Warnings  int `json:"warnings"`
	Conflicts int `json:"conflicts"`

	ProdSources  int `json:"prod_sources"`
	ProdRecords  int `json:"prod_records"`
	ProdDupsOK   int `json:"prod_dups_ok"`
	ProdMerged   int `json:"prod_merged"`
	UsageSources int `json:"usage_sources"`
	UsageRecords int `json:"usage_records"`
	UsageDupsOK  int `json:"usage_dups_ok"`
	UsageMerged  int `json:"usage_merged"`
}

// SourceReport describes the outcome of loading one source.
type SourceReport struct {
	Category model.Category
	Source   model.Source
	Records  int
	Merged   int
	DupsOK   int
	Warnings int
}

// Observer is notified after each successful load.
type Observer interface {
	OnSourceLoaded(report SourceReport)
}

type categoryCounters struct {
	sources int
	records int
	dupsOK  int // hours where another source reported the exact same value
	merged  int // readings added to an existing entry of the same source
}

// Aggregator owns the source registry, the hourly store and the counters for
// one report run. Loads must not run concurrently with each other or with
// readers; reads (Summarize, iterators, Gaps) may run concurrently.
type Aggregator struct {
	logger   *log.Logger
	loc      *time.Location
	observer Observer

	sources *Registry
	hourly  *store.Store

	warnings  atomic.Int64
	conflicts atomic.Int64
	flaggedMu sync.Mutex
	flagged   map[conflictKey]bool
	prod      categoryCounters
	usage     categoryCounters
}

type Option func(*Aggregator)

func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLocation sets the zone used for calendar day, month and year
// boundaries. The default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.observer = o }
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		logger:  log.Default(),
		loc:     time.Local,
		sources: NewRegistry(),
		hourly:  store.New(),
		flagged: make(map[conflictKey]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LoadProduction ingests solar production readings from src.
func (a *Aggregator) LoadProduction(src model.Source, readings iter.Seq2[model.Reading, error]) error {
	return a.load(model.Production, src, readings)
}

// LoadNetUsage ingests net grid usage readings from src.
func (a *Aggregator) LoadNetUsage(src model.Source, readings iter.Seq2[model.Reading, error]) error {
	return a.load(model.NetUsage, src, readings)
}

func (a *Aggregator) load(c model.Category, src model.Source, readings iter.Seq2[model.Reading, error]) error {
	id, err := a.sources.Register(src)
	if err != nil {
		return err
	}

	counters := a.counters(c)
	counters.sources++

	report := SourceReport{Category: c, Source: src}
	var touched []time.Time
	seen := make(map[int64]bool)

	for r, err := range readings {
		if err != nil {
			a.logger.Printf("warn: %s: %v", src, err)
			a.warnings.Add(1)
			report.Warnings++
			continue
		}

		hour := model.HourKey(r.Timestamp)
		merged, err := a.hourly.Accumulate(hour, c, id, r.Energy)
		if err != nil {
			return fmt.Errorf("loading %s from %s: %w", c, src, err)
		}
		if merged {
			counters.merged++
			report.Merged++
		}
		counters.records++
		report.Records++

		if !seen[hour.Unix()] {
			seen[hour.Unix()] = true
			touched = append(touched, hour)
		}
	}

	report.DupsOK = a.countAgreements(c, id, touched)
	counters.dupsOK += report.DupsOK

	if a.observer != nil {
		a.observer.OnSourceLoaded(report)
	}
	return nil
}

// countAgreements counts hours where src's final total exactly matches an
// entry from a previously loaded source. Disagreements are left for
// Summarize to report.
func (a *Aggregator) countAgreements(c model.Category, src model.SourceID, hours []time.Time) int {
	n := 0
	for _, hour := range hours {
		b, ok := a.hourly.Get(hour)
		if !ok {
			continue
		}
		entries := b.Entries(c)
		var own model.WattHours
		for _, e := range entries {
			if e.Source == src {
				own = e.Energy
			}
		}
		for _, e := range entries {
			if e.Source != src && e.Energy == own {
				n++
				break
			}
		}
	}
	return n
}

func (a *Aggregator) counters(c model.Category) *categoryCounters {
	if c == model.Production {
		return &a.prod
	}
	return &a.usage
}

// Stats returns the current counters.
func (a *Aggregator) Stats() Stats {
	return Stats{
		Warnings:     int(a.warnings.Load()),
		Conflicts:    int(a.conflicts.Load()),
		ProdSources:  a.prod.sources,
		ProdRecords:  a.prod.records,
		ProdDupsOK:   a.prod.dupsOK,
		ProdMerged:   a.prod.merged,
		UsageSources: a.usage.sources,
		UsageRecords: a.usage.records,
		UsageDupsOK:  a.usage.dupsOK,
		UsageMerged:  a.usage.merged,
	}
}

// TimeRange returns the first and last hour with any data.
func (a *Aggregator) TimeRange() (model.TimeRange, bool) {
	return a.hourly.TimeRange()
}

// HourCount returns the number of distinct hours with any data.
func (a *Aggregator) HourCount() int {
	return a.hourly.Len()
}

func (a *Aggregator) Location() *time.Location {
	return a.loc
}
