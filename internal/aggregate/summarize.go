package aggregate

import (
	"time"

	"home_energy/internal/model"
	"home_energy/internal/store"
)

// Summary is the resolved energy for one hour.
type Summary struct {
	Produced model.WattHours
	NetUsed  model.WattHours
}

// Summarize collapses a bucket's per-source entries into one value per
// category. An empty category counts as zero. If any two sources disagree
// the conflict is logged and ok is false; each conflicting hour and category
// is counted once however often it is summarized.
func (a *Aggregator) Summarize(b store.Bucket) (Summary, bool) {
	produced, prodOK := a.resolve(b, model.Production)
	netUsed, usageOK := a.resolve(b, model.NetUsage)
	if !prodOK || !usageOK {
		return Summary{}, false
	}
	return Summary{Produced: produced, NetUsed: netUsed}, true
}

func (a *Aggregator) resolve(b store.Bucket, c model.Category) (model.WattHours, bool) {
	entries := b.Entries(c)
	if len(entries) == 0 {
		return 0, true
	}

	first := entries[0]
	for _, e := range entries[1:] {
		if e.Energy == first.Energy {
			continue
		}
		a.logger.Printf(
			"warn: found different %s data from two sources for the same hour "+
				"(hour = %s, source %q reports %d Wh, source %q reports %d Wh)",
			c,
			b.Hour.Format(time.RFC3339),
			a.sources.Label(first.Source),
			first.Energy,
			a.sources.Label(e.Source),
			e.Energy,
		)
		if a.flagConflict(b.Hour, c) {
			a.warnings.Add(1)
			a.conflicts.Add(1)
		}
		return 0, false
	}
	return first.Energy, true
}

type conflictKey struct {
	hour     int64
	category model.Category
}

// flagConflict records a conflict for (hour, c) and reports whether it is
// the first time. Re-reading a conflicting hour logs again but counts once.
func (a *Aggregator) flagConflict(hour time.Time, c model.Category) bool {
	a.flaggedMu.Lock()
	defer a.flaggedMu.Unlock()
	key := conflictKey{hour: hour.Unix(), category: c}
	if a.flagged[key] {
		return false
	}
	a.flagged[key] = true
	return true
}

// Validate summarizes every hour once and returns how many hours have
// unresolved conflicts. Each conflict is also logged and counted as a
// warning, so a driver can check Stats().Warnings before writing reports.
func (a *Aggregator) Validate() int {
	n := 0
	for i := 0; i < a.hourly.Len(); i++ {
		if _, ok := a.Summarize(a.hourly.At(i)); !ok {
			n++
		}
	}
	return n
}
