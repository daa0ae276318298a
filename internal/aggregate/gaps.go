package aggregate

import (
	"time"

	"home_energy/internal/model"
)

// Gap is a run of hours with no data for a category. End is exclusive.
type Gap struct {
	Start time.Time
	End   time.Time
}

// Hours returns the number of missing hours.
func (g Gap) Hours() int {
	return int(g.End.Sub(g.Start) / time.Hour)
}

// Gaps returns the missing hours for c between the first and the last hour
// that have data for c. It does not change how reports treat missing hours.
func (a *Aggregator) Gaps(c model.Category) []Gap {
	var gaps []Gap
	var prev time.Time
	for i := 0; i < a.hourly.Len(); i++ {
		b := a.hourly.At(i)
		if len(b.Entries(c)) == 0 {
			continue
		}
		if !prev.IsZero() {
			if expected := prev.Add(time.Hour); b.Hour.After(expected) {
				gaps = append(gaps, Gap{Start: expected, End: b.Hour})
			}
		}
		prev = b.Hour
	}
	return gaps
}
