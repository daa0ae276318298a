package aggregate

import (
	"fmt"
	"time"

	"home_energy/internal/model"
)

// BucketKeyFunc maps a UTC hour key to the start of the report interval that
// contains it.
type BucketKeyFunc func(hour time.Time) time.Time

// BucketKey returns the key function for g. Day, month and year boundaries
// are taken in loc.
func BucketKey(g model.Granularity, loc *time.Location) (BucketKeyFunc, error) {
	switch g {
	case model.GranularityHour:
		return utcHour, nil
	case model.GranularityDay:
		return func(h time.Time) time.Time { return localDay(h, loc) }, nil
	case model.GranularityMonth:
		return func(h time.Time) time.Time { return localMonth(h, loc) }, nil
	case model.GranularityYear:
		return func(h time.Time) time.Time { return localYear(h, loc) }, nil
	}
	return nil, fmt.Errorf("%w: %q", model.ErrUnknownGranularity, g)
}

func utcHour(h time.Time) time.Time {
	return h.UTC()
}

func localDay(h time.Time, loc *time.Location) time.Time {
	l := h.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

func localMonth(h time.Time, loc *time.Location) time.Time {
	l := h.In(loc)
	return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, loc)
}

func localYear(h time.Time, loc *time.Location) time.Time {
	return time.Date(h.In(loc).Year(), time.January, 1, 0, 0, 0, 0, loc)
}
