package enphase

import (
	"context"
	"fmt"
	"time"

	"home_energy/internal/model"
)

// FetchProduction downloads production intervals for the user's only system
// one UTC day at a time, from the day containing start up to but excluding
// the day containing end. Each interval is passed to fn as a record
// starting IntervalLength before its reported end, with the local time
// taken in loc.
func (c *Client) FetchProduction(ctx context.Context, start, end time.Time, loc *time.Location, fn func(model.ProductionRecord) error) error {
	if loc == nil {
		loc = time.Local
	}

	systemID, err := c.SystemID(ctx)
	if err != nil {
		return err
	}

	day := utcDay(start)
	last := utcDay(end)
	for day.Before(last) {
		next := day.AddDate(0, 0, 1)
		c.logger.Printf("%s: date: %s", time.Now().UTC().Format(time.RFC3339), day.Format("2006-01-02"))

		stats, err := c.Stats(ctx, systemID, day, next)
		if err != nil {
			return err
		}
		for _, iv := range stats.Intervals {
			if iv.Enwh < 0 {
				return fmt.Errorf("interval ending %d: negative energy %d Wh", iv.EndAt, iv.Enwh)
			}
			ts := iv.Start()
			rec := model.ProductionRecord{
				TimestampUTC:   ts,
				TimestampLocal: ts.In(loc),
				Energy:         model.WattHours(iv.Enwh),
			}
			if err := fn(rec); err != nil {
				return err
			}
		}

		day = next
		if day.Before(last) {
			if err := sleep(ctx, c.delay); err != nil {
				return err
			}
		}
	}
	return nil
}

func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
