package model

import (
	"errors"
	"fmt"
	"strings"
)

// Granularity is the width of a report interval.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

var ErrUnknownGranularity = errors.New("unknown granularity")

// ReportGranularities lists granularities in the order reports are written.
var ReportGranularities = []Granularity{
	GranularityYear,
	GranularityMonth,
	GranularityDay,
	GranularityHour,
}

// ParseGranularity accepts both the bare unit ("day") and the report label
// ("daily").
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hour", "hourly":
		return GranularityHour, nil
	case "day", "daily":
		return GranularityDay, nil
	case "month", "monthly":
		return GranularityMonth, nil
	case "year", "yearly":
		return GranularityYear, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
}

// Label is the report name used for files and sheets.
func (g Granularity) Label() string {
	switch g {
	case GranularityHour:
		return "hourly"
	case GranularityDay:
		return "daily"
	case GranularityMonth:
		return "monthly"
	case GranularityYear:
		return "yearly"
	default:
		return string(g)
	}
}
