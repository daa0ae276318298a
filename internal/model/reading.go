package model

import (
	"fmt"
	"time"
)

// Source labels where a set of readings came from, typically a file path
// or "stdin".
type Source string

func (s Source) String() string { return string(s) }

// SourceID is the interned form of a Source inside one aggregator.
type SourceID uint32

// Category distinguishes the two kinds of energy the aggregator tracks.
type Category int

const (
	Production Category = iota
	NetUsage
)

func (c Category) String() string {
	switch c {
	case Production:
		return "production"
	case NetUsage:
		return "net usage"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Reading is one energy amount attributed to the interval starting at
// Timestamp.
type Reading struct {
	Timestamp time.Time
	Energy    WattHours
}

// ProductionRecord is a solar production sample as written by the fetch tool.
type ProductionRecord struct {
	TimestampUTC   time.Time
	TimestampLocal time.Time
	Energy         WattHours
}

func (r ProductionRecord) Reading() Reading {
	return Reading{Timestamp: r.TimestampUTC, Energy: r.Energy}
}

// NetUsageRecord is the net energy drawn from the grid during the hour
// starting at HourStartUTC. Negative values are exports.
type NetUsageRecord struct {
	HourStartUTC time.Time
	NetUsed      WattHours
}

func (r NetUsageRecord) Reading() Reading {
	return Reading{Timestamp: r.HourStartUTC, Energy: r.NetUsed}
}

// HourKey truncates t to the start of its UTC hour.
func HourKey(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// IsHourKey reports whether t is already a UTC hour boundary.
func IsHourKey(t time.Time) bool {
	return t.Location() == time.UTC && t.Equal(t.Truncate(time.Hour))
}

// IntervalEnergy is one row of a report.
type IntervalEnergy struct {
	IntervalStart time.Time `json:"interval_start"`
	Produced      WattHours `json:"produced"`
	NetUsed       WattHours `json:"net_used"`
	Consumed      WattHours `json:"consumed"`
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}
