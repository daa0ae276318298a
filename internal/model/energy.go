package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// WattHours is an exact, signed amount of energy in Wh.
type WattHours int64

// FromKWh converts a kilowatt-hour value to whole Wh, rounding half away
// from zero.
func FromKWh(kwh float64) WattHours {
	return WattHours(math.Round(kwh * 1000))
}

// ParseKWh parses a decimal kWh string (as found in utility exports) and
// rounds it to whole Wh without going through binary floating point.
func ParseKWh(s string) (WattHours, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parsing kWh %q: %w", s, err)
	}
	return WattHours(d.Shift(3).Round(0).IntPart()), nil
}

// ParseWattHours parses an integer Wh string.
func ParseWattHours(s string) (WattHours, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing Wh %q: %w", s, err)
	}
	return WattHours(v), nil
}

// KWh returns the exact value in kilowatt-hours.
func (w WattHours) KWh() decimal.Decimal {
	return decimal.New(int64(w), -3)
}

func (w WattHours) String() string {
	return strconv.FormatInt(int64(w), 10) + " Wh"
}
