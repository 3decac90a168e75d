package market

import (
	"fmt"
)

// BarSize is the aggregation interval of a historical bar
type BarSize string

const (
	BarSize1Sec  BarSize = "1 sec"
	BarSize5Sec  BarSize = "5 secs"
	BarSize15Sec BarSize = "15 secs"
	BarSize30Sec BarSize = "30 secs"
	BarSize1Min  BarSize = "1 min"
	BarSize2Min  BarSize = "2 mins"
	BarSize3Min  BarSize = "3 mins"
	BarSize5Min  BarSize = "5 mins"
	BarSize15Min BarSize = "15 mins"
	BarSize30Min BarSize = "30 mins"
	BarSize1Hour BarSize = "1 hour"
	BarSize1Day  BarSize = "1 day"
)

// WhatToShow selects the price series the bars are built from
type WhatToShow string

const (
	ShowTrades                  WhatToShow = "TRADES"
	ShowMidpoint                WhatToShow = "MIDPOINT"
	ShowBid                     WhatToShow = "BID"
	ShowAsk                     WhatToShow = "ASK"
	ShowBidAsk                  WhatToShow = "BID_ASK"
	ShowHistoricalVolatility    WhatToShow = "HISTORICAL_VOLATILITY"
	ShowOptionImpliedVolatility WhatToShow = "OPTION_IMPLIED_VOLATILITY"
)

// DateFormat selects how bar timestamps are returned
type DateFormat int

const (
	// DateFormatString returns "yyyymmdd hh:mm:ss"
	DateFormatString DateFormat = 1
	// DateFormatUnix returns seconds since 1970-01-01 GMT
	DateFormatUnix DateFormat = 2
)

// DurationUnit is the unit of a historical Duration
type DurationUnit string

const (
	UnitSeconds DurationUnit = "S"
	UnitDays    DurationUnit = "D"
	UnitWeeks   DurationUnit = "W"
	UnitMonths  DurationUnit = "M"
	UnitYears   DurationUnit = "Y"
)

// Duration is how far back a historical request reaches, e.g. "5 D"
type Duration struct {
	Amount uint32
	Unit   DurationUnit
}

func Seconds(n uint32) Duration { return Duration{Amount: n, Unit: UnitSeconds} }
func Days(n uint32) Duration    { return Duration{Amount: n, Unit: UnitDays} }
func Weeks(n uint32) Duration   { return Duration{Amount: n, Unit: UnitWeeks} }
func Months(n uint32) Duration  { return Duration{Amount: n, Unit: UnitMonths} }
func Years(n uint32) Duration   { return Duration{Amount: n, Unit: UnitYears} }

// String returns the wire form of the duration
func (d Duration) String() string {
	return fmt.Sprintf("%d %s", d.Amount, d.Unit)
}

// ParseDuration parses the wire form of a duration ("1 W", "300 S")
func ParseDuration(s string) (Duration, error) {
	var d Duration
	var unit string
	if _, err := fmt.Sscanf(s, "%d %s", &d.Amount, &unit); err != nil {
		return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	switch DurationUnit(unit) {
	case UnitSeconds, UnitDays, UnitWeeks, UnitMonths, UnitYears:
		d.Unit = DurationUnit(unit)
		return d, nil
	default:
		return Duration{}, fmt.Errorf("invalid duration unit %q in %q", unit, s)
	}
}

// Bar is a single historical price bar
type Bar struct {
	Date     string  // bar timestamp, formatted according to the requested DateFormat
	Open     float64 // opening price
	High     float64 // high price
	Low      float64 // low price
	Close    float64 // closing price
	Volume   float64 // volume
	WAP      float64 // weighted average price
	BarCount int32   // number of trades in the bar
}

// AccountValue is one key/value pair of an account update
type AccountValue struct {
	Key      string
	Value    string
	Currency string
	Account  string
}
