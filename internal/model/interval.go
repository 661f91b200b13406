package model

import (
	"fmt"
	"time"
)

// Interval is a candlestick interval as spelled in stream and REST names.
type Interval string

const (
	Interval1s  Interval = "1s"
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1s:  time.Second,
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval6h:  6 * time.Hour,
	Interval8h:  8 * time.Hour,
	Interval12h: 12 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval3d:  3 * 24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
	Interval1M:  30 * 24 * time.Hour, // nominal; months are sequenced by calendar
}

// ParseInterval validates s. Interval names are case sensitive ("1m" vs "1M").
func ParseInterval(s string) (Interval, error) {
	i := Interval(s)
	if _, ok := intervalDurations[i]; !ok {
		return "", fmt.Errorf("unknown candlestick interval %q", s)
	}
	return i, nil
}

// Duration returns the interval length, or 0 for an unknown interval.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// Valid reports whether i is a known interval.
func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Sequence maps an open time (ms since epoch) to its slot on the interval grid.
// Consecutive bars have consecutive sequences.
func (i Interval) Sequence(openTime int64) int64 {
	if i == Interval1M {
		t := time.UnixMilli(openTime).UTC()
		return int64(t.Year())*12 + int64(t.Month()) - 1
	}
	ms := i.Duration().Milliseconds()
	if ms <= 0 {
		return openTime
	}
	return openTime / ms
}
