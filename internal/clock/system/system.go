// Package system provides the wall clock, read in the market's time zone.
package system

import (
	"fmt"
	"time"
)

// DefaultZone is the exchange time zone the source sites publish in.
const DefaultZone = "Asia/Shanghai"

// chinaStandardTime stands in when the tz database is unavailable. China has no DST.
var chinaStandardTime = time.FixedZone("CST", 8*60*60)

// Clock implements crawler.Clock. Calendar days follow its location.
type Clock struct {
	loc *time.Location
}

// New returns a Clock in DefaultZone.
func New() *Clock {
	c, err := NewIn(DefaultZone)
	if err != nil {
		return &Clock{loc: chinaStandardTime}
	}
	return c
}

// NewIn returns a Clock in the named IANA zone. An empty name means UTC.
func NewIn(zone string) (*Clock, error) {
	if zone == "" {
		return &Clock{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		if zone == DefaultZone {
			return &Clock{loc: chinaStandardTime}, nil
		}
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return &Clock{loc: loc}, nil
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	if c == nil || c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}

// Location reports the zone calendar days are computed in.
func (c *Clock) Location() *time.Location {
	if c == nil || c.loc == nil {
		return time.UTC
	}
	return c.loc
}
