// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package tzresolve maps a geolocation coordinate to an IANA timezone
// name and computes the caller's local time at that zone. Zone
// assignment uses a coarse per-country/region table rather than a true
// point-in-polygon lookup, then hands off to the standard library's
// time.LoadLocation for the actual offset and DST math.
package tzresolve

import (
	"time"
)

// zoneEntry is one coarse latitude/longitude band mapped to a zone.
// Entries are checked in order; the first matching band wins, so more
// specific (smaller) bands must precede broader fallbacks.
type zoneEntry struct {
	country  string
	minLat   float64
	maxLat   float64
	minLon   float64
	maxLon   float64
	zone     string
}

// table is intentionally coarse: it is meant to place a point within
// the right zone for the vast majority of populated locations, not to
// reproduce a tz-boundary shapefile.
var table = []zoneEntry{
	{"US", 24, 50, -125, -114, "America/Los_Angeles"},
	{"US", 24, 50, -114, -102, "America/Denver"},
	{"US", 24, 50, -102, -87, "America/Chicago"},
	{"US", 24, 50, -87, -66, "America/New_York"},
	{"CA", 41, 84, -141, -95, "America/Edmonton"},
	{"CA", 41, 84, -95, -52, "America/Toronto"},
	{"BR", -34, 5, -74, -34, "America/Sao_Paulo"},
	{"GB", 49, 61, -9, 2, "Europe/London"},
	{"IE", 51, 56, -11, -5, "Europe/Dublin"},
	{"FR", 41, 51, -5, 9, "Europe/Paris"},
	{"DE", 47, 55, 5, 15, "Europe/Berlin"},
	{"ES", 36, 44, -10, 4, "Europe/Madrid"},
	{"IT", 36, 47, 6, 19, "Europe/Rome"},
	{"RU", 41, 82, 19, 60, "Europe/Moscow"},
	{"RU", 41, 82, 60, 180, "Asia/Yekaterinburg"},
	{"IN", 6, 36, 68, 98, "Asia/Kolkata"},
	{"CN", 18, 54, 73, 135, "Asia/Shanghai"},
	{"JP", 24, 46, 123, 146, "Asia/Tokyo"},
	{"AU", -44, -10, 112, 154, "Australia/Sydney"},
	{"ZA", -35, -22, 16, 33, "Africa/Johannesburg"},
	{"", -90, 90, -30, 60, "Europe/London"},   // Atlantic/African fallback
	{"", -90, 90, 60, 180, "Asia/Dubai"},      // Asian fallback
	{"", -90, 90, -180, -30, "America/New_York"}, // Americas fallback
}

// Resolve returns the IANA zone name best matching a coordinate, with
// an optional ISO country code used to prefer country-specific bands.
func Resolve(country string, lat, lon float64) string {
	for _, e := range table {
		if e.country != "" && e.country != country {
			continue
		}
		if lat >= e.minLat && lat <= e.maxLat && lon >= e.minLon && lon <= e.maxLon {
			return e.zone
		}
	}
	return "UTC"
}

// Local describes the local-time view of a timestamp in a zone.
type Local struct {
	Zone      string
	Time      time.Time
	UnixTime  int64
	IsDST     bool
}

// LocalAt loads the named zone (via the tzdata-backed time.LoadLocation)
// and computes the local time at `at` within it. Falls back to UTC if
// the zone name can't be loaded: an unknown zone name, or a binary
// built without the "time/tzdata" blank import on a host with no
// system zoneinfo.
func LocalAt(zone string, at time.Time) Local {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
		zone = "UTC"
	}
	local := at.In(loc)
	_, curOffset := local.Zone()

	year := at.Year()
	_, janOffset := time.Date(year, time.January, 1, 12, 0, 0, 0, loc).Zone()
	_, julOffset := time.Date(year, time.July, 1, 12, 0, 0, 0, loc).Zone()
	standardOffset := janOffset
	if julOffset < standardOffset {
		standardOffset = julOffset
	}

	return Local{
		Zone:     zone,
		Time:     local,
		UnixTime: at.Unix(),
		IsDST:    curOffset != standardOffset,
	}
}
