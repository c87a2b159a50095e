// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package pipeline composes the fixed set of FNLE instances and
// auxiliary tables into the fastLookup request path: bogon check, ASN
// resolution, datacenter/company/crawler/mobile/satellite/tor/proxy/
// vpn/abuser flags, geolocation, timezone, and country metadata,
// assembled into a single Response with a fixed field order.
package pipeline

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/wingedpig/ipintel/pkg/fnle"
	"github.com/wingedpig/ipintel/pkg/lfucache"
	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/tzresolve"
)

// Engine is one fully loaded, read-only snapshot of every FNLE index
// and side table the pipeline needs. A new Engine is built by a
// reload; the running worker swaps its pointer to the new one
// atomically so in-flight lookups never see a half-updated index.
type Engine struct {
	ASN          *fnle.Index[int]
	ASNMeta      map[int]model.ASNMeta
	Datacenter   *fnle.Index[model.Datacenter]
	Company      *fnle.Index[model.WhoisRange]
	Crawler      *fnle.Index[string]
	Mobile       *fnle.Index[struct{}]
	Satellite    *fnle.Index[struct{}]
	Tor          *fnle.Index[struct{}]
	Proxy        *fnle.Index[struct{}]
	VPN          *fnle.Index[struct{}]
	Abuser       *fnle.Index[struct{}]
	Bogon        *fnle.Index[struct{}]
	Geoname      *fnle.Index[int64]
	GeonameTable map[int64]model.GeonamePoint
	CountryTable map[string]model.CountryInfo
	PriorityOrgs map[string]bool

	BuiltAt time.Time
	Version int64
}

// Handle is the per-worker hot-swappable view of an Engine, plus the
// LFU cache that sits in front of it. The cache is kept outside the
// swapped Engine; Swap replaces it with an empty cache of the same
// capacity, so no answer computed against the old data outlives a
// reload. The generation counter counts swaps.
type Handle struct {
	ptr        atomic.Pointer[Engine]
	cache      *lfucache.Cache[string, model.Response]
	generation atomic.Int64
	log        *logging.Logger
}

// NewHandle creates a Handle around an initial Engine snapshot.
func NewHandle(initial *Engine, cacheSize int, log *logging.Logger) *Handle {
	h := &Handle{
		cache: lfucache.New[string, model.Response](cacheSize),
		log:   log,
	}
	h.ptr.Store(initial)
	return h
}

// Swap installs a newly built Engine and invalidates the response
// cache, since cached answers were computed against the old data.
func (h *Handle) Swap(e *Engine) {
	h.ptr.Store(e)
	h.generation.Add(1)
	h.cache = lfucache.New[string, model.Response](h.cache.Capacity())
	if h.log != nil {
		h.log.Infof("pipeline: engine swapped, version=%d", e.Version)
	}
}

// Engine returns the currently active snapshot.
func (h *Handle) Engine() *Engine {
	return h.ptr.Load()
}

// cacheKey returns the cache key for a request, which is the IP string
// alone; entries never span engine generations because Swap starts a
// fresh cache.
func cacheKey(ip string) string { return ip }

// Lookup runs fastLookup, consulting the cache first. The cached
// Response never carries wall-clock-derived fields -- Location.Timezone
// depends only on country/lat/lon and is safe to cache, but LocalTime/
// UnixTime/IsDST are recomputed against the current time on every
// call, cache hit or miss, so a long-lived cache entry never serves a
// stale local time.
func (h *Handle) Lookup(ip string) (model.Response, error) {
	start := time.Now()

	key := cacheKey(ip)
	resp, ok := h.cache.Get(key)
	if !ok {
		var err error
		resp, err = fastLookup(h.Engine(), ip)
		if err != nil {
			return model.Response{}, err
		}
		h.cache.Set(key, resp)
	}

	resp = withFreshLocalTime(resp, time.Now())
	resp.ElapsedMS = elapsedMS(start)
	return resp, nil
}

// withFreshLocalTime recomputes resp.Location's time-derived fields
// for at, leaving the cached value (and Location.Timezone, which is
// time-independent) untouched.
func withFreshLocalTime(resp model.Response, at time.Time) model.Response {
	if resp.Location == nil || resp.Location.Timezone == "" {
		return resp
	}
	loc := *resp.Location
	local := localAtResolver(loc.Timezone, at)
	loc.LocalTime = local.Time.Format(time.RFC3339)
	loc.UnixTime = local.UnixTime
	loc.IsDST = local.IsDST
	resp.Location = &loc
	return resp
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// BulkLimit is the maximum number of distinct addresses a bulk lookup
// accepts in one request.
const BulkLimit = 100

// BulkLookup runs fastLookup over a set of addresses, skipping invalid
// entries silently and returning an error only when every entry was
// invalid or the input exceeds BulkLimit.
func (h *Handle) BulkLookup(ips []string) (map[string]model.Response, error) {
	if len(ips) == 0 {
		return nil, model.ErrBulkEmpty
	}
	if len(ips) > BulkLimit {
		return nil, model.ErrBulkTooLarge
	}

	out := make(map[string]model.Response, len(ips))
	for _, raw := range ips {
		resp, err := h.Lookup(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		out[raw] = resp
	}
	if len(out) == 0 {
		return nil, model.ErrBulkNoneValid
	}
	return out, nil
}

// zoneResolver and localAtResolver are overridable for tests; split so
// the cacheable, time-independent zone lookup and the must-recompute
// wall-clock lookup can be called separately (see withFreshLocalTime).
var zoneResolver = func(country string, lat, lon float64) string {
	return tzresolve.Resolve(country, lat, lon)
}

var localAtResolver = func(zone string, at time.Time) tzresolve.Local {
	return tzresolve.LocalAt(zone, at)
}
