// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package pipeline

import (
	"strings"

	"github.com/wingedpig/ipintel/pkg/fnle"
	"github.com/wingedpig/ipintel/pkg/model"
)

// priorityTypes are company ranges whose type alone earns precedence
// over a plain commercial registrant, checked in the order given.
var priorityTypes = []string{"education", "government", "banking"}

// fastLookup runs the full classification/enrichment chain for one
// address against a single Engine snapshot.
func fastLookup(e *Engine, raw string) (model.Response, error) {
	addr, isV4, err := fnle.ParseAddr(raw)
	if err != nil {
		return model.Response{}, model.ErrInvalidIP
	}

	resp := model.Response{IP: raw}

	if e.Bogon != nil {
		if r := e.Bogon.LookupAddr(addr, isV4); r.Found {
			resp.IsBogon = true
		}
	}

	var asn int
	if e.ASN != nil {
		if r := e.ASN.LookupAddr(addr, isV4); r.Found {
			asn = r.Single
			if meta, ok := e.ASNMeta[asn]; ok {
				resp.RIR = meta.RIR
				resp.ASNInfo = &model.ASN{ASN: asn, Name: meta.Name, Domain: meta.Domain, Type: meta.Type}
			} else {
				resp.ASNInfo = &model.ASN{ASN: asn}
			}
		}
	}

	if e.Datacenter != nil {
		if r := e.Datacenter.LookupAddr(addr, isV4); r.Found {
			resp.IsDatacenter = true
			best := narrowestDatacenter(r.Multiple)
			resp.Datacenter = &best
		}
	}

	if e.Company != nil {
		if r, nets := e.Company.LookupWithNetwork(raw); r.Found && len(r.Multiple) > 0 {
			chosen := chooseCompany(r.Multiple, nets, resp.ASNInfo, e.PriorityOrgs)
			if chosen != nil {
				resp.Company = &model.Company{
					Name:     chosen.OrgName,
					Domain:   chosen.Domain,
					Type:     chosen.Type,
					Registry: chosen.Registry,
				}
				if chosen.AbuseEmail != "" || chosen.AbusePhone != "" || chosen.AbuseName != "" {
					resp.Abuse = &model.Abuse{
						Email:   chosen.AbuseEmail,
						Phone:   chosen.AbusePhone,
						Name:    chosen.AbuseName,
						Network: chosen.Network,
					}
				}
				if chosen.AbuserScore >= abuserScoreThreshold {
					resp.IsAbuser = true
				}
			}
		}
	}

	if e.Crawler != nil {
		if r := e.Crawler.LookupAddr(addr, isV4); r.Found {
			resp.IsCrawler = r.Single
		}
	}
	resp.IsMobile = flagHit(e.Mobile, addr, isV4)
	resp.IsSatellite = flagHit(e.Satellite, addr, isV4)
	resp.IsTor = flagHit(e.Tor, addr, isV4)
	resp.IsProxy = flagHit(e.Proxy, addr, isV4)
	resp.IsVPN = flagHit(e.VPN, addr, isV4)
	if flagHit(e.Abuser, addr, isV4) {
		resp.IsAbuser = true
	}

	if e.Geoname != nil && e.GeonameTable != nil {
		if r := e.Geoname.LookupAddr(addr, isV4); r.Found {
			id := r.Single
			if len(r.Multiple) > 0 {
				id = r.Multiple[0]
			}
			if point, ok := e.GeonameTable[id]; ok {
				loc := &model.Location{
					Country: point.Country,
					Region:  point.State,
					City:    point.City,
					Zip:     point.Zip,
					Lat:     point.Lat,
					Lon:     point.Lon,
				}
				// Only the zone is resolved (and cached) here; LocalTime/
				// UnixTime/IsDST are wall-clock-derived and are filled in
				// fresh on every call by withFreshLocalTime, not baked
				// into the cached Response.
				loc.Timezone = zoneResolver(point.Country, point.Lat, point.Lon)

				if info, ok := e.CountryTable[point.Country]; ok {
					loc.Continent = info.Continent
					loc.CallingCode = info.CallingCode
					loc.Currency = info.Currency
					loc.IsEU = info.IsEU
				}
				resp.Location = loc
			}
		}
	}

	return resp, nil
}

// abuserScoreThreshold is the WHOIS abuser-score cutoff above which a
// matched company range marks the response is_abuser.
const abuserScoreThreshold = 70

func flagHit[P any](ix *fnle.Index[P], addr fnle.Addr, isV4 bool) bool {
	if ix == nil {
		return false
	}
	return ix.LookupAddr(addr, isV4).Found
}

func narrowestDatacenter(candidates []model.Datacenter) model.Datacenter {
	// All matches at this point already passed the ALL-policy contains
	// check; with no size metadata carried on Datacenter itself, the
	// first match (slot-order, which is insertion order) is preferred.
	return candidates[0]
}

// chooseCompany applies the documented precedence order, stopping at
// the first rule that selects a non-empty candidate set. nets holds
// the backing range for each entry in candidates, same index order,
// used only by the narrowest-range fallback.
func chooseCompany(candidates []model.WhoisRange, nets []fnle.Range, asnInfo *model.ASN, priorityOrgs map[string]bool) *model.WhoisRange {
	if priorityOrgs == nil {
		priorityOrgs = priorityOrgNames
	}
	type slot struct {
		rng  model.WhoisRange
		net  fnle.Range
		have bool
	}
	all := make([]slot, len(candidates))
	for i, c := range candidates {
		s := slot{rng: c}
		if i < len(nets) {
			s.net, s.have = nets[i], true
		}
		all[i] = s
	}

	nonLastResort := make([]slot, 0, len(all))
	var lastResort []slot
	for _, s := range all {
		if s.rng.LastResort {
			lastResort = append(lastResort, s)
		} else {
			nonLastResort = append(nonLastResort, s)
		}
	}
	pooled := nonLastResort
	if len(pooled) == 0 {
		pooled = lastResort
	}
	if len(pooled) == 0 {
		return nil
	}
	pool := make([]model.WhoisRange, len(pooled))
	for i, s := range pooled {
		pool[i] = s.rng
	}

	// a. ARIN_CUST or RWHOIS registry tag.
	for i := range pool {
		if pool[i].RegistryTag == "ARIN_CUST" || pool[i].RegistryTag == "RWHOIS" {
			return &pool[i]
		}
	}

	// b. High abuser score.
	for i := range pool {
		if pool[i].AbuserScore >= abuserScoreThreshold {
			return &pool[i]
		}
	}

	// c. Priority type.
	for _, t := range priorityTypes {
		for i := range pool {
			if pool[i].Type == t {
				return &pool[i]
			}
		}
	}

	// d. Curated priority org name.
	for i := range pool {
		if priorityOrgs[strings.ToLower(strings.TrimSpace(pool[i].OrgName))] {
			return &pool[i]
		}
	}

	// e. Exactly one isp-typed range.
	var isps []int
	for i := range pool {
		if pool[i].Type == "isp" {
			isps = append(isps, i)
		}
	}
	if len(isps) == 1 {
		return &pool[isps[0]]
	}

	// f. Org name equals the ASN organization name, type != business.
	if asnInfo != nil && asnInfo.Name != "" {
		want := strings.ToLower(strings.TrimSpace(asnInfo.Name))
		for i := range pool {
			if pool[i].Type != "business" && strings.ToLower(strings.TrimSpace(pool[i].OrgName)) == want {
				return &pool[i]
			}
		}
	}

	// g. Narrowest range overall.
	best := 0
	for i := 1; i < len(pooled); i++ {
		if !pooled[i].have || !pooled[best].have {
			continue
		}
		if rangeWidthLess(pooled[i].net, pooled[best].net) {
			best = i
		}
	}
	return &pool[best]
}

// rangeWidthLess reports whether a spans fewer addresses than b,
// comparing without risking overflow on 128-bit IPv6 widths.
func rangeWidthLess(a, b fnle.Range) bool {
	aHi, aLo := rangeWidth(a)
	bHi, bLo := rangeWidth(b)
	if aHi != bHi {
		return aHi < bHi
	}
	return aLo < bLo
}

func rangeWidth(r fnle.Range) (hi, lo uint64) {
	hi = r.End.Hi - r.Start.Hi
	lo = r.End.Lo - r.Start.Lo
	if r.End.Lo < r.Start.Lo {
		hi--
	}
	lo++
	if lo == 0 {
		hi++
	}
	return hi, lo
}

// priorityOrgNames is the curated priority-name list consulted by
// company resolution rule (d).
var priorityOrgNames = map[string]bool{
	"amazon.com, inc.":      true,
	"google llc":            true,
	"microsoft corporation": true,
	"cloudflare, inc.":      true,
	"akamai technologies, inc.": true,
	"fastly, inc.":          true,
	"digitalocean, llc":     true,
	"ovh sas":               true,
	"hetzner online gmbh":   true,
}
