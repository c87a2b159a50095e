// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import "github.com/wingedpig/ipintel/pkg/model"

// defaultCountryTable seeds country_table.json with the handful of
// countries exercised by the test fixtures; a production build
// replaces this with a generated table covering every ISO code.
var defaultCountryTable = map[string]model.CountryInfo{
	"US": {Continent: "NA", CallingCode: "1", Currency: "USD", IsEU: false},
	"CA": {Continent: "NA", CallingCode: "1", Currency: "CAD", IsEU: false},
	"GB": {Continent: "EU", CallingCode: "44", Currency: "GBP", IsEU: false},
	"DE": {Continent: "EU", CallingCode: "49", Currency: "EUR", IsEU: true},
	"FR": {Continent: "EU", CallingCode: "33", Currency: "EUR", IsEU: true},
	"NL": {Continent: "EU", CallingCode: "31", Currency: "EUR", IsEU: true},
	"JP": {Continent: "AS", CallingCode: "81", Currency: "JPY", IsEU: false},
	"AU": {Continent: "OC", CallingCode: "61", Currency: "AUD", IsEU: false},
	"BR": {Continent: "SA", CallingCode: "55", Currency: "BRL", IsEU: false},
	"IN": {Continent: "AS", CallingCode: "91", Currency: "INR", IsEU: false},
}

// defaultPriorityOrgs mirrors the curated org-name list company
// resolution rule (d) consults when no registry tag or priority type
// distinguishes a range.
var defaultPriorityOrgs = map[string]bool{
	"amazon.com, inc.":            true,
	"google llc":                  true,
	"microsoft corporation":       true,
	"cloudflare, inc.":            true,
	"akamai technologies, inc.":   true,
	"fastly, inc.":                true,
	"digitalocean, llc":           true,
	"ovh sas":                     true,
	"hetzner online gmbh":         true,
}
