// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package model holds the record, response, and error types shared
// across the FNLE-backed lookup pipeline, the ingestion staging store,
// and the HTTP surface.
package model

import (
	"net/netip"
	"time"
)

// StageRecord is one parsed WHOIS/RIR record as it sits in the
// ingestion staging store (pkg/ingest/stage) before being folded into
// an FNLE snapshot: same shape as a query-time record, but feeding a
// build step instead of serving lookups directly.
type StageRecord struct {
	Start       netip.Addr
	End         netip.Addr
	ASN         int
	ASNName     string
	OrgName     string
	RIR         string
	Country     string
	Region      string
	City        string
	Lat         float64
	Lon         float64
	SourceRole  string // customer/registrant/asn_fallback
	StatusLabel string // RIPE status, e.g. ASSIGNED-PA
	Prefix      string
	LastChecked time.Time
	Schema      int
}

// StageStats is reported by the staging store's Stats() during a
// build run.
type StageStats struct {
	TotalRecords     int64
	IPv4Records      int64
	IPv6Records      int64
	RecordsByRIR     map[string]int64
	RecordsByRole    map[string]int64
	RecordsByCountry map[string]int64
	LastBuiltAt      time.Time
	SchemaVersion    int
	BuilderVersion   string
}

// BuildConfig configures an ingestion build run (pkg/ingest): sources
// to pull from, a staging DB path, and the final FNLE SnapshotDir.
type BuildConfig struct {
	ASNFile       string
	MMDBASNPath   string
	MMDBCityPath  string
	StageDBPath   string
	SnapshotDir   string
	Workers       int
	CacheTTL      time.Duration
	IPv4Only      bool
	AllASNs       bool

	RIPEBaseURL   string
	RDAPBootstrap string
	UserAgent     string
	RDAPRateLimit float64
}

// RDAPOrg represents organization information extracted from RDAP.
type RDAPOrg struct {
	OrgName     string
	RIR         string
	SourceRole  string
	StatusLabel string
	Country     string
}

// ASNPrefixes represents announced prefixes for an ASN.
type ASNPrefixes struct {
	ASN       int
	Prefixes  []string
	FetchedAt time.Time
}

// Error is a sentinel error type: plain string-constant errors rather
// than a structured error package.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotFound       Error = "not found"
	ErrInvalidIP      Error = "invalid IP address"
	ErrInvalidASN     Error = "invalid ASN"
	ErrDatabaseClosed Error = "database is closed"
	ErrOverlap        Error = "overlapping range detected"
	ErrInvalidRange   Error = "invalid IP range"
	ErrRateLimited    Error = "rate limited by upstream service"
	ErrRDAPFailed     Error = "RDAP query failed"
	ErrBulkTooLarge   Error = "bulk input exceeds limit"
	ErrBulkEmpty      Error = "bulk input is empty"
	ErrBulkNotArray   Error = "bulk input is not an array"
	ErrBulkNoneValid  Error = "bulk input has no valid entries"
	ErrConfigReload   Error = "config reload failed"
	ErrSyncFailed     Error = "usage sync failed"
)
