// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package ratelimit implements the per-client-IP and per-API-key
// admission control: admin/whitelist bypass,
// blacklist denial, API key status checks, hourly request-class caps,
// and firewall escalation for abusive clients.
package ratelimit

import (
	"net/netip"
	"os/exec"
	"sync"
	"time"

	"github.com/wingedpig/ipintel/pkg/model"
)

// Class is a request class with its own hourly cap.
type Class string

const (
	ClassStandard Class = "standard"
	ClassWhois    Class = "whois"
	ClassBulk     Class = "bulk"
)

// Config holds the limiter's static policy.
type Config struct {
	Enabled       bool
	AdminKey      string
	Whitelist     map[string]bool // API keys that always pass
	Blacklist     []netip.Prefix  // CIDR and exact-inetnum blocks
	PerHourCap    map[Class]int
	DenyThreshold int // deny-count before a client IP is firewalled
}

// FirewallBlocker invokes the OS firewall hook for a client IP. The
// default implementation shells out to iptables/ip6tables; tests use a
// fake.
type FirewallBlocker interface {
	Block(ip netip.Addr) error
}

// Limiter is the per-worker admission-control state:
// accessed only from the request-handling goroutines of one worker,
// guarded by a single coarse mutex per the microsecond-critical-section
// note on keeping lock sections short.
type Limiter struct {
	mu sync.Mutex

	cfg Config
	blocker FirewallBlocker

	apiKeyStatus map[string]model.APIKeyStatus
	knownKeys    bool // true once at least one sync has populated apiKeyStatus

	registeredUsers map[string]bool // API keys with an account, exempt from firewalling

	ipCounters      map[string]map[Class]int
	hourlyEpoch     time.Time
	apiErrorCounts  map[string]int
	apiErrorEpoch   time.Time
	denyCounts      map[string]int
	firewalled      map[string]time.Time
	firewallEpoch   time.Time
}

// New creates a Limiter. blocker may be nil, in which case firewall
// escalation is a no-op (useful for tests and for deployments that
// manage blocking externally).
func New(cfg Config, blocker FirewallBlocker) *Limiter {
	now := time.Now()
	return &Limiter{
		cfg:            cfg,
		blocker:        blocker,
		apiKeyStatus:   make(map[string]model.APIKeyStatus),
		registeredUsers: make(map[string]bool),
		ipCounters:     make(map[string]map[Class]int),
		hourlyEpoch:    now,
		apiErrorCounts: make(map[string]int),
		apiErrorEpoch:  now,
		denyCounts:     make(map[string]int),
		firewalled:     make(map[string]time.Time),
		firewallEpoch:  now,
	}
}

// IptablesBlocker is the default FirewallBlocker: it shells out to
// iptables (ip6tables for IPv6 addresses) to drop all further traffic
// from a client IP at the packet level, below the application.
type IptablesBlocker struct {
	Run func(name string, args ...string) error
}

// NewIptablesBlocker creates an IptablesBlocker that invokes the real
// iptables/ip6tables binaries via os/exec.
func NewIptablesBlocker() *IptablesBlocker {
	return &IptablesBlocker{Run: runCommand}
}

// Block appends a DROP rule for ip to the INPUT chain.
func (b *IptablesBlocker) Block(ip netip.Addr) error {
	bin := "iptables"
	if ip.Is6() {
		bin = "ip6tables"
	}
	return b.Run(bin, "-A", "INPUT", "-s", ip.String(), "-j", "DROP")
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed bool
	Code    model.ErrorCode
}

func allow() Decision { return Decision{Allowed: true} }
func deny(code model.ErrorCode) Decision { return Decision{Allowed: false, Code: code} }

// Allow applies the admission precedence chain in order.
func (l *Limiter) Allow(clientIP netip.Addr, apiKey string, class Class) Decision {
	if !l.cfg.Enabled {
		return allow()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// 1. Global admin key.
	if apiKey != "" && l.cfg.AdminKey != "" && apiKey == l.cfg.AdminKey {
		return allow()
	}

	// 2. Whitelisted API key.
	if apiKey != "" && l.cfg.Whitelist[apiKey] {
		return allow()
	}

	// 3. Blacklisted client IP.
	for _, network := range l.cfg.Blacklist {
		if network.Contains(clientIP) {
			return deny(model.CodeForbiddenBlacklisted)
		}
	}

	// 4. API key status.
	if apiKey != "" {
		status, known := l.apiKeyStatus[apiKey]
		switch {
		case !known && l.knownKeys:
			return deny(model.CodeForbiddenInvalidAPIKey)
		case known && status == model.StatusOverQuota:
			return deny(model.CodeQuotaExceeded)
		case known && status == model.StatusNotAllow:
			return deny(model.CodeForbiddenNotAllowed)
		}
		// Unknown key before any sync has landed: fail-open.
	}

	// 5. Per-client-IP hourly cap for this request class.
	counters, ok := l.ipCounters[clientIP.String()]
	if !ok {
		counters = make(map[Class]int)
		l.ipCounters[clientIP.String()] = counters
	}
	cap := l.cfg.PerHourCap[class]
	if cap > 0 && counters[class] >= cap {
		l.recordDeny(clientIP, apiKey)
		return deny(model.CodeRateLimitExceeded)
	}
	counters[class]++

	return allow()
}

// recordDeny tracks a denial and escalates to the firewall hook once
// the deny-count threshold is crossed for a client IP. Requests made
// with a registered API key are never counted.
func (l *Limiter) recordDeny(clientIP netip.Addr, apiKey string) {
	key := clientIP.String()
	if apiKey != "" && l.registeredUsers[apiKey] {
		return
	}
	l.denyCounts[key]++
	if l.cfg.DenyThreshold <= 0 || l.denyCounts[key] < l.cfg.DenyThreshold {
		return
	}
	if _, already := l.firewalled[key]; already {
		return
	}
	l.firewalled[key] = time.Now()
	if l.blocker != nil {
		go func() {
			_ = l.blocker.Block(clientIP)
		}()
	}
}

// UpdateAPIKeyStatus atomically swaps the API key status map, as
// received from a usage-sync round.
func (l *Limiter) UpdateAPIKeyStatus(statuses map[string]model.APIKeyStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.apiKeyStatus = statuses
	l.knownKeys = true
}

// MarkRegistered exempts an API key's client from firewall escalation.
func (l *Limiter) MarkRegistered(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registeredUsers[key] = true
}

// ResetHourly zeroes per-IP request counters on the 1-hour epoch.
func (l *Limiter) ResetHourly() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ipCounters = make(map[string]map[Class]int)
	l.hourlyEpoch = time.Now()
}

// ResetAPIErrors zeroes API-error counters (24-hour epoch).
func (l *Limiter) ResetAPIErrors() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.apiErrorCounts = make(map[string]int)
	l.apiErrorEpoch = time.Now()
}

// ResetFirewall clears firewall and deny-count state (12-hour epoch).
func (l *Limiter) ResetFirewall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.denyCounts = make(map[string]int)
	l.firewalled = make(map[string]time.Time)
	l.firewallEpoch = time.Now()
}

// Stats reports counts for the admin /stats endpoint.
type Stats struct {
	TrackedIPs      int
	FirewalledIPs   int
	APIErrorEntries int
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		TrackedIPs:      len(l.ipCounters),
		FirewalledIPs:   len(l.firewalled),
		APIErrorEntries: len(l.apiErrorCounts),
	}
}

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}
