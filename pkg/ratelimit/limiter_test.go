package ratelimit

import (
	"net/netip"
	"testing"

	"github.com/wingedpig/ipintel/pkg/model"
)

type fakeBlocker struct {
	blocked []netip.Addr
}

func (f *fakeBlocker) Block(ip netip.Addr) error {
	f.blocked = append(f.blocked, ip)
	return nil
}

func TestAdminKeyBypassesEverything(t *testing.T) {
	cfg := Config{Enabled: true, AdminKey: "admin-secret", PerHourCap: map[Class]int{ClassStandard: 0}}
	l := New(cfg, nil)

	d := l.Allow(netip.MustParseAddr("203.0.113.1"), "admin-secret", ClassStandard)
	if !d.Allowed {
		t.Fatalf("admin key should bypass all checks, got %+v", d)
	}
}

func TestBlacklistedIPIsDenied(t *testing.T) {
	cfg := Config{
		Enabled:   true,
		Blacklist: []netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")},
	}
	l := New(cfg, nil)

	d := l.Allow(netip.MustParseAddr("198.51.100.5"), "", ClassStandard)
	if d.Allowed || d.Code != model.CodeForbiddenBlacklisted {
		t.Fatalf("got %+v, want denied/CodeForbiddenBlacklisted", d)
	}
}

func TestHourlyCapDenies(t *testing.T) {
	cfg := Config{Enabled: true, PerHourCap: map[Class]int{ClassStandard: 2}}
	l := New(cfg, nil)
	ip := netip.MustParseAddr("192.0.2.9")

	for i := 0; i < 2; i++ {
		if d := l.Allow(ip, "", ClassStandard); !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	d := l.Allow(ip, "", ClassStandard)
	if d.Allowed || d.Code != model.CodeRateLimitExceeded {
		t.Fatalf("got %+v, want denied/CodeRateLimitExceeded", d)
	}
}

func TestOverQuotaKeyIsDenied(t *testing.T) {
	cfg := Config{Enabled: true}
	l := New(cfg, nil)
	l.UpdateAPIKeyStatus(map[string]model.APIKeyStatus{"k1": model.StatusOverQuota})

	d := l.Allow(netip.MustParseAddr("192.0.2.1"), "k1", ClassStandard)
	if d.Allowed || d.Code != model.CodeQuotaExceeded {
		t.Fatalf("got %+v, want denied/CodeQuotaExceeded", d)
	}
}

func TestDenyThresholdEscalatesToFirewall(t *testing.T) {
	cfg := Config{Enabled: true, PerHourCap: map[Class]int{ClassStandard: 1}, DenyThreshold: 2}
	blocker := &fakeBlocker{}
	l := New(cfg, blocker)
	ip := netip.MustParseAddr("192.0.2.50")

	l.Allow(ip, "", ClassStandard) // consumes the one allowed slot
	l.Allow(ip, "", ClassStandard) // deny #1
	l.Allow(ip, "", ClassStandard) // deny #2, crosses threshold

	l.mu.Lock()
	_, blocked := l.firewalled[ip.String()]
	l.mu.Unlock()
	if !blocked {
		t.Fatalf("expected client to be marked firewalled after threshold denies")
	}
}

func TestResetHourlyClearsCounters(t *testing.T) {
	cfg := Config{Enabled: true, PerHourCap: map[Class]int{ClassStandard: 1}}
	l := New(cfg, nil)
	ip := netip.MustParseAddr("192.0.2.77")

	l.Allow(ip, "", ClassStandard)
	if d := l.Allow(ip, "", ClassStandard); d.Allowed {
		t.Fatalf("expected cap to be hit before reset")
	}
	l.ResetHourly()
	if d := l.Allow(ip, "", ClassStandard); !d.Allowed {
		t.Fatalf("expected allow after hourly reset, got %+v", d)
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := New(Config{Enabled: false}, nil)
	d := l.Allow(netip.MustParseAddr("1.2.3.4"), "", ClassStandard)
	if !d.Allowed {
		t.Fatalf("disabled limiter must allow all requests")
	}
}

func TestIptablesBlockerPicksV4AndV6Binaries(t *testing.T) {
	var calls []string
	b := &IptablesBlocker{Run: func(name string, args ...string) error {
		calls = append(calls, name)
		return nil
	}}

	if err := b.Block(netip.MustParseAddr("203.0.113.1")); err != nil {
		t.Fatalf("block v4: %v", err)
	}
	if err := b.Block(netip.MustParseAddr("2001:db8::1")); err != nil {
		t.Fatalf("block v6: %v", err)
	}
	if len(calls) != 2 || calls[0] != "iptables" || calls[1] != "ip6tables" {
		t.Fatalf("calls = %v, want [iptables ip6tables]", calls)
	}
}
