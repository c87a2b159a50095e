package tzresolve

import (
	"testing"
	"time"

	_ "time/tzdata"
)

func TestResolveKnownBands(t *testing.T) {
	cases := []struct {
		country  string
		lat, lon float64
		want     string
	}{
		{"US", 40.7, -74.0, "America/New_York"},
		{"US", 34.0, -118.2, "America/Los_Angeles"},
		{"GB", 51.5, -0.1, "Europe/London"},
		{"JP", 35.6, 139.7, "Asia/Tokyo"},
	}
	for _, c := range cases {
		if got := Resolve(c.country, c.lat, c.lon); got != c.want {
			t.Errorf("Resolve(%q, %v, %v) = %q, want %q", c.country, c.lat, c.lon, got, c.want)
		}
	}
}

func TestResolveFallsBackWithinRange(t *testing.T) {
	got := Resolve("", 0, 0)
	if got == "" {
		t.Fatalf("expected a non-empty fallback zone")
	}
}

func TestLocalAtComputesOffsetAndDST(t *testing.T) {
	summer := time.Date(2026, time.July, 15, 12, 0, 0, 0, time.UTC)
	local := LocalAt("America/New_York", summer)
	if local.Zone != "America/New_York" {
		t.Errorf("zone = %q, want America/New_York", local.Zone)
	}
	if !local.IsDST {
		t.Errorf("expected DST to be active in New York in July")
	}
	if local.UnixTime != summer.Unix() {
		t.Errorf("UnixTime = %d, want %d", local.UnixTime, summer.Unix())
	}

	winter := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	local = LocalAt("America/New_York", winter)
	if local.IsDST {
		t.Errorf("expected standard time in New York in January")
	}
}

func TestLocalAtFallsBackToUTCOnUnknownZone(t *testing.T) {
	local := LocalAt("Not/AZone", time.Now())
	if local.Zone != "UTC" {
		t.Errorf("zone = %q, want UTC fallback", local.Zone)
	}
}
