package fnle

import (
	"sort"
	"testing"
)

func buildNested(t *testing.T, policy Policy) *Index[string] {
	t.Helper()
	ix := New[string]("nested", policy)
	cases := []struct {
		cidr    string
		payload string
	}{
		{"87.122.0.0/26", "/26"},
		{"87.122.0.0/22", "/22"},
		{"87.122.0.0/20", "/20"},
		{"87.122.0.0/15", "/15"},
	}
	for _, c := range cases {
		if err := ix.Add(c.cidr, c.payload); err != nil {
			t.Fatalf("Add(%s): %v", c.cidr, err)
		}
	}
	ix.Build()
	return ix
}

func TestSmallestPolicyOverNestedNetworks(t *testing.T) {
	ix := buildNested(t, PolicySmallest)

	cases := []struct {
		addr string
		want string
		ok   bool
	}{
		{"87.122.0.1", "/26", true},
		{"87.122.0.64", "/22", true},
		{"87.122.4.0", "/20", true},
		{"87.123.255.255", "/15", true},
		{"87.124.0.0", "", false},
	}
	for _, c := range cases {
		res := ix.Lookup(c.addr)
		if res.Found != c.ok {
			t.Errorf("lookup(%s).Found = %v, want %v", c.addr, res.Found, c.ok)
			continue
		}
		if c.ok && res.Single != c.want {
			t.Errorf("lookup(%s) = %q, want %q", c.addr, res.Single, c.want)
		}
	}
}

func TestAllPolicyReturnsCompleteSet(t *testing.T) {
	ix := buildNested(t, PolicyAll)

	res := ix.Lookup("87.122.0.1")
	if !res.Found {
		t.Fatalf("expected a match")
	}
	got := append([]string(nil), res.Multiple...)
	sort.Strings(got)
	want := []string{"/15", "/20", "/22", "/26"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIPv6CompressionIndependentMatching(t *testing.T) {
	ix := New[string]("v6", PolicyFirst)
	if err := ix.Add("2604:a880:0:1011::/64", "NY"); err != nil {
		t.Fatal(err)
	}
	ix.Build()

	for _, addr := range []string{
		"2604:a880:0000:1011::1",
		"2604:a880:0:1011:ffff:ffff:ffff:ffff",
	} {
		res := ix.Lookup(addr)
		if !res.Found || res.Single != "NY" {
			t.Errorf("lookup(%s) = %+v, want NY", addr, res)
		}
	}
}

func TestDirectHostOverridesAndCoexistsWithRanges(t *testing.T) {
	ix := New[string]("direct", PolicyAll)
	if err := ix.Add("10.0.0.0/8", "net"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add("10.0.0.5", "host"); err != nil {
		t.Fatal(err)
	}
	ix.Build()

	res := ix.Lookup("10.0.0.5")
	if !res.Found {
		t.Fatalf("expected a match")
	}
	// Direct hits short-circuit the range sweep entirely,
	// so only "host" is returned -- ranges never get consulted.
	if len(res.Multiple) != 1 || res.Multiple[0] != "host" {
		t.Errorf("got %v, want [host]", res.Multiple)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ix := buildNested(t, PolicySmallest)

	dir := t.TempDir()
	if err := ix.Persist(dir); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded, version, result, err := Load[string]("nested", PolicySmallest, dir, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result != LoadSuccess {
		t.Fatalf("Load result = %v, want LoadSuccess", result)
	}

	for _, addr := range []string{"87.122.0.1", "87.122.0.64", "87.122.4.0", "87.123.255.255"} {
		want := ix.Lookup(addr)
		got := loaded.Lookup(addr)
		if got.Found != want.Found || got.Single != want.Single {
			t.Errorf("lookup(%s) after reload = %+v, want %+v", addr, got, want)
		}
	}

	_, _, result2, err := Load[string]("nested", PolicySmallest, dir, version)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if result2 != LoadReloadNotNeeded {
		t.Errorf("second Load result = %v, want LoadReloadNotNeeded", result2)
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	_, _, result, err := Load[string]("missing", PolicyFirst, "/nonexistent/path/really", 0)
	if err == nil {
		t.Fatalf("expected error")
	}
	if result != LoadStoreDirDoesNotExist {
		t.Errorf("result = %v, want LoadStoreDirDoesNotExist", result)
	}
}

func TestOversizeAndDuplicateRejection(t *testing.T) {
	ix := New[string]("limits", PolicyFirst)

	// A /0 IPv4 range is far larger than 2^29.
	if err := ix.Add("0.0.0.0/0", "everything"); err == nil {
		t.Errorf("expected oversize rejection")
	}

	if err := ix.Add("192.0.2.0/24", "a"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add("192.0.2.0/24", "b"); err == nil {
		t.Errorf("expected duplicate rejection")
	}

	stats := ix.Stats()
	if stats.IPv4Rejected != 1 || stats.IPv4DupRejected != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestShadowedEndStillMatchesEnclosingRange covers a query address
// whose nearest preceding sweep-line event is a nested range's END,
// not its own enclosing range's START -- the enclosing range must
// still be found since it hasn't ended yet.
func TestShadowedEndStillMatchesEnclosingRange(t *testing.T) {
	ix := New[string]("shadow", PolicyAll)
	if err := ix.Add("0.0.0.0-0.0.0.100", "A"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add("0.0.0.10-0.0.0.20", "B"); err != nil {
		t.Fatal(err)
	}
	ix.Build()

	res := ix.Lookup("0.0.0.50")
	if !res.Found {
		t.Fatalf("lookup(0.0.0.50) found nothing, want A")
	}
	if len(res.Multiple) != 1 || res.Multiple[0] != "A" {
		t.Errorf("lookup(0.0.0.50) = %v, want [A]", res.Multiple)
	}

	first := New[string]("shadow-first", PolicyFirst)
	if err := first.Add("0.0.0.0-0.0.0.100", "A"); err != nil {
		t.Fatal(err)
	}
	if err := first.Add("0.0.0.10-0.0.0.20", "B"); err != nil {
		t.Fatal(err)
	}
	first.Build()
	if res := first.Lookup("0.0.0.50"); !res.Found || res.Single != "A" {
		t.Errorf("lookup(0.0.0.50) under FIRST = %+v, want A", res)
	}
}

func TestEndpointsInclusive(t *testing.T) {
	ix := New[string]("endpoints", PolicyFirst)
	if err := ix.Add("198.51.100.0/24", "block"); err != nil {
		t.Fatal(err)
	}
	ix.Build()

	for _, addr := range []string{"198.51.100.0", "198.51.100.255"} {
		res := ix.Lookup(addr)
		if !res.Found || res.Single != "block" {
			t.Errorf("lookup(%s) = %+v, want block", addr, res)
		}
	}
	if res := ix.Lookup("198.51.101.0"); res.Found {
		t.Errorf("lookup(198.51.101.0) should miss, got %+v", res)
	}
}
