package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wingedpig/ipintel/pkg/fnle"
	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/pipeline"
	"github.com/wingedpig/ipintel/pkg/ratelimit"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	asnIdx := fnle.New[int]("asn", fnle.PolicyFirst)
	if err := asnIdx.Add("203.0.113.0/24", 64512); err != nil {
		t.Fatalf("add asn: %v", err)
	}
	asnIdx.Build()

	engine := &pipeline.Engine{ASN: asnIdx, ASNMeta: map[int]model.ASNMeta{64512: {Name: "Example Net"}}}
	handle := pipeline.NewHandle(engine, 16, nil)
	limiter := ratelimit.New(ratelimit.Config{Enabled: true, PerHourCap: map[ratelimit.Class]int{ratelimit.ClassStandard: 1000, ratelimit.ClassBulk: 1000}}, nil)

	return New(handle, limiter, nil, AdminHooks{AdminKey: "admintest", APIVersion: "1.0.0"}, nil)
}

func TestLookupJSONEndpoint(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/json?ip=203.0.113.5", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp model.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ASNInfo == nil || resp.ASNInfo.ASN != 64512 {
		t.Fatalf("expected ASN 64512, got %+v", resp.ASNInfo)
	}
}

func TestLookupCSVEndpoint(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/csv?ip=203.0.113.5", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "203.0.113.5") {
		t.Errorf("expected CSV body to contain the queried IP, got %q", w.Body.String())
	}
}

func TestBulkLookupEndpoint(t *testing.T) {
	s := testServer(t)
	body := strings.NewReader(`["203.0.113.5", "garbage"]`)
	req := httptest.NewRequest(http.MethodPost, "/ip", body)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var out map[string]model.Response
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := out["203.0.113.5"]; !ok {
		t.Errorf("expected valid entry in bulk result")
	}
}

func TestAdminEndpointRequiresKey(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 without admin key", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-Admin-Key", "admintest")
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with admin key", w.Code)
	}
}

func TestAPIVersionEndpoint(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/apiVersion", nil)
	req.Header.Set("X-Admin-Key", "admintest")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	var out map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["version"] != "1.0.0" {
		t.Errorf("version = %q, want 1.0.0", out["version"])
	}
}
