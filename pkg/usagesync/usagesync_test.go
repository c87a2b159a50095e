package usagesync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"

	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/ratelimit"
)

func TestSyncOnceAppliesStatusAndZeroesCounters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		compressed, _ := io.ReadAll(r.Body)
		raw, err := snappy.Decode(nil, compressed)
		if err != nil {
			t.Fatalf("decode snappy body: %v", err)
		}
		var req syncRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.Usage["k1"] != 3 {
			t.Fatalf("usage[k1] = %d, want 3", req.Usage["k1"])
		}

		resp := syncResponse{Status: map[string]model.APIKeyStatus{"k1": model.StatusAllowed}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	counters := NewCounters()
	counters.Incr("k1")
	counters.Incr("k1")
	counters.Incr("k1")

	limiter := ratelimit.New(ratelimit.Config{Enabled: true}, nil)
	s := NewSyncer(srv.URL, "worker-1", counters, limiter, nil)

	if err := s.syncOnce(context.Background()); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}

	if got := counters.snapshotAndReset(); len(got) != 0 {
		t.Errorf("expected counters zeroed after sync, got %v", got)
	}
}

func TestSyncOnceRestoresCountersOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	counters := NewCounters()
	counters.Incr("k1")
	limiter := ratelimit.New(ratelimit.Config{Enabled: true}, nil)
	s := NewSyncer(srv.URL, "worker-1", counters, limiter, nil)

	if err := s.syncOnce(context.Background()); err == nil {
		t.Fatalf("expected error from 500 response")
	}

	counters.mu.Lock()
	count := counters.counts["k1"]
	counters.mu.Unlock()
	if count != 1 {
		t.Errorf("counters.counts[k1] = %d, want 1 (restored)", count)
	}
}

func TestNextIntervalStaysWithinBounds(t *testing.T) {
	s := &Syncer{MinInterval: 6 * time.Minute, MaxInterval: 8 * time.Minute}
	for i := 0; i < 50; i++ {
		d := s.nextInterval()
		if d < s.MinInterval || d >= s.MaxInterval {
			t.Fatalf("nextInterval() = %v, want within [%v, %v)", d, s.MinInterval, s.MaxInterval)
		}
	}
}
