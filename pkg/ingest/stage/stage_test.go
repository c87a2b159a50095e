package stage

import (
	"errors"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/wingedpig/ipintel/pkg/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stage.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndWalkRoundTrips(t *testing.T) {
	s := openTest(t)

	rec := &model.StageRecord{
		Start:      netip.MustParseAddr("203.0.113.0"),
		End:        netip.MustParseAddr("203.0.113.255"),
		ASN:        64512,
		OrgName:    "Example Corp",
		RIR:        "arin",
		Country:    "US",
		SourceRole: "customer",
		Prefix:     "203.0.113.0/24",
	}
	if err := s.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	var seen []*model.StageRecord
	if err := s.Walk(true, func(r *model.StageRecord) error {
		seen = append(seen, r)
		return nil
	}); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("got %d records, want 1", len(seen))
	}
	if seen[0].OrgName != "Example Corp" || seen[0].ASN != 64512 {
		t.Errorf("round-tripped record = %+v", seen[0])
	}
}

func TestPutRejectsInvertedRange(t *testing.T) {
	s := openTest(t)
	rec := &model.StageRecord{
		Start: netip.MustParseAddr("203.0.113.255"),
		End:   netip.MustParseAddr("203.0.113.0"),
	}
	if err := s.Put(rec); !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := openTest(t)
	rec := &model.StageRecord{
		Start: netip.MustParseAddr("198.51.100.0"),
		End:   netip.MustParseAddr("198.51.100.255"),
	}
	if err := s.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete(rec.Start); err != nil {
		t.Fatalf("delete: %v", err)
	}

	count := 0
	s.Walk(true, func(r *model.StageRecord) error { count++; return nil })
	if count != 0 {
		t.Fatalf("count after delete = %d, want 0", count)
	}
}

func TestStatsTallyByRIR(t *testing.T) {
	s := openTest(t)
	s.Put(&model.StageRecord{Start: netip.MustParseAddr("203.0.113.0"), End: netip.MustParseAddr("203.0.113.255"), RIR: "arin", SourceRole: "customer", Country: "US"})
	s.Put(&model.StageRecord{Start: netip.MustParseAddr("198.51.100.0"), End: netip.MustParseAddr("198.51.100.255"), RIR: "ripe", SourceRole: "registrant", Country: "DE"})

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalRecords != 2 || stats.IPv4Records != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.RecordsByRIR["arin"] != 1 || stats.RecordsByRIR["ripe"] != 1 {
		t.Errorf("RecordsByRIR = %v", stats.RecordsByRIR)
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	s := openTest(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	rec := &model.StageRecord{Start: netip.MustParseAddr("203.0.113.0"), End: netip.MustParseAddr("203.0.113.255")}
	if err := s.Put(rec); err != model.ErrDatabaseClosed {
		t.Fatalf("err = %v, want ErrDatabaseClosed", err)
	}
}
