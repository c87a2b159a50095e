// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package stage is the ingestion-time staging store: a LevelDB
// database keyed by range-start address holding one model.StageRecord
// per announced range, filled in by RDAP/RIPE/MaxMind source walkers
// and later drained in start-address order to build an FNLE snapshot.
package stage

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/util/ipcodec"
)

// Store wraps a LevelDB instance holding staged ingestion records.
type Store struct {
	db     *leveldb.DB
	mu     sync.RWMutex
	path   string
	closed bool
}

// Open opens or creates a staging database at path.
func Open(path string) (*Store, error) {
	opts := &opt.Options{
		Compression: opt.SnappyCompression,
		WriteBuffer: 64 * 1024 * 1024,
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("stage: open %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.ErrDatabaseClosed
	}
	s.closed = true
	return s.db.Close()
}

// Put stores a record keyed by its start address, overwriting any
// record already staged at that exact start.
func (s *Store) Put(rec *model.StageRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.ErrDatabaseClosed
	}
	if !rec.Start.IsValid() || !rec.End.IsValid() {
		return model.ErrInvalidRange
	}
	if rec.Start.Compare(rec.End) > 0 {
		return fmt.Errorf("%w: start %v > end %v", model.ErrInvalidRange, rec.Start, rec.End)
	}

	value, err := encode(rec)
	if err != nil {
		return fmt.Errorf("stage: encode record: %w", err)
	}
	return s.db.Put(ipcodec.EncodeRangeKey(rec.Start), value, nil)
}

// Delete removes the record staged at the given start address, if any.
func (s *Store) Delete(start netip.Addr) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.ErrDatabaseClosed
	}
	return s.db.Delete(ipcodec.EncodeRangeKey(start), nil)
}

// Walk visits every staged record for one address family in ascending
// start-address order, the order an FNLE builder wants for Add calls.
func (s *Store) Walk(v4 bool, fn func(*model.StageRecord) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.ErrDatabaseClosed
	}

	prefix := ipcodec.PrefixRangeV6
	if v4 {
		prefix = ipcodec.PrefixRangeV4
	}
	slice := &util.Range{Start: []byte(prefix), Limit: []byte(prefix + "\xFF")}

	iter := s.db.NewIterator(slice, nil)
	defer iter.Release()

	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())

		rec, err := decode(key, value)
		if err != nil {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Stats tallies what's currently staged, for reporting at the end of
// an ingestion run.
func (s *Store) Stats() (model.StageStats, error) {
	stats := model.StageStats{
		RecordsByRIR:     map[string]int64{},
		RecordsByRole:    map[string]int64{},
		RecordsByCountry: map[string]int64{},
	}

	for _, v4 := range []bool{true, false} {
		err := s.Walk(v4, func(rec *model.StageRecord) error {
			stats.TotalRecords++
			if v4 {
				stats.IPv4Records++
			} else {
				stats.IPv6Records++
			}
			stats.RecordsByRIR[rec.RIR]++
			stats.RecordsByRole[rec.SourceRole]++
			stats.RecordsByCountry[rec.Country]++
			return nil
		})
		if err != nil {
			return stats, err
		}
	}
	stats.LastBuiltAt = time.Now()
	return stats, nil
}

func encode(rec *model.StageRecord) ([]byte, error) {
	data := struct {
		EndBytes    []byte
		ASN         int
		ASNName     string
		OrgName     string
		RIR         string
		Country     string
		Region      string
		City        string
		Lat         float64
		Lon         float64
		SourceRole  string
		StatusLabel string
		Prefix      string
		LastChecked int64
		Schema      int
	}{
		EndBytes:    rec.End.AsSlice(),
		ASN:         rec.ASN,
		ASNName:     rec.ASNName,
		OrgName:     rec.OrgName,
		RIR:         rec.RIR,
		Country:     rec.Country,
		Region:      rec.Region,
		City:        rec.City,
		Lat:         rec.Lat,
		Lon:         rec.Lon,
		SourceRole:  rec.SourceRole,
		StatusLabel: rec.StatusLabel,
		Prefix:      rec.Prefix,
		LastChecked: rec.LastChecked.Unix(),
		Schema:      rec.Schema,
	}
	return msgpack.Marshal(data)
}

func decode(key, value []byte) (*model.StageRecord, error) {
	var stored struct {
		EndBytes    []byte
		ASN         int
		ASNName     string
		OrgName     string
		RIR         string
		Country     string
		Region      string
		City        string
		Lat         float64
		Lon         float64
		SourceRole  string
		StatusLabel string
		Prefix      string
		LastChecked int64
		Schema      int
	}
	if err := msgpack.Unmarshal(value, &stored); err != nil {
		return nil, fmt.Errorf("stage: decode record: %w", err)
	}

	start, err := ipcodec.DecodeRangeKey(key)
	if err != nil {
		return nil, fmt.Errorf("stage: decode key: %w", err)
	}
	end, err := ipcodec.BytesToIP(stored.EndBytes)
	if err != nil {
		return nil, fmt.Errorf("stage: decode end address: %w", err)
	}

	return &model.StageRecord{
		Start:       start,
		End:         end,
		ASN:         stored.ASN,
		ASNName:     stored.ASNName,
		OrgName:     stored.OrgName,
		RIR:         stored.RIR,
		Country:     stored.Country,
		Region:      stored.Region,
		City:        stored.City,
		Lat:         stored.Lat,
		Lon:         stored.Lon,
		SourceRole:  stored.SourceRole,
		StatusLabel: stored.StatusLabel,
		Prefix:      stored.Prefix,
		LastChecked: time.Unix(stored.LastChecked, 0),
		Schema:      stored.Schema,
	}, nil
}
