// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package iporgdb is a generic LevelDB key/value store with a small
// metadata and cache convention layered on top: a reserved key prefix
// for schema/build-provenance metadata, and another for TTL-style cache
// entries. It has no notion of IP ranges or organizations itself — it
// backs rdap.CachedClient, which is the one that gives the keys and
// values their meaning.
package iporgdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/wingedpig/ipintel/pkg/model"
)

// DB wraps a LevelDB instance for IP organization data
type DB struct {
	db     *leveldb.DB
	mu     sync.RWMutex
	path   string
	closed bool
}

// Open opens or creates a LevelDB database at the specified path
func Open(path string) (*DB, error) {
	opts := &opt.Options{
		// Use snappy compression for values
		Compression: opt.SnappyCompression,
		// Increase write buffer for faster builds
		WriteBuffer: 64 * 1024 * 1024, // 64MB
	}

	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &DB{
		db:   db,
		path: path,
	}, nil
}

// Close closes the database
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return model.ErrDatabaseClosed
	}

	d.closed = true
	return d.db.Close()
}

// IsClosed returns true if the database is closed
func (d *DB) IsClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Path returns the database path
func (d *DB) Path() string {
	return d.path
}

// Get retrieves a value by key
func (d *DB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, model.ErrDatabaseClosed
	}

	value, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	return value, nil
}

// Put stores a key-value pair
func (d *DB) Put(key, value []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return model.ErrDatabaseClosed
	}

	return d.db.Put(key, value, nil)
}

// Delete removes a key-value pair
func (d *DB) Delete(key []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return model.ErrDatabaseClosed
	}

	return d.db.Delete(key, nil)
}

// NewIterator creates a new iterator
func (d *DB) NewIterator(slice *util.Range) iterator.Iterator {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.db.NewIterator(slice, nil)
}

// WriteBatch writes multiple key-value pairs atomically
func (d *DB) WriteBatch(ops []BatchOp) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return model.ErrDatabaseClosed
	}

	batch := new(leveldb.Batch)
	for _, op := range ops {
		if op.Delete {
			batch.Delete(op.Key)
		} else {
			batch.Put(op.Key, op.Value)
		}
	}

	return d.db.Write(batch, nil)
}

// BatchOp represents a batch operation
type BatchOp struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// CompactDB forces compaction of the database
func (d *DB) CompactDB(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return model.ErrDatabaseClosed
	}

	// Compact the entire database
	return d.db.CompactRange(util.Range{Start: nil, Limit: nil})
}
