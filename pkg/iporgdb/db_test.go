// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package iporgdb

import (
	"os"
	"testing"
	"time"
)

func TestOpenClose(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "iporgdb-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	db, err := Open(tmpDir)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if db.Path() != tmpDir {
		t.Errorf("got path %s, want %s", db.Path(), tmpDir)
	}

	if db.IsClosed() {
		t.Error("database should not be closed")
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	if !db.IsClosed() {
		t.Error("database should be closed")
	}
}

func TestPutGetDelete(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "iporgdb-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	db, err := Open(tmpDir)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	key := []byte("rdap:org:192.168.1.0/24")
	value := []byte(`{"org_name":"Test Organization"}`)

	if err := db.Put(key, value); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("got %q, want %q", got, value)
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	got, err = db.Get(key)
	if err != nil {
		t.Fatalf("Failed to get after delete: %v", err)
	}
	if got != nil {
		t.Errorf("got %q after delete, want nil", got)
	}
}

func TestMetadata(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "iporgdb-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	db, err := Open(tmpDir)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Test schema version
	if err := db.SetSchemaVersion(1); err != nil {
		t.Fatalf("Failed to set schema version: %v", err)
	}
	version, err := db.GetSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("got version %d, want 1", version)
	}

	// Test built at
	now := time.Now()
	if err := db.SetBuiltAt(now); err != nil {
		t.Fatalf("Failed to set built_at: %v", err)
	}
	builtAt, err := db.GetBuiltAt()
	if err != nil {
		t.Fatalf("Failed to get built_at: %v", err)
	}
	// Compare with second precision (RFC3339 doesn't preserve nanoseconds)
	if builtAt.Unix() != now.Unix() {
		t.Errorf("got built_at %v, want %v", builtAt, now)
	}

	// Test builder version
	if err := db.SetBuilderVersion("test-123"); err != nil {
		t.Fatalf("Failed to set builder version: %v", err)
	}
	builderVer, err := db.GetBuilderVersion()
	if err != nil {
		t.Fatalf("Failed to get builder version: %v", err)
	}
	if builderVer != "test-123" {
		t.Errorf("got builder version %s, want test-123", builderVer)
	}

	if err := db.InitializeMetadata("test-v1.0"); err != nil {
		t.Fatalf("Failed to initialize metadata: %v", err)
	}
	version, err = db.GetSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version after init: %v", err)
	}
	if version != 1 {
		t.Errorf("got version %d after init, want 1", version)
	}
}

func TestCache(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "iporgdb-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	db, err := Open(tmpDir)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	type cachedOrg struct {
		OrgName string `json:"org_name"`
		RIR     string `json:"rir"`
	}

	want := cachedOrg{OrgName: "Example Corp", RIR: "ARIN"}
	if err := db.SetCache("rdap", "192.0.2.0/24", want); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	var got cachedOrg
	if err := db.GetCache("rdap", "192.0.2.0/24", &got); err != nil {
		t.Fatalf("Failed to get cache: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	// Miss leaves the target unchanged and returns no error.
	var miss cachedOrg
	if err := db.GetCache("rdap", "203.0.113.0/24", &miss); err != nil {
		t.Fatalf("Failed to get cache for missing key: %v", err)
	}
	if miss != (cachedOrg{}) {
		t.Errorf("got %+v for cache miss, want zero value", miss)
	}

	if err := db.DeleteCache("rdap", "192.0.2.0/24"); err != nil {
		t.Fatalf("Failed to delete cache: %v", err)
	}
	var afterDelete cachedOrg
	if err := db.GetCache("rdap", "192.0.2.0/24", &afterDelete); err != nil {
		t.Fatalf("Failed to get cache after delete: %v", err)
	}
	if afterDelete != (cachedOrg{}) {
		t.Errorf("got %+v after delete, want zero value", afterDelete)
	}
}
