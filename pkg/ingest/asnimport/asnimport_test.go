// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package asnimport

import (
	"testing"

	"github.com/wingedpig/ipintel/pkg/ingest/stage"
	"github.com/wingedpig/ipintel/pkg/model"
)

func TestRunStagesCollapsedPrefixes(t *testing.T) {
	store, err := stage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("stage.Open: %v", err)
	}
	defer store.Close()

	prefixes := []*model.CanonicalPrefix{
		{CIDR: "198.51.100.0/24", ASN: 64512, Country: "US", Registry: "arin", ASName: "Example Network"},
		{CIDR: "not-a-cidr", ASN: 64513},
	}

	staged, err := Run(prefixes, store, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if staged != 1 {
		t.Fatalf("staged = %d, want 1 (the unparsable CIDR should be skipped)", staged)
	}

	var got *model.StageRecord
	store.Walk(true, func(rec *model.StageRecord) error {
		got = rec
		return nil
	})
	if got == nil {
		t.Fatalf("expected one staged record")
	}
	if got.ASN != 64512 || got.RIR != "ARIN" || got.SourceRole != "asn_fallback" {
		t.Errorf("got %+v, want ASN=64512 RIR=ARIN SourceRole=asn_fallback", got)
	}
}
