// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package bulkimport

import (
	"testing"

	"github.com/wingedpig/ipintel/pkg/arinbulk"
	"github.com/wingedpig/ipintel/pkg/ingest/stage"
	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/ripebulk"
)

func openTestStore(t *testing.T) *stage.Store {
	t.Helper()
	s, err := stage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("stage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunARINStagesNetBlocksWithResolvedOrgName(t *testing.T) {
	store := openTestStore(t)

	nets := []arinbulk.NetBlock{
		{Start: 0x08000000, End: 0x080000FF, NetName: "FALLBACK-NET", NetHandle: "NET-8-0-0-0-1", OrgID: "LPL-141", NetType: "DA"},
	}
	orgs := map[string]arinbulk.Organization{
		"LPL-141": {OrgID: "LPL-141", OrgName: "Example Org", Country: "US"},
	}

	staged, err := RunARIN(nets, orgs, store, nil)
	if err != nil {
		t.Fatalf("RunARIN: %v", err)
	}
	if staged != 1 {
		t.Fatalf("staged = %d, want 1", staged)
	}

	var got *model.StageRecord
	if err := store.Walk(true, func(rec *model.StageRecord) error {
		got = rec
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if got == nil {
		t.Fatalf("expected one staged record")
	}
	if got.OrgName != "Example Org" {
		t.Errorf("OrgName = %q, want resolved org name", got.OrgName)
	}
	if got.Country != "US" || got.RIR != "ARIN" {
		t.Errorf("got %+v, want Country=US RIR=ARIN", got)
	}
}

func TestRunARINFallsBackToNetNameWithoutOrg(t *testing.T) {
	store := openTestStore(t)

	nets := []arinbulk.NetBlock{
		{Start: 0x08000000, End: 0x080000FF, NetName: "FALLBACK-NET", NetHandle: "NET-8-0-0-0-1"},
	}

	if _, err := RunARIN(nets, nil, store, nil); err != nil {
		t.Fatalf("RunARIN: %v", err)
	}

	var got *model.StageRecord
	store.Walk(true, func(rec *model.StageRecord) error {
		got = rec
		return nil
	})
	if got == nil || got.OrgName != "FALLBACK-NET" {
		t.Errorf("got %+v, want OrgName=FALLBACK-NET", got)
	}
}

func TestRunRIPEStagesInetnumsWithResolvedOrgName(t *testing.T) {
	store := openTestStore(t)

	inetnums := []ripebulk.Inetnum{
		{Start: 0xC6336400, End: 0xC63364FF, OrgID: "ORG-EA1-RIPE", Country: "NL", Netname: "EXAMPLE-NET", Descr: "fallback descr"},
	}
	orgs := map[string]ripebulk.Organisation{
		"ORG-EA1-RIPE": {OrgID: "ORG-EA1-RIPE", OrgName: "Example Organisation"},
	}

	staged, err := RunRIPE(inetnums, orgs, store, nil)
	if err != nil {
		t.Fatalf("RunRIPE: %v", err)
	}
	if staged != 1 {
		t.Fatalf("staged = %d, want 1", staged)
	}

	var got *model.StageRecord
	store.Walk(true, func(rec *model.StageRecord) error {
		got = rec
		return nil
	})
	if got == nil || got.OrgName != "Example Organisation" || got.RIR != "RIPE" {
		t.Errorf("got %+v, want OrgName=Example Organisation RIR=RIPE", got)
	}
}
