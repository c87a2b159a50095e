// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/wingedpig/ipintel/pkg/fnle"
	"github.com/wingedpig/ipintel/pkg/ingest/stage"
	"github.com/wingedpig/ipintel/pkg/model"
)

// buildCmd drains the staging store in ascending start-address order
// and folds every record into the fixed set of FNLE indexes the
// lookup pipeline expects, then persists each to its own snapshot
// subdirectory alongside the side-table JSON files.
func buildCmd() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	stageDB := fs.String("stage-db", "./stagedb", "Path to the LevelDB staging store")
	snapshotDir := fs.String("snapshot", "./snapshot", "Output FNLE snapshot directory")
	fs.Parse(os.Args[2:])

	store, err := stage.Open(*stageDB)
	if err != nil {
		log.Fatalf("ERROR: opening staging store: %v", err)
	}
	defer store.Close()

	asnIdx := fnle.New[int]("asn", fnle.PolicyFirst)
	companyIdx := fnle.New[model.WhoisRange]("company", fnle.PolicyAll)
	geonameIdx := fnle.New[int64]("geoname", fnle.PolicyFirst)

	asnMeta := map[int]model.ASNMeta{}
	geonameTable := map[int64]model.GeonamePoint{}
	var nextGeonameID int64 = 1

	fold := func(rec *model.StageRecord) error {
		if rec.Prefix == "" {
			return nil
		}
		if rec.ASN != 0 {
			if err := asnIdx.Add(rec.Prefix, rec.ASN); err != nil {
				return fmt.Errorf("asn index: %s: %w", rec.Prefix, err)
			}
			if _, ok := asnMeta[rec.ASN]; !ok {
				asnMeta[rec.ASN] = model.ASNMeta{Name: rec.ASNName, RIR: rec.RIR}
			}
		}
		if rec.OrgName != "" {
			whois := model.WhoisRange{
				OrgName:  rec.OrgName,
				Registry: rec.RIR,
				Type:     rec.SourceRole,
				Network:  rec.Prefix,
			}
			if err := companyIdx.Add(rec.Prefix, whois); err != nil {
				return fmt.Errorf("company index: %s: %w", rec.Prefix, err)
			}
		}
		if rec.Country != "" || rec.City != "" {
			id := nextGeonameID
			nextGeonameID++
			geonameTable[id] = model.GeonamePoint{
				Country: rec.Country,
				State:   rec.Region,
				City:    rec.City,
				Lat:     rec.Lat,
				Lon:     rec.Lon,
			}
			if err := geonameIdx.Add(rec.Prefix, id); err != nil {
				return fmt.Errorf("geoname index: %s: %w", rec.Prefix, err)
			}
		}
		return nil
	}

	total := 0
	for _, v4 := range []bool{true, false} {
		err := store.Walk(v4, func(rec *model.StageRecord) error {
			total++
			return fold(rec)
		})
		if err != nil {
			log.Fatalf("ERROR: folding staged records: %v", err)
		}
	}

	asnIdx.Build()
	companyIdx.Build()
	geonameIdx.Build()

	if err := os.MkdirAll(*snapshotDir, 0o755); err != nil {
		log.Fatalf("ERROR: creating snapshot dir: %v", err)
	}
	for _, step := range []struct {
		name string
		fn   func(dir string) error
	}{
		{"asn", asnIdx.Persist},
		{"company", companyIdx.Persist},
		{"geoname", geonameIdx.Persist},
	} {
		dir := filepath.Join(*snapshotDir, step.name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("ERROR: creating %s dir: %v", step.name, err)
		}
		if err := step.fn(dir); err != nil {
			log.Fatalf("ERROR: persisting %s index: %v", step.name, err)
		}
	}

	if err := writeJSONFile(filepath.Join(*snapshotDir, "asn_meta.json"), asnMeta); err != nil {
		log.Fatalf("ERROR: writing asn_meta.json: %v", err)
	}
	if err := writeJSONFile(filepath.Join(*snapshotDir, "geoname_table.json"), geonameTable); err != nil {
		log.Fatalf("ERROR: writing geoname_table.json: %v", err)
	}
	if _, err := os.Stat(filepath.Join(*snapshotDir, "country_table.json")); os.IsNotExist(err) {
		if err := writeJSONFile(filepath.Join(*snapshotDir, "country_table.json"), defaultCountryTable); err != nil {
			log.Fatalf("ERROR: writing country_table.json: %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(*snapshotDir, "priority_orgs.json")); os.IsNotExist(err) {
		if err := writeJSONFile(filepath.Join(*snapshotDir, "priority_orgs.json"), defaultPriorityOrgs); err != nil {
			log.Fatalf("ERROR: writing priority_orgs.json: %v", err)
		}
	}

	asnStats, companyStats, geonameStats := asnIdx.Stats(), companyIdx.Stats(), geonameIdx.Stats()
	fmt.Printf("folded %d staged records into snapshot %s (asn=%d, company=%d, geoname=%d)\n",
		total, *snapshotDir,
		asnStats.IPv4Ranges+asnStats.IPv6Ranges,
		companyStats.IPv4Ranges+companyStats.IPv6Ranges,
		geonameStats.IPv4Ranges+geonameStats.IPv6Ranges)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
