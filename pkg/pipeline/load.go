// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wingedpig/ipintel/pkg/fnle"
	"github.com/wingedpig/ipintel/pkg/model"
)

// LoadEngine builds a fresh Engine from every FNLE subdirectory of
// dir, plus the side-table JSON files (asn_meta.json,
// geoname_table.json, country_table.json, priority_orgs.json). When
// the asn snapshot's version equals currentVersion, LoadEngine reads
// nothing else and returns fnle.ErrReloadNotNeeded with no Engine.
func LoadEngine(dir string, currentVersion int64) (*Engine, error) {
	e := &Engine{BuiltAt: time.Now()}

	asn, version, result, err := fnle.Load[int]("asn", fnle.PolicyFirst, filepath.Join(dir, "asn"), currentVersion)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load asn: %w", err)
	}
	if result == fnle.LoadReloadNotNeeded {
		return nil, fnle.ErrReloadNotNeeded
	}
	e.ASN = asn
	e.Version = version

	dc, _, _, err := fnle.Load[model.Datacenter]("datacenter", fnle.PolicyAll, filepath.Join(dir, "datacenter"), 0)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load datacenter: %w", err)
	}
	e.Datacenter = dc

	company, _, _, err := fnle.Load[model.WhoisRange]("company", fnle.PolicyAll, filepath.Join(dir, "company"), 0)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load company: %w", err)
	}
	e.Company = company

	crawler, _, _, err := fnle.Load[string]("crawler", fnle.PolicyFirst, filepath.Join(dir, "crawler"), 0)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load crawler: %w", err)
	}
	e.Crawler = crawler

	for _, f := range []struct {
		name string
		dst  **fnle.Index[struct{}]
	}{
		{"mobile", &e.Mobile},
		{"satellite", &e.Satellite},
		{"tor", &e.Tor},
		{"proxy", &e.Proxy},
		{"vpn", &e.VPN},
		{"abuser", &e.Abuser},
		{"bogon", &e.Bogon},
	} {
		ix, _, _, err := fnle.Load[struct{}](f.name, fnle.PolicyFirst, filepath.Join(dir, f.name), 0)
		if err != nil {
			return nil, fmt.Errorf("pipeline: load %s: %w", f.name, err)
		}
		*f.dst = ix
	}

	geoname, _, _, err := fnle.Load[int64]("geoname", fnle.PolicyFirst, filepath.Join(dir, "geoname"), 0)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load geoname: %w", err)
	}
	e.Geoname = geoname

	if err := loadJSON(filepath.Join(dir, "asn_meta.json"), &e.ASNMeta); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, "geoname_table.json"), &e.GeonameTable); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, "country_table.json"), &e.CountryTable); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, "priority_orgs.json"), &e.PriorityOrgs); err != nil {
		return nil, err
	}

	return e, nil
}

func loadJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("pipeline: parse %s: %w", path, err)
	}
	return nil
}
