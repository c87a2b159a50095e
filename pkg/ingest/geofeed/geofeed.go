// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package geofeed drives a MaxMind-backed ingestion pass: it walks a
// list of seed prefixes (typically one per allocated RIR block),
// splits each into geo-accurate sub-blocks, and stages the results for
// a later FNLE build.
package geofeed

import (
	"fmt"
	"net/netip"

	"github.com/wingedpig/ipintel/pkg/ingest/stage"
	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/sources/maxmind"
)

// Seed is one top-level prefix to walk, tagged with the RIR that
// allocated it (staged records inherit this tag).
type Seed struct {
	Prefix netip.Prefix
	RIR    string
}

// Run walks every seed prefix through readers, splitting at
// minPrefixLen, and stages the resulting records in store.
func Run(readers *maxmind.Readers, store *stage.Store, seeds []Seed, minPrefixLen int, log *logging.Logger) (staged int, err error) {
	for _, seed := range seeds {
		recs, err := readers.StageRecords(seed.Prefix, minPrefixLen, seed.RIR)
		if err != nil {
			return staged, fmt.Errorf("geofeed: %s: %w", seed.Prefix, err)
		}
		for i := range recs {
			if err := store.Put(&recs[i]); err != nil {
				if log != nil {
					log.Warnf("geofeed: skipping %s: %v", recs[i].Prefix, err)
				}
				continue
			}
			staged++
		}
		if log != nil {
			log.Infof("geofeed: staged %d blocks from %s (%s)", len(recs), seed.Prefix, seed.RIR)
		}
	}
	return staged, nil
}
