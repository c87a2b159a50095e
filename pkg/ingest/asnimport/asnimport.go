// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package asnimport drains the in-memory result of parsing and
// collapsing the iptoasn.com dataset (pkg/iptoasn) into the ingestion
// staging store. It is the cheapest ASN-coverage source in the build:
// no per-prefix network call, just a pass over the parsed rows, so it
// is normally run first; a later RDAP walk replaces the records it
// staged at the same start addresses.
package asnimport

import (
	"strings"

	"github.com/wingedpig/ipintel/pkg/ingest/stage"
	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/util/ipcodec"
)

// Run stages one record per collapsed CIDR block. prefixes is the
// output of an iptoasn.Aggregator pass over the parsed dataset.
func Run(prefixes []*model.CanonicalPrefix, dst *stage.Store, log *logging.Logger) (staged int, err error) {
	for _, p := range prefixes {
		start, end, parseErr := ipcodec.CIDRToRange(p.CIDR)
		if parseErr != nil {
			if log != nil {
				log.Warnf("asnimport: skipping unparsable CIDR %q: %v", p.CIDR, parseErr)
			}
			continue
		}

		rec := &model.StageRecord{
			Start:       start,
			End:         end,
			ASN:         p.ASN,
			ASNName:     p.ASName,
			OrgName:     p.ASName,
			RIR:         strings.ToUpper(p.Registry),
			Country:     p.Country,
			SourceRole:  "asn_fallback",
			StatusLabel: "allocated",
			Prefix:      p.CIDR,
		}
		if putErr := dst.Put(rec); putErr != nil {
			if log != nil {
				log.Warnf("asnimport: skipping %s: %v", p.CIDR, putErr)
			}
			continue
		}
		staged++
	}
	if log != nil {
		log.Infof("asnimport: staged %d prefixes", staged)
	}
	return staged, nil
}
