// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package bulkimport drains the in-memory result of parsing an ARIN or
// RIPE bulk-delegation dump (pkg/arinbulk, pkg/ripebulk) into the
// ingestion staging store, so it can feed an FNLE snapshot build
// alongside the MaxMind geofeed and RDAP walk.
package bulkimport

import (
	"fmt"

	"github.com/wingedpig/ipintel/pkg/arinbulk"
	"github.com/wingedpig/ipintel/pkg/ingest/stage"
	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/ripebulk"
)

// RunARIN stages one record per ARIN net block parsed from a bulk XML
// dump, tagged RIR "ARIN". nets and orgs are the output of
// arinbulk.ParseXML.
func RunARIN(nets []arinbulk.NetBlock, orgs map[string]arinbulk.Organization, store *stage.Store, log *logging.Logger) (staged int, err error) {
	for _, net := range nets {
		start := arinbulk.Uint32ToAddr(net.Start)
		end := arinbulk.Uint32ToAddr(net.End)

		orgName := net.NetName
		var country string
		if net.OrgID != "" {
			if org, ok := orgs[net.OrgID]; ok {
				if org.OrgName != "" {
					orgName = org.OrgName
				}
				country = org.Country
			}
		}

		rec := &model.StageRecord{
			Start:       start,
			End:         end,
			OrgName:     orgName,
			RIR:         "ARIN",
			Country:     country,
			SourceRole:  "registrant",
			StatusLabel: net.NetType,
			Prefix:      fmt.Sprintf("%s-%s", start, end),
		}
		if err := store.Put(rec); err != nil {
			if log != nil {
				log.Warnf("bulkimport(arin): skipping %s: %v", net.NetHandle, err)
			}
			continue
		}
		staged++
	}
	if log != nil {
		log.Infof("bulkimport(arin): staged %d net blocks", staged)
	}
	return staged, nil
}

// RunRIPE stages one record per RIPE inetnum parsed from a bulk RPSL
// dump, tagged RIR "RIPE". inetnums and orgs are the output of
// ripebulk.ParseInetnums and ripebulk.ParseOrganisations.
func RunRIPE(inetnums []ripebulk.Inetnum, orgs map[string]ripebulk.Organisation, store *stage.Store, log *logging.Logger) (staged int, err error) {
	for _, inet := range inetnums {
		start := ripebulk.Uint32ToAddr(inet.Start)
		end := ripebulk.Uint32ToAddr(inet.End)

		orgName := inet.Descr
		if inet.OrgID != "" {
			if org, ok := orgs[inet.OrgID]; ok && org.OrgName != "" {
				orgName = org.OrgName
			}
		}

		rec := &model.StageRecord{
			Start:       start,
			End:         end,
			OrgName:     orgName,
			RIR:         "RIPE",
			Country:     inet.Country,
			SourceRole:  "registrant",
			StatusLabel: inet.Status,
			Prefix:      fmt.Sprintf("%s-%s", start, end),
		}
		if err := store.Put(rec); err != nil {
			if log != nil {
				log.Warnf("bulkimport(ripe): skipping %s: %v", inet.Netname, err)
			}
			continue
		}
		staged++
	}
	if log != nil {
		log.Infof("bulkimport(ripe): staged %d inetnums", staged)
	}
	return staged, nil
}
