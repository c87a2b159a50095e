// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package rdapwalk stages one record per prefix by querying RDAP
// directly, using RIPEstat to discover the prefixes a set of ASNs
// currently announce. It is the slowest ingestion source (one HTTP
// round trip per prefix) and the only one that resolves a real
// customer/registrant organization name rather than a block-level
// network name, so it normally runs after asnimport/geofeed/bulkimport
// have staged everything else. Every prefix it resolves is staged,
// replacing whatever record an earlier source staged at the same start
// address.
package rdapwalk

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/wingedpig/ipintel/pkg/ingest/stage"
	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/sources/ripe"
	"github.com/wingedpig/ipintel/pkg/util/ipcodec"
	"github.com/wingedpig/ipintel/pkg/util/workers"
)

// ExpandASNs asks RIPEstat which prefixes each ASN currently announces,
// concurrency-bounded by the given worker count.
func ExpandASNs(ctx context.Context, client *ripe.Client, asns []int, concurrency int, log *logging.Logger) ([]netip.Prefix, error) {
	byASN, err := client.FetchAnnouncedPrefixesForASNs(ctx, asns, concurrency)
	if err != nil {
		return nil, fmt.Errorf("rdapwalk: expand ASNs: %w", err)
	}

	var prefixes []netip.Prefix
	for asn, cidrs := range byASN {
		for _, cidr := range cidrs {
			prefix, err := netip.ParsePrefix(cidr)
			if err != nil {
				if log != nil {
					log.Warnf("rdapwalk: AS%d announced unparsable prefix %q: %v", asn, cidr, err)
				}
				continue
			}
			prefixes = append(prefixes, prefix)
		}
	}
	return prefixes, nil
}

// OrgResolver resolves a prefix to its registrant/customer organization.
// Satisfied by both *rdap.Client and *rdap.CachedClient, so a caller can
// place a cache in front of the live client without Run knowing the
// difference.
type OrgResolver interface {
	OrgForPrefix(ctx context.Context, prefix string) (*model.RDAPOrg, error)
}

// Run queries RDAP for every prefix concurrently (bounded by
// concurrency and the client's own rate limiter) and stages one record
// per successful response.
func Run(ctx context.Context, client OrgResolver, store *stage.Store, prefixes []netip.Prefix, concurrency int, log *logging.Logger) (staged int, err error) {
	pool := workers.NewPool(ctx, workers.Config{Workers: concurrency})

	type outcome struct {
		prefix netip.Prefix
		org    *model.RDAPOrg
		err    error
	}
	outcomes := make([]outcome, len(prefixes))

	for i, prefix := range prefixes {
		idx, p := i, prefix
		pool.Submit(idx, func(ctx context.Context) error {
			org, err := client.OrgForPrefix(ctx, p.String())
			outcomes[idx] = outcome{prefix: p, org: org, err: err}
			return nil
		})
	}
	pool.Wait()

	start, end := netip.Addr{}, netip.Addr{}
	for _, o := range outcomes {
		if o.err != nil {
			if log != nil {
				log.Warnf("rdapwalk: %s: %v", o.prefix, o.err)
			}
			continue
		}
		if o.org == nil {
			continue
		}

		start, end, err = ipcodec.CIDRToRange(o.prefix.String())
		if err != nil {
			if log != nil {
				log.Warnf("rdapwalk: %s: %v", o.prefix, err)
			}
			continue
		}

		rec := &model.StageRecord{
			Start:       start,
			End:         end,
			OrgName:     o.org.OrgName,
			RIR:         o.org.RIR,
			Country:     o.org.Country,
			SourceRole:  o.org.SourceRole,
			StatusLabel: o.org.StatusLabel,
			Prefix:      o.prefix.String(),
		}
		if err := store.Put(rec); err != nil {
			if log != nil {
				log.Warnf("rdapwalk: skipping %s: %v", o.prefix, err)
			}
			continue
		}
		staged++
	}

	if log != nil {
		log.Infof("rdapwalk: staged %d of %d prefixes", staged, len(prefixes))
	}
	return staged, nil
}
