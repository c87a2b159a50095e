// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/netip"
	"os"
	"strings"

	"github.com/wingedpig/ipintel/pkg/ingest/geofeed"
	"github.com/wingedpig/ipintel/pkg/ingest/stage"
	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/sources/maxmind"
)

func stageCmd() {
	fs := flag.NewFlagSet("stage", flag.ExitOnError)
	stageDB := fs.String("stage-db", "./stagedb", "Path to the LevelDB staging store")
	mmdbASN := fs.String("mmdb-asn", "", "Path to MaxMind GeoLite2-ASN.mmdb (required)")
	mmdbCity := fs.String("mmdb-city", "", "Path to MaxMind GeoLite2-City.mmdb (required)")
	seedsPath := fs.String("seeds", "", "Path to a seeds file: one \"RIR CIDR\" pair per line (required)")
	minV4 := fs.Int("min-prefix-v4", 20, "Minimum IPv4 prefix length to split down to")
	minV6 := fs.Int("min-prefix-v6", 32, "Minimum IPv6 prefix length to split down to")
	fs.Parse(os.Args[2:])

	if *mmdbASN == "" || *mmdbCity == "" || *seedsPath == "" {
		log.Fatalf("ERROR: --mmdb-asn, --mmdb-city, and --seeds are required")
	}

	seeds, err := readSeeds(*seedsPath)
	if err != nil {
		log.Fatalf("ERROR: reading seeds: %v", err)
	}

	readers, err := maxmind.Open(*mmdbASN, *mmdbCity)
	if err != nil {
		log.Fatalf("ERROR: opening MaxMind databases: %v", err)
	}
	defer readers.Close()

	store, err := stage.Open(*stageDB)
	if err != nil {
		log.Fatalf("ERROR: opening staging store: %v", err)
	}
	defer store.Close()

	lg := logging.New(logging.LevelInfo)

	var v4Seeds, v6Seeds []geofeed.Seed
	for _, s := range seeds {
		if s.Prefix.Addr().Is4() {
			v4Seeds = append(v4Seeds, s)
		} else {
			v6Seeds = append(v6Seeds, s)
		}
	}

	v4Staged, err := geofeed.Run(readers, store, v4Seeds, *minV4, lg)
	if err != nil {
		log.Fatalf("ERROR: staging IPv4 seeds: %v", err)
	}
	v6Staged, err := geofeed.Run(readers, store, v6Seeds, *minV6, lg)
	if err != nil {
		log.Fatalf("ERROR: staging IPv6 seeds: %v", err)
	}

	fmt.Printf("staged %d IPv4 and %d IPv6 blocks\n", v4Staged, v6Staged)
}

func readSeeds(path string) ([]geofeed.Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var seeds []geofeed.Seed
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed seed line %q: want \"RIR CIDR\"", line)
		}
		prefix, err := netip.ParsePrefix(fields[1])
		if err != nil {
			return nil, fmt.Errorf("seed line %q: %w", line, err)
		}
		seeds = append(seeds, geofeed.Seed{Prefix: prefix, RIR: strings.ToLower(fields[0])})
	}
	return seeds, scanner.Err()
}
