// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		buildCmd()
	case "stage":
		stageCmd()
	case "import-arin":
		importARINCmd()
	case "import-ripe":
		importRIPECmd()
	case "import-asn":
		importASNCmd()
	case "rdap-walk":
		rdapWalkCmd()
	case "stats":
		statsCmd()
	case "version":
		fmt.Printf("ipintel-build version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ipintel-build - build an FNLE snapshot from staged ingestion records

Usage:
  ipintel-build stage [options]       Walk MaxMind-derived geo blocks into the staging store
  ipintel-build import-arin [options] Parse an ARIN bulk XML dump and stage its net blocks
  ipintel-build import-ripe [options] Fetch/parse RIPE split dumps and stage their inetnums
  ipintel-build import-asn [options]  Fetch/parse the iptoasn.com dataset and stage its prefixes
  ipintel-build rdap-walk [options]   Resolve ASNs to announced prefixes and query RDAP for each
  ipintel-build build [options]       Fold staged records into an FNLE snapshot directory
  ipintel-build stats [options]       Report what's currently staged
  ipintel-build version               Show version
  ipintel-build help                  Show this help

Stage Options:
  --stage-db string       Path to the LevelDB staging store (default: ./stagedb)
  --mmdb-asn string       Path to MaxMind GeoLite2-ASN.mmdb
  --mmdb-city string      Path to MaxMind GeoLite2-City.mmdb
  --seeds string          Path to a seeds file: one "RIR CIDR" pair per line
  --min-prefix-v4 int     Minimum IPv4 prefix length to split down to (default: 20)
  --min-prefix-v6 int     Minimum IPv6 prefix length to split down to (default: 32)

Import Options:
  --stage-db string       Path to the LevelDB staging store (default: ./stagedb)
  --xml string            (import-arin) Path to a local arin_db.xml/.xml.gz/.zip
  --apikey string         (import-arin) ARIN API key, to download instead of --xml
  --cache-dir string      (import-arin/import-ripe/import-asn) Download cache directory
  --collapse bool         (import-asn) Collapse adjacent prefixes per ASN (default: true)

RDAP Walk Options:
  --stage-db string       Path to the LevelDB staging store (default: ./stagedb)
  --asns string           Path to a file of ASNs, one per line
  --ripe-base-url string  RIPEstat base URL (default: stat.ripe.net)
  --rdap-bootstrap string RDAP bootstrap URL (default: rdap.db.ripe.net)
  --rdap-rate-limit float Max RDAP queries per second (default: 5)
  --workers int           Concurrent RDAP/RIPEstat requests (default: 5)

Build Options:
  --stage-db string       Path to the LevelDB staging store (default: ./stagedb)
  --snapshot string       Output FNLE snapshot directory (default: ./snapshot)

Examples:
  ipintel-build stage --stage-db=./stagedb --mmdb-asn=GeoLite2-ASN.mmdb \
    --mmdb-city=GeoLite2-City.mmdb --seeds=seeds.txt
  ipintel-build import-asn --stage-db=./stagedb --cache-dir=./cache/iptoasn
  ipintel-build rdap-walk --stage-db=./stagedb --asns=asns.txt
  ipintel-build build --stage-db=./stagedb --snapshot=./snapshot
  ipintel-build stats --stage-db=./stagedb`)
}
