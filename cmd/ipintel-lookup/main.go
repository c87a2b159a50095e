// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/pipeline"
)

const version = "1.0.0"

func main() {
	snapshotDir := flag.String("snapshot", "./snapshot", "Path to FNLE snapshot directory")
	jsonOutput := flag.Bool("json", true, "Output as JSON")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ipintel-lookup version %s\n", version)
		return
	}

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: ipintel-lookup [options] <ip-address>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ipintel-lookup 8.8.8.8\n")
		fmt.Fprintf(os.Stderr, "  ipintel-lookup --snapshot=/data/snapshot 2001:4860:4860::8888\n")
		os.Exit(1)
	}

	ipStr := flag.Arg(0)

	engine, err := pipeline.LoadEngine(*snapshotDir, 0)
	if err != nil {
		log.Fatalf("ERROR: failed to load snapshot: %v", err)
	}
	handle := pipeline.NewHandle(engine, 1, nil)

	resp, err := handle.Lookup(ipStr)
	if err != nil {
		if *jsonOutput {
			fmt.Printf("{\"error\":%q,\"ip\":%q}\n", err.Error(), ipStr)
		} else {
			fmt.Printf("lookup failed for %s: %v\n", ipStr, err)
		}
		os.Exit(1)
	}

	if *jsonOutput {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			log.Fatalf("ERROR: failed to marshal JSON: %v", err)
		}
		fmt.Println(string(data))
		return
	}
	printHumanReadable(resp)
}

func printHumanReadable(resp model.Response) {
	fmt.Printf("IP:            %s\n", resp.IP)
	fmt.Printf("RIR:           %s\n", resp.RIR)
	fmt.Printf("Bogon:         %t\n", resp.IsBogon)
	fmt.Printf("Datacenter:    %t\n", resp.IsDatacenter)
	fmt.Printf("Tor:           %t\n", resp.IsTor)
	fmt.Printf("Proxy:         %t\n", resp.IsProxy)
	fmt.Printf("VPN:           %t\n", resp.IsVPN)
	fmt.Printf("Abuser:        %t\n", resp.IsAbuser)
	if resp.ASNInfo != nil {
		fmt.Printf("ASN:           AS%d (%s)\n", resp.ASNInfo.ASN, resp.ASNInfo.Name)
	}
	if resp.Company != nil {
		fmt.Printf("Company:       %s\n", resp.Company.Name)
	}
	if resp.Location != nil {
		fmt.Printf("Location:      %s, %s, %s\n", resp.Location.City, resp.Location.Region, resp.Location.Country)
		fmt.Printf("Timezone:      %s (%s)\n", resp.Location.Timezone, resp.Location.LocalTime)
	}
	fmt.Printf("Elapsed:       %.3fms\n", resp.ElapsedMS)
}
