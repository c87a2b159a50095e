// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/wingedpig/ipintel/pkg/ingest/stage"
)

func statsCmd() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	stageDB := fs.String("stage-db", "./stagedb", "Path to the LevelDB staging store")
	fs.Parse(os.Args[2:])

	store, err := stage.Open(*stageDB)
	if err != nil {
		log.Fatalf("ERROR: opening staging store: %v", err)
	}
	defer store.Close()

	stats, err := store.Stats()
	if err != nil {
		log.Fatalf("ERROR: computing stats: %v", err)
	}

	fmt.Printf("Total records:   %d (%d IPv4, %d IPv6)\n", stats.TotalRecords, stats.IPv4Records, stats.IPv6Records)
	fmt.Println("By RIR:")
	for rir, n := range stats.RecordsByRIR {
		fmt.Printf("  %-10s %d\n", rir, n)
	}
	fmt.Println("By role:")
	for role, n := range stats.RecordsByRole {
		fmt.Printf("  %-10s %d\n", role, n)
	}
}
