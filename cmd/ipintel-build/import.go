// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wingedpig/ipintel/pkg/arinbulk"
	"github.com/wingedpig/ipintel/pkg/ingest/asnimport"
	"github.com/wingedpig/ipintel/pkg/ingest/bulkimport"
	"github.com/wingedpig/ipintel/pkg/ingest/rdapwalk"
	"github.com/wingedpig/ipintel/pkg/ingest/stage"
	"github.com/wingedpig/ipintel/pkg/iporgdb"
	"github.com/wingedpig/ipintel/pkg/iptoasn"
	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/ripebulk"
	"github.com/wingedpig/ipintel/pkg/sources/rdap"
	"github.com/wingedpig/ipintel/pkg/sources/ripe"
)

// importARINCmd parses an ARIN bulk XML delegation dump (local file, or
// downloaded directly with an API key) and stages one record per net
// block.
func importARINCmd() {
	fs := flag.NewFlagSet("import-arin", flag.ExitOnError)
	stageDB := fs.String("stage-db", "./stagedb", "Path to the LevelDB staging store")
	xmlFile := fs.String("xml", "", "Path to arin_db.xml, .xml.gz, or .zip (if already downloaded)")
	apiKey := fs.String("apikey", "", "ARIN API key for bulk download")
	downloadURL := fs.String("url", "https://account.arin.net/public/secure/downloads/bulkwhois", "ARIN bulk download URL")
	cacheDir := fs.String("cache-dir", "", "Cache directory for downloaded files (default: no caching)")
	forceDownload := fs.Bool("force-download", false, "Force re-download even if cached file exists")
	fs.Parse(os.Args[2:])

	if *xmlFile == "" && *apiKey == "" {
		log.Fatalf("ERROR: either --xml or --apikey is required")
	}

	xmlReader, cleanup, err := openARINSource(*xmlFile, *apiKey, *downloadURL, *cacheDir, *forceDownload)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	defer cleanup()

	nets, orgs, err := arinbulk.ParseXML(xmlReader)
	if err != nil {
		log.Fatalf("ERROR: parsing ARIN bulk XML: %v", err)
	}
	log.Printf("INFO: parsed %d net blocks, %d organizations", len(nets), len(orgs))

	store, err := stage.Open(*stageDB)
	if err != nil {
		log.Fatalf("ERROR: opening staging store: %v", err)
	}
	defer store.Close()

	lg := logging.New(logging.LevelInfo)
	staged, err := bulkimport.RunARIN(nets, orgs, store, lg)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	log.Printf("INFO: staged %d ARIN net blocks", staged)
}

// openARINSource resolves --xml/--apikey into a plain (non-compressed,
// non-archived) XML reader, downloading and/or unzipping as needed.
func openARINSource(xmlFile, apiKey, downloadURL, cacheDir string, forceDownload bool) (io.Reader, func(), error) {
	noop := func() {}

	if xmlFile != "" {
		if strings.HasSuffix(xmlFile, ".zip") {
			return openXMLFromZipFile(xmlFile, noop)
		}
		f, err := os.Open(xmlFile)
		if err != nil {
			return nil, noop, fmt.Errorf("opening %s: %w", xmlFile, err)
		}
		if strings.HasSuffix(xmlFile, ".gz") {
			gr, err := gzip.NewReader(f)
			if err != nil {
				f.Close()
				return nil, noop, fmt.Errorf("creating gzip reader: %w", err)
			}
			return gr, func() { gr.Close(); f.Close() }, nil
		}
		return f, func() { f.Close() }, nil
	}

	downloadPath := filepath.Join(cacheDir, "arin_db.zip")
	if cacheDir != "" && !forceDownload {
		if _, err := os.Stat(downloadPath); err == nil {
			return openXMLFromZipFile(downloadPath, noop)
		}
	}

	if err := downloadARINBulk(downloadURL, apiKey, cacheDir, &downloadPath); err != nil {
		return nil, noop, err
	}
	return openXMLFromZipFile(downloadPath, noop)
}

func downloadARINBulk(downloadURL, apiKey, cacheDir string, downloadPath *string) error {
	url := fmt.Sprintf("%s?apikey=%s", downloadURL, apiKey)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("downloading ARIN bulk data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return fmt.Errorf("creating cache dir: %w", err)
		}
	} else {
		tmp, err := os.CreateTemp("", "arin_db_*.zip")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmp.Close()
		*downloadPath = tmp.Name()
	}

	out, err := os.Create(*downloadPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()
	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("saving download: %w", err)
	}
	log.Printf("INFO: downloaded %.1f MB of ARIN bulk data", float64(written)/1024/1024)
	return nil
}

// openXMLFromZipFile extracts the first .xml member of a zip archive
// to a temp file and returns a reader over it; outerCleanup is called
// alongside removal of the temp file.
func openXMLFromZipFile(zipPath string, outerCleanup func()) (io.Reader, func(), error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		outerCleanup()
		return nil, func() {}, fmt.Errorf("opening zip %s: %w", zipPath, err)
	}

	var xmlMember *zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() && strings.HasSuffix(f.Name, ".xml") {
			xmlMember = f
			break
		}
	}
	if xmlMember == nil {
		zr.Close()
		outerCleanup()
		return nil, func() {}, fmt.Errorf("no XML file found in %s", zipPath)
	}

	rc, err := xmlMember.Open()
	if err != nil {
		zr.Close()
		outerCleanup()
		return nil, func() {}, fmt.Errorf("opening %s in zip: %w", xmlMember.Name, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "arin_db_*.xml")
	if err != nil {
		zr.Close()
		outerCleanup()
		return nil, func() {}, fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		zr.Close()
		outerCleanup()
		return nil, func() {}, fmt.Errorf("extracting XML: %w", err)
	}
	tmp.Close()
	zr.Close()

	f, err := os.Open(tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		outerCleanup()
		return nil, func() {}, fmt.Errorf("reopening extracted XML: %w", err)
	}
	tmpPath := tmp.Name()
	return f, func() { f.Close(); os.Remove(tmpPath); outerCleanup() }, nil
}

// importRIPECmd fetches (or reuses cached) RIPE split dumps and stages
// one record per inetnum.
func importRIPECmd() {
	fs := flag.NewFlagSet("import-ripe", flag.ExitOnError)
	stageDB := fs.String("stage-db", "./stagedb", "Path to the LevelDB staging store")
	baseURL := fs.String("ripe-url", "", "RIPE FTP base URL for split dumps (default: ftp.ripe.net)")
	cacheDir := fs.String("cache-dir", "./cache/ripebulk", "Cache directory for downloaded dumps")
	fs.Parse(os.Args[2:])

	fetcher := ripebulk.NewFetcher(*baseURL, *cacheDir)
	inetnumPath, orgPath, err := fetcher.FetchAll(context.Background())
	if err != nil {
		log.Fatalf("ERROR: fetching RIPE dumps: %v", err)
	}

	orgReader, err := ripebulk.OpenGzipFile(orgPath)
	if err != nil {
		log.Fatalf("ERROR: opening %s: %v", orgPath, err)
	}
	orgs, err := ripebulk.ParseOrganisations(orgReader)
	orgReader.Close()
	if err != nil {
		log.Fatalf("ERROR: parsing organisation dump: %v", err)
	}

	inetnumReader, err := ripebulk.OpenGzipFile(inetnumPath)
	if err != nil {
		log.Fatalf("ERROR: opening %s: %v", inetnumPath, err)
	}
	inetnums, err := ripebulk.ParseInetnums(inetnumReader)
	inetnumReader.Close()
	if err != nil {
		log.Fatalf("ERROR: parsing inetnum dump: %v", err)
	}
	log.Printf("INFO: parsed %d inetnums, %d organisations", len(inetnums), len(orgs))

	store, err := stage.Open(*stageDB)
	if err != nil {
		log.Fatalf("ERROR: opening staging store: %v", err)
	}
	defer store.Close()

	lg := logging.New(logging.LevelInfo)
	staged, err := bulkimport.RunRIPE(inetnums, orgs, store, lg)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	log.Printf("INFO: staged %d RIPE inetnums", staged)
}

// importASNCmd fetches (or reuses cached) the iptoasn.com dataset,
// parses, deduplicates, and collapses it per ASN, and stages one
// record per collapsed prefix.
func importASNCmd() {
	fs := flag.NewFlagSet("import-asn", flag.ExitOnError)
	stageDB := fs.String("stage-db", "./stagedb", "Path to the LevelDB staging store")
	sourceURL := fs.String("url", iptoasn.DefaultSourceURL, "iptoasn.com dataset URL")
	cacheDir := fs.String("cache-dir", "./cache/iptoasn", "Cache directory for the downloaded dataset")
	collapse := fs.Bool("collapse", true, "Collapse adjacent prefixes per ASN")
	fs.Parse(os.Args[2:])

	ctx := context.Background()
	fetcher := iptoasn.NewFetcher(*sourceURL, *cacheDir)
	meta, err := fetcher.Fetch(ctx)
	if err != nil {
		log.Fatalf("ERROR: fetching iptoasn dataset: %v", err)
	}

	reader, err := fetcher.OpenCachedFile(meta)
	if err != nil {
		log.Fatalf("ERROR: opening cached dataset: %v", err)
	}
	defer reader.Close()

	parser := iptoasn.NewParser(reader)
	rows, err := parser.ParseAll()
	if err != nil {
		log.Fatalf("ERROR: parsing iptoasn TSV: %v", err)
	}
	log.Printf("INFO: parsed %d rows", len(rows))

	var prefixes []*model.CanonicalPrefix
	for _, row := range rows {
		if row.Prefix == nil {
			continue
		}
		prefixes = append(prefixes, &model.CanonicalPrefix{
			CIDR:     row.Prefix.String(),
			ASN:      row.ASN,
			Country:  row.Country,
			Registry: row.Registry,
			ASName:   row.ASName,
		})
	}

	aggregator := iptoasn.NewAggregator()
	prefixes = aggregator.Deduplicate(prefixes)
	aggregator.SortByStartIP(prefixes)
	log.Printf("INFO: %d canonical prefixes after deduplication", len(prefixes))

	if *collapse {
		byASN := aggregator.CollapseByASN(prefixes)
		prefixes = prefixes[:0]
		for _, collapsed := range byASN {
			prefixes = append(prefixes, collapsed...)
		}
		log.Printf("INFO: %d prefixes after per-ASN collapse", len(prefixes))
	}

	store, err := stage.Open(*stageDB)
	if err != nil {
		log.Fatalf("ERROR: opening staging store: %v", err)
	}
	defer store.Close()

	lg := logging.New(logging.LevelInfo)
	staged, err := asnimport.Run(prefixes, store, lg)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	log.Printf("INFO: staged %d iptoasn prefixes", staged)
}

// rdapWalkCmd resolves a list of ASNs to their currently announced
// prefixes via RIPEstat, then queries RDAP for each prefix's
// registrant/customer organization.
func rdapWalkCmd() {
	fs := flag.NewFlagSet("rdap-walk", flag.ExitOnError)
	stageDB := fs.String("stage-db", "./stagedb", "Path to the LevelDB staging store")
	asnsPath := fs.String("asns", "", "Path to a file of ASNs, one per line (required)")
	ripeBaseURL := fs.String("ripe-base-url", "", "RIPEstat base URL (default: stat.ripe.net)")
	rdapBootstrap := fs.String("rdap-bootstrap", "", "RDAP bootstrap URL (default: rdap.db.ripe.net)")
	userAgent := fs.String("user-agent", "ipintel-build/1.0", "User-Agent sent with outbound requests")
	rdapRateLimit := fs.Float64("rdap-rate-limit", 5, "Max RDAP queries per second")
	concurrency := fs.Int("workers", 5, "Concurrent RDAP/RIPEstat requests")
	cacheDB := fs.String("rdap-cache-db", "./rdapcache", "Path to the RDAP result cache (LevelDB)")
	cacheTTL := fs.Duration("rdap-cache-ttl", 7*24*time.Hour, "How long a cached RDAP result stays valid")
	fs.Parse(os.Args[2:])

	if *asnsPath == "" {
		log.Fatalf("ERROR: --asns is required")
	}

	asns, err := readASNs(*asnsPath)
	if err != nil {
		log.Fatalf("ERROR: reading ASNs: %v", err)
	}

	store, err := stage.Open(*stageDB)
	if err != nil {
		log.Fatalf("ERROR: opening staging store: %v", err)
	}
	defer store.Close()

	lg := logging.New(logging.LevelInfo)
	ctx := context.Background()

	ripeClient := ripe.NewClient(*ripeBaseURL, *userAgent, 0)
	prefixes, err := rdapwalk.ExpandASNs(ctx, ripeClient, asns, *concurrency, lg)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	cache, err := iporgdb.Open(*cacheDB)
	if err != nil {
		log.Fatalf("ERROR: opening RDAP cache: %v", err)
	}
	defer cache.Close()

	rdapClient := rdap.NewClient(*rdapBootstrap, *userAgent, *rdapRateLimit)
	cachedClient := rdap.NewCachedClient(rdapClient, cache, *cacheTTL)
	staged, err := rdapwalk.Run(ctx, cachedClient, store, prefixes, *concurrency, lg)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	log.Printf("INFO: staged %d of %d RDAP-resolved prefixes", staged, len(prefixes))
}

func readASNs(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var asns []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(strings.ToUpper(line), "AS")
		asn, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		asns = append(asns, asn)
	}
	return asns, scanner.Err()
}
