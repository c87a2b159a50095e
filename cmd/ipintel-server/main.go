// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/wingedpig/ipintel/pkg/background"
	"github.com/wingedpig/ipintel/pkg/httpapi"
	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/pipeline"
	"github.com/wingedpig/ipintel/pkg/ratelimit"
	"github.com/wingedpig/ipintel/pkg/supervisor"
	"github.com/wingedpig/ipintel/pkg/usagesync"
)

const version = "1.0.0"

func main() {
	addr := flag.String("addr", ":8080", "Listen address (master only)")
	workers := flag.Int("workers", 4, "Number of worker processes")
	pidFile := flag.String("pidfile", "/var/run/ipintel-server.pid", "Master PID file path")
	snapshotDir := flag.String("snapshot", "./snapshot", "FNLE snapshot directory")
	configPath := flag.String("config", "./ipintel.json", "Path to hot-reloadable JSON config")
	adminKey := flag.String("admin-key", "", "Admin API key")
	cacheSize := flag.Int("cache-size", 100000, "LFU response cache capacity per worker")
	usageEndpoint := flag.String("usage-endpoint", "", "Central usage-sync endpoint (disabled if empty)")
	flag.Parse()

	log := logging.NewFromEnv()

	if idx, ok := supervisor.IsWorker(); ok {
		runWorker(idx, *snapshotDir, *configPath, *adminKey, *cacheSize, *usageEndpoint, log)
		return
	}
	runMaster(*addr, *workers, *pidFile, log)
}

// runMaster binds the listening socket once, then forks *workers
// children that all share it, so a rolling reload never leaves a
// window where nothing is listening on the port.
func runMaster(addr string, workers int, pidFile string, log *logging.Logger) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorf("server: listen %s: %v", addr, err)
		os.Exit(1)
	}
	lnFile, err := ln.(*net.TCPListener).File()
	if err != nil {
		log.Errorf("server: dup listener fd: %v", err)
		os.Exit(1)
	}
	ln.Close() // the dup'd fd keeps the socket alive for children

	binary, err := os.Executable()
	if err != nil {
		log.Errorf("server: resolve executable path: %v", err)
		os.Exit(1)
	}

	m := supervisor.NewMaster(binary, os.Args[1:], workers, pidFile, log)
	m.ListenerFile = lnFile

	log.Infof("server: master starting %d workers on %s", m.Workers, addr)
	if err := m.Run(); err != nil {
		log.Errorf("server: master exited: %v", err)
		os.Exit(1)
	}
}

func runWorker(index int, snapshotDir, configPath, adminKey string, cacheSize int, usageEndpoint string, log *logging.Logger) {
	ln, err := supervisor.InheritedListener()
	if err != nil {
		log.Errorf("worker %d: %v", index, err)
		os.Exit(1)
	}

	engine, err := pipeline.LoadEngine(snapshotDir, 0)
	if err != nil {
		log.Errorf("worker %d: load snapshot: %v", index, err)
		os.Exit(1)
	}
	handle := pipeline.NewHandle(engine, cacheSize, log)

	limiter := ratelimit.New(ratelimit.Config{
		Enabled:       true,
		AdminKey:      adminKey,
		PerHourCap:    map[ratelimit.Class]int{ratelimit.ClassStandard: 10000, ratelimit.ClassWhois: 1000, ratelimit.ClassBulk: 100},
		DenyThreshold: 20,
	}, ratelimit.NewIptablesBlocker())

	usage := usagesync.NewCounters()

	hooks := httpapi.AdminHooks{
		AdminKey:   adminKey,
		PID:        os.Getpid,
		APIVersion: version,
	}
	srv := httpapi.New(handle, limiter, log, hooks, usage.Incr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go (&background.Scheduler{Limiter: limiter, Log: log}).Run(ctx)
	go (&background.ConfigWatcher{
		Path:     configPath,
		Interval: 10 * time.Second,
		Reload: func() error {
			reloaded, err := pipeline.LoadEngine(snapshotDir, handle.Engine().Version)
			if err != nil {
				return err
			}
			handle.Swap(reloaded)
			return nil
		},
		Log: log,
	}).Run(ctx)

	if usageEndpoint != "" {
		syncer := usagesync.NewSyncer(usageEndpoint, fmt.Sprintf("worker-%d", index), usage, limiter, log)
		go syncer.Run(ctx)
	}

	go watchReloadSignal(handle, snapshotDir, log)

	httpSrv := &http.Server{Handler: srv}
	log.Infof("worker %d: serving on inherited listener", index)
	if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Errorf("worker %d: serve: %v", index, err)
	}
}

// watchReloadSignal handles SIGUSR1 from the master's rolling-reload
// broadcast: swap in a freshly loaded Engine without restarting the
// process or dropping the listening socket.
func watchReloadSignal(handle *pipeline.Handle, snapshotDir string, log *logging.Logger) {
	sig := supervisor.NewWorkerSignals()
	for {
		sig.Wait()
		engine, err := pipeline.LoadEngine(snapshotDir, handle.Engine().Version)
		if err != nil {
			log.Warnf("worker: reload on SIGUSR1 failed: %v", err)
			continue
		}
		handle.Swap(engine)
	}
}
