// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package background runs the worker's periodic maintenance tasks:
// config hot-reload by mtime polling and rate-limiter epoch resets.
package background

import (
	"context"
	"os"
	"time"

	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/ratelimit"
)

// ConfigWatcher polls a file's modification time and invokes Reload
// whenever it changes, without requiring an OS-level file-watch API.
type ConfigWatcher struct {
	Path     string
	Interval time.Duration
	Reload   func() error
	Log      *logging.Logger

	lastMod time.Time
}

// Run polls until ctx is cancelled.
func (w *ConfigWatcher) Run(ctx context.Context) {
	if w.Interval <= 0 {
		w.Interval = 5 * time.Second
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce()
		}
	}
}

func (w *ConfigWatcher) checkOnce() {
	info, err := os.Stat(w.Path)
	if err != nil {
		if w.Log != nil {
			w.Log.Warnf("background: stat %s failed: %v", w.Path, err)
		}
		return
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()
	if w.Reload == nil {
		return
	}
	if err := w.Reload(); err != nil {
		if w.Log != nil {
			w.Log.Errorf("background: config reload failed: %v", err)
		}
		return
	}
	if w.Log != nil {
		w.Log.Infof("background: config reloaded from %s", w.Path)
	}
}

// Scheduler drives the limiter's three independent epoch resets
// (hourly counters, 24-hour API-error counters, 12-hour firewall
// state) off their own tickers.
type Scheduler struct {
	Limiter *ratelimit.Limiter
	Log     *logging.Logger
}

// Run blocks until ctx is cancelled, firing each reset on its own cadence.
func (s *Scheduler) Run(ctx context.Context) {
	hourly := time.NewTicker(time.Hour)
	apiErrors := time.NewTicker(24 * time.Hour)
	firewall := time.NewTicker(12 * time.Hour)
	defer hourly.Stop()
	defer apiErrors.Stop()
	defer firewall.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hourly.C:
			s.Limiter.ResetHourly()
			s.log("hourly rate-limit counters reset")
		case <-apiErrors.C:
			s.Limiter.ResetAPIErrors()
			s.log("24-hour API-error counters reset")
		case <-firewall.C:
			s.Limiter.ResetFirewall()
			s.log("12-hour firewall state reset")
		}
	}
}

func (s *Scheduler) log(msg string) {
	if s.Log != nil {
		s.Log.Infof("background: %s", msg)
	}
}
