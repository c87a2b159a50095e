// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package usagesync periodically reports each worker's accumulated
// per-API-key usage counters to a central endpoint and applies back
// the updated key-status map it returns.
package usagesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/ratelimit"
)

// Counters accumulates per-key request counts between sync rounds.
type Counters struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{counts: make(map[string]int64)}
}

// Incr bumps the counter for an API key.
func (c *Counters) Incr(apiKey string) {
	if apiKey == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[apiKey]++
}

// snapshotAndReset atomically reads and zeroes the counters.
func (c *Counters) snapshotAndReset() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.counts
	c.counts = make(map[string]int64)
	return out
}

type syncRequest struct {
	WorkerID string           `json:"worker_id"`
	Usage    map[string]int64 `json:"usage"`
}

type syncResponse struct {
	Status map[string]model.APIKeyStatus `json:"status"`
}

// Syncer posts usage counters to the central endpoint on a jittered
// interval and applies the returned status map to a Limiter.
type Syncer struct {
	Endpoint string
	WorkerID string
	Client   *http.Client
	Counters *Counters
	Limiter  *ratelimit.Limiter
	Log      *logging.Logger

	// MinInterval/MaxInterval bound the randomized jitter between
	// rounds (6-8 minutes in production, overridable for tests).
	MinInterval time.Duration
	MaxInterval time.Duration
}

// NewSyncer builds a Syncer with the production 6-8 minute jitter
// window and a 10 second HTTP timeout.
func NewSyncer(endpoint, workerID string, counters *Counters, limiter *ratelimit.Limiter, log *logging.Logger) *Syncer {
	return &Syncer{
		Endpoint:    endpoint,
		WorkerID:    workerID,
		Client:      &http.Client{Timeout: 10 * time.Second},
		Counters:    counters,
		Limiter:     limiter,
		Log:         log,
		MinInterval: 6 * time.Minute,
		MaxInterval: 8 * time.Minute,
	}
}

// Run loops until ctx is cancelled, syncing on a jittered interval.
func (s *Syncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.nextInterval()):
			if err := s.syncOnce(ctx); err != nil && s.Log != nil {
				s.Log.Warnf("usagesync: round failed, retaining prior status map: %v", err)
			}
		}
	}
}

func (s *Syncer) nextInterval() time.Duration {
	span := s.MaxInterval - s.MinInterval
	if span <= 0 {
		return s.MinInterval
	}
	return s.MinInterval + time.Duration(rand.Int63n(int64(span)))
}

// syncOnce performs one POST/response round. On any failure the
// worker's prior status map and un-zeroed counters are left untouched
// so no usage is silently lost and known keys keep their last status
// (fail-open); only previously unknown keys are denied per the
// limiter's own check.
func (s *Syncer) syncOnce(ctx context.Context) error {
	usage := s.Counters.snapshotAndReset()

	body, err := json.Marshal(syncRequest{WorkerID: s.WorkerID, Usage: usage})
	if err != nil {
		s.restoreCounters(usage)
		return fmt.Errorf("usagesync: marshal request: %w", err)
	}
	compressed := snappy.Encode(nil, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(compressed))
	if err != nil {
		s.restoreCounters(usage)
		return fmt.Errorf("usagesync: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "snappy")

	resp, err := s.Client.Do(req)
	if err != nil {
		s.restoreCounters(usage)
		return fmt.Errorf("usagesync: post failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.restoreCounters(usage)
		return fmt.Errorf("usagesync: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		s.restoreCounters(usage)
		return fmt.Errorf("usagesync: read response: %w", err)
	}

	var sr syncResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		s.restoreCounters(usage)
		return fmt.Errorf("usagesync: decode response: %w", err)
	}

	s.Limiter.UpdateAPIKeyStatus(sr.Status)
	if s.Log != nil {
		s.Log.Infof("usagesync: synced %d keys, %d statuses applied", len(usage), len(sr.Status))
	}
	return nil
}

// restoreCounters re-merges unsent counts back in after a failed
// round, so a transient outage doesn't drop usage data.
func (s *Syncer) restoreCounters(usage map[string]int64) {
	s.Counters.mu.Lock()
	defer s.Counters.mu.Unlock()
	for k, v := range usage {
		s.Counters.counts[k] += v
	}
}
