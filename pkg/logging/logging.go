// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package logging wraps the standard library logger with a LOG_LEVEL
// gate (0 off, 1 errors, 2 warnings+errors, 3 all), logging through
// plain log.Printf with INFO:/WARN:/ERROR: prefixes rather than a
// structured logging library.
package logging

import (
	"container/ring"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
)

type Level int

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
)

// Logger gates stdlib log output by level and keeps a ring buffer of
// recent lines for the /logs admin endpoint.
type Logger struct {
	mu    sync.Mutex
	level Level
	buf   *ring.Ring
}

// NewFromEnv builds a Logger using LOG_LEVEL, defaulting to "all".
func NewFromEnv() *Logger {
	lvl := LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 3 {
			lvl = Level(n)
		}
	}
	return New(lvl)
}

// New builds a Logger at a fixed level, buffering the last 1000 lines.
func New(level Level) *Logger {
	return &Logger{level: level, buf: ring.New(1000)}
}

func (l *Logger) record(line string) {
	l.mu.Lock()
	l.buf.Value = line
	l.buf = l.buf.Next()
	l.mu.Unlock()
}

func (l *Logger) Errorf(format string, args ...any) {
	line := "ERROR: " + sprintf(format, args...)
	if l.level >= LevelError {
		log.Print(line)
	}
	l.record(line)
}

func (l *Logger) Warnf(format string, args ...any) {
	line := "WARN: " + sprintf(format, args...)
	if l.level >= LevelWarn {
		log.Print(line)
	}
	l.record(line)
}

func (l *Logger) Infof(format string, args ...any) {
	line := "INFO: " + sprintf(format, args...)
	if l.level >= LevelInfo {
		log.Print(line)
	}
	l.record(line)
}

// Tail returns up to n of the most recently recorded lines, oldest first.
func (l *Logger) Tail(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var all []string
	l.buf.Do(func(v any) {
		if v != nil {
			all = append(all, v.(string))
		}
	})
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
