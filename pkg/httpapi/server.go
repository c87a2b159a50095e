// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package httpapi exposes the lookup pipeline over HTTP: per-format
// lookup endpoints, bulk lookup, and an admin surface for stats, logs,
// config reload, and process status.
package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wingedpig/ipintel/pkg/logging"
	"github.com/wingedpig/ipintel/pkg/model"
	"github.com/wingedpig/ipintel/pkg/pipeline"
	"github.com/wingedpig/ipintel/pkg/ratelimit"
)

// AdminHooks lets the server expose operational actions (config
// reload, PID, process status) without importing the supervisor
// package directly, keeping the dependency direction one-way.
type AdminHooks struct {
	AdminKey        string
	PID             func() int
	ReloadAPIKeys   func() error
	ReloadUserQuota func() error
	SourceCodeHash  func() string
	APIVersion      string
	PM2Status       func() ([]byte, error)
	PM2Logs         func() ([]byte, error)
}

// Server wires the pipeline, rate limiter, and admin hooks into a
// gorilla/mux router.
type Server struct {
	handle  *pipeline.Handle
	limiter *ratelimit.Limiter
	log     *logging.Logger
	hooks   AdminHooks
	usage   func(apiKey string)

	router *mux.Router
}

// New builds a Server and its route table.
func New(handle *pipeline.Handle, limiter *ratelimit.Limiter, log *logging.Logger, hooks AdminHooks, usage func(apiKey string)) *Server {
	s := &Server{handle: handle, limiter: limiter, log: log, hooks: hooks, usage: usage}
	s.router = mux.NewRouter()
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	lookup := s.router.PathPrefix("").Subrouter()
	lookup.HandleFunc("/", s.handleLookup("json")).Methods("GET")
	lookup.HandleFunc("/json", s.handleLookup("json")).Methods("GET")
	lookup.HandleFunc("/toon", s.handleLookup("toon")).Methods("GET")
	lookup.HandleFunc("/txt", s.handleLookup("txt")).Methods("GET")
	lookup.HandleFunc("/text", s.handleLookup("txt")).Methods("GET")
	lookup.HandleFunc("/csv", s.handleLookup("csv")).Methods("GET")
	lookup.HandleFunc("/html", s.handleLookup("html")).Methods("GET")
	lookup.HandleFunc("/ip", s.handleBulk).Methods("POST")

	admin := s.router.PathPrefix("").Subrouter()
	admin.HandleFunc("/stats", s.requireAdmin(s.handleStats)).Methods("GET")
	admin.HandleFunc("/logs", s.requireAdmin(s.handleLogs)).Methods("GET")
	admin.HandleFunc("/status", s.requireAdmin(s.handlePM2Status)).Methods("GET")
	admin.HandleFunc("/reloadApi", s.requireAdmin(s.handleReloadAPI)).Methods("POST")
	admin.HandleFunc("/reloadUsers", s.requireAdmin(s.handleReloadUsers)).Methods("POST")
	admin.HandleFunc("/pid", s.requireAdmin(s.handlePID)).Methods("GET")
	admin.HandleFunc("/isUpdateNeeded", s.requireAdmin(s.handleIsUpdateNeeded)).Methods("GET")
	admin.HandleFunc("/apiVersion", s.requireAdmin(s.handleAPIVersion)).Methods("GET")
	admin.HandleFunc("/getSourceCodeHash", s.requireAdmin(s.handleSourceCodeHash)).Methods("GET")
}

// requireAdmin gates an admin endpoint on the X-Admin-Key header.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if s.hooks.AdminKey == "" || key != s.hooks.AdminKey {
			writeError(w, http.StatusForbidden, model.CodeForbidden, "admin key required")
			return
		}
		next(w, r)
	}
}

// clientIP extracts the caller's address, preferring X-Forwarded-For
// (set by a trusted upstream proxy) over RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// queryParam resolves the address from the precedence order: "ip"
// query parameter, "q" query parameter, then the last path segment
// when it is not a format name. Only the format paths are registered
// as routes, so in practice the address comes from ?ip= or ?q= (e.g.
// GET /json?ip=8.8.8.8).
func queryParam(r *http.Request) string {
	if v := r.URL.Query().Get("ip"); v != "" {
		return v
	}
	if v := r.URL.Query().Get("q"); v != "" {
		return v
	}
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	last := segments[len(segments)-1]
	switch last {
	case "", "json", "toon", "txt", "text", "csv", "html":
		return ""
	default:
		return last
	}
}

func (s *Server) handleLookup(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.URL.Query().Get("key")
		ip := queryParam(r)
		if ip == "" {
			ip = clientIP(r)
		}

		decision := s.limiter.Allow(mustParseIP(clientIP(r)), apiKey, ratelimit.ClassStandard)
		if !decision.Allowed {
			writeError(w, statusForCode(decision.Code), decision.Code, string(decision.Code))
			return
		}
		if s.usage != nil {
			s.usage(apiKey)
		}

		resp, err := s.handle.Lookup(ip)
		if err != nil {
			writeError(w, http.StatusBadRequest, model.CodeInvalidIPOrASN, err.Error())
			return
		}
		writeFormatted(w, format, resp)
	}
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	apiKey := r.URL.Query().Get("key")
	decision := s.limiter.Allow(mustParseIP(clientIP(r)), apiKey, ratelimit.ClassBulk)
	if !decision.Allowed {
		writeError(w, statusForCode(decision.Code), decision.Code, string(decision.Code))
		return
	}

	var ips []string
	if err := json.NewDecoder(r.Body).Decode(&ips); err != nil {
		writeError(w, http.StatusBadRequest, model.CodeInvalidBulkNotArray, "body must be a JSON array of addresses")
		return
	}

	if s.usage != nil {
		s.usage(apiKey)
	}

	out, err := s.handle.BulkLookup(ips)
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, out)
	case model.ErrBulkEmpty:
		writeError(w, http.StatusBadRequest, model.CodeInvalidBulkEmpty, err.Error())
	case model.ErrBulkTooLarge:
		writeError(w, http.StatusBadRequest, model.CodeBulkLimitExceeded, err.Error())
	case model.ErrBulkNoneValid:
		writeError(w, http.StatusBadRequest, model.CodeInvalidBulkNoValidEntries, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, model.CodeUnexpectedServerError, err.Error())
	}
}

// mustParseIP resolves a client address for rate-limit purposes,
// falling back to the unspecified address if it can't be parsed (all
// such requests then share that address's per-IP counters).
func mustParseIP(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.IPv4Unspecified()
	}
	return a
}

func statusForCode(code model.ErrorCode) int {
	switch code {
	case model.CodeForbiddenBlacklisted, model.CodeForbiddenInvalidAPIKey, model.CodeForbiddenNotAllowed, model.CodeForbiddenAPIKeyRequired, model.CodeForbidden:
		return http.StatusForbidden
	case model.CodeQuotaExceeded, model.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusForbidden
	}
}

// --- admin handlers ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.limiter.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"tracked_ips":       stats.TrackedIPs,
		"firewalled_ips":    stats.FirewalledIPs,
		"api_error_entries": stats.APIErrorEntries,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	n := 200
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.log.Tail(n))
}

func (s *Server) handlePM2Status(w http.ResponseWriter, r *http.Request) {
	if s.hooks.PM2Status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "unmanaged"})
		return
	}
	out, err := s.hooks.PM2Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.CodePM2StatusFailed, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

func (s *Server) handleReloadAPI(w http.ResponseWriter, r *http.Request) {
	if s.hooks.ReloadAPIKeys == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no-op"})
		return
	}
	if err := s.hooks.ReloadAPIKeys(); err != nil {
		writeError(w, http.StatusInternalServerError, model.CodeConfigUpdateFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleReloadUsers(w http.ResponseWriter, r *http.Request) {
	if s.hooks.ReloadUserQuota == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no-op"})
		return
	}
	if err := s.hooks.ReloadUserQuota(); err != nil {
		writeError(w, http.StatusInternalServerError, model.CodeConfigUpdateFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handlePID(w http.ResponseWriter, r *http.Request) {
	pid := 0
	if s.hooks.PID != nil {
		pid = s.hooks.PID()
	}
	writeJSON(w, http.StatusOK, map[string]int{"pid": pid})
}

func (s *Server) handleIsUpdateNeeded(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"update_needed": false})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.hooks.APIVersion})
}

func (s *Server) handleSourceCodeHash(w http.ResponseWriter, r *http.Request) {
	hash := ""
	if s.hooks.SourceCodeHash != nil {
		hash = s.hooks.SourceCodeHash()
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code model.ErrorCode, message string) {
	writeJSON(w, status, map[string]string{"code": string(code), "message": message})
}
