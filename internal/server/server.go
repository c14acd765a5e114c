// Package server exposes the running session's state over HTTP: a REST
// surface for quick inspection and a JSON-RPC 2.0 surface for programmatic
// clients, mirroring the dual API style of the engine's ambient stack.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/config"
	"github.com/xtalopt/engine/internal/duplicate"
	"github.com/xtalopt/engine/internal/generator"
	"github.com/xtalopt/engine/internal/haltwatch"
	"github.com/xtalopt/engine/internal/logging"
	"github.com/xtalopt/engine/internal/store"
)

// Logger defines the logging interface used by the server, matching the
// process-wide structured logger.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Server implements the HTTP and JSON-RPC surface for one running session.
type Server struct {
	cfg    *config.Config
	logger Logger
	st     *store.Store
	gen    *generator.Generator
	dup    *duplicate.Detector
	root   string
}

// NewServer creates a Server bound to the process config, the session's
// candidate store, the session root (used to drop the halt sentinel), and
// the generator/detector pair operators use to trigger a space-group
// recompute and duplicate rescan.
func NewServer(cfg *config.Config, logger Logger, st *store.Store, gen *generator.Generator, dup *duplicate.Detector, sessionRoot string) *Server {
	return &Server{cfg: cfg, logger: logger, st: st, gen: gen, dup: dup, root: sessionRoot}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", s.handleSessionStatus)
		r.Get("/candidates", s.handleCandidateList)
		r.Get("/candidates/{key}", s.handleCandidateGet)
		r.Post("/halt", s.handleHalt)
		r.Post("/reset-duplicates", s.handleResetDuplicates)
	})

	r.Post("/rpc", s.handleJSONRPC)
}

// candidateView is the JSON-facing projection of a Candidate; it never
// exposes the candidate's lock.
type candidateView struct {
	Generation  int     `json:"generation"`
	IDNumber    int     `json:"id_number"`
	Key         string  `json:"key"`
	Parents     string  `json:"parents"`
	Status      string  `json:"status"`
	Enthalpy    float64 `json:"enthalpy"`
	Volume      float64 `json:"volume"`
	Spacegroup  uint    `json:"spacegroup"`
	DuplicateOf string  `json:"duplicate_of,omitempty"`
	FailCount   int     `json:"fail_count"`
	OptStarted  string  `json:"opt_started,omitempty"`
	OptRuntime  string  `json:"opt_runtime,omitempty"`
}

func toView(c *candidate.Candidate) candidateView {
	c.RLock()
	defer c.RUnlock()
	v := candidateView{
		Generation:  c.Generation,
		IDNumber:    c.IDNumber,
		Key:         c.Key().String(),
		Parents:     c.Parents,
		Status:      string(c.Status),
		Enthalpy:    c.Enthalpy,
		Volume:      c.Volume(),
		Spacegroup:  c.Fingerprint.Spacegroup,
		DuplicateOf: c.DuplicateOf,
		FailCount:   c.FailCount,
	}
	if !c.OptTimerStart.IsZero() {
		v.OptStarted = humanize.Time(c.OptTimerStart)
		if !c.OptTimerEnd.IsZero() {
			v.OptRuntime = humanize.RelTime(c.OptTimerStart, c.OptTimerEnd, "", "elapsed")
		}
	}
	return v
}

type sessionStatus struct {
	TotalCandidates int            `json:"total_candidates"`
	CountsByStatus  map[string]int `json:"counts_by_status"`
}

func (s *Server) sessionStatusSnapshot() sessionStatus {
	counts := make(map[string]int)
	cands := s.st.List()
	for _, c := range cands {
		c.RLock()
		counts[string(c.Status)]++
		c.RUnlock()
	}
	return sessionStatus{TotalCandidates: len(cands), CountsByStatus: counts}
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionStatusSnapshot())
}

func (s *Server) handleCandidateList(w http.ResponseWriter, r *http.Request) {
	cands := s.st.List()
	views := make([]candidateView, len(cands))
	for i, c := range cands {
		views[i] = toView(c)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCandidateGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	c, err := s.findByKey(key)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toView(c))
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	if err := s.writeHaltSentinel(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "halt requested"})
}

// handleResetDuplicates recomputes space groups and re-runs the duplicate
// scan against the whole population, e.g. after an operator lowers
// tol_spg mid-session and wants the existing population re-evaluated
// against the new tolerance rather than waiting for the next status change.
func (s *Server) handleResetDuplicates(w http.ResponseWriter, r *http.Request) {
	s.dup.ResetAndRescan(s.gen)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "duplicates reset"})
}

func (s *Server) writeHaltSentinel() error {
	return haltwatch.WriteSentinel(s.root)
}

// findByKey parses a "GxI" key and looks up the matching candidate.
func (s *Server) findByKey(key string) (*candidate.Candidate, error) {
	parts := strings.SplitN(key, "x", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid key %q, expected GxI", key)
	}
	gen, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid generation in key %q", key)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid id in key %q", key)
	}
	c := s.st.ByKey(candidate.Key{Generation: gen, ID: id})
	if c == nil {
		return nil, fmt.Errorf("candidate %q not found", key)
	}
	return c, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleJSONRPC implements the JSON-RPC 2.0 surface: session.status,
// candidate.list, candidate.get, session.halt, duplicates.reset.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string                 `json:"jsonrpc"`
		ID      interface{}            `json:"id"`
		Method  string                 `json:"method"`
		Params  map[string]interface{} `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "session.status":
		result = s.sessionStatusSnapshot()
	case "candidate.list":
		cands := s.st.List()
		views := make([]candidateView, len(cands))
		for i, c := range cands {
			views[i] = toView(c)
		}
		result = views
	case "candidate.get":
		key, _ := request.Params["key"].(string)
		var c *candidate.Candidate
		c, err = s.findByKey(key)
		if err == nil {
			result = toView(c)
		}
	case "session.halt":
		err = s.writeHaltSentinel()
		if err == nil {
			result = map[string]string{"status": "halt requested"}
		}
	case "duplicates.reset":
		s.dup.ResetAndRescan(s.gen)
		result = map[string]string{"status": "duplicates reset"}
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, -32000, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

// Close is a no-op; the server holds no resources beyond the store and
// config it was handed, both owned by the caller.
func (s *Server) Close() error {
	return nil
}
