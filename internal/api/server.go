package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentra-project/sentra/internal/core"
)

// Server is the Sentra REST API server.
type Server struct {
	engine *core.Engine
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new API server bound to an engine.
func NewServer(engine *core.Engine, logger zerolog.Logger) *Server {
	s := &Server{
		engine: engine,
		logger: logger.With().Str("component", "api_server").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/config", s.handleConfig)
	mux.HandleFunc("/api/v1/events", s.handleIngestEvent)
	mux.HandleFunc("/api/v1/score", s.handleScore)
	mux.HandleFunc("/api/v1/alerts", s.handleAlerts)
	mux.HandleFunc("/api/v1/alerts/", s.handleAlertByID)
	mux.HandleFunc("/api/v1/cases", s.handleCases)
	mux.HandleFunc("/api/v1/cases/export", s.handleCasesExport)
	mux.HandleFunc("/api/v1/cases/", s.handleCaseByID)
	mux.HandleFunc("/api/v1/audit", s.handleAudit)
	mux.HandleFunc("/api/v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/api/v1/drills", s.handleDrillStart)
	mux.HandleFunc("/api/v1/drills/", s.handleDrillSubmit)

	// Middleware chain: logging -> rate limit -> auth -> handler
	handler := loggingMiddleware(
		rateLimitMiddleware(
			authMiddleware(mux, engine.Config(), s.logger),
			100, // 100 requests per second per IP
		),
		s.logger,
	)

	s.server = &http.Server{
		Addr:         engine.Config().Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving the API.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server starting")
	if s.engine.Config().Server.APIKey == "" {
		s.logger.Warn().Msg("API authentication disabled — set server.api_key in config")
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "running",
		"stats":     s.engine.Stats(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Redact the API key from the response
	safeCfg := *s.engine.Config()
	safeCfg.Server.APIKey = ""
	writeJSON(w, http.StatusOK, safeCfg)
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event core.Event
	// Limit body size to 1MB to prevent memory abuse
	limited := io.LimitReader(r.Body, 1<<20)
	if err := json.NewDecoder(limited).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event JSON: " + err.Error()})
		return
	}

	if event.ID == "" {
		event.ID = "ext-" + time.Now().Format("20060102150405.000")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Source == "" {
		event.Source = "external"
	}

	result, err := s.engine.Pipeline().Ingest(r.Context(), &event)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "accepted",
		"event_id": event.ID,
		"result":   result,
	})
}

// handleScore answers what-if questions: score an event under an alternative
// scoring config without touching engine state.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Event   core.Event          `json:"event"`
		Scoring *core.ScoringConfig `json:"scoring,omitempty"`
	}
	limited := io.LimitReader(r.Body, 1<<20)
	if err := json.NewDecoder(limited).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if body.Event.ID == "" {
		body.Event.ID = "whatif-" + time.Now().Format("20060102150405.000")
	}
	if body.Event.Timestamp.IsZero() {
		body.Event.Timestamp = time.Now().UTC()
	}

	cfg := s.engine.Config().Scoring
	if body.Scoring != nil {
		cfg = *body.Scoring
	}
	assessment, err := s.engine.Pipeline().WhatIf(&body.Event, cfg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := queryLimit(r, 100)
	minBand := core.BandLow
	if bandStr := r.URL.Query().Get("min_band"); bandStr != "" {
		if b, ok := core.ParseRiskBand(bandStr); ok {
			minBand = b
		}
	}

	alerts := make([]core.Alert, 0, limit)
	for _, a := range s.engine.Alerts().List() {
		if a.Assessment.Band < minBand {
			continue
		}
		alerts = append(alerts, a)
		if len(alerts) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// handleAlertByID handles /api/v1/alerts/{id} and the transition verbs
// /api/v1/alerts/{id}/{ack|escalate|close|assign}.
func (s *Server) handleAlertByID(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/"), "/")
	parts := strings.SplitN(path, "/", 2)
	alertID := parts[0]
	if alertID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "alert id required"})
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		alert, ok := s.engine.Alerts().Get(alertID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
			return
		}
		writeJSON(w, http.StatusOK, alert)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Actor   string `json:"actor"`
		Analyst string `json:"analyst,omitempty"`
		Reason  string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if body.Actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "actor is required"})
		return
	}

	var err error
	switch parts[1] {
	case "ack":
		err = s.engine.Alerts().Acknowledge(alertID, body.Actor)
	case "escalate":
		err = s.engine.Alerts().Escalate(alertID, body.Actor)
	case "close":
		err = s.engine.Alerts().Close(alertID, body.Actor, body.Reason)
	case "assign":
		err = s.engine.Alerts().Assign(alertID, body.Analyst, body.Actor)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown action " + parts[1] + " — use ack, escalate, close, or assign",
		})
		return
	}
	if err != nil {
		writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
		return
	}
	alert, _ := s.engine.Alerts().Get(alertID)
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleCases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := queryLimit(r, 100)
	cases := s.engine.Cases().List()
	if len(cases) > limit {
		cases = cases[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cases": cases,
		"total": len(cases),
	})
}

func (s *Server) handleCasesExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="cases.csv"`)
	if err := s.engine.Cases().ExportCSV(w); err != nil {
		s.logger.Error().Err(err).Msg("case export failed")
	}
}

// handleCaseByID handles /api/v1/cases/{id} and the verbs
// /api/v1/cases/{id}/{assign|close}.
func (s *Server) handleCaseByID(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/cases/"), "/")
	parts := strings.SplitN(path, "/", 2)
	caseID := parts[0]
	if caseID == "" || caseID == "export" {
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c, ok := s.engine.Cases().Get(caseID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "case not found"})
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Actor      string `json:"actor"`
		Analyst    string `json:"analyst,omitempty"`
		Note       string `json:"note,omitempty"`
		WithAlerts bool   `json:"with_alerts,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if body.Actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "actor is required"})
		return
	}

	var err error
	switch parts[1] {
	case "assign":
		err = s.engine.Cases().Assign(caseID, body.Analyst, body.Actor)
	case "close":
		if body.WithAlerts {
			err = s.engine.Cases().CloseWithAlerts(caseID, body.Actor, body.Note)
		} else {
			err = s.engine.Cases().Close(caseID, body.Actor, body.Note)
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown action " + parts[1] + " — use assign or close",
		})
		return
	}
	if err != nil {
		writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
		return
	}
	c, _ := s.engine.Cases().Get(caseID)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := core.AuditQuery{
		Actor:    r.URL.Query().Get("actor"),
		TargetID: r.URL.Query().Get("target"),
		Limit:    queryLimit(r, 200),
	}
	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from time — use RFC3339"})
			return
		}
		q.From = from
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to time — use RFC3339"})
			return
		}
		q.To = to
	}
	entries := s.engine.Audit().Query(q)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	board := s.engine.Gamifier().Leaderboard()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": board,
		"total":       len(board),
	})
}

// handleDrillStart opens a sandbox triage round. Requires the simulator.
func (s *Server) handleDrillStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sim := s.engine.Simulator()
	if sim == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "drills need the simulator — enable simulator in config",
		})
		return
	}

	var body struct {
		Analyst string `json:"analyst"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	questions, err := s.engine.Pipeline().DrillQuestions(sim.Batch(5))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	drillID, questions, err := s.engine.Gamifier().StartDrill(body.Analyst, questions)
	if err != nil {
		writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"drill_id":  drillID,
		"questions": questions,
	})
}

// handleDrillSubmit grades a round: POST /api/v1/drills/{id} with band answers.
func (s *Server) handleDrillSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	drillID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/drills/"), "/")
	if drillID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "drill id required"})
		return
	}

	var body struct {
		Answers []string `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	answers := make([]core.RiskBand, 0, len(body.Answers))
	for _, a := range body.Answers {
		band, ok := core.ParseRiskBand(a)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid band " + a + " — use LOW, MEDIUM, HIGH, or CRITICAL",
			})
			return
		}
		answers = append(answers, band)
	}

	result, err := s.engine.Gamifier().SubmitDrill(drillID, answers)
	if err != nil {
		writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---------------------------------------------------------------------------
// Helpers and middleware
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func queryLimit(r *http.Request, def int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return def
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest
	}
	var sErr *core.StateConflict
	if errors.As(err, &sErr) {
		if sErr.Reason == "not found" {
			return http.StatusNotFound
		}
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// authMiddleware enforces the API key on all endpoints except /health.
// With no key configured, all requests are allowed (open mode, warned at startup).
func authMiddleware(next http.Handler, cfg *core.Config, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if strings.HasPrefix(key, "Bearer ") {
			key = key[7:]
		}
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "missing authentication — provide Authorization: Bearer <key> or X-API-Key header",
			})
			return
		}
		if key != cfg.Server.APIKey {
			logger.Warn().Str("path", r.URL.Path).Str("ip", r.RemoteAddr).Msg("invalid API key")
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware implements a simple per-IP token bucket rate limiter.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

type tokenBucket struct {
	tokens    float64
	maxTokens float64
	lastTime  time.Time
}

func (b *tokenBucket) allow(rate float64) bool {
	now := time.Now()
	elapsed := now.Sub(b.lastTime).Seconds()
	b.lastTime = now
	b.tokens += elapsed * rate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func rateLimitMiddleware(next http.Handler, requestsPerSecond int) http.Handler {
	limiter := &ipLimiter{buckets: make(map[string]*tokenBucket)}

	// Cleanup stale buckets every 5 minutes
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			limiter.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for ip, bucket := range limiter.buckets {
				if bucket.lastTime.Before(cutoff) {
					delete(limiter.buckets, ip)
				}
			}
			limiter.mu.Unlock()
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		ip := r.RemoteAddr
		if idx := strings.LastIndex(ip, ":"); idx != -1 {
			ip = ip[:idx]
		}

		limiter.mu.Lock()
		bucket, exists := limiter.buckets[ip]
		if !exists {
			bucket = &tokenBucket{
				tokens:    float64(requestsPerSecond),
				maxTokens: float64(requestsPerSecond * 2), // burst = 2x rate
				lastTime:  time.Now(),
			}
			limiter.buckets[ip] = bucket
		}
		allowed := bucket.allow(float64(requestsPerSecond))
		limiter.mu.Unlock()

		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded — try again shortly",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
