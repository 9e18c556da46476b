package http

import (
	"context"
	"net/http"
	"time"

	"budgetbook/internal/core"
	"budgetbook/internal/log"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Health check failed", log.FieldError, err.Error())
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleMonthSummary returns the aggregated ledger for one month, generating
// any due recurring entries first.
func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.ledger.Today())
	if err != nil {
		failWith(w, r, log.OpSummary, err)
		return
	}

	summary, err := s.ledger.MonthSummary(r.Context(), params.Year, params.Month)
	if err != nil {
		failWith(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleGenerate materializes every due occurrence up to today.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	today := s.ledger.Today()
	n, err := s.ledger.GenerateDue(r.Context(), today)
	if err != nil {
		failWith(w, r, log.OpGenerate, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Generated: n, Today: today})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Settings(r.Context()))
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req core.Settings
	if err := decodeJSON(r, &req); err != nil {
		failWith(w, r, log.OpUpdate, err)
		return
	}
	req.Currency = sanitizeInput(req.Currency)

	saved, err := s.ledger.SaveSettings(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		failWith(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
