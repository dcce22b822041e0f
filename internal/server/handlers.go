package server

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// recentSignalDays bounds the default /api/signals window.
const recentSignalDays = 14

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.userDB != nil {
		if err := s.userDB.QuickCheck(r.Context()); err != nil {
			status = "degraded"
			s.log.Warn().Err(err).Msg("Database quick check failed")
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	days := recentSignalDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	signals, err := s.journal.RecentSignals(days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, signals)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.journal.OpenPositions()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	trades, err := s.journal.ClosedTrades(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.journal.LatestPlan()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if plan == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no plan"})
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("Request failed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
