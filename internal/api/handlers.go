// ABOUTME: HTTP handlers for sessions, results, usage stats and the audit log
// ABOUTME: Read-mostly endpoints; mutation happens through agent flows and CLI

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agentdoodle/doodle-server/internal/repo"
)

// handleSessions handles GET /api/sessions: one paged, filtered listing.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, cipher, ok := requestCipher(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	sessions := repo.NewSessionRepository(s.pool, claims.TenantID, cipher)
	page, err := sessions.QueryAll(r.Context(), pageQueryFromRequest(r, "agentId"))
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleResults handles GET /api/results, filtered by sessionId or agentId.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, cipher, ok := requestCipher(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	filter := map[string]string{}
	for _, key := range []string{"sessionId", "agentId"} {
		if v := r.URL.Query().Get(key); v != "" {
			filter[key] = v
		}
	}

	results := repo.NewResultRepository(s.pool, claims.TenantID, cipher)
	rows, err := results.FindAll(r.Context(), filter)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleUsageStats handles GET /api/stats/usage?month=8&year=2026, defaulting
// to the current UTC month.
func (s *Server) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	now := time.Now().UTC()
	month, year := int(now.Month()), now.Year()
	if m, err := strconv.Atoi(r.URL.Query().Get("month")); err == nil {
		month = m
	}
	if y, err := strconv.Atoi(r.URL.Query().Get("year")); err == nil {
		year = y
	}

	stats := repo.NewStatsRepository(s.pool, claims.TenantID)
	totals, err := stats.MonthTotals(r.Context(), month, year)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// handleAudit handles GET /api/audit. The ?partition= parameter selects the
// monthly file, defaulting to the current UTC month.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, cipher, ok := requestCipher(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	partition := r.URL.Query().Get("partition")
	if partition == "" {
		partition = repo.PartitionForTime(time.Now())
	}

	audit := repo.NewAuditRepository(s.pool, claims.TenantID, partition, cipher)
	page, err := audit.QueryAll(r.Context(), pageQueryFromRequest(r, "eventName", "recordLocator"))
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
