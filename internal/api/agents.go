// ABOUTME: HTTP handlers for agent definitions and the rendered greeting
// ABOUTME: Greeting markdown is converted to HTML with goldmark

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/repo"
)

func (s *Server) agentRepo(r *http.Request) (*repo.AgentRepository, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return repo.NewAgentRepository(s.pool, claims.TenantID), true
}

// handleAgents handles GET (listing) and POST (create) on /api/agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, ok := s.agentRepo(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		filter := map[string]string{}
		if published := r.URL.Query().Get("published"); published != "" {
			filter["published"] = published
		}
		rows, err := agents.FindAll(r.Context(), filter)
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		if rows == nil {
			rows = []dto.AgentDTO{}
		}
		writeJSON(w, http.StatusOK, rows)

	case http.MethodPost:
		var d dto.AgentDTO
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		created, err := agents.Create(r.Context(), d)
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleAgentRoutes handles /api/agents/{id} and /api/agents/{id}/greeting.
func (s *Server) handleAgentRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	if id, ok := strings.CutSuffix(rest, "/greeting"); ok {
		s.handleAgentGreeting(w, r, id)
		return
	}

	agents, ok := s.agentRepo(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		agent, err := agents.Get(r.Context(), rest)
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)

	case http.MethodPut:
		var d dto.AgentDTO
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		saved, err := agents.Upsert(r.Context(), map[string]string{"id": rest}, d)
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)

	case http.MethodDelete:
		removed, err := agents.Delete(r.Context(), map[string]string{"id": rest})
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		if !removed {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleAgentGreeting renders the agent's welcome markdown as HTML.
func (s *Server) handleAgentGreeting(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents, ok := s.agentRepo(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	agent, err := agents.Get(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(agent.WelcomeInfo), &htmlBuf); err != nil {
		s.logger.Error("failed to convert greeting markdown", "agent", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rendering greeting"})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(htmlBuf.Bytes())
}
