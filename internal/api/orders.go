// ABOUTME: HTTP handlers for order CRUD, paged listing and XLSX export
// ABOUTME: Translation only; totals and encryption live in the repository layer

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/export"
	"github.com/agentdoodle/doodle-server/internal/repo"
)

func (s *Server) orderRepo(r *http.Request) (*repo.OrderRepository, bool) {
	claims, cipher, ok := requestCipher(r)
	if !ok {
		return nil, false
	}
	return repo.NewOrderRepository(s.pool, claims.TenantID, cipher), true
}

// handleOrders handles GET (paged listing), POST (create) and PUT (upsert)
// on /api/orders.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders, ok := s.orderRepo(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		page, err := orders.QueryAll(r.Context(), pageQueryFromRequest(r, "id", "agentId", "status"))
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)

	case http.MethodPost:
		var d dto.OrderDTO
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		created, err := orders.Create(r.Context(), d)
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodPut:
		var d dto.OrderDTO
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			id = d.ID
		}
		saved, err := orders.Upsert(r.Context(), map[string]string{"id": id}, d)
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleOrderRoutes handles /api/orders/{id} and /api/orders/export.
func (s *Server) handleOrderRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	if rest == "export" {
		s.handleOrderExport(w, r)
		return
	}

	orders, ok := s.orderRepo(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		found, err := orders.FindAll(r.Context(), map[string]string{"id": rest})
		if err != nil {
			s.writeRepoError(w, err)
			return
		}
		if len(found) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, found[0])

	case http.MethodDelete:
		removed, err := orders.Delete(r.Context(), map[string]string{"id": rest})
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

// handleOrderExport streams the tenant's orders as a styled XLSX workbook.
// Optional ?agentId= and ?status= narrow the export.
func (s *Server) handleOrderExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	orders, ok := s.orderRepo(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	filter := map[string]string{}
	for _, key := range []string{"agentId", "status"} {
		if v := r.URL.Query().Get(key); v != "" {
			filter[key] = v
		}
	}

	rows, err := orders.FindAll(r.Context(), filter)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.xlsx"`)
	if err := export.Orders(w, rows); err != nil {
		// Headers are already sent; the truncated body signals the failure.
		s.logger.Error("exporting orders", "error", err)
	}
}
