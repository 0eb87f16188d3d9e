// ABOUTME: HTTP API server wiring: routes, middleware, graceful shutdown
// ABOUTME: Every data route resolves tenant repositories from the JWT claims

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/agentdoodle/doodle-server/internal/config"
	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/repo"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

// Server serves the tenant-facing HTTP API.
type Server struct {
	config     *config.Config
	pool       *dbpool.Pool
	verifier   *JWTVerifier
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a Server around an existing pool.
func New(cfg *config.Config, pool *dbpool.Pool, logger *slog.Logger) *Server {
	s := &Server{
		config:   cfg,
		pool:     pool,
		verifier: NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		logger:   logger.With("component", "api"),
	}

	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("/health", s.handleHealth)

	authMiddleware := AuthMiddleware(s.verifier)
	mux.Handle("/api/agents", authMiddleware(http.HandlerFunc(s.handleAgents)))
	mux.Handle("/api/agents/", authMiddleware(http.HandlerFunc(s.handleAgentRoutes)))
	mux.Handle("/api/orders", authMiddleware(http.HandlerFunc(s.handleOrders)))
	mux.Handle("/api/orders/", authMiddleware(http.HandlerFunc(s.handleOrderRoutes)))
	mux.Handle("/api/sessions", authMiddleware(http.HandlerFunc(s.handleSessions)))
	mux.Handle("/api/results", authMiddleware(http.HandlerFunc(s.handleResults)))
	mux.Handle("/api/stats/usage", authMiddleware(http.HandlerFunc(s.handleUsageStats)))
	mux.Handle("/api/audit", authMiddleware(http.HandlerFunc(s.handleAudit)))

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the configured mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Verifier exposes the server's token verifier so entrypoints can mint
// tenant tokens with the same secret.
func (s *Server) Verifier() *JWTVerifier { return s.verifier }

// Run serves HTTP until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestCipher resolves the field cipher for the authenticated tenant.
func requestCipher(r *http.Request) (TenantClaims, vault.Cipher, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return TenantClaims{}, nil, false
	}
	cipher, err := claims.Cipher()
	if err != nil {
		return TenantClaims{}, nil, false
	}
	return claims, cipher, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRepoError maps repository and pool errors onto HTTP statuses.
func (s *Server) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, dbpool.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, repo.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, vault.ErrDecrypt):
		s.logger.Error("decryption failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "decryption failed"})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// pageQueryFromRequest builds a PageQuery from common listing parameters.
func pageQueryFromRequest(r *http.Request, filterKeys ...string) repo.PageQuery {
	q := r.URL.Query()
	pq := repo.PageQuery{
		Filter:  map[string]string{},
		OrderBy: q.Get("orderBy"),
		Query:   q.Get("query"),
	}
	for _, key := range filterKeys {
		if v := q.Get(key); v != "" {
			pq.Filter[key] = v
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		pq.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		pq.Offset = offset
	}
	return pq
}
