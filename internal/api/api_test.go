package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/agentdoodle/doodle-server/internal/config"
	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/tenant"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// setupServer provisions a tenant and returns a test server plus a bearer
// token carrying that tenant's claims.
func setupServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	cfg := &config.Config{
		Server:  config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Storage: config.StorageConfig{DataDir: t.TempDir(), PoolMax: 10},
		Auth:    config.AuthConfig{JWTSecret: testJWTSecret, TokenTTL: time.Hour},
	}

	pool := dbpool.New(cfg.Storage.DataDir, cfg.Storage.PoolMax)
	t.Cleanup(func() { _ = pool.Close() })

	tenantID := tenant.HashEmail("owner@example.com")
	_, err := tenant.Create(context.Background(), pool, tenantID, tenant.Creator{})
	require.NoError(t, err)

	server := New(cfg, pool, slog.Default())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	token, err := server.Verifier().Generate(tenantID, "tenant-storage-key", time.Hour)
	require.NoError(t, err)
	return ts, token
}

func doRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthNoAuth(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	ts, _ := setupServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/orders", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/orders", "not-a-jwt", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExpiredTokenRejected(t *testing.T) {
	ts, _ := setupServer(t)

	verifier := NewJWTVerifier([]byte(testJWTSecret))
	expired, err := verifier.Generate("tenant", "", -time.Minute)
	require.NoError(t, err)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/orders", expired, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOrderLifecycle(t *testing.T) {
	ts, token := setupServer(t)

	order := dto.OrderDTO{
		ID:     "order-1",
		Email:  "buyer@example.com",
		Status: "new",
		Items: []dto.OrderItemDTO{
			{Name: "Widget", Quantity: 2, TaxRate: 0.23,
				Price: dto.PriceDTO{Value: 100, Currency: "USD"}},
		},
		Total: dto.PriceDTO{Value: 1, Currency: "USD"}, // forged, server recomputes
	}

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/orders", token, order)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[dto.OrderDTO](t, resp)
	assert.InDelta(t, 200.0, created.Total.Value, 1e-9)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/orders/order-1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeBody[dto.OrderDTO](t, resp)
	assert.Equal(t, "buyer@example.com", fetched.Email)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/orders?limit=10", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[dto.Page[dto.OrderDTO]](t, resp)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Rows, 1)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/api/orders/order-1", token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/api/orders/order-1", token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOrderUpsertValidation(t *testing.T) {
	ts, token := setupServer(t)

	// Upsert without any identifier is a bad request.
	resp := doRequest(t, http.MethodPut, ts.URL+"/api/orders", token, dto.OrderDTO{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrderMissingReturns404(t *testing.T) {
	ts, token := setupServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/orders/no-such-order", token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgentGreetingRendersMarkdown(t *testing.T) {
	ts, token := setupServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/agents", token, dto.AgentDTO{
		DisplayName: "Greeter",
		WelcomeInfo: "# Welcome\n\nPlace your **order** below.",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	agent := decodeBody[dto.AgentDTO](t, resp)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/agents/"+agent.ID+"/greeting", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	html := buf.String()

	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, html, "<h1>Welcome</h1>")
	assert.Contains(t, html, "<strong>order</strong>")
}

func TestAgentCRUD(t *testing.T) {
	ts, token := setupServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/agents", token,
		dto.AgentDTO{DisplayName: "Assistant"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	agent := decodeBody[dto.AgentDTO](t, resp)

	resp = doRequest(t, http.MethodPut, ts.URL+"/api/agents/"+agent.ID, token,
		dto.AgentDTO{DisplayName: "Assistant", Published: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[dto.AgentDTO](t, resp)
	assert.True(t, updated.Published)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/agents?published=true", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	agents := decodeBody[[]dto.AgentDTO](t, resp)
	require.Len(t, agents, 1)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/api/agents/"+agent.ID, token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestOrderExportWorkbook(t *testing.T) {
	ts, token := setupServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/orders", token, dto.OrderDTO{
		ID:     "order-1",
		Status: "shipped",
		Items: []dto.OrderItemDTO{
			{Name: "Widget", Quantity: 1, Price: dto.PriceDTO{Value: 50, Currency: "USD"}},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/orders/export", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	assert.True(t, strings.Contains(resp.Header.Get("Content-Type"), "spreadsheetml"))

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "order-1", rows[1][0])
}

func TestUsageStats(t *testing.T) {
	ts, token := setupServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/stats/usage?month=8&year=2026", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	totals := decodeBody[map[string]any](t, resp)
	assert.EqualValues(t, 8, totals["month"])
	assert.EqualValues(t, 2026, totals["year"])
}

func TestAuditListing(t *testing.T) {
	ts, token := setupServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/audit?partition=2026-08", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[dto.Page[dto.AuditDTO]](t, resp)
	assert.Equal(t, 0, page.Total)
}
