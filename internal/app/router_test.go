package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	enginehttp "github.com/odyssey-erp/odyssey-ledger/internal/engine/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

func newTestRouter(ready func(context.Context) error) http.Handler {
	cfg := &Config{AppEnv: "test", BaseCurrency: "LKR"}
	eng := engine.New(memory.New(), engine.Config{BaseCurrency: cfg.BaseCurrency}, nil, nil)
	return NewRouter(RouterParams{
		Config:        cfg,
		LedgerHandler: enginehttp.NewHandler(eng, cfg.BaseCurrency, nil),
		Metrics:       observability.NewMetrics(),
		Ready:         ready,
	})
}

func TestRouterServesProbesAndSecureHeaders(t *testing.T) {
	router := newTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterReadinessFailure(t *testing.T) {
	router := newTestRouter(func(context.Context) error { return errors.New("pg down") })
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterMountsLedgerAPIAndMetrics(t *testing.T) {
	router := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/accounts/1", nil)
	req.Header.Set(enginehttp.HeaderTenantID, "1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `ledger_http_requests_total{code="404",route="/api/v1/accounts/{id}"}`), rec.Body.String())
}
