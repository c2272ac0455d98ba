package enginehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

type apiFixture struct {
	router http.Handler
	engine *engine.Engine
	cash   ledger.Account
	equity ledger.Account
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	eng := engine.New(memory.New(), engine.Config{BaseCurrency: "LKR"}, nil, nil)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{TenantID: 1, BaseCurrency: "LKR"})
	cash, err := eng.OpenAccount(ctx, ledger.Account{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset})
	require.NoError(t, err)
	equity, err := eng.OpenAccount(ctx, ledger.Account{Code: "3000", Name: "Capital", Type: ledger.AccountTypeEquity})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api/v1", NewHandler(eng, "LKR", nil).MountRoutes)
	return &apiFixture{router: r, engine: eng, cash: cash, equity: equity}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenantID, "1")
	req.Header.Set(HeaderUserID, "7")
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func problem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var body httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (f *apiFixture) capital(amount string) map[string]any {
	return map[string]any{
		"description": "capital injection",
		"lines": []map[string]any{
			{"account_id": f.cash.ID, "debit": amount},
			{"account_id": f.equity.ID, "credit": amount},
		},
	}
}

func TestRequestsWithoutTenantAreRejected(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", f.cash.ID), nil, map[string]string{HeaderTenantID: ""})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJournalEntryIsIdempotentPerKey(t *testing.T) {
	f := newAPIFixture(t)
	headers := map[string]string{HeaderIdempotencyKey: "je-1"}

	rec := f.do(t, http.MethodPost, "/api/v1/journal-entries", f.capital("500"), headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/journal-entries", f.capital("500"), headers)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(shared.CodeConflict), problem(t, rec).Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", f.cash.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var account ledger.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	require.Equal(t, "500", account.Balance("LKR").String())
}

func TestJournalEntryErrorsMapToProblems(t *testing.T) {
	f := newAPIFixture(t)

	unbalanced := map[string]any{
		"lines": []map[string]any{
			{"account_id": f.cash.ID, "debit": "100"},
			{"account_id": f.equity.ID, "credit": "90"},
		},
	}
	rec := f.do(t, http.MethodPost, "/api/v1/journal-entries", unbalanced, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, string(shared.CodeUnbalancedEntry), problem(t, rec).Code)

	oneLine := map[string]any{"lines": []map[string]any{{"account_id": f.cash.ID, "debit": "1"}}}
	rec = f.do(t, http.MethodPost, "/api/v1/journal-entries", oneLine, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(shared.CodeValidation), problem(t, rec).Code)

	foreign := map[string]any{
		"currency": "USD",
		"lines": []map[string]any{
			{"account_id": f.cash.ID, "debit": "1"},
			{"account_id": f.equity.ID, "credit": "1"},
		},
	}
	rec = f.do(t, http.MethodPost, "/api/v1/journal-entries", foreign, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, string(shared.CodeRateNotFound), problem(t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/journal-entries", bytes.NewBufferString("{"))
	req.Header.Set(HeaderTenantID, "1")
	raw := httptest.NewRecorder()
	f.router.ServeHTTP(raw, req)
	require.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestTenantsCannotReadEachOther(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", f.cash.ID), nil, map[string]string{HeaderTenantID: "2"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, string(shared.CodeReferenceNotFound), problem(t, rec).Code)
}

func TestRatesRoundTripAndHistory(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPut, "/api/v1/rates", map[string]any{
		"from": "usd", "to": "lkr", "date": "2024-01-02T00:00:00Z", "rate": "300",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/rates?from=USD&to=LKR&date=2024-01-10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "300", body["rate"])

	rec = f.do(t, http.MethodPost, "/api/v1/journal-entries", f.capital("10"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/ledger?account_id=%d", f.cash.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []ledger.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)

	rec = f.do(t, http.MethodGet, "/api/v1/ledger/integrity", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentAgainstUnknownSourceIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
		"source": map[string]any{"kind": "sales_invoice", "id": 42},
		"lines":  []map[string]any{{"method_id": 1, "amount": "10"}},
	}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/payments", map[string]any{
		"source": map[string]any{"kind": "gift_card", "id": 42},
		"lines":  []map[string]any{{"method_id": 1, "amount": "10"}},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocaleTakesFirstLanguage(t *testing.T) {
	require.Equal(t, "si-LK", locale("si-LK,en;q=0.8"))
	require.Equal(t, "en", locale("en;q=0.9"))
	require.Empty(t, locale(""))
}
