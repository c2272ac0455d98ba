package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestRespondErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("post: %w", shared.ErrUnbalancedEntry), http.StatusUnprocessableEntity, "UNBALANCED_ENTRY"},
		{shared.NotFound("purchase order", 9), http.StatusNotFound, "REFERENCE_NOT_FOUND"},
		{shared.MissingConfiguration(1, "GRNI"), http.StatusFailedDependency, "CONFIGURATION_MISSING"},
		{shared.Invalid("lines", "required"), http.StatusBadRequest, "VALIDATION_FAILED"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.code, body.Code)
		if tc.status == http.StatusInternalServerError {
			require.Empty(t, body.Detail)
		}
	}
}

func TestDecodeJSONRejectsMalformedBodies(t *testing.T) {
	var target struct {
		Amount string `json:"amount"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"10"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "10", target.Amount)

	for _, body := range []string{`{"amount":`, `{"amount":"1"}{"amount":"2"}`, ``} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := DecodeJSON(req, &target)
		require.ErrorIs(t, err, ErrBadRequest, body)
		status, _, code := StatusFor(err)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, shared.CodeValidation, code)
	}
}
