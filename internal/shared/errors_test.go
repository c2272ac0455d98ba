package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCodeOfUnwrapsStructuredErrors(t *testing.T) {
	cases := []struct {
		err  error
		code Code
	}{
		{NotFound("purchase order", 7), CodeReferenceNotFound},
		{MissingConfiguration(1, "GRNI"), CodeConfigurationMissing},
		{Invalid("amount", "must be positive"), CodeValidation},
		{&StateError{Document: "po", ID: 1, Status: "cancelled", Action: "receive"}, CodeInvalidState},
		{fmt.Errorf("post: %w", ErrOverpayment), CodeOverpayment},
		{errors.New("boom"), CodeInternal},
		{nil, ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.code, CodeOf(tc.err))
	}
	require.True(t, IsBusiness(NotFound("cheque", 3)))
	require.False(t, IsBusiness(errors.New("connection reset")))
}

func TestBaseCurrencyFallsBackWithoutActor(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, "LKR", BaseCurrency(ctx, "lkr"))

	ctx = ContextWithActor(ctx, Actor{UserID: 9, TenantID: 2, BaseCurrency: " usd "})
	require.Equal(t, "USD", BaseCurrency(ctx, "LKR"))
	require.Equal(t, int64(2), TenantID(ctx))
	require.Equal(t, int64(9), UserID(ctx))
}

func TestNearlyEqualUsesTolerance(t *testing.T) {
	a := decimal.RequireFromString("100.0000004")
	require.True(t, NearlyEqual(a, decimal.NewFromInt(100)))
	require.False(t, NearlyEqual(decimal.RequireFromString("100.01"), decimal.NewFromInt(100)))
}

type claimRecorder struct {
	keys map[string]bool
}

func (r *claimRecorder) ClaimIdempotencyKey(ctx context.Context, module, key string) error {
	if r.keys[module+":"+key] {
		return ErrIdempotencyConflict
	}
	r.keys[module+":"+key] = true
	return nil
}

func TestClaimKeyRejectsReplay(t *testing.T) {
	rec := &claimRecorder{keys: map[string]bool{}}
	ctx := context.Background()
	require.NoError(t, ClaimKey(ctx, rec, "payments", ""))
	require.NoError(t, ClaimKey(ctx, rec, "payments", "abc"))
	err := ClaimKey(ctx, rec, "payments", "abc")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.Equal(t, CodeConflict, CodeOf(err))
}
