package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func tenantCtx(id int64) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{TenantID: id})
}

func TestWithTxDiscardsWorkOnError(t *testing.T) {
	store := New()
	ctx := tenantCtx(1)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(ctx context.Context, tx engine.Tx) error {
		_, err := tx.CreateAccount(ctx, ledger.Account{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset})
		require.NoError(t, err)
		require.NoError(t, tx.ClaimIdempotencyKey(ctx, "m", "k"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx engine.Tx) error {
		accounts, err := tx.ListAccounts(ctx)
		require.NoError(t, err)
		require.Empty(t, accounts)
		return tx.ClaimIdempotencyKey(ctx, "m", "k")
	}))
}

func TestWithTxPublishesOnSuccess(t *testing.T) {
	store := New()
	ctx := tenantCtx(1)
	var id int64
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx engine.Tx) error {
		var err error
		id, err = tx.CreateAccount(ctx, ledger.Account{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset, SystemKey: ledger.SystemInventoryAsset})
		if err != nil {
			return err
		}
		return tx.ApplyBalanceDeltas(ctx, []ledger.BalanceDelta{{AccountID: id, Currency: "LKR", Amount: decimal.NewFromInt(5)}})
	}))

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx engine.Tx) error {
		account, ok, err := tx.FindSystemAccount(ctx, ledger.SystemInventoryAsset)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, id, account.ID)
		require.True(t, account.Balance("LKR").Equal(decimal.NewFromInt(5)))

		// mutating a returned copy does not leak into the store
		account.Balances["LKR"] = decimal.NewFromInt(99)
		again, err := tx.GetAccount(ctx, id)
		require.NoError(t, err)
		require.True(t, again.Balance("LKR").Equal(decimal.NewFromInt(5)))
		return nil
	}))

	require.NoError(t, store.WithTx(tenantCtx(2), func(ctx context.Context, tx engine.Tx) error {
		_, err := tx.GetAccount(ctx, id)
		require.ErrorIs(t, err, shared.ErrReferenceNotFound)
		return nil
	}))
}

func TestSequencesAreIndependentPerName(t *testing.T) {
	store := New()
	require.NoError(t, store.WithTx(tenantCtx(1), func(ctx context.Context, tx engine.Tx) error {
		for _, want := range []int64{1, 2} {
			got, err := tx.NextSequence(ctx, "payment")
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
		got, err := tx.NextSequence(ctx, "rma")
		require.NoError(t, err)
		require.Equal(t, int64(1), got)
		return nil
	}))
}

func TestLatestRateOnOrBeforePicksMostRecent(t *testing.T) {
	store := New()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, store.WithTx(tenantCtx(1), func(ctx context.Context, tx engine.Tx) error {
		for d, rate := range map[int]int64{1: 290, 5: 300, 9: 310} {
			require.NoError(t, tx.UpsertRate(ctx, fx.Rate{From: "USD", To: "LKR", Date: day(d), Rate: decimal.NewFromInt(rate)}))
		}
		rate, ok, err := tx.LatestRateOnOrBefore(ctx, "USD", "LKR", day(7))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, rate.Rate.Equal(decimal.NewFromInt(300)))

		_, ok, err = tx.RateOn(ctx, "USD", "LKR", day(7))
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestListPendingChequesFiltersByStatusAndDate(t *testing.T) {
	store := New()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.WithTx(tenantCtx(1), func(ctx context.Context, tx engine.Tx) error {
		early, _ := tx.CreateCheque(ctx, payments.Cheque{Number: "1", ChequeDate: base, Status: payments.ChequePendingClearance})
		_, _ = tx.CreateCheque(ctx, payments.Cheque{Number: "2", ChequeDate: base.AddDate(0, 0, 10), Status: payments.ChequePendingClearance})
		cleared, _ := tx.CreateCheque(ctx, payments.Cheque{Number: "3", ChequeDate: base, Status: payments.ChequePendingClearance})
		require.NoError(t, tx.UpdateChequeStatus(ctx, cleared, payments.ChequeCleared, base))

		pending, err := tx.ListPendingCheques(ctx, base.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, early, pending[0].ID)
		return nil
	}))
}
