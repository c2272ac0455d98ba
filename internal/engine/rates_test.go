package engine_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

func rateKeys(mr *miniredis.Miniredis) []string {
	var keys []string
	for _, key := range mr.Keys() {
		if !strings.HasSuffix(key, ":gen") {
			keys = append(keys, key)
		}
	}
	return keys
}

func TestRateCacheIsWrittenOnlyAfterCommittedReads(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(memory.New(), engine.Config{BaseCurrency: "LKR"}, fx.NewRedisCache(client, time.Hour, logger), logger)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{TenantID: 1, BaseCurrency: "LKR"})

	_, err := eng.PutRate(ctx, fx.Rate{From: "USD", To: "LKR", Date: rateDay, Rate: dec("300")})
	require.NoError(t, err)
	require.Equal(t, "1", mustGet(t, mr, "fx:1:USD:LKR:gen"))

	cash, err := eng.OpenAccount(ctx, ledger.Account{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset})
	require.NoError(t, err)
	capital, err := eng.OpenAccount(ctx, ledger.Account{Code: "3000", Name: "Capital", Type: ledger.AccountTypeEquity})
	require.NoError(t, err)

	// postings resolve rates without caching them
	_, err = eng.CreateJournalEntry(ctx, "", ledger.JournalInput{
		Currency: "USD",
		Date:     rateDay,
		Lines:    []ledger.Line{ledger.Debit(cash.ID, dec("10")), ledger.Credit(capital.ID, dec("10"))},
	})
	require.NoError(t, err)
	require.Empty(t, rateKeys(mr))

	rate, err := eng.GetRate(ctx, "USD", "LKR", rateDay)
	require.NoError(t, err)
	requireAmount(t, "300", rate)
	require.Equal(t, []string{"fx:1:USD:LKR:1:2024-01-02"}, rateKeys(mr))

	_, err = eng.PutRate(ctx, fx.Rate{From: "USD", To: "LKR", Date: rateDay, Rate: dec("305")})
	require.NoError(t, err)
	rate, err = eng.GetRate(ctx, "USD", "LKR", rateDay)
	require.NoError(t, err)
	requireAmount(t, "305", rate)

	// a rejected rate leaves the cache alone
	_, err = eng.PutRate(ctx, fx.Rate{From: "USD", To: "LKR", Date: rateDay, Rate: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, "2", mustGet(t, mr, "fx:1:USD:LKR:gen"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	value, err := mr.Get(key)
	require.NoError(t, err)
	return value
}
