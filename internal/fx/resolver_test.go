package fx

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type memoryRates struct {
	rates []Rate
	calls int
}

func (m *memoryRates) RateOn(ctx context.Context, from, to string, day time.Time) (Rate, bool, error) {
	m.calls++
	for _, r := range m.rates {
		if r.From == from && r.To == to && r.Date.Equal(day) {
			return r, true, nil
		}
	}
	return Rate{}, false, nil
}

func (m *memoryRates) LatestRateOnOrBefore(ctx context.Context, from, to string, day time.Time) (Rate, bool, error) {
	var candidates []Rate
	for _, r := range m.rates {
		if r.From == from && r.To == to && !r.Date.After(day) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Rate{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Date.After(candidates[j].Date) })
	return candidates[0], true, nil
}

func (m *memoryRates) UpsertRate(ctx context.Context, rate Rate) error {
	for i, r := range m.rates {
		if r.From == rate.From && r.To == rate.To && r.Date.Equal(rate.Date) {
			m.rates[i] = rate
			return nil
		}
	}
	m.rates = append(m.rates, rate)
	return nil
}

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetRateSameCurrencyIsParity(t *testing.T) {
	resolver := NewResolver(nil, discardLogger())
	store := &memoryRates{}
	rate, err := resolver.GetRate(context.Background(), store, "lkr", "LKR", day(1))
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(1)))
	require.Zero(t, store.calls)
}

func TestGetRateFallsBackToEarlierDay(t *testing.T) {
	resolver := NewResolver(nil, discardLogger())
	store := &memoryRates{rates: []Rate{
		{From: "USD", To: "LKR", Date: day(1), Rate: decimal.NewFromInt(300)},
		{From: "USD", To: "LKR", Date: day(5), Rate: decimal.NewFromInt(305)},
	}}
	ctx := context.Background()

	rate, err := resolver.GetRate(ctx, store, "USD", "LKR", day(3).Add(17*time.Hour))
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(300)))

	rate, err = resolver.GetRate(ctx, store, "USD", "LKR", day(5).Add(23*time.Hour))
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(305)))

	_, err = resolver.GetRate(ctx, store, "USD", "LKR", time.Date(2024, time.February, 29, 12, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrRateNotFound)
	var notFound *RateNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "USD", notFound.From)
	require.Equal(t, shared.CodeRateNotFound, shared.CodeOf(err))
}

func TestGetRateNormalizesToUTCDay(t *testing.T) {
	resolver := NewResolver(nil, discardLogger())
	store := &memoryRates{rates: []Rate{{From: "EUR", To: "USD", Date: day(2), Rate: decimal.RequireFromString("1.08")}}}
	colombo := time.FixedZone("IST", 5*3600+1800)
	// 02:00 local on the 3rd is still the 2nd in UTC.
	rate, err := resolver.GetRate(context.Background(), store, "EUR", "USD", time.Date(2024, time.March, 3, 2, 0, 0, 0, colombo))
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.RequireFromString("1.08")))
}

func TestPutRateValidatesInput(t *testing.T) {
	resolver := NewResolver(nil, discardLogger())
	store := &memoryRates{}
	ctx := context.Background()

	_, err := resolver.PutRate(ctx, store, Rate{From: "XXQ", To: "USD", Date: day(1), Rate: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = resolver.PutRate(ctx, store, Rate{From: "USD", To: "LKR", Date: day(1), Rate: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrValidation)

	saved, err := resolver.PutRate(ctx, store, Rate{From: "usd", To: "lkr", Date: day(1).Add(9 * time.Hour), Rate: decimal.NewFromInt(299)})
	require.NoError(t, err)
	require.Equal(t, "USD", saved.From)
	require.True(t, saved.Date.Equal(day(1)))
	require.Len(t, store.rates, 1)
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCache(client, time.Hour, discardLogger())
}

func TestRedisCacheServesRememberedExactDayHits(t *testing.T) {
	mr, cache := newRedisCache(t)
	resolver := NewResolver(cache, discardLogger())
	store := &memoryRates{rates: []Rate{{From: "USD", To: "LKR", Date: day(1), Rate: decimal.NewFromInt(300)}}}
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{TenantID: 4})

	quote, err := resolver.Quote(ctx, store, "USD", "LKR", day(1))
	require.NoError(t, err)
	require.True(t, quote.Exact)
	require.False(t, quote.Cached)
	require.Equal(t, 1, store.calls)
	require.Empty(t, mr.Keys(), "lookups never write the cache themselves")

	resolver.Remember(ctx, quote)
	require.True(t, mr.Exists("fx:4:USD:LKR:0:2024-03-01"))

	quote, err = resolver.Quote(ctx, store, "USD", "LKR", day(1))
	require.NoError(t, err)
	require.True(t, quote.Cached)
	require.True(t, quote.Rate.Equal(decimal.NewFromInt(300)))
	require.Equal(t, 1, store.calls)
}

func TestRedisCacheSkipsFallbackRates(t *testing.T) {
	mr, cache := newRedisCache(t)
	resolver := NewResolver(cache, discardLogger())
	store := &memoryRates{rates: []Rate{{From: "USD", To: "LKR", Date: day(1), Rate: decimal.NewFromInt(300)}}}
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{TenantID: 4})

	quote, err := resolver.Quote(ctx, store, "USD", "LKR", day(9))
	require.NoError(t, err)
	require.False(t, quote.Exact)
	resolver.Remember(ctx, quote)
	require.Empty(t, mr.Keys())
}

func TestRedisCacheDropsRatesReadBeforeAChange(t *testing.T) {
	_, cache := newRedisCache(t)
	resolver := NewResolver(cache, discardLogger())
	store := &memoryRates{rates: []Rate{{From: "USD", To: "LKR", Date: day(1), Rate: decimal.NewFromInt(300)}}}
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{TenantID: 4})

	// a reader resolves the old rate while a writer replaces it
	stale, err := resolver.Quote(ctx, store, "USD", "LKR", day(1))
	require.NoError(t, err)
	saved, err := resolver.PutRate(ctx, store, Rate{From: "USD", To: "LKR", Date: day(1), Rate: decimal.NewFromInt(301)})
	require.NoError(t, err)
	resolver.Forget(ctx, saved)
	resolver.Remember(ctx, stale)

	quote, err := resolver.Quote(ctx, store, "USD", "LKR", day(1))
	require.NoError(t, err)
	require.False(t, quote.Cached)
	require.True(t, quote.Rate.Equal(decimal.NewFromInt(301)))
}

func TestPutRateLeavesCacheToCaller(t *testing.T) {
	mr, cache := newRedisCache(t)
	resolver := NewResolver(cache, discardLogger())
	store := &memoryRates{}
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{TenantID: 4})

	saved, err := resolver.PutRate(ctx, store, Rate{From: "USD", To: "LKR", Date: day(1), Rate: decimal.NewFromInt(301)})
	require.NoError(t, err)
	require.False(t, mr.Exists("fx:4:USD:LKR:gen"))

	resolver.Forget(ctx, saved)
	gen, ok := cache.Generation(ctx, 4, "USD", "LKR")
	require.True(t, ok)
	require.Equal(t, uint64(1), gen)
}
