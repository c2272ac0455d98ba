package fx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Cache memoises exact-day rates. Implementations must be safe for concurrent use.
//
// Entries are keyed by a per-pair generation. Invalidate moves the pair to a
// new generation, so a value read before a rate change and written after it
// lands under a generation nobody reads any more.
type Cache interface {
	// Generation returns the pair's current generation; false when the cache is unreachable.
	Generation(ctx context.Context, tenantID int64, from, to string) (uint64, bool)
	Get(ctx context.Context, tenantID int64, from, to string, gen uint64, day time.Time) (decimal.Decimal, bool)
	Set(ctx context.Context, tenantID int64, from, to string, gen uint64, day time.Time, rate decimal.Decimal)
	Invalidate(ctx context.Context, tenantID int64, from, to string)
}

// Resolver looks up rates through the unit of work handed to each call. It
// only reads the cache; Remember and Forget run once the caller's unit of work
// has committed.
type Resolver struct {
	cache  Cache
	logger *slog.Logger
}

// NewResolver constructs a Resolver. cache may be nil.
func NewResolver(cache Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cache: cache, logger: logger}
}

// Quote is a resolved rate and where it came from.
type Quote struct {
	From string
	To   string
	Day  time.Time
	Rate decimal.Decimal

	// Exact is set when a rate was recorded on Day itself.
	Exact  bool
	Cached bool

	tenantID  int64
	gen       uint64
	cacheable bool
}

// GetRate returns the rate converting from into to on date. Same-currency pairs
// return one. The exact day is tried first, then the latest earlier rate.
func (r *Resolver) GetRate(ctx context.Context, store Store, from, to string, date time.Time) (decimal.Decimal, error) {
	quote, err := r.Quote(ctx, store, from, to, date)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Rate, nil
}

// Quote resolves a rate like GetRate and keeps what Remember needs to cache it.
func (r *Resolver) Quote(ctx context.Context, store Store, from, to string, date time.Time) (Quote, error) {
	from = shared.NormalizeCurrency(from)
	to = shared.NormalizeCurrency(to)
	if from == "" || to == "" {
		return Quote{}, shared.Invalid("currency", "both currencies are required")
	}
	if date.IsZero() {
		date = time.Now()
	}
	q := Quote{From: from, To: to, Day: NormalizeDay(date), tenantID: shared.TenantID(ctx)}
	if from == to {
		q.Rate, q.Exact = decimal.NewFromInt(1), true
		return q, nil
	}

	// the generation is read before the store so a concurrent rate change
	// always retires what this lookup might cache
	if r.cache != nil {
		q.gen, q.cacheable = r.cache.Generation(ctx, q.tenantID, from, to)
		if q.cacheable {
			if rate, ok := r.cache.Get(ctx, q.tenantID, from, to, q.gen, q.Day); ok {
				q.Rate, q.Exact, q.Cached = rate, true, true
				return q, nil
			}
		}
	}

	rate, ok, err := store.RateOn(ctx, from, to, q.Day)
	if err != nil {
		return Quote{}, fmt.Errorf("fx: rate on %s: %w", q.Day.Format(time.DateOnly), err)
	}
	if ok {
		q.Rate, q.Exact = rate.Rate, true
		return q, nil
	}

	rate, ok, err = store.LatestRateOnOrBefore(ctx, from, to, q.Day)
	if err != nil {
		return Quote{}, fmt.Errorf("fx: latest rate before %s: %w", q.Day.Format(time.DateOnly), err)
	}
	if !ok {
		return Quote{}, &RateNotFoundError{From: from, To: to, Date: q.Day}
	}
	r.logger.Debug("fx rate fallback",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("requested", q.Day.Format(time.DateOnly)),
		slog.String("used", rate.Date.Format(time.DateOnly)))
	q.Rate = rate.Rate
	return q, nil
}

// Remember caches an exact-day quote read from the store. Call it only after
// the unit of work that produced q has committed.
func (r *Resolver) Remember(ctx context.Context, q Quote) {
	if r.cache == nil || !q.cacheable || !q.Exact || q.Cached {
		return
	}
	r.cache.Set(ctx, q.tenantID, q.From, q.To, q.gen, q.Day, q.Rate)
}

// Forget retires cached rates of the pair after a committed rate change.
func (r *Resolver) Forget(ctx context.Context, rate Rate) {
	if r.cache == nil {
		return
	}
	r.cache.Invalidate(ctx, shared.TenantID(ctx), rate.From, rate.To)
}

// PutRate validates and stores a rate for the UTC day of rate.Date. Callers
// hand the result to Forget once the write has committed.
func (r *Resolver) PutRate(ctx context.Context, store WriteStore, rate Rate) (Rate, error) {
	from, err := ValidateCurrency(rate.From)
	if err != nil {
		return Rate{}, err
	}
	to, err := ValidateCurrency(rate.To)
	if err != nil {
		return Rate{}, err
	}
	if from == to {
		return Rate{}, shared.Invalid("to", "must differ from from currency")
	}
	if !rate.Rate.IsPositive() {
		return Rate{}, shared.Invalid("rate", "must be positive")
	}
	if rate.Date.IsZero() {
		return Rate{}, shared.Invalid("date", "required")
	}
	normalized := Rate{From: from, To: to, Date: NormalizeDay(rate.Date), Rate: rate.Rate}
	if err := store.UpsertRate(ctx, normalized); err != nil {
		return Rate{}, fmt.Errorf("fx: upsert rate: %w", err)
	}
	return normalized, nil
}

// Day returns the normalized rate date.
func (r Rate) Day() time.Time {
	return NormalizeDay(r.Date)
}
